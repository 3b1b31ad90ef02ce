package security

import (
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"
)

// Family groups attack signatures.
type Family string

const (
	FamilySQLInjection  Family = "sql_injection"
	FamilyXSS           Family = "xss"
	FamilyPathTraversal Family = "path_traversal"
	FamilyMalformedPath Family = "malformed_path"
)

// Finding describes the first signature that matched a request.
type Finding struct {
	Family   Family `json:"family"`
	Location string `json:"location"`
	Pattern  string `json:"pattern,omitempty"`
}

// Signatures is an immutable compiled signature set.
type Signatures struct {
	SQLInjection  []*regexp.Regexp
	XSS           []*regexp.Regexp
	PathTraversal []*regexp.Regexp
}

var defaultRules = SignatureRules{
	SQLInjection: []string{
		`(\%27)|(\')|(\-\-)|(\%23)|(#)`,
		`((\%3D)|(=))[^\n]*((\%27)|(\')|(\-\-)|(\%3B)|(;))`,
		`(?i)(union).*(select).*(\()`,
	},
	XSS: []string{
		`(?i)<[^\w<>]*(?:[^<>"'\s]*:)?[^\w<>]*(?:\W*s\W*c\W*r\W*i\W*p\W*t|\W*i\W*m\W*g|\W*o\W*n\W*e\W*r\W*r\W*o\W*r|\W*s\W*t\W*y\W*l\W*e|\W*t\W*a\W*b\W*i\W*n\W*d\W*e\W*x|\W*a\W*l\W*e\W*r\W*t|\W*o\W*n\W*f\W*o\W*c\W*u\W*s)`,
		`(?i)(javascript|vbscript):`,
		`(?i)eval\((.*)\)`,
	},
	PathTraversal: []string{
		`\.{2}/`,
		`\.{2}\\`,
		`(?i)(\.|%2e){2}(%2f|%5c)`,
	},
}

// DefaultSignatures returns the built-in signature set.
func DefaultSignatures() *Signatures {
	sigs, err := defaultRules.compile()
	if err != nil {
		panic("security: built-in signatures do not compile: " + err.Error())
	}
	return sigs
}

// Detector is a coarse signature tripwire over request content. False positives are expected.
// The signature set can be swapped at runtime.
type Detector struct {
	sigs atomic.Pointer[Signatures]
}

func NewDetector(sigs *Signatures) *Detector {
	if sigs == nil {
		sigs = DefaultSignatures()
	}
	d := &Detector{}
	d.sigs.Store(sigs)
	return d
}

// SetSignatures replaces the active signature set.
func (d *Detector) SetSignatures(sigs *Signatures) {
	d.sigs.Store(sigs)
}

// Inspect reports whether the request looks malicious.
func (d *Detector) Inspect(path, rawQuery, body string) bool {
	_, bad := d.Match(path, rawQuery, body)
	return bad
}

// Match returns the first finding. The body should only be passed for form-encoded POSTs.
// Path traversal is checked on path and query; injection and XSS also on the body.
// Query and body are checked both raw and URL-decoded.
func (d *Detector) Match(path, rawQuery, body string) (Finding, bool) {
	if !ValidRoutePath(path) {
		return Finding{Family: FamilyMalformedPath, Location: "path"}, true
	}
	sigs := d.sigs.Load()

	type target struct {
		location string
		values   []string
	}
	pathT := target{"path", []string{path}}
	query := target{"query", withDecoded(rawQuery)}
	form := target{"body", withDecoded(body)}

	checks := []struct {
		family  Family
		res     []*regexp.Regexp
		targets []target
	}{
		{FamilyPathTraversal, sigs.PathTraversal, []target{pathT, query}},
		{FamilySQLInjection, sigs.SQLInjection, []target{pathT, query, form}},
		{FamilyXSS, sigs.XSS, []target{pathT, query, form}},
	}
	for _, c := range checks {
		for _, re := range c.res {
			for _, t := range c.targets {
				for _, v := range t.values {
					if v != "" && re.MatchString(v) {
						return Finding{Family: c.family, Location: t.location, Pattern: re.String()}, true
					}
				}
			}
		}
	}
	return Finding{}, false
}

func withDecoded(raw string) []string {
	if raw == "" {
		return nil
	}
	decoded, err := url.QueryUnescape(raw)
	if err != nil || decoded == raw {
		return []string{raw}
	}
	return []string{raw, decoded}
}

// ValidRoutePath reports whether p is a well-formed absolute route path.
func ValidRoutePath(p string) bool {
	if p == "" || p[0] != '/' || !utf8.ValidString(p) {
		return false
	}
	return strings.IndexFunc(p, unicode.IsControl) < 0
}
