package security

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// SignatureRules is the uncompiled form of a signature set, as written in a rules file:
//
//	sql_injection:
//	  - '(?i)sleep\(\d+\)'
//	xss:
//	  - '(?i)<iframe'
//	path_traversal:
//	  - '/etc/passwd'
type SignatureRules struct {
	SQLInjection  []string `yaml:"sql_injection"`
	XSS           []string `yaml:"xss"`
	PathTraversal []string `yaml:"path_traversal"`
}

func (r SignatureRules) compile() (*Signatures, error) {
	var sigs Signatures
	var err error
	if sigs.SQLInjection, err = compileAll(FamilySQLInjection, r.SQLInjection); err != nil {
		return nil, err
	}
	if sigs.XSS, err = compileAll(FamilyXSS, r.XSS); err != nil {
		return nil, err
	}
	if sigs.PathTraversal, err = compileAll(FamilyPathTraversal, r.PathTraversal); err != nil {
		return nil, err
	}
	return &sigs, nil
}

func compileAll(family Family, patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%s signature %q: %w", family, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// ParseSignatures compiles a YAML rules document and appends it to the built-in set.
// Any invalid pattern rejects the whole document.
func ParseSignatures(data []byte) (*Signatures, error) {
	var extra SignatureRules
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("parse signatures: %w", err)
	}
	merged := SignatureRules{
		SQLInjection:  append(append([]string(nil), defaultRules.SQLInjection...), extra.SQLInjection...),
		XSS:           append(append([]string(nil), defaultRules.XSS...), extra.XSS...),
		PathTraversal: append(append([]string(nil), defaultRules.PathTraversal...), extra.PathTraversal...),
	}
	return merged.compile()
}

// LoadSignatures reads a rules file from disk. See ParseSignatures.
func LoadSignatures(path string) (*Signatures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signatures %s: %w", path, err)
	}
	return ParseSignatures(data)
}
