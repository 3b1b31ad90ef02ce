package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetector_Match(t *testing.T) {
	d := NewDetector(nil)

	tests := []struct {
		name     string
		path     string
		query    string
		body     string
		family   Family
		location string
	}{
		{name: "classic tautology", path: "/api/users", query: "id=1' OR '1'='1", family: FamilySQLInjection, location: "query"},
		{name: "encoded quote", path: "/api/users", query: "id=1%27%20OR%201=1", family: FamilySQLInjection, location: "query"},
		{name: "union select", path: "/api/search", query: "q=1 UNION ALL SELECT (password) FROM users", family: FamilySQLInjection, location: "query"},
		{name: "script tag in body", path: "/api/comments", body: "text=<script>alert(1)</script>", family: FamilyXSS, location: "body"},
		{name: "encoded script tag", path: "/api/comments", query: "q=%3Cscript%3Ealert(1)%3C%2Fscript%3E", family: FamilyXSS, location: "query"},
		{name: "javascript uri", path: "/api/profile", query: "url=JavaScript:alert(1)", family: FamilyXSS, location: "query"},
		{name: "traversal in path", path: "/static/../../etc/passwd", family: FamilyPathTraversal, location: "path"},
		{name: "encoded traversal", path: "/api/files", query: "name=%2e%2e%2fetc%2fpasswd", family: FamilyPathTraversal, location: "query"},
		{name: "control character in path", path: "/api/\x00users", family: FamilyMalformedPath, location: "path"},
		{name: "relative path", path: "api/users", family: FamilyMalformedPath, location: "path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, bad := d.Match(tt.path, tt.query, tt.body)
			assert.True(t, bad)
			assert.Equal(t, tt.family, f.Family)
			assert.Equal(t, tt.location, f.Location)
		})
	}
}

func TestDetector_BenignRequests(t *testing.T) {
	d := NewDetector(nil)

	benign := []struct{ path, query, body string }{
		{"/api/courses", "page=2&limit=20", ""},
		{"/api/auth/login", "", "email=student%40campus.test&password=hunter2"},
		{"/", "", ""},
		{"/api/users/17/profile", "", ""},
	}
	for _, b := range benign {
		assert.False(t, d.Inspect(b.path, b.query, b.body), "%s?%s", b.path, b.query)
	}
}

func TestDetector_SetSignatures(t *testing.T) {
	d := NewDetector(nil)
	assert.False(t, d.Inspect("/api/files", "name=etc/shadow", ""))

	sigs, err := ParseSignatures([]byte("path_traversal:\n  - 'etc/(passwd|shadow)'\n"))
	if assert.NoError(t, err) {
		d.SetSignatures(sigs)
	}
	assert.True(t, d.Inspect("/api/files", "name=etc/shadow", ""))
	// built-ins survive the swap
	assert.True(t, d.Inspect("/api/users", "id=1' OR '1'='1", ""))
}

func TestValidRoutePath(t *testing.T) {
	assert.True(t, ValidRoutePath("/api/users"))
	assert.True(t, ValidRoutePath("/"))
	assert.False(t, ValidRoutePath(""))
	assert.False(t, ValidRoutePath("users"))
	assert.False(t, ValidRoutePath("/api/\x7f"))
	assert.False(t, ValidRoutePath("/api/\xff\xfe"))
}
