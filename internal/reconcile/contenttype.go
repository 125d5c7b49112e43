package reconcile

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// AcceptedTypes reports whether a local path belongs to the content family
// the core is configured to treat as text. DetectContentType consults it;
// nothing in the watchers drops a path because it does not match. It
// generalizes the teacher's hardcoded text-like suffix list into a
// configurable glob set.
type AcceptedTypes struct {
	patterns []string
}

// DefaultAcceptedTypes mirrors the teacher's isTextLike suffix list,
// expressed as doublestar patterns.
func DefaultAcceptedTypes() *AcceptedTypes {
	return NewAcceptedTypes([]string{"**/*.yaml", "**/*.yml", "**/*.toml", "**/*.md", "**/*.MD"})
}

// NewAcceptedTypes builds a matcher from a set of doublestar glob patterns.
func NewAcceptedTypes(patterns []string) *AcceptedTypes {
	return &AcceptedTypes{patterns: patterns}
}

// Accepts reports whether relPath matches the configured pattern set.
func (a *AcceptedTypes) Accepts(relPath string) bool {
	for _, pattern := range a.patterns {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
	}
	return false
}

// DetectContentType derives a MIME type for a path, treating the
// configured accepted-type patterns as text regardless of extension and
// falling back to the standard extension table, then octet-stream.
func DetectContentType(relPath string, accepted *AcceptedTypes) string {
	if accepted != nil {
		if accepted.Accepts(relPath) {
			return "text/plain; charset=utf-8"
		}
	} else if isTextLike(relPath) {
		return "text/plain; charset=utf-8"
	}
	if mimeType := mime.TypeByExtension(filepath.Ext(relPath)); mimeType != "" {
		return mimeType
	}
	return "application/octet-stream"
}

// isTextLike is retained for the narrow case of the default matcher being
// bypassed entirely (accepted == nil), matching the teacher's original
// suffix check.
func isTextLike(key string) bool {
	return strings.HasSuffix(key, ".yaml") ||
		strings.HasSuffix(key, ".yml") ||
		strings.HasSuffix(key, ".toml") ||
		strings.HasSuffix(key, ".md")
}
