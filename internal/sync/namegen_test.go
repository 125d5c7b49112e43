package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreservedCopyName_FirstAvailableNumber(t *testing.T) {
	taken := map[string]bool{"notes.md": true, "notes_1.md": true}
	name := preservedCopyName("notes.md", func(n string) bool { return taken[n] })
	assert.Equal(t, "notes_2.md", name)
}

func TestPreservedCopyName_NoExtension(t *testing.T) {
	name := preservedCopyName("README", func(n string) bool { return false })
	assert.Equal(t, "README_1", name)
}

func TestPreservedCopyName_FallsBackToUUIDWhenAllNumbersTaken(t *testing.T) {
	name := preservedCopyName("notes.md", func(n string) bool { return n != "impossible" })
	assert.NotEqual(t, "notes.md", name)
	assert.Contains(t, name, "notes_")
	assert.True(t, len(name) > len("notes_20.md"))
}
