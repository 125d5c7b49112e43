package reconcile

import "testing"

func TestAcceptedTypes_Defaults(t *testing.T) {
	at := DefaultAcceptedTypes()

	accepted := []string{"a/b/notes.md", "config.yaml", "config.yml", "settings.toml"}
	for _, p := range accepted {
		if !at.Accepts(p) {
			t.Errorf("expected %q to be accepted", p)
		}
	}

	rejected := []string{"image.png", "archive.zip", "notes.txt"}
	for _, p := range rejected {
		if at.Accepts(p) {
			t.Errorf("expected %q to be rejected", p)
		}
	}
}

func TestDetectContentType(t *testing.T) {
	at := DefaultAcceptedTypes()

	if got := DetectContentType("a/notes.md", at); got != "text/plain; charset=utf-8" {
		t.Errorf("notes.md: got %q", got)
	}
	if got := DetectContentType("image.png", at); got == "" || got == "application/octet-stream" {
		t.Errorf("image.png: expected a detected image mime type, got %q", got)
	}
	if got := DetectContentType("unknown.bin", at); got != "application/octet-stream" {
		t.Errorf("unknown.bin: got %q", got)
	}
}
