package reconcile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

var defaultIgnoreLines = []string{
	".syncignore",
	"**/*.conflict.*",
	"**/*.rejected.*",
	"*.sync.tmp.*",
	".synckeep",
	".ipynb_checkpoints/",
	"__pycache__/",
	"*.py[cod]",
	"dist/",
	"venv/",
	".venv/",
	".vscode",
	".idea",
	".git",
	"*.tmp",
	"*.log",
	"logs/",
	".DS_Store",
	"Thumbs.db",
	"Icon",
}

// IgnoreList filters local paths out of what the watcher reports, before
// they ever reach the Reconciler, using gitignore-style patterns.
type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

// NewIgnoreList builds an IgnoreList rooted at baseDir. Call Load before
// ShouldIgnore.
func NewIgnoreList(baseDir string) *IgnoreList {
	return &IgnoreList{baseDir: baseDir}
}

// Load compiles the default rules plus any custom rules found in a
// .syncignore file at the root of baseDir.
func (l *IgnoreList) Load() {
	ignorePath := filepath.Join(l.baseDir, ".syncignore")
	lines := defaultIgnoreLines

	if info, err := os.Stat(ignorePath); err == nil && !info.IsDir() {
		custom, err := readIgnoreFile(ignorePath)
		if err != nil {
			slog.Warn("failed to read ignore file", "path", ignorePath, "error", err)
		} else if len(custom) > 0 {
			lines = append(lines, custom...)
			slog.Info("loaded ignore file", "path", ignorePath, "rules", len(custom))
		}
	}

	l.ignore = gitignore.CompileIgnoreLines(lines...)
}

// ShouldIgnore reports whether path (absolute under baseDir, or already
// relative to baseDir) should be excluded from the local snapshot fed to
// the Reconciler.
func (l *IgnoreList) ShouldIgnore(path string) bool {
	relPath := path
	if filepath.IsAbs(path) {
		var err error
		relPath, err = filepath.Rel(l.baseDir, path)
		if err != nil {
			return false
		}
	}
	return l.ignore.MatchesPath(relPath)
}

func readIgnoreFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ignore file: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.Contains(line, "\x00") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ignore file: %w", err)
	}
	return lines, nil
}
