package sync

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// exists reports whether name is already taken; namegen calls this with
// the orchestrator's current local/cloud snapshot membership.
type exists func(name string) bool

// numberedSuffix matches a trailing "_N" on a name's stem so a name that is
// already a preserved copy continues its own numbering instead of growing a
// new "_1" suffix on top of it.
var numberedSuffix = regexp.MustCompile(`^(.*)_(\d+)$`)

// preservedCopyName returns a name that does not collide with anything
// exists reports as taken, used to keep a local file intact under
// ResolveInitialSyncConflict rather than overwrite it. If name's stem
// already ends in "_N", numbering continues from N+1; otherwise it starts
// from "stem_1.ext". Either way it tries successive candidates up to a small
// bound, then falls back to a uuid-suffixed name, which cannot realistically
// collide.
func preservedCopyName(name string, has exists) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	start := 1
	if m := numberedSuffix.FindStringSubmatch(stem); m != nil {
		if n, err := strconv.Atoi(m[2]); err == nil {
			stem = m[1]
			start = n + 1
		}
	}

	const maxNumberedAttempts = 20
	for i := start; i < start+maxNumberedAttempts; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if !has(candidate) {
			return candidate
		}
	}

	return fmt.Sprintf("%s_%s%s", stem, uuid.NewString(), ext)
}
