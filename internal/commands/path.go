package commands

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathViolation-style message is returned (not a sentinel error) since the
// Command Handler's contract is a Result, not an error (§7 "path violation").
const pathViolationMessage = "path must be within the workspace root"

// resolveWithinRoot joins root and userPath, cleans the result, and verifies
// it is still lexically inside root (P7). userPath may be relative or
// absolute; an absolute path outside root is rejected the same as a
// relative path using `..` to escape.
func resolveWithinRoot(root, userPath string) (string, error) {
	root = filepath.Clean(root)

	var candidate string
	if filepath.IsAbs(userPath) {
		candidate = filepath.Clean(userPath)
	} else {
		candidate = filepath.Clean(filepath.Join(root, userPath))
	}

	if candidate != root && !strings.HasPrefix(candidate, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%s", pathViolationMessage)
	}
	return candidate, nil
}
