// Package sandbox canonicalizes and confines user-supplied paths under a
// workspace root, the way pkg/security.Sandbox does in the sibling agent SDK
// this module grew out of, generalized into the explicit resolve/ensureRoot
// contract the tool layer needs.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/quietloop/workshop/pkg/apperr"
)

// Resolved carries both the absolute filesystem path and its slash-separated
// path relative to the workspace root.
type Resolved struct {
	Absolute     string
	RelativePosix string
}

// EnsureRoot creates dir if missing and returns its canonical absolute path.
func EnsureRoot(dir string) (string, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return "", apperr.New(apperr.InvalidInput, "ensure_root", fmt.Errorf("workspace root is empty"))
	}
	if err := os.MkdirAll(trimmed, 0o755); err != nil {
		return "", apperr.New(apperr.IO, "ensure_root", err)
	}
	real, err := filepath.EvalSymlinks(trimmed)
	if err != nil {
		return "", apperr.New(apperr.IO, "ensure_root", err)
	}
	abs, err := filepath.Abs(real)
	if err != nil {
		return "", apperr.New(apperr.IO, "ensure_root", err)
	}
	return abs, nil
}

// Resolve canonicalizes input against realRoot and confines the result to
// realRoot or a strict descendant of it. realRoot must already be canonical
// (the output of EnsureRoot).
//
// Input is rejected outright, before any filesystem interaction, when it is
// empty/whitespace, absolute, carries a drive qualifier ("C:"), or starts
// with a UNC prefix ("\\\\"). No platform-specific vocabulary otherwise
// leaks into the check: the same rules run regardless of host OS.
func Resolve(realRoot, input string) (Resolved, error) {
	if err := validateInput(input); err != nil {
		return Resolved{}, err
	}

	joined := filepath.Join(realRoot, filepath.FromSlash(input))
	real, tail, err := canonicalizeExistingOrAncestor(joined)
	if err != nil {
		return Resolved{}, err
	}
	full := real
	if len(tail) > 0 {
		full = filepath.Join(append([]string{real}, tail...)...)
	}

	relFull, err := filepath.Rel(realRoot, full)
	if err != nil {
		return Resolved{}, apperr.New(apperr.Escape, "resolve", fmt.Errorf("path escapes workspace root: %s", input))
	}
	relFull = filepath.ToSlash(relFull)
	if relFull == "." {
		relFull = ""
	}
	if relFull == ".." || strings.HasPrefix(relFull, "../") {
		return Resolved{}, apperr.New(apperr.Escape, "resolve", fmt.Errorf("path escapes workspace root: %s", input))
	}

	return Resolved{Absolute: full, RelativePosix: relFull}, nil
}

func validateInput(input string) error {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return apperr.New(apperr.InvalidInput, "resolve", fmt.Errorf("path is empty"))
	}
	if filepath.IsAbs(trimmed) || strings.HasPrefix(trimmed, "/") {
		return apperr.New(apperr.InvalidInput, "resolve", fmt.Errorf("path must be relative: %s", input))
	}
	if hasDriveQualifier(trimmed) {
		return apperr.New(apperr.InvalidInput, "resolve", fmt.Errorf("path must be relative: %s", input))
	}
	if strings.HasPrefix(trimmed, `\\`) {
		return apperr.New(apperr.InvalidInput, "resolve", fmt.Errorf("path must be relative: %s", input))
	}
	return nil
}

func hasDriveQualifier(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// canonicalizeExistingOrAncestor resolves joined via realpath if it exists;
// otherwise it walks up to the deepest existing ancestor, realpaths that,
// and returns it plus the path components trimmed off along the way (so a
// not-yet-created file inside a safe directory is still permitted, with its
// intended tail reattached by the caller). The escape check runs on the
// caller side, after this resolves symlinks, so a symlink pointing outside
// the root is caught.
func canonicalizeExistingOrAncestor(joined string) (real string, tail []string, err error) {
	current := joined
	for {
		resolved, statErr := filepath.EvalSymlinks(current)
		if statErr == nil {
			return resolved, tail, nil
		}
		if !os.IsNotExist(statErr) {
			return "", nil, apperr.New(apperr.IO, "resolve", statErr)
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", nil, apperr.New(apperr.IO, "resolve", fmt.Errorf("no existing ancestor for %s", joined))
		}
		tail = append([]string{filepath.Base(current)}, tail...)
		current = parent
	}
}
