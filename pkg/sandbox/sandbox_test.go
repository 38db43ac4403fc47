package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/quietloop/workshop/pkg/apperr"
)

func TestResolveSafeRelativeWrite(t *testing.T) {
	root := tempRoot(t)
	res, err := Resolve(root, "notes/plan.txt")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.HasPrefix(res.Absolute, root) {
		t.Fatalf("absolute path %s not under root %s", res.Absolute, root)
	}
	if res.RelativePosix != "notes/plan.txt" {
		t.Fatalf("relative path = %q", res.RelativePosix)
	}
}

func TestResolveEscapeRejection(t *testing.T) {
	root := tempRoot(t)

	if _, err := Resolve(root, "../secrets.txt"); apperr.KindOf(err) != apperr.Escape {
		t.Fatalf("expected Escape, got %v", err)
	}

	outside := tempRoot(t)
	if _, err := Resolve(root, filepath.Join(outside, "x.txt")); apperr.KindOf(err) != apperr.InvalidInput {
		t.Fatalf("expected InvalidInput for absolute path, got %v", err)
	}
}

func TestResolveSymlinkEscape(t *testing.T) {
	root := tempRoot(t)
	outside := tempRoot(t)
	target := filepath.Join(outside, "target")
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	link := filepath.Join(root, "link")
	if err := os.Symlink(target, link); err != nil {
		if errors.Is(err, syscall.EPERM) || os.IsPermission(err) {
			t.Skipf("symlinks unsupported: %v", err)
		}
		t.Fatalf("symlink: %v", err)
	}

	if _, err := Resolve(root, "link/evil.txt"); apperr.KindOf(err) != apperr.Escape {
		t.Fatalf("expected Escape for symlink escape, got %v", err)
	}
}

func TestResolveRejectsInvalidInputBeforeIO(t *testing.T) {
	root := tempRoot(t)
	cases := []string{"", "   ", `C:\evil.txt`, `\\host\share\file`}
	for _, c := range cases {
		if _, err := Resolve(root, c); apperr.KindOf(err) != apperr.InvalidInput {
			t.Fatalf("input %q: expected InvalidInput, got %v", c, err)
		}
	}
}

func TestResolveAllowsNotYetExistingNestedFile(t *testing.T) {
	root := tempRoot(t)
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	res, err := Resolve(root, "sub/new/deep/file.txt")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.RelativePosix != "sub/new/deep/file.txt" {
		t.Fatalf("relative = %q", res.RelativePosix)
	}
}

func TestEnsureRootCreatesDirectory(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "workspace")
	root, err := EnsureRoot(dir)
	if err != nil {
		t.Fatalf("ensure root: %v", err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		t.Fatalf("root not created: %v", err)
	}
}

func tempRoot(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return dir
	}
	return real
}
