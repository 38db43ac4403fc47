package toolbuiltin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/quietloop/workshop/pkg/apperr"
	"github.com/quietloop/workshop/pkg/patch"
	"github.com/quietloop/workshop/pkg/sandbox"
)

func newFileTools(t *testing.T) *FileTools {
	t.Helper()
	dir := t.TempDir()
	root, err := sandbox.EnsureRoot(dir)
	if err != nil {
		t.Fatalf("EnsureRoot: %v", err)
	}
	return NewFileTools(root)
}

func TestFileToolsWriteThenRead(t *testing.T) {
	ft := newFileTools(t)
	ctx := context.Background()

	writeRes, err := ft.write(ctx, map[string]interface{}{"path": "notes/plan.txt", "content": "hello"})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	m := writeRes.(map[string]interface{})
	if m["relativePath"] != "notes/plan.txt" {
		t.Fatalf("unexpected relativePath: %v", m["relativePath"])
	}

	readRes, err := ft.read(ctx, map[string]interface{}{"path": "notes/plan.txt"})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	rm := readRes.(map[string]interface{})
	if rm["content"] != "hello" {
		t.Fatalf("unexpected content: %v", rm["content"])
	}
}

func TestFileToolsWriteWithoutOverwriteFails(t *testing.T) {
	ft := newFileTools(t)
	ctx := context.Background()

	if _, err := ft.write(ctx, map[string]interface{}{"path": "a.txt", "content": "one"}); err != nil {
		t.Fatalf("initial write: %v", err)
	}
	_, err := ft.write(ctx, map[string]interface{}{"path": "a.txt", "content": "two"})
	if apperr.KindOf(err) != apperr.Exists {
		t.Fatalf("expected Exists kind, got %v (%v)", apperr.KindOf(err), err)
	}
}

func TestFileToolsWriteWithOverwriteSucceeds(t *testing.T) {
	ft := newFileTools(t)
	ctx := context.Background()

	if _, err := ft.write(ctx, map[string]interface{}{"path": "a.txt", "content": "one"}); err != nil {
		t.Fatalf("initial write: %v", err)
	}
	_, err := ft.write(ctx, map[string]interface{}{"path": "a.txt", "content": "two", "overwrite": true})
	if err != nil {
		t.Fatalf("overwrite write: %v", err)
	}
}

func TestFileToolsReadMissingIsNotFound(t *testing.T) {
	ft := newFileTools(t)
	_, err := ft.read(context.Background(), map[string]interface{}{"path": "nope.txt"})
	if apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("expected NotFound kind, got %v (%v)", apperr.KindOf(err), err)
	}
}

func TestFileToolsListReturnsOneLevel(t *testing.T) {
	ft := newFileTools(t)
	ctx := context.Background()
	if _, err := ft.write(ctx, map[string]interface{}{"path": "dir/inner.txt", "content": "x"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ft.write(ctx, map[string]interface{}{"path": "top.txt", "content": "y"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	res, err := ft.list(ctx, map[string]interface{}{"path": "."})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	entries := res.(map[string]interface{})["entries"].([]listEntry)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %#v", len(entries), entries)
	}
}

func TestFileToolsApplyPatchWiresSandbox(t *testing.T) {
	ft := newFileTools(t)
	ctx := context.Background()

	text := "*** Begin Patch\n*** Add File: created.txt\nhi\n*** End Patch\n"
	res, err := ft.applyPatch(ctx, map[string]interface{}{"patchText": text})
	if err != nil {
		t.Fatalf("applyPatch: %v", err)
	}
	result := res.(patch.Result)
	if !result.Applied {
		t.Fatalf("expected applied, got summary %q", result.Summary)
	}

	data, err := os.ReadFile(filepath.Join(ft.root, "created.txt"))
	if err != nil {
		t.Fatalf("expected created.txt on disk: %v", err)
	}
	if string(data) != "hi" {
		t.Fatalf("unexpected content: %q", string(data))
	}
}

func TestFileToolsApplyPatchRejectsEscape(t *testing.T) {
	ft := newFileTools(t)
	text := "*** Begin Patch\n*** Add File: ../escape.txt\nhi\n*** End Patch\n"
	_, err := ft.applyPatch(context.Background(), map[string]interface{}{"patchText": text})
	if apperr.KindOf(err) != apperr.Escape {
		t.Fatalf("expected Escape kind, got %v (%v)", apperr.KindOf(err), err)
	}
}
