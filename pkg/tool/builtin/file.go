package toolbuiltin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quietloop/workshop/pkg/apperr"
	"github.com/quietloop/workshop/pkg/patch"
	"github.com/quietloop/workshop/pkg/sandbox"
	"github.com/quietloop/workshop/pkg/tool"
)

// sandboxFS adapts the sandbox package into patch.FS, so the patch engine's
// path handling never touches disk directly — every read, write, exists
// check, and removal is resolved through the same root canonicalization the
// list/read/write tools use.
type sandboxFS struct {
	root string
}

func (s sandboxFS) resolve(relPath string) (sandbox.Resolved, error) {
	return sandbox.Resolve(s.root, relPath)
}

func (s sandboxFS) Exists(relPath string) bool {
	r, err := s.resolve(relPath)
	if err != nil {
		return false
	}
	_, err = os.Stat(r.Absolute)
	return err == nil
}

func (s sandboxFS) Read(relPath string) ([]byte, error) {
	r, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(r.Absolute)
	if err != nil {
		return nil, apperr.New(apperr.IO, "patch_read", err)
	}
	return data, nil
}

func (s sandboxFS) Write(relPath string, data []byte) error {
	r, err := s.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.Absolute), 0o755); err != nil {
		return apperr.New(apperr.IO, "patch_write", err)
	}
	if err := os.WriteFile(r.Absolute, data, 0o644); err != nil {
		return apperr.New(apperr.IO, "patch_write", err)
	}
	return nil
}

func (s sandboxFS) Remove(relPath string) error {
	r, err := s.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(r.Absolute); err != nil {
		return apperr.New(apperr.IO, "patch_delete", err)
	}
	return nil
}

// FileTools bundles the four sandbox-confined file operations named in the
// runtime's file-tool design: list, read, write, and applyPatch. Each is a
// separate tool.Tool so the writable pair (fs_write, fs_apply_patch) can be
// gated independently by tool.WritableNames.
type FileTools struct {
	root string
}

// NewFileTools constructs the file-tool set rooted at realRoot, which must
// already be canonicalized via sandbox.EnsureRoot.
func NewFileTools(realRoot string) *FileTools {
	return &FileTools{root: realRoot}
}

func (f *FileTools) fs() sandboxFS { return sandboxFS{root: f.root} }

// List returns the fs_list tool.
func (f *FileTools) List() tool.Tool {
	return tool.HandlerFunc{
		Def: tool.Definition{
			Name:        "fs_list",
			Description: "List the entries of one directory level within the workspace sandbox.",
			Parameters: &tool.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Directory relative to the workspace root, defaulting to \".\".",
					},
				},
			},
		},
		Fn: f.list,
	}
}

// Read returns the fs_read tool.
func (f *FileTools) Read() tool.Tool {
	return tool.HandlerFunc{
		Def: tool.Definition{
			Name:        "fs_read",
			Description: "Read a UTF-8 file within the workspace sandbox.",
			Parameters: &tool.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"path": map[string]interface{}{"type": "string", "description": "File relative to the workspace root."},
				},
				Required: []string{"path"},
			},
		},
		Fn: f.read,
	}
}

// Write returns the fs_write tool, which is gated behind confirmation.
func (f *FileTools) Write() tool.Tool {
	return tool.HandlerFunc{
		Def: tool.Definition{
			Name:        "fs_write",
			Description: "Write a file within the workspace sandbox, creating missing ancestor directories.",
			Parameters: &tool.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"path":      map[string]interface{}{"type": "string", "description": "File relative to the workspace root."},
					"content":   map[string]interface{}{"type": "string", "description": "UTF-8 file content."},
					"overwrite": map[string]interface{}{"type": "boolean", "description": "Whether to overwrite an existing file. Defaults to false."},
				},
				Required: []string{"path", "content"},
			},
		},
		Fn: f.write,
	}
}

// ApplyPatch returns the fs_apply_patch tool, which is gated behind
// confirmation.
func (f *FileTools) ApplyPatch() tool.Tool {
	return tool.HandlerFunc{
		Def: tool.Definition{
			Name:        "fs_apply_patch",
			Description: "Apply an envelope-dialect or unified-diff patch within the workspace sandbox.",
			Parameters: &tool.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"patchText": map[string]interface{}{"type": "string", "description": "The patch body, in either envelope or unified-diff form."},
				},
				Required: []string{"patchText"},
			},
		},
		Fn: f.applyPatch,
	}
}

type listEntry struct {
	Name         string `json:"name"`
	RelativePath string `json:"relativePath"`
	Type         string `json:"type"`
	Size         *int64 `json:"size,omitempty"`
}

func (f *FileTools) list(ctx context.Context, params map[string]interface{}) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel, _ := params["path"].(string)
	if strings.TrimSpace(rel) == "" {
		rel = "."
	}
	r, err := sandbox.Resolve(f.root, rel)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(r.Absolute)
	if err != nil {
		return nil, apperr.New(apperr.IO, "fs_list", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	out := make([]listEntry, 0, len(entries))
	for _, e := range entries {
		entryType := "file"
		var size *int64
		if e.IsDir() {
			entryType = "dir"
		} else if info, err := e.Info(); err == nil {
			s := info.Size()
			size = &s
		}
		relPath := e.Name()
		if r.RelativePosix != "" {
			relPath = r.RelativePosix + "/" + e.Name()
		}
		out = append(out, listEntry{Name: e.Name(), RelativePath: relPath, Type: entryType, Size: size})
	}
	return map[string]interface{}{"entries": out}, nil
}

func (f *FileTools) read(ctx context.Context, params map[string]interface{}) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel, _ := params["path"].(string)
	r, err := sandbox.Resolve(f.root, rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(r.Absolute)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.New(apperr.NotFound, "fs_read", err)
		}
		return nil, apperr.New(apperr.IO, "fs_read", err)
	}
	return map[string]interface{}{"relativePath": r.RelativePosix, "content": string(data)}, nil
}

func (f *FileTools) write(ctx context.Context, params map[string]interface{}) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel, _ := params["path"].(string)
	content, _ := params["content"].(string)
	overwrite, _ := params["overwrite"].(bool)

	r, err := sandbox.Resolve(f.root, rel)
	if err != nil {
		return nil, err
	}
	if !overwrite {
		if _, statErr := os.Stat(r.Absolute); statErr == nil {
			return nil, apperr.New(apperr.Exists, "fs_write", fmt.Errorf("%s already exists", r.RelativePosix))
		}
	}
	if err := os.MkdirAll(filepath.Dir(r.Absolute), 0o755); err != nil {
		return nil, apperr.New(apperr.IO, "fs_write", err)
	}
	if err := os.WriteFile(r.Absolute, []byte(content), 0o644); err != nil {
		return nil, apperr.New(apperr.IO, "fs_write", err)
	}
	return map[string]interface{}{"relativePath": r.RelativePosix, "bytesWritten": len(content)}, nil
}

func (f *FileTools) applyPatch(ctx context.Context, params map[string]interface{}) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	patchText, _ := params["patchText"].(string)
	if strings.TrimSpace(patchText) == "" {
		return nil, apperr.New(apperr.InvalidInput, "fs_apply_patch", fmt.Errorf("patchText is empty"))
	}
	result, err := patch.Apply(f.fs(), patchText)
	if err != nil {
		return nil, apperr.New(apperr.ToolExecutionError, "fs_apply_patch", err)
	}
	return result, nil
}
