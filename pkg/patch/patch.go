// Package patch parses and applies the two patch dialects the sandbox file
// tools accept: a directive-based "envelope" dialect and standard unified
// diffs. Unified-diff hunk application is delegated to
// github.com/sergi/go-diff, whose diff-match-patch patch format is
// compatible with the "@@ -l,s +l,s @@" hunk headers found in a real
// unified diff once the file-header lines are stripped.
package patch

import (
	"fmt"
	"strings"

	dmp "github.com/sergi/go-diff/diffmatchpatch"
)

// FS is the minimal filesystem surface the patch engine needs. Every path it
// receives is a workspace-relative POSIX path; implementations are
// responsible for routing it through the sandbox before touching disk.
type FS interface {
	Exists(relPath string) bool
	Read(relPath string) ([]byte, error)
	Write(relPath string, data []byte) error
	Remove(relPath string) error
}

// Result reports the outcome of applying a patch.
type Result struct {
	Applied      bool     `json:"applied"`
	Summary      string   `json:"summary"`
	ChangedFiles []string `json:"changedFiles"`
}

const (
	beginMarker = "*** Begin Patch"
	endMarker   = "*** End Patch"
	addPrefix   = "*** Add File: "
	updPrefix   = "*** Update File: "
	delPrefix   = "*** Delete File: "
)

// Apply sniffs patchText's dialect and applies it against fs. Both dialects
// route every path through fs, which is expected to enforce sandbox
// containment; a patch touching no recognizable dialect marker returns
// Result{Applied: false} rather than an error.
//
// The patch engine does not roll back a partial multi-file application: if
// file 3 of 5 fails, files 1-2 stay changed and ChangedFiles reflects that.
// This mirrors the sandbox file tools' documented best-effort behavior
// (§4.2/§9 open question (a)) and is preserved deliberately, not an
// oversight.
func Apply(fs FS, patchText string) (Result, error) {
	switch {
	case strings.Contains(patchText, beginMarker):
		return applyEnvelope(fs, patchText)
	case looksLikeUnifiedDiff(patchText):
		return applyUnifiedDiff(fs, patchText)
	default:
		return Result{Applied: false, Summary: "Unrecognized patch format"}, nil
	}
}

func looksLikeUnifiedDiff(text string) bool {
	return strings.Contains(text, "diff --git") ||
		strings.Contains(text, "\n--- ") || strings.HasPrefix(text, "--- ") ||
		strings.Contains(text, "\n+++ ") || strings.HasPrefix(text, "+++ ")
}

// ---- envelope dialect ----

func applyEnvelope(fs FS, patchText string) (Result, error) {
	lines := strings.Split(patchText, "\n")
	start, end := -1, -1
	for i, line := range lines {
		if strings.TrimRight(line, "\r") == beginMarker {
			start = i
		}
		if strings.TrimRight(line, "\r") == endMarker {
			end = i
		}
	}
	if start == -1 || end == -1 || end < start {
		return Result{Applied: false, Summary: "Unrecognized patch format"}, nil
	}

	var changed []string
	i := start + 1
	for i < end {
		line := strings.TrimRight(lines[i], "\r")
		switch {
		case strings.HasPrefix(line, addPrefix):
			path := strings.TrimSpace(strings.TrimPrefix(line, addPrefix))
			i++
			var content []string
			for i < end && !isDirective(lines[i]) {
				content = append(content, lines[i])
				i++
			}
			if fs.Exists(path) {
				return Result{Applied: false, Summary: fmt.Sprintf("add failed: %s already exists", path), ChangedFiles: changed}, nil
			}
			if err := fs.Write(path, []byte(strings.Join(content, "\n"))); err != nil {
				return Result{Applied: false, Summary: fmt.Sprintf("add failed: %v", err), ChangedFiles: changed}, nil
			}
			changed = append(changed, path)

		case strings.HasPrefix(line, updPrefix):
			path := strings.TrimSpace(strings.TrimPrefix(line, updPrefix))
			i++
			var content []string
			for i < end && !isDirective(lines[i]) {
				content = append(content, lines[i])
				i++
			}
			if !fs.Exists(path) {
				return Result{Applied: false, Summary: fmt.Sprintf("update failed: %s does not exist", path), ChangedFiles: changed}, nil
			}
			if err := fs.Write(path, []byte(strings.Join(content, "\n"))); err != nil {
				return Result{Applied: false, Summary: fmt.Sprintf("update failed: %v", err), ChangedFiles: changed}, nil
			}
			changed = append(changed, path)

		case strings.HasPrefix(line, delPrefix):
			path := strings.TrimSpace(strings.TrimPrefix(line, delPrefix))
			i++
			if !fs.Exists(path) {
				return Result{Applied: false, Summary: fmt.Sprintf("delete failed: %s does not exist", path), ChangedFiles: changed}, nil
			}
			if err := fs.Remove(path); err != nil {
				return Result{Applied: false, Summary: fmt.Sprintf("delete failed: %v", err), ChangedFiles: changed}, nil
			}
			changed = append(changed, path)

		case strings.TrimSpace(line) == "":
			i++

		default:
			return Result{Applied: false, Summary: fmt.Sprintf("UnrecognizedLine: %q", line), ChangedFiles: changed}, nil
		}
	}

	return Result{Applied: true, Summary: fmt.Sprintf("applied %d change(s)", len(changed)), ChangedFiles: changed}, nil
}

func isDirective(line string) bool {
	trimmed := strings.TrimRight(line, "\r")
	return strings.HasPrefix(trimmed, addPrefix) ||
		strings.HasPrefix(trimmed, updPrefix) ||
		strings.HasPrefix(trimmed, delPrefix)
}

// ---- unified diff dialect ----

type fileDiff struct {
	oldPath string
	newPath string
	hunks   []string
}

func applyUnifiedDiff(fs FS, patchText string) (Result, error) {
	diffs, err := splitUnifiedDiff(patchText)
	if err != nil {
		return Result{Applied: false, Summary: err.Error()}, nil
	}
	if len(diffs) == 0 {
		return Result{Applied: false, Summary: "Unrecognized patch format"}, nil
	}

	var changed []string
	for _, d := range diffs {
		if d.newPath == "/dev/null" {
			if !fs.Exists(d.oldPath) {
				return Result{Applied: false, Summary: fmt.Sprintf("delete failed: %s does not exist", d.oldPath), ChangedFiles: changed}, nil
			}
			if err := fs.Remove(d.oldPath); err != nil {
				return Result{Applied: false, Summary: fmt.Sprintf("delete failed: %v", err), ChangedFiles: changed}, nil
			}
			changed = append(changed, d.oldPath)
			continue
		}

		target := d.newPath
		if target == "" {
			target = d.oldPath
		}

		var original string
		if fs.Exists(target) {
			data, err := fs.Read(target)
			if err != nil {
				return Result{Applied: false, Summary: fmt.Sprintf("read failed: %v", err), ChangedFiles: changed}, nil
			}
			original = string(data)
		}

		updated, err := applyHunks(original, d.hunks)
		if err != nil {
			return Result{Applied: false, Summary: fmt.Sprintf("apply failed for %s: %v", target, err), ChangedFiles: changed}, nil
		}

		if err := fs.Write(target, []byte(updated)); err != nil {
			return Result{Applied: false, Summary: fmt.Sprintf("write failed: %v", err), ChangedFiles: changed}, nil
		}
		changed = append(changed, target)
	}

	return Result{Applied: true, Summary: fmt.Sprintf("applied %d change(s)", len(changed)), ChangedFiles: changed}, nil
}

func applyHunks(original string, hunkLines []string) (string, error) {
	if len(hunkLines) == 0 {
		return original, nil
	}
	patcher := dmp.New()
	patches, err := patcher.PatchFromText(strings.Join(hunkLines, "\n") + "\n")
	if err != nil {
		return "", fmt.Errorf("parse hunks: %w", err)
	}
	result, applied := patcher.PatchApply(patches, original)
	for _, ok := range applied {
		if !ok {
			return "", fmt.Errorf("hunk did not apply cleanly")
		}
	}
	return result, nil
}

// splitUnifiedDiff breaks a (possibly multi-file) unified diff into one
// fileDiff per target, stripping "diff --git" lines and leading a//b/
// prefixes from the --- / +++ headers.
func splitUnifiedDiff(text string) ([]fileDiff, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var diffs []fileDiff
	var cur *fileDiff

	flush := func() {
		if cur != nil {
			diffs = append(diffs, *cur)
			cur = nil
		}
	}

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			flush()
			cur = &fileDiff{}
		case strings.HasPrefix(line, "--- "):
			if cur == nil {
				cur = &fileDiff{}
			}
			cur.oldPath = stripGitPrefix(strings.TrimSpace(strings.TrimPrefix(line, "--- ")))
		case strings.HasPrefix(line, "+++ "):
			if cur == nil {
				cur = &fileDiff{}
			}
			cur.newPath = stripGitPrefix(strings.TrimSpace(strings.TrimPrefix(line, "+++ ")))
		case strings.HasPrefix(line, "index "), strings.HasPrefix(line, "old mode"), strings.HasPrefix(line, "new mode"):
			// metadata lines carry no semantic content for hunk application.
		default:
			if cur != nil && (strings.HasPrefix(line, "@@") || cur.oldPath != "" || cur.newPath != "") {
				if strings.HasPrefix(line, "@@") || len(cur.hunks) > 0 {
					cur.hunks = append(cur.hunks, line)
				}
			}
		}
	}
	flush()

	var out []fileDiff
	for _, d := range diffs {
		if d.oldPath == "" && d.newPath == "" {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func stripGitPrefix(path string) string {
	if path == "/dev/null" {
		return path
	}
	if tab := strings.IndexByte(path, '\t'); tab >= 0 {
		path = path[:tab]
	}
	if strings.HasPrefix(path, "a/") || strings.HasPrefix(path, "b/") {
		return path[2:]
	}
	return path
}
