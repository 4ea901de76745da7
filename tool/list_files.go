package tool

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/diffscope/diffscope/core"
)

// ListFilesTool lists directory contents under a workspace root, optionally
// recursing to a bounded depth.
type ListFilesTool struct {
	root     string
	maxDepth int
}

// NewListFilesTool constructs a listing tool rooted at the given directory.
// maxDepth bounds how deep the model may request recursion (default 3).
func NewListFilesTool(root string, maxDepth int) *ListFilesTool {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	return &ListFilesTool{root: root, maxDepth: maxDepth}
}

// Name returns the tool identifier.
func (t *ListFilesTool) Name() string { return "list_files" }

// Description returns the tool description.
func (t *ListFilesTool) Description() string {
	return "List files and directories under a workspace path. " +
		"Use to explore repository structure before searching."
}

// Parameters returns the JSON schema for tool arguments.
func (t *ListFilesTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Directory to list, relative to the workspace root (default: the root)",
			},
			"depth": map[string]any{
				"type":        "integer",
				"description": "Recursion depth, 1 lists only direct children (default 1)",
			},
		},
	}
}

// Call implements the Tool interface.
func (t *ListFilesTool) Call(execCtx *core.ExecutionContext, args map[string]any) (any, error) {
	start := t.root
	if sub, ok := args["path"].(string); ok && sub != "" {
		start = filepath.Join(t.root, filepath.Clean(sub))
		if !strings.HasPrefix(start, filepath.Clean(t.root)) {
			return nil, fmt.Errorf("path escapes the workspace root")
		}
	}

	depth := 1
	if v, ok := args["depth"].(float64); ok && int(v) > 0 {
		depth = int(v)
	}
	if depth > t.maxDepth {
		depth = t.maxDepth
	}

	type entry struct {
		Path  string `json:"path"`
		Dir   bool   `json:"dir"`
		Size  int64  `json:"size,omitempty"`
		Depth int    `json:"depth"`
	}

	var entries []entry

	err := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if execCtx.Cancelled() {
			return execCtx.Err()
		}
		if path == start {
			return nil
		}

		rel, relErr := filepath.Rel(start, path)
		if relErr != nil {
			return nil
		}
		level := strings.Count(rel, string(filepath.Separator)) + 1

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			entries = append(entries, entry{Path: rel, Dir: true, Depth: level})
			if level >= depth {
				return fs.SkipDir
			}
			return nil
		}

		var size int64
		if info, infoErr := d.Info(); infoErr == nil {
			size = info.Size()
		}
		entries = append(entries, entry{Path: rel, Size: size, Depth: level})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	return map[string]any{
		"entries": entries,
		"count":   len(entries),
	}, nil
}
