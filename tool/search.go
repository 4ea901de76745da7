package tool

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/diffscope/diffscope/core"
)

// SearchOptions configures a SearchTool.
type SearchOptions struct {
	// MaxResults caps the number of returned matches.
	MaxResults int
	// MaxLineLength truncates long matched lines in the output.
	MaxLineLength int
}

// SearchTool performs regexp text search over a workspace tree. Hidden
// directories and obviously non-text files are skipped.
type SearchTool struct {
	root          string
	maxResults    int
	maxLineLength int
}

// NewSearchTool constructs a search tool rooted at the given directory.
func NewSearchTool(root string, optFns ...func(o *SearchOptions)) *SearchTool {
	opts := SearchOptions{MaxResults: 100, MaxLineLength: 400}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &SearchTool{root: root, maxResults: opts.MaxResults, maxLineLength: opts.MaxLineLength}
}

// Name returns the tool identifier.
func (t *SearchTool) Name() string { return "search_text" }

// Description returns the tool description.
func (t *SearchTool) Description() string {
	return "Search file contents under the workspace with a regular expression. " +
		"Returns matching file paths, line numbers and line text."
}

// Parameters returns the JSON schema for tool arguments.
func (t *SearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Go regular expression to search for",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Optional subdirectory (relative to the workspace root) to restrict the search to",
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": "Optional cap on the number of matches returned",
			},
		},
		"required": []string{"pattern"},
	}
}

// Call implements the Tool interface.
func (t *SearchTool) Call(execCtx *core.ExecutionContext, args map[string]any) (any, error) {
	pattern, _ := args["pattern"].(string)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %v", err)
	}

	limit := t.maxResults
	if v, ok := args["max_results"].(float64); ok && int(v) > 0 && int(v) < limit {
		limit = int(v)
	}

	start := t.root
	if sub, ok := args["path"].(string); ok && sub != "" {
		start = filepath.Join(t.root, filepath.Clean(sub))
		if !strings.HasPrefix(start, filepath.Clean(t.root)) {
			return nil, fmt.Errorf("path escapes the workspace root")
		}
	}

	type match struct {
		File string `json:"file"`
		Line int    `json:"line"`
		Text string `json:"text"`
	}

	var matches []match
	truncated := false

	walkErr := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if execCtx.Cancelled() {
			return execCtx.Err()
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != start {
				return fs.SkipDir
			}
			return nil
		}
		if len(matches) >= limit {
			truncated = true
			return fs.SkipAll
		}

		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		rel, relErr := filepath.Rel(t.root, path)
		if relErr != nil {
			rel = path
		}

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if !re.MatchString(line) {
				continue
			}
			if len(line) > t.maxLineLength {
				line = line[:t.maxLineLength] + "..."
			}
			matches = append(matches, match{File: rel, Line: lineNo, Text: line})
			if len(matches) >= limit {
				truncated = true
				return fs.SkipAll
			}
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return map[string]any{
		"pattern":   pattern,
		"matches":   matches,
		"count":     len(matches),
		"truncated": truncated,
	}, nil
}
