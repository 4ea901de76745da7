package tool

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/diffscope/diffscope/core"
)

// SymbolTool resolves Go symbols (functions, methods, types, package-level
// values) to their declaration sites by parsing source files under the
// workspace root.
type SymbolTool struct {
	root       string
	maxResults int
}

// NewSymbolTool constructs a symbol lookup tool rooted at the given directory.
func NewSymbolTool(root string) *SymbolTool {
	return &SymbolTool{root: root, maxResults: 50}
}

// Name returns the tool identifier.
func (t *SymbolTool) Name() string { return "find_symbol" }

// Description returns the tool description.
func (t *SymbolTool) Description() string {
	return "Find the declaration of a Go symbol (function, method, type or package-level value) " +
		"by exact name. Returns file, line and symbol kind for each declaration site."
}

// Parameters returns the JSON schema for tool arguments.
func (t *SymbolTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{
				"type":        "string",
				"description": "Exact symbol name to resolve",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Optional subdirectory (relative to the workspace root) to restrict the lookup to",
			},
		},
		"required": []string{"name"},
	}
}

type symbolMatch struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Receiver string `json:"receiver,omitempty"`
}

// Call implements the Tool interface.
func (t *SymbolTool) Call(execCtx *core.ExecutionContext, args map[string]any) (any, error) {
	name, _ := args["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("name must be non-empty")
	}

	start := t.root
	if sub, ok := args["path"].(string); ok && sub != "" {
		start = filepath.Join(t.root, filepath.Clean(sub))
		if !strings.HasPrefix(start, filepath.Clean(t.root)) {
			return nil, fmt.Errorf("path escapes the workspace root")
		}
	}

	fset := token.NewFileSet()
	var matches []symbolMatch

	err := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
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
		if !strings.HasSuffix(path, ".go") || len(matches) >= t.maxResults {
			return nil
		}

		file, parseErr := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
		if parseErr != nil {
			return nil // unparseable files are skipped, not fatal
		}

		rel, relErr := filepath.Rel(t.root, path)
		if relErr != nil {
			rel = path
		}

		for _, decl := range file.Decls {
			switch d := decl.(type) {
			case *ast.FuncDecl:
				if d.Name.Name != name {
					continue
				}
				m := symbolMatch{File: rel, Line: fset.Position(d.Pos()).Line, Kind: "func", Name: name}
				if d.Recv != nil && len(d.Recv.List) > 0 {
					m.Kind = "method"
					m.Receiver = receiverName(d.Recv.List[0].Type)
				}
				matches = append(matches, m)
			case *ast.GenDecl:
				for _, spec := range d.Specs {
					switch s := spec.(type) {
					case *ast.TypeSpec:
						if s.Name.Name == name {
							matches = append(matches, symbolMatch{
								File: rel, Line: fset.Position(s.Pos()).Line, Kind: "type", Name: name,
							})
						}
					case *ast.ValueSpec:
						for _, ident := range s.Names {
							if ident.Name == name {
								kind := "var"
								if d.Tok == token.CONST {
									kind = "const"
								}
								matches = append(matches, symbolMatch{
									File: rel, Line: fset.Position(ident.Pos()).Line, Kind: kind, Name: name,
								})
							}
						}
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"name":    name,
		"matches": matches,
		"count":   len(matches),
	}, nil
}

func receiverName(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.Ident:
		return e.Name
	case *ast.StarExpr:
		return receiverName(e.X)
	case *ast.IndexExpr:
		return receiverName(e.X)
	default:
		return ""
	}
}
