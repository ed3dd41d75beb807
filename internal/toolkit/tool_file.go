package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/flowstack/sessioncore/pkg/models"
)

// FileTool operates on files under a session-scoped workspace root,
// rejecting any path that escapes it, grounded on the teacher's
// workspace-rooted file tool plus spec.md §4.3's
// "read/write/replace/search/find" surface.
type FileTool struct {
	WorkspaceRoot func(sessionID string) string
}

// NewFileTool returns a FileTool rooted at baseDir/<sessionID>.
func NewFileTool(baseDir string) *FileTool {
	return &FileTool{WorkspaceRoot: func(sessionID string) string {
		return filepath.Join(baseDir, sessionID)
	}}
}

type fileInput struct {
	Action  string `json:"action"` // read, write, replace, search, find
	Path    string `json:"path"`
	Content string `json:"content"`

	// replace
	OldStr string `json:"old_str"`
	NewStr string `json:"new_str"`

	// search / find
	Pattern string `json:"pattern"`
}

func (t *FileTool) Name() string { return "file_access" }
func (t *FileTool) Description() string {
	return "Reads, writes, replaces text in, searches, and finds files inside the session's workspace."
}

func (t *FileTool) Execute(ctx context.Context, sessionID string, input json.RawMessage) (models.ToolResult, error) {
	var in fileInput
	if err := json.Unmarshal(input, &in); err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("invalid file input: %v", err)}, nil
	}

	root := t.WorkspaceRoot(sessionID)

	if in.Action == "find" {
		return t.find(root, in)
	}

	resolved, err := resolveWithinRoot(root, in.Path)
	if err != nil {
		return models.ToolResult{Success: false, Error: err.Error()}, nil
	}

	switch in.Action {
	case "write":
		if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
			return models.ToolResult{Success: false, Error: err.Error()}, nil
		}
		if err := os.WriteFile(resolved, []byte(in.Content), 0o644); err != nil {
			return models.ToolResult{Success: false, Error: err.Error()}, nil
		}
		return models.ToolResult{Success: true, Message: fmt.Sprintf("wrote %d bytes to %s", len(in.Content), in.Path)}, nil
	case "read":
		data, err := os.ReadFile(resolved)
		if err != nil {
			return models.ToolResult{Success: false, Error: err.Error()}, nil
		}
		return models.ToolResult{Success: true, Message: string(data)}, nil
	case "replace":
		return t.replace(resolved, in)
	case "search":
		return t.search(resolved, in)
	default:
		return models.ToolResult{Success: false, Error: fmt.Sprintf("unknown file action %q", in.Action)}, nil
	}
}

// replace performs a single literal old_str -> new_str substitution, in
// the style of the teacher's editor tools: it fails rather than
// guessing when old_str doesn't appear exactly once, so the caller
// doesn't silently scramble a file with an ambiguous match.
func (t *FileTool) replace(resolved string, in fileInput) (models.ToolResult, error) {
	if in.OldStr == "" {
		return models.ToolResult{Success: false, Error: "old_str must not be empty"}, nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return models.ToolResult{Success: false, Error: err.Error()}, nil
	}
	content := string(data)
	count := strings.Count(content, in.OldStr)
	switch count {
	case 0:
		return models.ToolResult{Success: false, Error: "old_str not found in file"}, nil
	case 1:
		// exactly one match, proceed
	default:
		return models.ToolResult{Success: false, Error: fmt.Sprintf("old_str matches %d times, must be unique", count)}, nil
	}
	updated := strings.Replace(content, in.OldStr, in.NewStr, 1)
	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return models.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return models.ToolResult{Success: true, Message: "replaced"}, nil
}

// search greps a single file's contents for a regular expression,
// returning matching lines with their 1-based line numbers.
func (t *FileTool) search(resolved string, in fileInput) (models.ToolResult, error) {
	if in.Pattern == "" {
		return models.ToolResult{Success: false, Error: "pattern must not be empty"}, nil
	}
	re, err := regexp.Compile(in.Pattern)
	if err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("invalid pattern: %v", err)}, nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return models.ToolResult{Success: false, Error: err.Error()}, nil
	}
	var matches []string
	for i, line := range strings.Split(string(data), "\n") {
		if re.MatchString(line) {
			matches = append(matches, fmt.Sprintf("%d: %s", i+1, line))
		}
	}
	return models.ToolResult{Success: true, Message: strings.Join(matches, "\n"), Data: map[string]any{"count": len(matches)}}, nil
}

// find walks the workspace root looking for files whose relative path
// matches a glob pattern (empty pattern lists everything).
func (t *FileTool) find(root string, in fileInput) (models.ToolResult, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return models.ToolResult{Success: true, Message: "", Data: map[string]any{"paths": []string{}}}, nil
	}
	var found []string
	err := filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if in.Pattern == "" {
			found = append(found, rel)
			return nil
		}
		matched, err := filepath.Match(in.Pattern, filepath.Base(rel))
		if err != nil {
			return err
		}
		if matched {
			found = append(found, rel)
		}
		return nil
	})
	if err != nil {
		return models.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return models.ToolResult{Success: true, Message: strings.Join(found, "\n"), Data: map[string]any{"paths": found}}, nil
}

func resolveWithinRoot(root, path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("path must be relative to the workspace root")
	}
	joined := filepath.Join(root, path)
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", err
	}
	if absJoined != absRoot && !strings.HasPrefix(absJoined, absRoot+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes workspace root")
	}
	return absJoined, nil
}
