package builtin

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/harunnryd/familiar/internal/model/contract"
	toolcore "github.com/harunnryd/familiar/internal/tool"
)

const (
	defaultReadMaxLines = 100
	maxImageBytes       = 5 << 20
)

var (
	errAccessDenied = errors.New("access denied")

	imageTypes = map[string]string{
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
		".webp": "image/webp",
	}
)

func init() {
	toolcore.RegisterBuiltin("files", func(options toolcore.BuiltinOptions) ([]toolcore.Tool, error) {
		ws, err := NewWorkspace(options.Workspace, options.Denylist)
		if err != nil {
			return nil, err
		}
		return ws.Tools(), nil
	})
}

// Workspace confines file tools to one directory. Paths that resolve
// outside the root, or that contain a denylisted component, are refused.
type Workspace struct {
	root     string
	denylist map[string]struct{}
}

func NewWorkspace(root string, denylist []string) (*Workspace, error) {
	if strings.TrimSpace(root) == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = filepath.Join(cwd, "workspace")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	deny := make(map[string]struct{}, len(denylist))
	for _, d := range denylist {
		if d = strings.TrimSpace(d); d != "" {
			deny[d] = struct{}{}
		}
	}

	slog.Debug("Workspace initialized", "root", abs)
	return &Workspace{root: abs, denylist: deny}, nil
}

func (w *Workspace) Root() string {
	return w.root
}

func (w *Workspace) Tools() []toolcore.Tool {
	return []toolcore.Tool{
		&listFilesTool{ws: w},
		&readFileTool{ws: w},
		&writeFileTool{ws: w},
		&seeFileTool{ws: w},
	}
}

// resolve maps a workspace-relative path onto disk.
func (w *Workspace) resolve(rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		rel = "."
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s is outside the workspace", errAccessDenied, rel)
	}

	target := resolveExisting(filepath.Join(w.root, rel))

	inside, err := filepath.Rel(w.root, target)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside the workspace", errAccessDenied, rel)
	}

	for _, part := range strings.Split(inside, string(filepath.Separator)) {
		if _, denied := w.denylist[part]; denied {
			return "", fmt.Errorf("%w: %s is restricted", errAccessDenied, rel)
		}
	}
	return target, nil
}

// resolveExisting follows symlinks on the longest existing prefix of path
// so that a link inside the workspace cannot point a new file outside it.
func resolveExisting(path string) string {
	rest := ""
	for dir := path; ; {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(resolved, rest)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return path
		}
		rest = filepath.Join(filepath.Base(dir), rest)
		dir = parent
	}
}

func (w *Workspace) denied(name string) bool {
	_, ok := w.denylist[name]
	return ok
}

type listFilesTool struct{ ws *Workspace }

func (t *listFilesTool) Name() string { return "list_files" }

func (t *listFilesTool) Description() string {
	return "List files in your workspace directory."
}

func (t *listFilesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"sub_dir": map[string]interface{}{
				"type":        "string",
				"description": "Optional subdirectory to list",
				"default":     ".",
			},
		},
	}
}

func (t *listFilesTool) Execute(ctx context.Context, input json.RawMessage) (toolcore.Observation, error) {
	var args struct {
		SubDir string `json:"sub_dir"`
	}
	if err := decodeArgs(input, &args); err != nil {
		return toolcore.Observation{}, err
	}

	dir, err := t.ws.resolve(args.SubDir)
	if err != nil {
		return toolcore.Observation{}, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return toolcore.Observation{}, fmt.Errorf("directory not found: %s", args.SubDir)
	}

	var lines []string
	for _, e := range entries {
		if t.ws.denied(e.Name()) {
			continue
		}
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		lines = append(lines, "- "+name)
	}
	if len(lines) == 0 {
		return toolcore.Text("Directory is empty."), nil
	}
	sort.Strings(lines)
	return toolcore.Text("%s", strings.Join(lines, "\n")), nil
}

type readFileTool struct{ ws *Workspace }

func (t *readFileTool) Name() string { return "read_file" }

func (t *readFileTool) Description() string {
	return "Read text content from a file in your workspace."
}

func (t *readFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"filename": map[string]interface{}{
				"type":        "string",
				"description": "Name of the file to read",
			},
			"max_lines": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum lines to read (default 100)",
				"default":     defaultReadMaxLines,
			},
		},
		"required": []string{"filename"},
	}
}

func (t *readFileTool) Execute(ctx context.Context, input json.RawMessage) (toolcore.Observation, error) {
	var args struct {
		Filename string `json:"filename"`
		MaxLines int    `json:"max_lines"`
	}
	if err := decodeArgs(input, &args); err != nil {
		return toolcore.Observation{}, err
	}
	if args.MaxLines <= 0 {
		args.MaxLines = defaultReadMaxLines
	}

	path, err := t.ws.resolve(args.Filename)
	if err != nil {
		return toolcore.Observation{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return toolcore.Observation{}, fmt.Errorf("file %s not found", args.Filename)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		if len(lines) == args.MaxLines {
			lines = append(lines, fmt.Sprintf("\n--- [Truncated: File is longer than %d lines] ---", args.MaxLines))
			break
		}
		lines = append(lines, strings.TrimRight(scanner.Text(), " \t\r"))
	}
	if err := scanner.Err(); err != nil {
		return toolcore.Observation{}, fmt.Errorf("read %s: %w", args.Filename, err)
	}

	content := strings.Join(lines, "\n")
	if content == "" {
		content = "(Empty file)"
	}
	return toolcore.Text("%s", content), nil
}

type writeFileTool struct{ ws *Workspace }

func (t *writeFileTool) Name() string { return "write_file" }

func (t *writeFileTool) Description() string {
	return "Write or overwrite a text file in your workspace. Use this to save notes, logs, or your thoughts."
}

func (t *writeFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"filename": map[string]interface{}{
				"type":        "string",
				"description": "Name of the file to write",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Text content to save",
			},
		},
		"required": []string{"filename", "content"},
	}
}

func (t *writeFileTool) Execute(ctx context.Context, input json.RawMessage) (toolcore.Observation, error) {
	var args struct {
		Filename string `json:"filename"`
		Content  string `json:"content"`
	}
	if err := decodeArgs(input, &args); err != nil {
		return toolcore.Observation{}, err
	}
	if strings.TrimSpace(args.Filename) == "" {
		return toolcore.Observation{}, fmt.Errorf("filename is required")
	}

	path, err := t.ws.resolve(args.Filename)
	if err != nil {
		return toolcore.Observation{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return toolcore.Observation{}, err
	}
	if err := os.WriteFile(path, []byte(args.Content), 0o644); err != nil {
		return toolcore.Observation{}, err
	}

	slog.Info("File written", "file", args.Filename, "bytes", len(args.Content))
	return toolcore.Text("Successfully wrote to %s.", args.Filename), nil
}

type seeFileTool struct{ ws *Workspace }

func (t *seeFileTool) Name() string { return "see_file" }

func (t *seeFileTool) Description() string {
	return "Open and see an image file (JPEG, PNG, WebP) in your workspace using your vision."
}

func (t *seeFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"filename": map[string]interface{}{
				"type":        "string",
				"description": "Name of the image file to see",
			},
		},
		"required": []string{"filename"},
	}
}

func (t *seeFileTool) Execute(ctx context.Context, input json.RawMessage) (toolcore.Observation, error) {
	var args struct {
		Filename string `json:"filename"`
	}
	if err := decodeArgs(input, &args); err != nil {
		return toolcore.Observation{}, err
	}

	mediaType, ok := imageTypes[strings.ToLower(filepath.Ext(args.Filename))]
	if !ok {
		return toolcore.Observation{}, fmt.Errorf("%s is not a supported image format", args.Filename)
	}

	path, err := t.ws.resolve(args.Filename)
	if err != nil {
		return toolcore.Observation{}, err
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return toolcore.Observation{}, fmt.Errorf("image file %s not found", args.Filename)
	}
	if info.Size() > maxImageBytes {
		return toolcore.Observation{}, fmt.Errorf("image %s is too large (%d bytes)", args.Filename, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return toolcore.Observation{}, err
	}
	return toolcore.Observation{
		Text:  "You are looking at the file: " + args.Filename,
		Image: &contract.Image{MediaType: mediaType, Data: data},
	}, nil
}

func decodeArgs(input json.RawMessage, v any) error {
	if len(input) == 0 {
		return nil
	}
	if err := json.Unmarshal(input, v); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}
