package openai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/harunnryd/familiar/internal/model/contract"

	"github.com/google/uuid"
)

const (
	toolCallOpen  = "<tool_call>"
	toolCallClose = "</tool_call>"
)

const toolsPromptHeader = `

---
[USING TOOLS]
You MUST use tools by outputting a <tool_call> block. This is the ONLY way to take actions.

RULE: When you want to use a tool, output EXACTLY this pattern and nothing after it:
<tool_call>{"name": "...", "input": {...}}</tool_call>

Then STOP. Do not write anything after the closing tag. The result will be given to you next.

CONCRETE EXAMPLES:
%s

Available tools:
%s
[/USING TOOLS]
`

var toolCallRe = regexp.MustCompile(`(?s)<tool_call>(.*?)</tool_call>`)

type promptCall struct {
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

func newCallID() string {
	return "call_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

func marshalPlain(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "{}"
	}
	return strings.TrimSpace(buf.String())
}

// buildToolsSystem appends tool descriptions and one example call per tool
// (required fields only) to the system prompt.
func buildToolsSystem(system string, tools []contract.ToolDef) string {
	if len(tools) == 0 {
		return system
	}

	desc := make([]string, 0, len(tools))
	examples := make([]string, 0, len(tools))
	for _, t := range tools {
		desc = append(desc, fmt.Sprintf("- %s: %s", t.Name, t.Description))

		props := t.Properties()
		input := map[string]any{}
		for _, key := range t.RequiredParams() {
			prop, _ := props[key].(map[string]interface{})
			input[key] = exampleValue(key, prop)
		}
		examples = append(examples, toolCallOpen+marshalPlain(promptCall{Name: t.Name, Input: input})+toolCallClose)
	}

	return system + fmt.Sprintf(toolsPromptHeader, strings.Join(examples, "\n"), strings.Join(desc, "\n"))
}

func exampleValue(key string, prop map[string]interface{}) any {
	if enum, ok := prop["enum"].([]interface{}); ok && len(enum) > 0 {
		return enum[0]
	}
	if enum, ok := prop["enum"].([]string); ok && len(enum) > 0 {
		return enum[0]
	}
	switch prop["type"] {
	case "integer", "number":
		if d, ok := prop["default"]; ok {
			return d
		}
		return 30
	case "boolean":
		return true
	}
	return "<" + key + ">"
}

// parseToolCalls extracts every well-formed <tool_call> block. Malformed
// blocks are logged and skipped.
func parseToolCalls(text string) []contract.ToolCall {
	var calls []contract.ToolCall
	for _, match := range toolCallRe.FindAllStringSubmatch(text, -1) {
		var pc promptCall
		if err := json.Unmarshal([]byte(strings.TrimSpace(match[1])), &pc); err != nil || pc.Name == "" {
			slog.Warn("Failed to parse tool_call block", "block", match[1], "error", err)
			continue
		}
		if pc.Input == nil {
			pc.Input = map[string]any{}
		}
		calls = append(calls, contract.ToolCall{ID: newCallID(), Name: pc.Name, Arguments: pc.Input})
	}
	return calls
}

func stripToolCalls(text string) string {
	return strings.TrimSpace(toolCallRe.ReplaceAllString(text, ""))
}

func renderToolCalls(text string, calls []contract.ToolCall) string {
	var sb strings.Builder
	sb.WriteString(text)
	for _, c := range calls {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(toolCallOpen)
		sb.WriteString(marshalPlain(promptCall{Name: c.Name, Input: c.Arguments}))
		sb.WriteString(toolCallClose)
	}
	return sb.String()
}

// tagFilter forwards streamed text while hiding <tool_call> blocks, holding
// back any suffix that could still become a tag.
type tagFilter struct {
	emit  func(string)
	buf   string
	inTag bool
}

func newTagFilter(emit func(string)) *tagFilter {
	return &tagFilter{emit: emit}
}

func (f *tagFilter) Write(chunk string) {
	f.buf += chunk
	for {
		if !f.inTag {
			if idx := strings.Index(f.buf, toolCallOpen); idx >= 0 {
				f.out(f.buf[:idx])
				f.buf = f.buf[idx+len(toolCallOpen):]
				f.inTag = true
				continue
			}
			keep := partialSuffix(f.buf, toolCallOpen)
			f.out(f.buf[:len(f.buf)-keep])
			f.buf = f.buf[len(f.buf)-keep:]
			return
		}

		if idx := strings.Index(f.buf, toolCallClose); idx >= 0 {
			f.buf = f.buf[idx+len(toolCallClose):]
			f.inTag = false
			continue
		}
		keep := partialSuffix(f.buf, toolCallClose)
		f.buf = f.buf[len(f.buf)-keep:]
		return
	}
}

func (f *tagFilter) Flush() {
	if !f.inTag {
		f.out(f.buf)
	}
	f.buf = ""
}

func (f *tagFilter) out(s string) {
	if s != "" && f.emit != nil {
		f.emit(s)
	}
}

// partialSuffix returns the length of the longest suffix of s that is a
// proper prefix of tag.
func partialSuffix(s, tag string) int {
	max := len(tag) - 1
	if len(s) < max {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return n
		}
	}
	return 0
}
