package openai

import (
	"strings"
	"testing"

	"github.com/harunnryd/familiar/internal/model/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagFilter_SplitAcrossChunks(t *testing.T) {
	var out []string
	f := newTagFilter(func(s string) { out = append(out, s) })
	for _, c := range []string{"Hi <", "tool_", "call>{\"name\":\"x\"}</tool", "_call> bye <b>"} {
		f.Write(c)
	}
	f.Flush()
	assert.Equal(t, "Hi  bye <b>", strings.Join(out, ""))
}

func TestTagFilter_UnterminatedBlockDropped(t *testing.T) {
	var out []string
	f := newTagFilter(func(s string) { out = append(out, s) })
	f.Write("ok <tool_call>{\"name\":")
	f.Flush()
	assert.Equal(t, "ok ", strings.Join(out, ""))
}

func TestThoughtFilter(t *testing.T) {
	cases := []struct {
		name   string
		chunks []string
		want   string
	}{
		{"plain text", []string{"Hello", " there"}, "Hello there"},
		{"short reply flushed", []string{"Hi"}, "Hi"},
		{"thought dropped", []string{"THOUGHT: plan\n", "\nAnswer"}, "Answer"},
		{"marker split", []string{"TH", "OUGHT x\n\nYes"}, "Yes"},
		{"unterminated thought", []string{"THOUGHT only"}, ""},
		{"prefix lookalike", []string{"THOUSAND cats"}, "THOUSAND cats"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out []string
			f := newThoughtFilter(func(s string) { out = append(out, s) })
			for _, c := range tc.chunks {
				f.Write(c)
			}
			f.Flush()
			assert.Equal(t, tc.want, strings.Join(out, ""))
		})
	}
}

func TestParseToolCalls(t *testing.T) {
	text := `First <tool_call>{"name":"a","input":{"k":1}}</tool_call> then <tool_call>
{"name":"b"}
</tool_call><tool_call>{broken}</tool_call>`

	calls := parseToolCalls(text)
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].Name)
	assert.EqualValues(t, 1, calls[0].Arguments["k"])
	assert.Equal(t, "b", calls[1].Name)
	assert.NotNil(t, calls[1].Arguments)
	assert.NotEqual(t, calls[0].ID, calls[1].ID)

	assert.Equal(t, "First  then", stripToolCalls(text))
}

func TestBuildToolsSystem_Examples(t *testing.T) {
	defs := []contract.ToolDef{
		{Name: "walk", Description: "move", Parameters: map[string]interface{}{
			"properties": map[string]interface{}{
				"seconds": map[string]interface{}{"type": "integer"},
				"speed":   map[string]interface{}{"type": "number", "default": 0.5},
			},
			"required": []string{"seconds", "speed"},
		}},
		{Name: "say", Description: "speak", Parameters: map[string]interface{}{
			"properties": map[string]interface{}{"text": map[string]interface{}{"type": "string"}},
			"required":   []interface{}{"text"},
		}},
	}

	sys := buildToolsSystem("base", defs)
	assert.True(t, strings.HasPrefix(sys, "base\n\n---\n[USING TOOLS]"))
	assert.Contains(t, sys, `<tool_call>{"name":"walk","input":{"seconds":30,"speed":0.5}}</tool_call>`)
	assert.Contains(t, sys, `<tool_call>{"name":"say","input":{"text":"<text>"}}</tool_call>`)
	assert.Equal(t, "base", buildToolsSystem("base", nil))
}

func TestPromptMessages_ToolResultsAsUserText(t *testing.T) {
	history := []contract.Message{
		{Role: contract.RoleUser, Parts: []contract.Part{contract.TextPart("look")}},
		{Role: contract.RoleAssistant, Parts: []contract.Part{
			contract.TextPart("ok"),
			contract.ToolCallPart(contract.ToolCall{ID: "call_1", Name: "see", Arguments: map[string]any{}}),
		}},
		{Role: contract.RoleToolResult, Parts: []contract.Part{
			contract.ToolResultPart(contract.ToolResult{ToolCallID: "call_1", Name: "see", Text: "a cat", Image: &contract.Image{MediaType: "image/png", Data: []byte("x")}}),
		}},
	}

	msgs := promptMessages("sys", history)
	require.Len(t, msgs, 4)
	assert.Equal(t, "ok\n<tool_call>{\"name\":\"see\",\"input\":{}}</tool_call>", msgs[2].Content)
	assert.Equal(t, "user", msgs[3].Role)
	require.Len(t, msgs[3].MultiContent, 2)
	assert.Equal(t, "[Tool result: see]\na cat", msgs[3].MultiContent[0].Text)
	assert.True(t, strings.HasPrefix(msgs[3].MultiContent[1].ImageURL.URL, "data:image/png;base64,"))
}

func TestNativeMessages_ImagesFollowAllToolMessages(t *testing.T) {
	history := []contract.Message{
		{Role: contract.RoleAssistant, Parts: []contract.Part{
			contract.ToolCallPart(contract.ToolCall{ID: "c1", Name: "see_file", Arguments: map[string]any{"path": "a.png"}}),
			contract.ToolCallPart(contract.ToolCall{ID: "c2", Name: "time", Arguments: map[string]any{}}),
		}},
		{Role: contract.RoleToolResult, Parts: []contract.Part{
			contract.ToolResultPart(contract.ToolResult{ToolCallID: "c1", Name: "see_file", Text: "image loaded", Image: &contract.Image{Data: []byte("x")}}),
			contract.ToolResultPart(contract.ToolResult{ToolCallID: "c2", Name: "time", Text: "noon"}),
		}},
	}

	msgs := nativeMessages("", history)
	require.Len(t, msgs, 4)
	assert.Equal(t, `{"path":"a.png"}`, msgs[0].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "tool", msgs[1].Role)
	assert.Equal(t, "c1", msgs[1].ToolCallID)
	assert.Equal(t, "tool", msgs[2].Role)
	assert.Equal(t, "c2", msgs[2].ToolCallID)
	assert.Equal(t, "user", msgs[3].Role)
	require.Len(t, msgs[3].MultiContent, 2)
	assert.True(t, strings.HasPrefix(msgs[3].MultiContent[1].ImageURL.URL, "data:image/jpeg;base64,"))
}
