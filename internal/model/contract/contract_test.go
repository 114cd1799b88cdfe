package contract

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageAccessors(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Parts: []Part{
			OpaquePart(&OpaqueState{Provider: "anthropic", Data: json.RawMessage(`[]`)}),
			TextPart("Let me "),
			TextPart("look."),
			ToolCallPart(ToolCall{ID: "c1", Name: "see", Arguments: map[string]any{"direction": "left"}}),
		},
	}

	assert.Equal(t, "Let me look.", msg.Text())
	require.Len(t, msg.ToolCalls(), 1)
	assert.Equal(t, "c1", msg.ToolCalls()[0].ID)
	assert.NotNil(t, msg.OpaqueFor("anthropic"))
	assert.Nil(t, msg.OpaqueFor("gemini"))
	assert.Empty(t, msg.ToolResults())
}

func TestToolCallArgumentsJSON(t *testing.T) {
	assert.JSONEq(t, `{}`, string(ToolCall{Name: "time"}.ArgumentsJSON()))
	assert.JSONEq(t, `{"path":"a.txt"}`, string(ToolCall{Arguments: map[string]any{"path": "a.txt"}}.ArgumentsJSON()))
}

func TestToolDefSchemaHelpers(t *testing.T) {
	def := ToolDef{Parameters: map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"path": map[string]interface{}{"type": "string"}},
		"required":   []interface{}{"path"},
	}}
	assert.Equal(t, []string{"path"}, def.RequiredParams())
	assert.Contains(t, def.Properties(), "path")

	assert.Empty(t, ToolDef{}.RequiredParams())
	assert.NotNil(t, ToolDef{}.Properties())
}

func TestFailed(t *testing.T) {
	r := Failed(errors.New("connection refused"))
	assert.Equal(t, StopError, r.StopReason)
	assert.Equal(t, "connection refused", r.Text)
	assert.Error(t, r.Err)
}
