package gemini

import (
	"testing"

	"github.com/harunnryd/familiar/internal/model/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestAccumulator_SkipsThoughtsAndKeepsSignatures(t *testing.T) {
	var deltas []string
	acc := newAccumulator(func(s string) { deltas = append(deltas, s) })

	acc.add(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{
		{Text: "planning privately", Thought: true},
		{Text: "Let me check.", ThoughtSignature: []byte("sig-text")},
	}}}}})
	acc.add(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{
		{FunctionCall: &genai.FunctionCall{Name: "time"}, ThoughtSignature: []byte("sig-call")},
	}}}}})
	acc.add(nil)

	res := acc.result()
	assert.Equal(t, []string{"Let me check."}, deltas)
	assert.Equal(t, "Let me check.", res.Text)
	assert.Equal(t, contract.StopToolUse, res.StopReason)
	require.Len(t, res.ToolCalls, 1)
	assert.NotEmpty(t, res.ToolCalls[0].ID)
	assert.NotNil(t, res.ToolCalls[0].Arguments)

	require.NotNil(t, res.Opaque)
	assert.Equal(t, ProviderName, res.Opaque.Provider)
	sigs := loadSignatures(res.Opaque)
	assert.Equal(t, []byte("sig-text"), sigs.Text)
	assert.Equal(t, []byte("sig-call"), sigs.Calls[res.ToolCalls[0].ID])
}

func TestAccumulator_PlainReply(t *testing.T) {
	acc := newAccumulator(nil)
	acc.add(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "hi"}}}}}})

	res := acc.result()
	assert.Equal(t, contract.StopEndTurn, res.StopReason)
	assert.Nil(t, res.Opaque)
}

func TestToContents_ReplaysSignaturesAndResults(t *testing.T) {
	acc := newAccumulator(nil)
	acc.sigs.Calls["c1"] = []byte("sig")
	opaque := acc.result().Opaque
	require.NotNil(t, opaque)

	history := []contract.Message{
		{Role: contract.RoleUser, Parts: []contract.Part{contract.TextPart("what time is it")}},
		{Role: contract.RoleAssistant, Parts: []contract.Part{
			contract.ToolCallPart(contract.ToolCall{ID: "c1", Name: "time", Arguments: map[string]any{}}),
			contract.OpaquePart(opaque),
		}},
		{Role: contract.RoleToolResult, Parts: []contract.Part{
			contract.ToolResultPart(contract.ToolResult{ToolCallID: "c1", Name: "time", Text: "noon"}),
			contract.ToolResultPart(contract.ToolResult{ToolCallID: "c2", Name: "see_file", Text: "bad path", IsError: true,
				Image: &contract.Image{MediaType: "image/png", Data: []byte{1}}}),
		}},
	}

	contents := toContents(history)
	require.Len(t, contents, 3)
	assert.Equal(t, "model", contents[1].Role)
	require.Len(t, contents[1].Parts, 1)
	assert.Equal(t, []byte("sig"), contents[1].Parts[0].ThoughtSignature)
	assert.Equal(t, "time", contents[1].Parts[0].FunctionCall.Name)

	results := contents[2].Parts
	require.Len(t, results, 3)
	assert.Equal(t, "noon", results[0].FunctionResponse.Response["output"])
	assert.Equal(t, "bad path", results[1].FunctionResponse.Response["error"])
	assert.Equal(t, "image/png", results[2].InlineData.MIMEType)
}

func TestToTools(t *testing.T) {
	assert.Nil(t, toTools(nil))

	tools := toTools([]contract.ToolDef{{Name: "time", Description: "clock"}})
	require.Len(t, tools, 1)
	decl := tools[0].FunctionDeclarations[0]
	assert.Equal(t, "time", decl.Name)
	assert.NotNil(t, decl.ParametersJsonSchema)
}
