package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/harunnryd/familiar/internal/model/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sse(events ...string) string {
	var sb strings.Builder
	for _, e := range events {
		var head struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal([]byte(e), &head)
		fmt.Fprintf(&sb, "event: %s\ndata: %s\n\n", head.Type, e)
	}
	return sb.String()
}

const messageStart = `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-test","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":3,"output_tokens":1}}}`

func newTestProvider(t *testing.T, body string, captured *[]byte) *Provider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			*captured, _ = io.ReadAll(r.Body)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return New("test-key", srv.URL, "claude-test", 0)
}

func TestStreamTurn_ToolUseWithThinking(t *testing.T) {
	body := sse(
		messageStart,
		`{"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":"","signature":""}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"Should look left."}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"signature_delta","signature":"sig-abc"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"content_block_start","index":1,"content_block":{"type":"text","text":""}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"Let me "}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"look."}}`,
		`{"type":"content_block_stop","index":1}`,
		`{"type":"content_block_start","index":2,"content_block":{"type":"tool_use","id":"toolu_1","name":"see","input":{}}}`,
		`{"type":"content_block_delta","index":2,"delta":{"type":"input_json_delta","partial_json":"{\"direction\":"}}`,
		`{"type":"content_block_delta","index":2,"delta":{"type":"input_json_delta","partial_json":"\"left\"}"}}`,
		`{"type":"content_block_stop","index":2}`,
		`{"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":9}}`,
		`{"type":"message_stop"}`,
	)
	p := newTestProvider(t, body, nil)

	var deltas []string
	res := p.StreamTurn(context.Background(), contract.StreamRequest{
		System:    "You are a familiar.",
		History:   []contract.Message{{Role: contract.RoleUser, Parts: []contract.Part{contract.TextPart("what's there?")}}},
		MaxTokens: 256,
	}, func(d string) { deltas = append(deltas, d) })

	require.NoError(t, res.Err)
	assert.Equal(t, contract.StopToolUse, res.StopReason)
	assert.Equal(t, []string{"Let me ", "look."}, deltas)
	assert.Equal(t, "Let me look.", res.Text)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "toolu_1", res.ToolCalls[0].ID)
	assert.Equal(t, "left", res.ToolCalls[0].Arguments["direction"])

	require.NotNil(t, res.Opaque)
	assert.Equal(t, ProviderName, res.Opaque.Provider)
	var blocks []thinkingBlock
	require.NoError(t, json.Unmarshal(res.Opaque.Data, &blocks))
	require.Len(t, blocks, 1)
	assert.Equal(t, "sig-abc", blocks[0].Signature)
	assert.Equal(t, "Should look left.", blocks[0].Thinking)
}

func TestStreamTurn_ReplaysThinkingBeforeToolUse(t *testing.T) {
	body := sse(
		messageStart,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"A cat."}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":2}}`,
		`{"type":"message_stop"}`,
	)
	var captured []byte
	p := newTestProvider(t, body, &captured)

	opaque := &contract.OpaqueState{Provider: ProviderName, Data: json.RawMessage(`[{"type":"thinking","thinking":"hm","signature":"sig-1"},{"type":"redacted_thinking","data":"xyz"}]`)}
	history := []contract.Message{
		{Role: contract.RoleUser, Parts: []contract.Part{contract.TextPart("look left")}},
		{Role: contract.RoleAssistant, Parts: []contract.Part{
			contract.OpaquePart(opaque),
			contract.ToolCallPart(contract.ToolCall{ID: "toolu_1", Name: "see", Arguments: map[string]any{"direction": "left"}}),
		}},
		{Role: contract.RoleToolResult, Parts: []contract.Part{
			contract.ToolResultPart(contract.ToolResult{ToolCallID: "toolu_1", Name: "see", Text: "captured", Image: &contract.Image{MediaType: "image/png", Data: []byte{1, 2}}}),
		}},
	}

	res := p.StreamTurn(context.Background(), contract.StreamRequest{History: history, MaxTokens: 128}, nil)
	require.NoError(t, res.Err)
	assert.Equal(t, contract.StopEndTurn, res.StopReason)
	assert.Equal(t, "A cat.", res.Text)

	var sent struct {
		Messages []struct {
			Role    string           `json:"role"`
			Content []map[string]any `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(captured, &sent))
	require.Len(t, sent.Messages, 3)

	assistant := sent.Messages[1].Content
	require.Len(t, assistant, 3)
	assert.Equal(t, "thinking", assistant[0]["type"])
	assert.Equal(t, "sig-1", assistant[0]["signature"])
	assert.Equal(t, "redacted_thinking", assistant[1]["type"])
	assert.Equal(t, "tool_use", assistant[2]["type"])

	toolResult := sent.Messages[2]
	assert.Equal(t, "user", toolResult.Role)
	assert.Equal(t, "tool_result", toolResult.Content[0]["type"])
	assert.Equal(t, "toolu_1", toolResult.Content[0]["tool_use_id"])
}

func TestStreamTurn_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
	}))
	defer srv.Close()

	p := New("k", srv.URL, "claude-test", 0)
	res := p.StreamTurn(context.Background(), contract.StreamRequest{
		History:   []contract.Message{{Role: contract.RoleUser, Parts: []contract.Part{contract.TextPart("hi")}}},
		MaxTokens: 16,
	}, nil)

	assert.Equal(t, contract.StopError, res.StopReason)
	assert.Error(t, res.Err)
}
