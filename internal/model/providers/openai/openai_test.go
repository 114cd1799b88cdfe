package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/harunnryd/familiar/internal/model/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunk(delta string, finish string) string {
	fr := "null"
	if finish != "" {
		fr = fmt.Sprintf("%q", finish)
	}
	return fmt.Sprintf(`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":%s,"finish_reason":%s}]}`, delta, fr)
}

func streamServer(t *testing.T, chunks []string, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, captured)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func userHistory(text string) []contract.Message {
	return []contract.Message{{Role: contract.RoleUser, Parts: []contract.Part{contract.TextPart(text)}}}
}

func TestStreamNative_AccumulatesToolCallsByIndex(t *testing.T) {
	srv := streamServer(t, []string{
		chunk(`{"role":"assistant","content":"Checking"}`, ""),
		chunk(`{"tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"read_file","arguments":"{\"pa"}}]}`, ""),
		chunk(`{"tool_calls":[{"index":0,"function":{"arguments":"th\":\"notes.txt\"}"}}]}`, ""),
		chunk(`{"tool_calls":[{"index":1,"id":"call_b","type":"function","function":{"name":"time","arguments":"{}"}}]}`, ""),
		chunk(`{}`, "tool_calls"),
	}, nil)

	p := New(Options{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	var deltas []string
	res := p.StreamTurn(context.Background(), contract.StreamRequest{History: userHistory("read it"), MaxTokens: 64,
		Tools: []contract.ToolDef{{Name: "read_file", Description: "read"}}}, func(s string) { deltas = append(deltas, s) })

	require.NoError(t, res.Err)
	assert.Equal(t, contract.StopToolUse, res.StopReason)
	assert.Equal(t, "Checking", res.Text)
	assert.Equal(t, []string{"Checking"}, deltas)
	require.Len(t, res.ToolCalls, 2)
	assert.Equal(t, "call_a", res.ToolCalls[0].ID)
	assert.Equal(t, "notes.txt", res.ToolCalls[0].Arguments["path"])
	assert.Equal(t, "time", res.ToolCalls[1].Name)
}

func TestStreamNative_MalformedArgumentsAreLogged(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	defer slog.SetDefault(prev)

	srv := streamServer(t, []string{
		chunk(`{"tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"read_file","arguments":"{\"path\": oops"}}]}`, ""),
		chunk(`{}`, "tool_calls"),
	}, nil)

	p := New(Options{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	res := p.StreamTurn(context.Background(), contract.StreamRequest{History: userHistory("read it"), MaxTokens: 64}, nil)

	assert.Equal(t, contract.StopToolUse, res.StopReason)
	require.Len(t, res.ToolCalls, 1)
	assert.Empty(t, res.ToolCalls[0].Arguments)
	assert.Contains(t, logs.String(), "Failed to parse tool call arguments")
	assert.Contains(t, logs.String(), "read_file")
}

func TestStreamNative_FiltersThoughtBlock(t *testing.T) {
	srv := streamServer(t, []string{
		chunk(`{"content":"THO"}`, ""),
		chunk(`{"content":"UGHT\nthe user wants"}`, ""),
		chunk(`{"content":" a greeting\n\nHel"}`, ""),
		chunk(`{"content":"lo!"}`, "stop"),
	}, nil)

	p := New(Options{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	var deltas []string
	res := p.StreamTurn(context.Background(), contract.StreamRequest{History: userHistory("hi"), MaxTokens: 64}, func(s string) { deltas = append(deltas, s) })

	assert.Equal(t, contract.StopEndTurn, res.StopReason)
	assert.Equal(t, "Hello!", res.Text)
	assert.Equal(t, "Hello!", strings.Join(deltas, ""))
}

func TestStreamNative_MaxTokensField(t *testing.T) {
	var captured map[string]any
	srv := streamServer(t, []string{chunk(`{"content":"ok"}`, "stop")}, &captured)

	p := New(Options{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	_ = p.StreamTurn(context.Background(), contract.StreamRequest{System: "sys", History: userHistory("hi"), MaxTokens: 99}, nil)

	assert.EqualValues(t, 99, captured["max_tokens"])
	assert.NotContains(t, captured, "max_completion_tokens")
	msgs := captured["messages"].([]any)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestStreamPrompt_ParsesAndHidesToolCalls(t *testing.T) {
	var captured map[string]any
	srv := streamServer(t, []string{
		chunk(`{"content":"Let me look. <tool"}`, ""),
		chunk(`{"content":"_call>{\"name\": \"see\", \"input\": {\"direction\": \"left\"}}</tool_call>"}`, "stop"),
	}, &captured)

	p := New(Options{APIKey: "k", BaseURL: srv.URL, Model: "m", ToolsMode: ToolsModePrompt})
	var deltas []string
	res := p.StreamTurn(context.Background(), contract.StreamRequest{
		System:    "You are a familiar.",
		History:   userHistory("what's left?"),
		MaxTokens: 64,
		Tools: []contract.ToolDef{{Name: "see", Description: "look around", Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"direction": map[string]interface{}{"type": "string", "enum": []interface{}{"left", "right"}}},
			"required":   []interface{}{"direction"},
		}}},
	}, func(s string) { deltas = append(deltas, s) })

	assert.Equal(t, contract.StopToolUse, res.StopReason)
	assert.Equal(t, "Let me look.", res.Text)
	assert.Equal(t, "Let me look. ", strings.Join(deltas, ""))
	require.Len(t, res.ToolCalls, 1)
	assert.True(t, strings.HasPrefix(res.ToolCalls[0].ID, "call_"))
	assert.Len(t, res.ToolCalls[0].ID, len("call_")+8)
	assert.Equal(t, "left", res.ToolCalls[0].Arguments["direction"])

	assert.NotContains(t, captured, "tools")
	system := captured["messages"].([]any)[0].(map[string]any)["content"].(string)
	assert.Contains(t, system, "[USING TOOLS]")
	assert.Contains(t, system, `<tool_call>{"name":"see","input":{"direction":"left"}}</tool_call>`)
	assert.Contains(t, system, "- see: look around")
}

func TestStreamPrompt_UnparseableIsEndTurn(t *testing.T) {
	srv := streamServer(t, []string{chunk(`{"content":"<tool_call>{not json}</tool_call>"}`, "stop")}, nil)

	p := New(Options{APIKey: "k", BaseURL: srv.URL, Model: "m", ToolsMode: ToolsModePrompt})
	res := p.StreamTurn(context.Background(), contract.StreamRequest{History: userHistory("x"), MaxTokens: 64}, nil)

	assert.Equal(t, contract.StopEndTurn, res.StopReason)
	assert.Empty(t, res.ToolCalls)
	assert.Equal(t, "<tool_call>{not json}</tool_call>", res.Text)
}

func TestStreamPrompt_UnparseableKeepsSurroundingText(t *testing.T) {
	srv := streamServer(t, []string{chunk(`{"content":"Let me look. <tool_call>{\"name\": \"see\", bad}</tool_call>"}`, "stop")}, nil)

	p := New(Options{APIKey: "k", BaseURL: srv.URL, Model: "m", ToolsMode: ToolsModePrompt})
	res := p.StreamTurn(context.Background(), contract.StreamRequest{History: userHistory("x"), MaxTokens: 64}, nil)

	assert.Equal(t, contract.StopEndTurn, res.StopReason)
	assert.Empty(t, res.ToolCalls)
	assert.Equal(t, `Let me look. <tool_call>{"name": "see", bad}</tool_call>`, res.Text)
}

func TestStreamTurn_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	}))
	defer srv.Close()

	p := New(Options{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	res := p.StreamTurn(context.Background(), contract.StreamRequest{History: userHistory("x"), MaxTokens: 8}, nil)

	assert.Equal(t, contract.StopError, res.StopReason)
	assert.Error(t, res.Err)
	assert.NotEmpty(t, res.Text)
}

func TestStreamTurn_CancelledContext(t *testing.T) {
	srv := streamServer(t, []string{chunk(`{"content":"late"}`, "stop")}, nil)
	p := New(Options{APIKey: "k", BaseURL: srv.URL, Model: "m"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := p.StreamTurn(ctx, contract.StreamRequest{History: userHistory("x"), MaxTokens: 8}, nil)
	assert.Equal(t, contract.StopCancelled, res.StopReason)
}

func TestNew_UsesCompletionTokensForOpenAI(t *testing.T) {
	p := New(Options{APIKey: "k", Model: "gpt-4o-mini"})
	assert.True(t, p.useCompletionTokens)

	p = New(Options{APIKey: "", BaseURL: "http://localhost:11434/v1/", Model: "qwen"})
	assert.False(t, p.useCompletionTokens)
	assert.Equal(t, ToolsModeNative, p.toolsMode)
}
