package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/harunnryd/familiar/internal/model/contract"

	"github.com/sashabaranov/go-openai"
)

const ProviderName = "openai"

const (
	ToolsModeNative = "native"
	ToolsModePrompt = "prompt"
)

type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	ToolsMode      string
	EmbeddingModel string
}

// Provider talks to any OpenAI-compatible chat completions endpoint
// (OpenAI, Ollama, vLLM, Gemini's compatibility layer).
type Provider struct {
	client         *openai.Client
	model          string
	toolsMode      string
	embeddingModel string
	// api.openai.com rejects max_tokens for newer models; local servers
	// often only understand max_tokens.
	useCompletionTokens bool
}

func New(opts Options) *Provider {
	cfg := openai.DefaultConfig(opts.APIKey)
	baseURL := strings.TrimSuffix(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	mode := opts.ToolsMode
	if mode != ToolsModePrompt {
		mode = ToolsModeNative
	}

	return &Provider{
		client:              openai.NewClientWithConfig(cfg),
		model:               opts.Model,
		toolsMode:           mode,
		embeddingModel:      opts.EmbeddingModel,
		useCompletionTokens: strings.Contains(cfg.BaseURL, "api.openai.com"),
	}
}

func (p *Provider) Name() string {
	return ProviderName
}

func (p *Provider) StreamTurn(ctx context.Context, req contract.StreamRequest, onText func(string)) contract.TurnResult {
	if p.toolsMode == ToolsModePrompt {
		return p.streamPrompt(ctx, req, onText)
	}
	return p.streamNative(ctx, req, onText)
}

func (p *Provider) request(messages []openai.ChatCompletionMessage, maxTokens int) openai.ChatCompletionRequest {
	chatReq := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: messages,
	}
	if p.useCompletionTokens {
		chatReq.MaxCompletionTokens = maxTokens
	} else {
		chatReq.MaxTokens = maxTokens
	}
	return chatReq
}

type partialCall struct {
	id   string
	name string
	args strings.Builder
}

func (p *Provider) streamNative(ctx context.Context, req contract.StreamRequest, onText func(string)) contract.TurnResult {
	chatReq := p.request(nativeMessages(req.System, req.History), req.MaxTokens)
	chatReq.Tools = toTools(req.Tools)
	chatReq.Stream = true

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		if ctx.Err() != nil {
			return contract.Cancelled("")
		}
		return contract.Failed(fmt.Errorf("openai stream: %w", err))
	}
	defer stream.Close()

	var (
		text         strings.Builder
		calls        = map[int]*partialCall{}
		finishReason openai.FinishReason
	)
	filter := newThoughtFilter(func(s string) {
		text.WriteString(s)
		if onText != nil {
			onText(s)
		}
	})

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return contract.Cancelled(text.String())
			}
			return contract.Failed(fmt.Errorf("openai stream: %w", err))
		}
		if len(resp.Choices) == 0 {
			continue
		}

		choice := resp.Choices[0]
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
		if choice.Delta.Content != "" {
			filter.Write(choice.Delta.Content)
		}
		for i, tc := range choice.Delta.ToolCalls {
			idx := i
			if tc.Index != nil {
				idx = *tc.Index
			}
			pc, ok := calls[idx]
			if !ok {
				pc = &partialCall{}
				calls[idx] = pc
			}
			if tc.ID != "" {
				pc.id = tc.ID
			}
			if tc.Function.Name != "" {
				pc.name += tc.Function.Name
			}
			pc.args.WriteString(tc.Function.Arguments)
		}
	}
	filter.Flush()

	result := contract.TurnResult{Text: text.String(), StopReason: contract.StopEndTurn}

	indexes := make([]int, 0, len(calls))
	for idx := range calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		pc := calls[idx]
		args := map[string]any{}
		if raw := strings.TrimSpace(pc.args.String()); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				slog.Warn("Failed to parse tool call arguments", "tool", pc.name, "arguments", raw, "error", err)
			}
		}
		id := pc.id
		if id == "" {
			id = newCallID()
		}
		result.ToolCalls = append(result.ToolCalls, contract.ToolCall{ID: id, Name: pc.name, Arguments: args})
	}

	if finishReason == openai.FinishReasonToolCalls && len(result.ToolCalls) > 0 {
		result.StopReason = contract.StopToolUse
	}
	return result
}

func (p *Provider) streamPrompt(ctx context.Context, req contract.StreamRequest, onText func(string)) contract.TurnResult {
	system := buildToolsSystem(req.System, req.Tools)
	chatReq := p.request(promptMessages(system, req.History), req.MaxTokens)
	chatReq.Stream = true

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		if ctx.Err() != nil {
			return contract.Cancelled("")
		}
		return contract.Failed(fmt.Errorf("openai stream: %w", err))
	}
	defer stream.Close()

	var raw strings.Builder
	visible := newTagFilter(onText)
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return contract.Cancelled(stripToolCalls(raw.String()))
			}
			return contract.Failed(fmt.Errorf("openai stream: %w", err))
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		chunk := resp.Choices[0].Delta.Content
		raw.WriteString(chunk)
		visible.Write(chunk)
	}
	visible.Flush()

	text := raw.String()
	calls := parseToolCalls(text)
	result := contract.TurnResult{Text: stripToolCalls(text), StopReason: contract.StopEndTurn}
	if len(calls) > 0 {
		result.ToolCalls = calls
		result.StopReason = contract.StopToolUse
	} else if result.Text == "" || toolCallRe.MatchString(text) {
		// nothing actionable: the turn ends with exactly what the model said
		result.Text = strings.TrimSpace(text)
	}
	return result
}

func (p *Provider) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	chatReq := p.request([]openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}}, maxTokens)
	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	model := p.embeddingModel
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding data returned")
	}

	return resp.Data[0].Embedding, nil
}

func toTools(defs []contract.ToolDef) []openai.Tool {
	tools := make([]openai.Tool, 0, len(defs))
	for _, d := range defs {
		params := d.Parameters
		if params == nil {
			params = map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			}
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}
