package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/familiar/internal/model/contract"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const ProviderName = "anthropic"

type Provider struct {
	client         anthropic.Client
	model          string
	thinkingBudget int
}

func New(apiKey, baseURL, model string, thinkingBudget int) *Provider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Provider{
		client:         anthropic.NewClient(opts...),
		model:          model,
		thinkingBudget: thinkingBudget,
	}
}

func (p *Provider) Name() string {
	return ProviderName
}

// thinkingBlock is the replay form of a thinking or redacted_thinking
// content block. Signatures must round-trip byte for byte.
type thinkingBlock struct {
	Type      string `json:"type"`
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`
	Data      string `json:"data,omitempty"`
}

func (p *Provider) StreamTurn(ctx context.Context, req contract.StreamRequest, onText func(string)) contract.TurnResult {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  toMessages(req.History),
		Tools:     toTools(req.Tools),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if p.thinkingBudget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(p.thinkingBudget))
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var streamed strings.Builder
	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return contract.Failed(fmt.Errorf("anthropic accumulate: %w", err))
		}

		if ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				streamed.WriteString(delta.Text)
				if onText != nil {
					onText(delta.Text)
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return contract.Cancelled(streamed.String())
		}
		return contract.Failed(fmt.Errorf("anthropic stream: %w", err))
	}

	return fromMessage(&message)
}

func fromMessage(message *anthropic.Message) contract.TurnResult {
	var (
		result   contract.TurnResult
		text     strings.Builder
		thinking []thinkingBlock
	)

	for _, block := range message.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ThinkingBlock:
			thinking = append(thinking, thinkingBlock{Type: "thinking", Thinking: b.Thinking, Signature: b.Signature})
		case anthropic.RedactedThinkingBlock:
			thinking = append(thinking, thinkingBlock{Type: "redacted_thinking", Data: b.Data})
		case anthropic.ToolUseBlock:
			args := map[string]any{}
			if len(b.Input) > 0 {
				if err := json.Unmarshal(b.Input, &args); err != nil {
					slog.Warn("Failed to parse tool call arguments", "tool", b.Name, "arguments", string(b.Input), "error", err)
				}
			}
			result.ToolCalls = append(result.ToolCalls, contract.ToolCall{ID: b.ID, Name: b.Name, Arguments: args})
		}
	}

	result.Text = text.String()
	if len(thinking) > 0 {
		if data, err := json.Marshal(thinking); err == nil {
			result.Opaque = &contract.OpaqueState{Provider: ProviderName, Data: data}
		}
	}

	result.StopReason = contract.StopEndTurn
	if message.StopReason == anthropic.StopReasonToolUse && len(result.ToolCalls) > 0 {
		result.StopReason = contract.StopToolUse
	}
	return result
}

func (p *Provider) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(b.Text)
		}
	}
	return strings.TrimSpace(out.String()), nil
}

func toMessages(history []contract.Message) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case contract.RoleAssistant:
			blocks := replayThinking(m.OpaqueFor(ProviderName))
			if text := m.Text(); text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
			for _, call := range m.ToolCalls() {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, call.ArgumentsJSON(), call.Name))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock("..."))
			}
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))

		case contract.RoleToolResult:
			var blocks []anthropic.ContentBlockParamUnion
			for _, r := range m.ToolResults() {
				blocks = append(blocks, toolResultBlock(r))
			}
			messages = append(messages, anthropic.NewUserMessage(blocks...))

		default:
			var blocks []anthropic.ContentBlockParamUnion
			for _, img := range m.Images() {
				blocks = append(blocks, anthropic.NewImageBlockBase64(img.MediaType, base64.StdEncoding.EncodeToString(img.Data)))
			}
			blocks = append(blocks, anthropic.NewTextBlock(m.Text()))
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}
	return messages
}

func toolResultBlock(r contract.ToolResult) anthropic.ContentBlockParamUnion {
	content := []anthropic.ToolResultBlockParamContentUnion{
		{OfText: &anthropic.TextBlockParam{Text: r.Text}},
	}
	if r.Image != nil {
		content = append(content, anthropic.ToolResultBlockParamContentUnion{
			OfImage: &anthropic.ImageBlockParam{
				Source: anthropic.ImageBlockParamSourceUnion{
					OfBase64: &anthropic.Base64ImageSourceParam{
						Data:      base64.StdEncoding.EncodeToString(r.Image.Data),
						MediaType: anthropic.Base64ImageSourceMediaType(r.Image.MediaType),
					},
				},
			},
		})
	}

	block := anthropic.ToolResultBlockParam{ToolUseID: r.ToolCallID, Content: content}
	if r.IsError {
		block.IsError = anthropic.Bool(true)
	}
	return anthropic.ContentBlockParamUnion{OfToolResult: &block}
}

func replayThinking(state *contract.OpaqueState) []anthropic.ContentBlockParamUnion {
	if state == nil || len(state.Data) == 0 {
		return nil
	}
	var stored []thinkingBlock
	if err := json.Unmarshal(state.Data, &stored); err != nil {
		return nil
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(stored))
	for _, b := range stored {
		switch b.Type {
		case "thinking":
			blocks = append(blocks, anthropic.NewThinkingBlock(b.Signature, b.Thinking))
		case "redacted_thinking":
			blocks = append(blocks, anthropic.NewRedactedThinkingBlock(b.Data))
		}
	}
	return blocks
}

func toTools(defs []contract.ToolDef) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		tool := anthropic.ToolParam{
			Name:        d.Name,
			Description: anthropic.String(d.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: d.Properties(),
				Required:   d.RequiredParams(),
			},
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return tools
}
