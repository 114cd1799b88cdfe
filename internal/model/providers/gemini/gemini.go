package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harunnryd/familiar/internal/model/contract"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

const (
	ProviderName = "gemini"

	defaultEmbeddingModel = "text-embedding-004"
)

type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	ThinkingBudget int
}

type Provider struct {
	client         *genai.Client
	model          string
	embeddingModel string
	thinkingBudget int
}

func New(ctx context.Context, opts Options) (*Provider, error) {
	cfg := &genai.ClientConfig{APIKey: opts.APIKey, Backend: genai.BackendGeminiAPI}
	if strings.TrimSpace(opts.BaseURL) != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	embeddingModel := opts.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = defaultEmbeddingModel
	}
	return &Provider{
		client:         client,
		model:          opts.Model,
		embeddingModel: embeddingModel,
		thinkingBudget: opts.ThinkingBudget,
	}, nil
}

func (p *Provider) Name() string {
	return ProviderName
}

// signatures holds thought signatures keyed by the part they were attached
// to. Gemini rejects replayed function calls whose signature was dropped.
type signatures struct {
	Text  []byte            `json:"text,omitempty"`
	Calls map[string][]byte `json:"calls,omitempty"`
}

func (s *signatures) empty() bool {
	return len(s.Text) == 0 && len(s.Calls) == 0
}

func (p *Provider) StreamTurn(ctx context.Context, req contract.StreamRequest, onText func(string)) contract.TurnResult {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.MaxTokens),
		Tools:           toTools(req.Tools),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if p.thinkingBudget > 0 {
		budget := int32(p.thinkingBudget)
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: &budget}
	}

	acc := newAccumulator(onText)
	for resp, err := range p.client.Models.GenerateContentStream(ctx, p.model, toContents(req.History), cfg) {
		if err != nil {
			if ctx.Err() != nil {
				return contract.Cancelled(acc.text.String())
			}
			return contract.Failed(fmt.Errorf("gemini stream: %w", err))
		}
		acc.add(resp)
	}
	if ctx.Err() != nil {
		return contract.Cancelled(acc.text.String())
	}
	return acc.result()
}

type accumulator struct {
	onText func(string)
	text   strings.Builder
	calls  []contract.ToolCall
	sigs   signatures
}

func newAccumulator(onText func(string)) *accumulator {
	return &accumulator{onText: onText, sigs: signatures{Calls: map[string][]byte{}}}
}

func (a *accumulator) add(resp *genai.GenerateContentResponse) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if fc := part.FunctionCall; fc != nil {
			id := fc.ID
			if id == "" {
				id = "call_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
			}
			args := fc.Args
			if args == nil {
				args = map[string]any{}
			}
			a.calls = append(a.calls, contract.ToolCall{ID: id, Name: fc.Name, Arguments: args})
			if len(part.ThoughtSignature) > 0 {
				a.sigs.Calls[id] = part.ThoughtSignature
			}
			continue
		}
		if len(part.ThoughtSignature) > 0 && len(a.sigs.Text) == 0 {
			a.sigs.Text = part.ThoughtSignature
		}
		if part.Text != "" {
			a.text.WriteString(part.Text)
			if a.onText != nil {
				a.onText(part.Text)
			}
		}
	}
}

func (a *accumulator) result() contract.TurnResult {
	result := contract.TurnResult{Text: a.text.String(), ToolCalls: a.calls, StopReason: contract.StopEndTurn}
	if len(a.calls) > 0 {
		result.StopReason = contract.StopToolUse
	}
	if !a.sigs.empty() {
		if data, err := json.Marshal(a.sigs); err == nil {
			result.Opaque = &contract.OpaqueState{Provider: ProviderName, Data: data}
		}
	}
	return result
}

func (p *Provider) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Models.EmbedContent(ctx, p.embeddingModel, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("gemini embed: empty response")
	}
	return resp.Embeddings[0].Values, nil
}

func toContents(history []contract.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case contract.RoleAssistant:
			sigs := loadSignatures(m.OpaqueFor(ProviderName))
			var parts []*genai.Part
			if text := m.Text(); text != "" {
				parts = append(parts, &genai.Part{Text: text, ThoughtSignature: sigs.Text})
			}
			for _, call := range m.ToolCalls() {
				parts = append(parts, &genai.Part{
					FunctionCall:     &genai.FunctionCall{ID: call.ID, Name: call.Name, Args: call.Arguments},
					ThoughtSignature: sigs.Calls[call.ID],
				})
			}
			if len(parts) == 0 {
				parts = append(parts, genai.NewPartFromText("..."))
			}
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))

		case contract.RoleToolResult:
			var parts []*genai.Part
			for _, r := range m.ToolResults() {
				response := map[string]any{"output": r.Text}
				if r.IsError {
					response = map[string]any{"error": r.Text}
				}
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       r.ToolCallID,
					Name:     r.Name,
					Response: response,
				}})
				if r.Image != nil {
					parts = append(parts, genai.NewPartFromBytes(r.Image.Data, mediaType(r.Image)))
				}
			}
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))

		default:
			var parts []*genai.Part
			for _, img := range m.Images() {
				parts = append(parts, genai.NewPartFromBytes(img.Data, mediaType(img)))
			}
			parts = append(parts, genai.NewPartFromText(m.Text()))
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
		}
	}
	return contents
}

func loadSignatures(state *contract.OpaqueState) signatures {
	var s signatures
	if state != nil && len(state.Data) > 0 {
		_ = json.Unmarshal(state.Data, &s)
	}
	return s
}

func mediaType(img *contract.Image) string {
	if img.MediaType == "" {
		return "image/jpeg"
	}
	return img.MediaType
}

func toTools(defs []contract.ToolDef) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		schema := d.Parameters
		if schema == nil {
			schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 d.Name,
			Description:          d.Description,
			ParametersJsonSchema: schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}
