package contract

import (
	"encoding/json"
	"strings"
	"time"
)

type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
)

// Origin records who started the turn a message belongs to.
type Origin string

const (
	OriginUser Origin = "user"
	OriginSelf Origin = "self"
)

type PartType string

const (
	PartText       PartType = "text"
	PartImage      PartType = "image"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
	PartOpaque     PartType = "opaque"
)

type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopCancelled StopReason = "cancelled"
	StopError     StopReason = "error"
)

type Image struct {
	MediaType string `json:"media_type"`
	Data      []byte `json:"data"`
}

type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ArgumentsJSON returns the call arguments encoded as a JSON object.
func (c ToolCall) ArgumentsJSON() json.RawMessage {
	if len(c.Arguments) == 0 {
		return json.RawMessage(`{}`)
	}
	b, err := json.Marshal(c.Arguments)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Text       string `json:"text"`
	Image      *Image `json:"image,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
}

// OpaqueState is provider-private continuation data (reasoning signatures,
// thinking blocks). Only the adapter named by Provider reads Data.
type OpaqueState struct {
	Provider string          `json:"provider"`
	Data     json.RawMessage `json:"data"`
}

type Part struct {
	Type       PartType     `json:"type"`
	Text       string       `json:"text,omitempty"`
	Image      *Image       `json:"image,omitempty"`
	ToolCall   *ToolCall    `json:"tool_call,omitempty"`
	ToolResult *ToolResult  `json:"tool_result,omitempty"`
	Opaque     *OpaqueState `json:"opaque,omitempty"`
}

func TextPart(text string) Part { return Part{Type: PartText, Text: text} }

func ImagePart(img *Image) Part { return Part{Type: PartImage, Image: img} }

func ToolCallPart(call ToolCall) Part { return Part{Type: PartToolCall, ToolCall: &call} }

func ToolResultPart(result ToolResult) Part { return Part{Type: PartToolResult, ToolResult: &result} }

func OpaquePart(state *OpaqueState) Part { return Part{Type: PartOpaque, Opaque: state} }

type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Parts     []Part    `json:"parts"`
	Origin    Origin    `json:"origin"`
	CreatedAt time.Time `json:"created_at"`
}

// Text joins every text part of the message.
func (m Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func (m Message) ToolCalls() []ToolCall {
	var out []ToolCall
	for _, p := range m.Parts {
		if p.Type == PartToolCall && p.ToolCall != nil {
			out = append(out, *p.ToolCall)
		}
	}
	return out
}

func (m Message) ToolResults() []ToolResult {
	var out []ToolResult
	for _, p := range m.Parts {
		if p.Type == PartToolResult && p.ToolResult != nil {
			out = append(out, *p.ToolResult)
		}
	}
	return out
}

// OpaqueFor returns the opaque state stored on the message for provider.
func (m Message) OpaqueFor(provider string) *OpaqueState {
	for _, p := range m.Parts {
		if p.Type == PartOpaque && p.Opaque != nil && p.Opaque.Provider == provider {
			return p.Opaque
		}
	}
	return nil
}

func (m Message) Images() []*Image {
	var out []*Image
	for _, p := range m.Parts {
		if p.Type == PartImage && p.Image != nil {
			out = append(out, p.Image)
		}
	}
	return out
}

type ToolDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// RequiredParams lists the schema's required property names.
func (d ToolDef) RequiredParams() []string {
	switch req := d.Parameters["required"].(type) {
	case []string:
		return req
	case []interface{}:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Properties returns the schema's properties map, never nil.
func (d ToolDef) Properties() map[string]interface{} {
	if props, ok := d.Parameters["properties"].(map[string]interface{}); ok {
		return props
	}
	return map[string]interface{}{}
}

type TurnResult struct {
	Text       string       `json:"text"`
	ToolCalls  []ToolCall   `json:"tool_calls,omitempty"`
	StopReason StopReason   `json:"stop_reason"`
	Opaque     *OpaqueState `json:"opaque,omitempty"`
	Err        error        `json:"-"`
}

// Failed builds an error result carrying the detail in Text.
func Failed(err error) TurnResult {
	return TurnResult{Text: err.Error(), StopReason: StopError, Err: err}
}

func Cancelled(text string) TurnResult {
	return TurnResult{Text: text, StopReason: StopCancelled}
}

// StreamRequest is one backend call: the system prompt, the full history
// and the tool definitions offered for this step.
type StreamRequest struct {
	System    string
	History   []Message
	Tools     []ToolDef
	MaxTokens int
}
