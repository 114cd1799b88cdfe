package openai

import (
	"encoding/base64"
	"fmt"

	"github.com/harunnryd/familiar/internal/model/contract"

	"github.com/sashabaranov/go-openai"
)

func dataURL(img *contract.Image) string {
	mediaType := img.MediaType
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(img.Data))
}

func userMessage(text string, images []*contract.Image) openai.ChatCompletionMessage {
	if len(images) == 0 {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text}
	}
	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: text}}
	for _, img := range images {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: dataURL(img)},
		})
	}
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts}
}

// nativeMessages maps history onto structured tool-call messages. Images
// from tool results travel in one user message after the last tool
// message; several compatible servers reject image parts on role "tool".
func nativeMessages(system string, history []contract.Message) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, m := range history {
		switch m.Role {
		case contract.RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Text()}
			for _, call := range m.ToolCalls() {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: string(call.ArgumentsJSON()),
					},
				})
			}
			msgs = append(msgs, msg)

		case contract.RoleToolResult:
			var images []*contract.Image
			for _, r := range m.ToolResults() {
				msgs = append(msgs, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					ToolCallID: r.ToolCallID,
					Content:    r.Text,
				})
				if r.Image != nil {
					images = append(images, r.Image)
				}
			}
			// every tool message must answer the assistant before another role
			if len(images) > 0 {
				msgs = append(msgs, userMessage("(image attached)", images))
			}

		default:
			msgs = append(msgs, userMessage(m.Text(), m.Images()))
		}
	}
	return msgs
}

// promptMessages flattens history for prompt-mode tool calling: assistant
// turns carry their tool calls as <tool_call> text and results come back
// as a user message.
func promptMessages(system string, history []contract.Message) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, m := range history {
		switch m.Role {
		case contract.RoleAssistant:
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: renderToolCalls(m.Text(), m.ToolCalls()),
			})

		case contract.RoleToolResult:
			var images []*contract.Image
			text := ""
			for i, r := range m.ToolResults() {
				if i > 0 {
					text += "\n\n"
				}
				text += fmt.Sprintf("[Tool result: %s]\n%s", r.Name, r.Text)
				if r.Image != nil {
					images = append(images, r.Image)
				}
			}
			msgs = append(msgs, userMessage(text, images))

		default:
			msgs = append(msgs, userMessage(m.Text(), m.Images()))
		}
	}
	return msgs
}
