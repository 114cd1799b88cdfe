package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	toolcore "github.com/harunnryd/familiar/internal/tool"
)

const (
	defaultCompanion = "your companion"
	tomRecallK       = 5
)

func init() {
	toolcore.RegisterBuiltin("tom", func(options toolcore.BuiltinOptions) ([]toolcore.Tool, error) {
		if options.Memory == nil {
			return nil, nil
		}
		person := strings.TrimSpace(options.CompanionName)
		if person == "" {
			person = defaultCompanion
		}
		return []toolcore.Tool{&ToMTool{memory: options.Memory, person: person}}, nil
	})
}

// ToMTool is a perspective-taking scaffold: it returns a structured
// prompt, enriched with memories about the person, for the model to fill
// in before it replies.
type ToMTool struct {
	memory toolcore.MemoryAccess
	person string
}

func (t *ToMTool) Name() string { return "tom" }

func (t *ToMTool) Description() string {
	return "Theory of Mind: perspective-taking tool. Call this BEFORE responding to understand what the other person is feeling and wanting."
}

func (t *ToMTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"situation": map[string]interface{}{
				"type":        "string",
				"description": "What the other person said or did.",
			},
			"person": map[string]interface{}{
				"type":        "string",
				"description": fmt.Sprintf("Who you are talking to (default: %s).", t.person),
			},
		},
		"required": []string{"situation"},
	}
}

func (t *ToMTool) Execute(ctx context.Context, input json.RawMessage) (toolcore.Observation, error) {
	var args struct {
		Situation string `json:"situation"`
		Person    string `json:"person"`
	}
	if err := decodeArgs(input, &args); err != nil {
		return toolcore.Observation{}, err
	}
	person := strings.TrimSpace(args.Person)
	if person == "" {
		person = t.person
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# ToM: take %s's perspective\n\n## Situation\n%s\n", person, args.Situation)

	memories, err := t.memory.Recall(ctx, fmt.Sprintf("%s communication personality conversation patterns %s", person, args.Situation), tomRecallK)
	if err != nil {
		slog.Warn("ToM memory recall failed", "error", err)
	}
	if len(memories) > 0 {
		fmt.Fprintf(&b, "\n## Memories about %s\n- %s\n", person, strings.Join(memories, "\n- "))
	}

	fmt.Fprintf(&b, `
## Tone (read how it was said first)
-> Read intent from word endings, symbols (lol, !, ?, ...), formality, self-deprecation, shyness or sarcasm.
-> Check whether the literal meaning and the tone disagree.

## Projection (what is %[1]s feeling and wanting right now?)
-> Using the tone and your memories, infer %[1]s's emotions and needs.
-> Look past the surface emotion to the one underneath.

## Substitution (if you said it that way, how would you want to be answered?)
-> Put that emotion and tone on yourself and think.

## Response plan
-> Decide how to reply based on the above.
-> Match the other person's tone.
`, person)

	return toolcore.Text("%s", b.String()), nil
}
