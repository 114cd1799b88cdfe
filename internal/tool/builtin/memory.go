package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	toolcore "github.com/harunnryd/familiar/internal/tool"
)

var memoryKinds = []string{"observation", "feeling", "conversation"}

func init() {
	toolcore.RegisterBuiltin("memory", func(options toolcore.BuiltinOptions) ([]toolcore.Tool, error) {
		if options.Memory == nil {
			return nil, nil
		}
		k := options.RecallK
		if k <= 0 {
			k = toolcore.DefaultBuiltinRecallK
		}
		return []toolcore.Tool{
			&RecallTool{memory: options.Memory, k: k},
			&RememberTool{memory: options.Memory},
		}, nil
	})
}

// RecallTool searches long-term memory.
type RecallTool struct {
	memory toolcore.MemoryAccess
	k      int
}

func (t *RecallTool) Name() string { return "recall" }

func (t *RecallTool) Description() string {
	return "Search your long-term memory for things you saw, felt, or talked about."
}

func (t *RecallTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "What to remember",
			},
			"n": map[string]interface{}{
				"type":        "integer",
				"description": fmt.Sprintf("Number of memories to return (default %d)", t.k),
			},
		},
		"required": []string{"query"},
	}
}

func (t *RecallTool) Execute(ctx context.Context, input json.RawMessage) (toolcore.Observation, error) {
	var args struct {
		Query string `json:"query"`
		N     int    `json:"n"`
	}
	if err := decodeArgs(input, &args); err != nil {
		return toolcore.Observation{}, err
	}
	if strings.TrimSpace(args.Query) == "" {
		return toolcore.Observation{}, fmt.Errorf("query is required")
	}
	n := args.N
	if n <= 0 || n > 10 {
		n = t.k
	}

	memories, err := t.memory.Recall(ctx, args.Query, n)
	if err != nil {
		return toolcore.Observation{}, err
	}
	if len(memories) == 0 {
		return toolcore.Text("No related memories."), nil
	}
	return toolcore.Text("%s", "- "+strings.Join(memories, "\n- ")), nil
}

// RememberTool saves a memory.
type RememberTool struct {
	memory toolcore.MemoryAccess
}

func (t *RememberTool) Name() string { return "remember" }

func (t *RememberTool) Description() string {
	return "Save something worth remembering to your long-term memory."
}

func (t *RememberTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"content": map[string]interface{}{
				"type":        "string",
				"description": "What to remember, in one or two sentences",
			},
			"kind": map[string]interface{}{
				"type":        "string",
				"description": "Kind of memory",
				"enum":        memoryKinds,
			},
		},
		"required": []string{"content"},
	}
}

func (t *RememberTool) Execute(ctx context.Context, input json.RawMessage) (toolcore.Observation, error) {
	var args struct {
		Content string `json:"content"`
		Kind    string `json:"kind"`
	}
	if err := decodeArgs(input, &args); err != nil {
		return toolcore.Observation{}, err
	}
	if strings.TrimSpace(args.Content) == "" {
		return toolcore.Observation{}, fmt.Errorf("content is required")
	}
	if args.Kind == "" {
		args.Kind = memoryKinds[0]
	}

	if err := t.memory.Remember(ctx, args.Content, args.Kind); err != nil {
		return toolcore.Observation{}, err
	}
	return toolcore.Text("Remembered."), nil
}
