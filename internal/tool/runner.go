package tool

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/harunnryd/familiar/internal/concurrency"
	"github.com/harunnryd/familiar/internal/logger"
	"github.com/harunnryd/familiar/internal/model/contract"
)

// Execute runs one tool call. Every failure mode is reported to the model
// as an error result; Execute itself never fails.
func (r *Router) Execute(ctx context.Context, call contract.ToolCall) contract.ToolResult {
	result := contract.ToolResult{ToolCallID: call.ID, Name: call.Name}
	turnID := logger.GetTurnID(ctx)

	t, ok := r.Get(call.Name)
	if !ok {
		slog.Warn("Tool not available", "tool", call.Name, "turn_id", turnID)
		result.Text = fmt.Sprintf("tool %s is not available", call.Name)
		result.IsError = true
		return result
	}

	input := call.ArgumentsJSON()
	if err := ValidateInput(t.Parameters(), input); err != nil {
		slog.Warn("Tool input validation failed", "tool", call.Name, "error", err, "turn_id", turnID)
		result.Text = fmt.Sprintf("Tool %s failed: invalid input: %v", call.Name, err)
		result.IsError = true
		return result
	}

	start := time.Now()
	slog.Info("Executing tool", "tool", call.Name, "call_id", call.ID, "turn_id", turnID)

	var obs Observation
	err := concurrency.CatchPanic("tool:"+call.Name, func() error {
		var execErr error
		obs, execErr = t.Execute(ctx, input)
		return execErr
	})

	duration := time.Since(start)
	if err != nil {
		slog.Error("Tool execution failed", "tool", call.Name, "error", err, "duration", duration, "turn_id", turnID)
		result.Text = fmt.Sprintf("Tool %s failed: %v", call.Name, err)
		result.IsError = true
		return result
	}

	slog.Info("Tool execution success", "tool", call.Name, "duration", duration, "turn_id", turnID)
	result.Text = obs.Text
	result.Image = obs.Image
	return result
}
