package model

import (
	"context"

	"github.com/harunnryd/familiar/internal/model/contract"
)

// Backend is a streaming LLM adapter. onText receives visible text deltas
// in emission order. StreamTurn never returns an error value; failures are
// reported through TurnResult.StopReason.
type Backend interface {
	StreamTurn(ctx context.Context, req contract.StreamRequest, onText func(string)) contract.TurnResult
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
	Name() string
}

// Embedder is implemented by backends that can embed text for memory.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
