package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	familiarErrors "github.com/harunnryd/familiar/internal/errors"
	"github.com/harunnryd/familiar/internal/logger"
	"github.com/harunnryd/familiar/internal/model/contract"
)

// InstrumentedBackend wraps a provider backend. It logs every call, maps
// provider errors onto the familiar taxonomy and reports a cancelled turn
// as StopCancelled even when the SDK surfaced it as a transport error.
type InstrumentedBackend struct {
	backend Backend
	model   string
	timeout time.Duration
}

// Wrap instruments an arbitrary backend. Used by tests and by New.
func Wrap(backend Backend, model string, timeout time.Duration) *InstrumentedBackend {
	return &InstrumentedBackend{backend: backend, model: model, timeout: timeout}
}

func (b *InstrumentedBackend) Name() string {
	return b.backend.Name()
}

func (b *InstrumentedBackend) Model() string {
	return b.model
}

func (b *InstrumentedBackend) StreamTurn(ctx context.Context, req contract.StreamRequest, onText func(string)) contract.TurnResult {
	start := time.Now()
	turnID := logger.GetTurnID(ctx)
	slog.Debug("Streaming turn", "provider", b.backend.Name(), "messages", len(req.History), "tools", len(req.Tools), "turn_id", turnID)

	streamCtx, cancel := b.withTimeout(ctx)
	defer cancel()

	res := b.backend.StreamTurn(streamCtx, req, onText)

	// a cancelled turn is decided by the caller's context; an expired
	// request timeout on its own is a transport failure
	switch {
	case ctx.Err() != nil && (res.StopReason == contract.StopError || res.StopReason == contract.StopCancelled):
		res = contract.Cancelled(res.Text)
	case errors.Is(streamCtx.Err(), context.DeadlineExceeded) && (res.StopReason == contract.StopError || res.StopReason == contract.StopCancelled):
		res = contract.Failed(fmt.Errorf("stream stalled after %s: %w", b.timeout, context.DeadlineExceeded))
	}
	if res.StopReason == contract.StopError {
		res.Err = familiarErrors.MapBackendError(res.Err)
		slog.Error("Backend turn failed", "provider", b.backend.Name(), "error", res.Err, "category", familiarErrors.Category(res.Err), "duration", time.Since(start), "turn_id", turnID)
		return res
	}

	slog.Debug("Backend turn completed", "provider", b.backend.Name(), "stop_reason", res.StopReason, "tool_calls", len(res.ToolCalls), "duration", time.Since(start), "turn_id", turnID)
	return res
}

func (b *InstrumentedBackend) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	out, err := b.backend.Complete(ctx, prompt, maxTokens)
	if err != nil {
		err = familiarErrors.MapBackendError(err)
		slog.Warn("Backend completion failed", "provider", b.backend.Name(), "error", err, "duration", time.Since(start))
		return "", err
	}
	return out, nil
}

// Embed delegates to the wrapped backend when it supports embeddings.
func (b *InstrumentedBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	embedder, ok := b.backend.(Embedder)
	if !ok {
		return nil, ErrEmbeddingUnsupported
	}

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	vec, err := embedder.Embed(ctx, text)
	if err != nil {
		return nil, familiarErrors.MapBackendError(err)
	}
	return vec, nil
}

// CanEmbed reports whether the wrapped backend implements Embedder.
func (b *InstrumentedBackend) CanEmbed() bool {
	_, ok := b.backend.(Embedder)
	return ok
}

func (b *InstrumentedBackend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.timeout)
}

var ErrEmbeddingUnsupported = errors.New("embedding not supported by backend")
