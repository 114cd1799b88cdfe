// Package hooks holds the post-turn reactions: curiosity, worry and
// companion drives, and long-term memory.
package hooks

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/harunnryd/familiar/internal/concurrency"
	"github.com/harunnryd/familiar/internal/curiosity"
	"github.com/harunnryd/familiar/internal/desire"
	"github.com/harunnryd/familiar/internal/model/contract"
	"github.com/harunnryd/familiar/internal/orchestrator"
	"github.com/harunnryd/familiar/internal/orchestrator/memory"
)

// Curiosity records what the agent wants to look into next and nudges
// look_around upward.
type Curiosity struct {
	extractor *curiosity.Extractor
	state     *desire.State
	boost     float64
}

func NewCuriosity(extractor *curiosity.Extractor, state *desire.State, boost float64) *Curiosity {
	return &Curiosity{extractor: extractor, state: state, boost: boost}
}

func (h *Curiosity) AfterTurn(ctx context.Context, outcome orchestrator.TurnOutcome) {
	if outcome.Truncated || outcome.Text == orchestrator.NoResponseText || h.state.Curiosity() != "" {
		return
	}
	target, ok := h.extractor.Extract(ctx, outcome.Text)
	if !ok {
		return
	}
	if h.state.SetCuriosity(target) {
		h.state.Boost(desire.LookAround, h.boost)
		slog.Info("Curiosity target set", "target", target, "turn_id", outcome.TurnID)
	}
}

// Companion reacts to what the companion said: talking satisfies the
// urge to greet, and signs of exhaustion raise worry.
type Companion struct {
	state *desire.State
}

func NewCompanion(state *desire.State) *Companion {
	return &Companion{state: state}
}

func (h *Companion) AfterTurn(_ context.Context, outcome orchestrator.TurnOutcome) {
	if outcome.Origin != contract.OriginUser {
		return
	}
	h.state.Satisfy(desire.GreetCompanion)
	if score := desire.DetectWorry(outcome.Request.Text); score > 0 {
		h.state.Boost(desire.WorryCompanion, score)
		slog.Info("Worry signal detected", "score", score, "turn_id", outcome.TurnID)
	}
}

// MemoryStore persists text into long-term memory.
type MemoryStore interface {
	Store(ctx context.Context, text, kind string, metadata map[string]string) error
}

// Remember stores each final reply as an observation in the background.
type Remember struct {
	store MemoryStore
	wg    sync.WaitGroup
}

func NewRemember(store MemoryStore) *Remember {
	return &Remember{store: store}
}

func (h *Remember) AfterTurn(ctx context.Context, outcome orchestrator.TurnOutcome) {
	text := strings.TrimSpace(outcome.Text)
	if text == "" || outcome.Truncated || text == orchestrator.NoResponseText {
		return
	}
	metadata := map[string]string{
		"origin":  string(outcome.Origin),
		"turn_id": outcome.TurnID,
	}
	storeCtx := context.WithoutCancel(ctx)

	h.wg.Add(1)
	concurrency.SafeGo("memory-store", func() {
		defer h.wg.Done()
		if err := h.store.Store(storeCtx, text, memory.KindObservation, metadata); err != nil {
			slog.Warn("Failed to store memory", "turn_id", outcome.TurnID, "error", err)
		}
	}, nil)
}

// Wait blocks until background stores have finished.
func (h *Remember) Wait() {
	h.wg.Wait()
}
