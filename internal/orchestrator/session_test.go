package orchestrator

import (
	"context"
	"testing"

	familiarErrors "github.com/harunnryd/familiar/internal/errors"
	"github.com/harunnryd/familiar/internal/model/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_AppendNotifiesListeners(t *testing.T) {
	s := NewSession("")
	assert.NotEmpty(t, s.ID())

	var seen [][]contract.Message
	s.OnAppend(func(_ context.Context, msgs []contract.Message) {
		seen = append(seen, msgs)
	})

	s.Append(context.Background(), userMessage(TurnRequest{Text: "hi"}), assistantMessage(contract.OriginUser, "hello", nil, nil))
	s.Append(context.Background())

	require.Len(t, seen, 1)
	require.Len(t, seen[0], 2)
	assert.NotEmpty(t, seen[0][0].ID)
	assert.NotEqual(t, seen[0][0].ID, seen[0][1].ID)
	assert.Equal(t, 2, s.Len())
}

func TestSession_SnapshotIsACopy(t *testing.T) {
	s := NewSession("x")
	s.Append(context.Background(), userMessage(TurnRequest{Text: "hi"}))

	snap := s.Snapshot()
	snap[0].ID = "changed"
	assert.NotEqual(t, "changed", s.Snapshot()[0].ID)
}

func TestSession_BeginEndCancel(t *testing.T) {
	s := NewSession("x")
	assert.False(t, s.Cancel())

	cancelled := false
	require.NoError(t, s.Begin(func() { cancelled = true }))
	assert.ErrorIs(t, s.Begin(func() {}), familiarErrors.ErrBusy)
	assert.ErrorIs(t, s.Clear(), familiarErrors.ErrBusy)

	assert.True(t, s.Cancel())
	assert.True(t, cancelled)

	s.End()
	assert.False(t, s.Active())
	assert.Equal(t, StateIdle, s.State())
}

func TestSession_Clear(t *testing.T) {
	s := NewSession("x")
	s.Append(context.Background(), userMessage(TurnRequest{Text: "hi"}))
	require.NoError(t, s.Clear())
	assert.Zero(t, s.Len())
}
