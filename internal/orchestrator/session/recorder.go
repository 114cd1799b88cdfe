package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/familiar/internal/logger"
	"github.com/harunnryd/familiar/internal/model/contract"
	"github.com/harunnryd/familiar/internal/store"
)

type TranscriptStore interface {
	AppendTranscript(sessionID string, entries ...store.TranscriptEntry) error
	ReadTranscript(sessionID string, limit int) ([]store.TranscriptEntry, error)
	ResetTranscript(sessionID string) error
	GetSession(id string) (*store.SessionMeta, error)
	SaveSession(session store.SessionMeta) error
}

// Recorder mirrors committed history into the session transcript and keeps
// the session index entry current. Persistence failures are logged and
// never reach the turn.
type Recorder struct {
	store     TranscriptStore
	sessionID string
	title     string
	now       func() time.Time
	mu        sync.Mutex
}

func NewRecorder(s TranscriptStore, sessionID, title string) *Recorder {
	return &Recorder{store: s, sessionID: sessionID, title: title, now: time.Now}
}

func (r *Recorder) SessionID() string {
	return r.sessionID
}

// Record matches orchestrator.AppendListener.
func (r *Recorder) Record(ctx context.Context, msgs []contract.Message) {
	if len(msgs) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	turnID := logger.GetTurnID(ctx)
	entries := make([]store.TranscriptEntry, 0, len(msgs))
	userTurns := 0
	for _, m := range msgs {
		entries = append(entries, ToEntry(m, turnID))
		if m.Role == contract.RoleUser {
			userTurns++
		}
	}

	if err := r.store.AppendTranscript(r.sessionID, entries...); err != nil {
		slog.Warn("Failed to persist transcript", "session", r.sessionID, "error", err)
		return
	}
	r.touch(userTurns)
}

func (r *Recorder) touch(turns int) {
	meta, err := r.store.GetSession(r.sessionID)
	if err != nil {
		slog.Warn("Failed to load session meta", "session", r.sessionID, "error", err)
		return
	}
	now := r.now()
	if meta == nil {
		meta = &store.SessionMeta{ID: r.sessionID, Title: r.title, CreatedAt: now}
	}
	meta.Turns += turns
	meta.UpdatedAt = now
	if err := r.store.SaveSession(*meta); err != nil {
		slog.Warn("Failed to save session meta", "session", r.sessionID, "error", err)
	}
}

// Reset drops the transcript and the index entry.
func (r *Recorder) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.ResetTranscript(r.sessionID)
}

func (r *Recorder) Recent(limit int) ([]store.TranscriptEntry, error) {
	return r.store.ReadTranscript(r.sessionID, limit)
}

// ToEntry flattens a message into its transcript form. Images and provider
// state are not persisted.
func ToEntry(m contract.Message, turnID string) store.TranscriptEntry {
	entry := store.TranscriptEntry{
		ID:        m.ID,
		Timestamp: m.CreatedAt,
		TurnID:    turnID,
		Origin:    string(m.Origin),
		Role:      store.Role(m.Role),
		Content:   m.Text(),
	}
	if entry.Origin == "" {
		entry.Origin = string(contract.OriginUser)
	}
	for _, c := range m.ToolCalls() {
		entry.Tools = append(entry.Tools, store.ToolEntry{CallID: c.ID, Name: c.Name, Input: c.Arguments})
	}
	for _, res := range m.ToolResults() {
		entry.Tools = append(entry.Tools, store.ToolEntry{CallID: res.ToolCallID, Name: res.Name, Output: res.Text, IsError: res.IsError})
	}
	return entry
}
