package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/familiar/internal/model"
	"github.com/harunnryd/familiar/internal/store"
	"github.com/harunnryd/familiar/internal/tool"

	"github.com/oklog/ulid/v2"
)

const (
	collectionPrefix = "memories"

	KindObservation  = "observation"
	KindFeeling      = "feeling"
	KindConversation = "conversation"

	DefaultStoreChars = 500
	contextChars      = 120

	metaKind      = "kind"
	metaCreatedAt = "created_at"
)

// VectorStore is the slice of store.Worker the manager needs.
type VectorStore interface {
	UpsertVector(collection, id string, vector []float32, metadata map[string]string, content string) error
	SearchVectors(collection string, vector []float32, limit int, where map[string]string) ([]store.VectorResult, error)
}

type Memory struct {
	ID        string    `json:"id" yaml:"id"`
	Content   string    `json:"content" yaml:"content"`
	Kind      string    `json:"kind" yaml:"kind"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Score     float32   `json:"score" yaml:"score"`
}

type Options struct {
	StoreChars int
	Now        func() time.Time
}

type Manager struct {
	store      VectorStore
	embedder   model.Embedder
	collection string
	storeChars int
	now        func() time.Time
}

var _ tool.MemoryAccess = (*Manager)(nil)

// NewManager binds a vector store to an embedder. Each embedder gets its
// own collection so vectors of different dimensions never mix.
func NewManager(s VectorStore, embedder model.Embedder, opts Options) *Manager {
	if opts.StoreChars <= 0 {
		opts.StoreChars = DefaultStoreChars
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	collection := collectionPrefix
	if named, ok := embedder.(interface{ Name() string }); ok && named.Name() != "" {
		collection = collectionPrefix + "_" + named.Name()
	}

	return &Manager{
		store:      s,
		embedder:   embedder,
		collection: collection,
		storeChars: opts.StoreChars,
		now:        opts.Now,
	}
}

func (m *Manager) Collection() string {
	return m.collection
}

// Retrieve returns up to k memories most similar to query.
func (m *Manager) Retrieve(ctx context.Context, query string, k int) ([]Memory, error) {
	query = strings.TrimSpace(query)
	if query == "" || k <= 0 {
		return nil, nil
	}

	embedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		if err == errNothingToEmbed {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := m.store.SearchVectors(m.collection, embedding, k, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}

	memories := make([]Memory, 0, len(results))
	for _, r := range results {
		mem := Memory{ID: r.ID, Content: r.Content, Score: r.Score, Kind: r.Metadata[metaKind]}
		if ts, err := time.Parse(time.RFC3339, r.Metadata[metaCreatedAt]); err == nil {
			mem.CreatedAt = ts
		}
		memories = append(memories, mem)
	}

	slog.Debug("Memory retrieved", "collection", m.collection, "count", len(memories))
	return memories, nil
}

// Store embeds text and saves it, truncated to the configured rune count.
func (m *Manager) Store(ctx context.Context, text, kind string, metadata map[string]string) error {
	text = truncateRunes(strings.TrimSpace(text), m.storeChars)
	if text == "" {
		return nil
	}
	if kind == "" {
		kind = KindObservation
	}

	embedding, err := m.embedder.Embed(ctx, text)
	if err != nil {
		if err == errNothingToEmbed {
			return nil
		}
		return fmt.Errorf("failed to embed memory: %w", err)
	}

	meta := make(map[string]string, len(metadata)+2)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[metaKind] = kind
	meta[metaCreatedAt] = m.now().Format(time.RFC3339)

	id := ulid.Make().String()
	if err := m.store.UpsertVector(m.collection, id, embedding, meta, text); err != nil {
		return fmt.Errorf("failed to upsert vector: %w", err)
	}

	slog.Debug("Memory stored", "id", id, "kind", kind, "preview", truncateRunes(text, 50))
	return nil
}

// Recall renders memories as single lines for tools.
func (m *Manager) Recall(ctx context.Context, query string, k int) ([]string, error) {
	memories, err := m.Retrieve(ctx, query, k)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(memories))
	for _, mem := range memories {
		lines = append(lines, formatLine(mem))
	}
	return lines, nil
}

func (m *Manager) Remember(ctx context.Context, text, kind string) error {
	return m.Store(ctx, text, kind, nil)
}

// FormatForContext renders recalled memories as a block for the system
// prompt. Empty input yields an empty string.
func FormatForContext(memories []Memory) string {
	if len(memories) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("[Past memories]:")
	for _, mem := range memories {
		b.WriteString("\n- ")
		b.WriteString(formatLine(mem))
		if mem.Score > 0 {
			fmt.Fprintf(&b, " (similarity %.2f)", mem.Score)
		}
	}
	return b.String()
}

func formatLine(mem Memory) string {
	var b strings.Builder
	if !mem.CreatedAt.IsZero() {
		b.WriteString(mem.CreatedAt.Local().Format("2006-01-02 15:04"))
		b.WriteString(" ")
	}
	if mem.Kind != "" && mem.Kind != KindObservation {
		fmt.Fprintf(&b, "[%s] ", mem.Kind)
	}
	b.WriteString(truncateRunes(mem.Content, contextChars))
	return b.String()
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
