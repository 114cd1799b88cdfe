package store

import "time"

// --- Session index (sessions.json) ---

type SessionMeta struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Turns     int               `json:"turns"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type SessionIndex struct {
	Sessions map[string]SessionMeta `json:"sessions"`
}

// --- Transcript (transcripts/<id>.jsonl) ---

type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
)

type ToolEntry struct {
	CallID  string         `json:"call_id"`
	Name    string         `json:"name"`
	Input   map[string]any `json:"input,omitempty"`
	Output  string         `json:"output,omitempty"`
	IsError bool           `json:"is_error,omitempty"`
}

type TranscriptEntry struct {
	ID        string      `json:"id"` // ULID
	Timestamp time.Time   `json:"ts"`
	TurnID    string      `json:"turn_id,omitempty"`
	Origin    string      `json:"origin"` // "user" or "self"
	Role      Role        `json:"role"`
	Content   string      `json:"content,omitempty"`
	Tools     []ToolEntry `json:"tools,omitempty"`
}

// --- Vectors (vectors/) ---

type VectorResult struct {
	ID       string
	Score    float32
	Metadata map[string]string
	Content  string
}
