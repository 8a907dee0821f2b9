package storage

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
)

// transcriptsDir is the storage path segment for saved chats.
const transcriptsDir = "transcripts"

// TranscriptMessage is one entry of a saved conversation.
type TranscriptMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolCalls  json.RawMessage `json:"toolCalls,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	Name       string          `json:"name,omitempty"`
	Timestamp  time.Time       `json:"timestamp,omitempty"`
}

// Transcript is a saved conversation with its provider context.
type Transcript struct {
	ID        string              `json:"id"`
	Title     string              `json:"title,omitempty"`
	Provider  string              `json:"provider"`
	Model     string              `json:"model"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
	Messages  []TranscriptMessage `json:"messages"`
}

// NewTranscript creates an empty transcript for the given backend.
func NewTranscript(provider, model string) *Transcript {
	now := time.Now()
	return &Transcript{
		ID:        ulid.Make().String(),
		Provider:  provider,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SaveTranscript persists a transcript, updating its timestamp.
func (s *Storage) SaveTranscript(ctx context.Context, t *Transcript) error {
	t.UpdatedAt = time.Now()
	return s.Put(ctx, []string{transcriptsDir, t.ID}, t)
}

// LoadTranscript retrieves a transcript by id.
func (s *Storage) LoadTranscript(ctx context.Context, id string) (*Transcript, error) {
	var t Transcript
	if err := s.Get(ctx, []string{transcriptsDir, id}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTranscript removes a saved transcript.
func (s *Storage) DeleteTranscript(ctx context.Context, id string) error {
	return s.Delete(ctx, []string{transcriptsDir, id})
}

// ListTranscripts returns all saved transcripts, most recently updated first.
func (s *Storage) ListTranscripts(ctx context.Context) ([]*Transcript, error) {
	var transcripts []*Transcript
	err := s.Scan(ctx, []string{transcriptsDir}, func(key string, data json.RawMessage) error {
		var t Transcript
		if err := json.Unmarshal(data, &t); err != nil {
			return nil // Skip corrupt entries
		}
		transcripts = append(transcripts, &t)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(transcripts, func(i, j int) bool {
		return transcripts[i].UpdatedAt.After(transcripts[j].UpdatedAt)
	})
	return transcripts, nil
}
