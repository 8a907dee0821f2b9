package storage

import (
	"context"
	"testing"
	"time"
)

func TestTranscript_SaveAndLoad(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	tr := NewTranscript("ollama", "llama3.1")
	if tr.ID == "" {
		t.Fatal("Expected a generated transcript id")
	}
	tr.Messages = append(tr.Messages,
		TranscriptMessage{Role: "user", Content: "What is 2+2?", Timestamp: time.Now()},
		TranscriptMessage{Role: "assistant", Content: "4", Timestamp: time.Now()},
	)

	if err := s.SaveTranscript(ctx, tr); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	loaded, err := s.LoadTranscript(ctx, tr.ID)
	if err != nil {
		t.Fatalf("LoadTranscript: %v", err)
	}

	if loaded.Provider != "ollama" || loaded.Model != "llama3.1" {
		t.Errorf("Unexpected backend info: %s/%s", loaded.Provider, loaded.Model)
	}
	if len(loaded.Messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(loaded.Messages))
	}
	if loaded.Messages[1].Content != "4" {
		t.Errorf("Expected assistant reply '4', got %q", loaded.Messages[1].Content)
	}
}

func TestTranscript_LoadMissing(t *testing.T) {
	s := New(t.TempDir())

	_, err := s.LoadTranscript(context.Background(), "no-such-id")
	if err != ErrNotFound {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestTranscript_ListOrdering(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	older := NewTranscript("ollama", "llama3.1")
	newer := NewTranscript("openai", "gpt-4o")

	if err := s.SaveTranscript(ctx, older); err != nil {
		t.Fatal(err)
	}
	// Ensure distinct update times on coarse filesystem clocks.
	time.Sleep(10 * time.Millisecond)
	if err := s.SaveTranscript(ctx, newer); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListTranscripts(ctx)
	if err != nil {
		t.Fatalf("ListTranscripts: %v", err)
	}

	if len(all) != 2 {
		t.Fatalf("Expected 2 transcripts, got %d", len(all))
	}
	if all[0].ID != newer.ID {
		t.Errorf("Expected most recently updated first, got %s", all[0].ID)
	}
}

func TestTranscript_Delete(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	tr := NewTranscript("ollama", "llama3.1")
	if err := s.SaveTranscript(ctx, tr); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteTranscript(ctx, tr.ID); err != nil {
		t.Fatalf("DeleteTranscript: %v", err)
	}
	if _, err := s.LoadTranscript(ctx, tr.ID); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound after delete, got: %v", err)
	}
}
