package chat

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozo2/Hatchling/internal/config"
	"github.com/kozo2/Hatchling/internal/event"
	"github.com/kozo2/Hatchling/internal/provider"
	"github.com/kozo2/Hatchling/internal/storage"
)

func newTestSession(t *testing.T, prov *fakeProvider) (*Session, *storage.Storage) {
	t.Helper()
	settings := config.NewSettings()
	settings.LLM.Provider = "fake"
	settings.LLM.Model = "fake-model"

	registry := provider.NewRegistry(settings)
	require.NoError(t, registry.RegisterFactory("fake", func(*config.Settings) provider.Provider {
		return prov
	}))

	store := storage.New(t.TempDir())
	return NewSession(settings, registry, nil, store), store
}

func TestSession_SendMessagePersistsTranscript(t *testing.T) {
	prov := newFakeProvider(scriptedTurn{content: "hi there"})
	session, store := newTestSession(t, prov)
	ctx := context.Background()

	result, err := session.SendMessage(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", result.FinalContent)

	transcripts, err := store.ListTranscripts(ctx)
	require.NoError(t, err)
	require.Len(t, transcripts, 1)
	tr := transcripts[0]
	assert.Equal(t, "fake", tr.Provider)
	assert.Equal(t, "fake-model", tr.Model)
	assert.Equal(t, "hello", tr.Title)
	require.Len(t, tr.Messages, 2)
	assert.Equal(t, provider.RoleUser, tr.Messages[0].Role)
	assert.Equal(t, "hi there", tr.Messages[1].Content)
}

func TestSession_ConsecutiveTurnsShareOneTranscript(t *testing.T) {
	prov := newFakeProvider(
		scriptedTurn{content: "first"},
		scriptedTurn{content: "second"},
	)
	session, store := newTestSession(t, prov)
	ctx := context.Background()

	_, err := session.SendMessage(ctx, "one")
	require.NoError(t, err)
	_, err = session.SendMessage(ctx, "two")
	require.NoError(t, err)

	transcripts, err := store.ListTranscripts(ctx)
	require.NoError(t, err)
	require.Len(t, transcripts, 1)
	assert.Len(t, transcripts[0].Messages, 4)
}

func TestSession_FailedTurnRollsBackHistory(t *testing.T) {
	prov := newFakeProvider() // no scripted turns: every stream errors
	session, _ := newTestSession(t, prov)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := session.SendMessage(ctx, "hello")
	require.Error(t, err)
	assert.Equal(t, 0, session.History().Len())
}

func TestSession_ToolCallWithoutClientFailsSoftly(t *testing.T) {
	// No MCP client is configured, yet the model asks for a tool anyway.
	// The call must come back as a tool error the model can react to, not
	// crash the turn.
	prov := newFakeProvider(
		scriptedTurn{calls: []provider.ToolCall{{ID: "call_1", Name: "calculator_add"}}},
		scriptedTurn{content: "I could not run that tool."},
	)
	session, _ := newTestSession(t, prov)

	rec := newRecorder(event.MCPToolCallError)
	session.Subscribe(rec)

	result, err := session.SendMessage(context.Background(), "add 2 and 3")
	require.NoError(t, err)
	assert.Equal(t, "I could not run that tool.", result.FinalContent)

	require.Len(t, rec.events, 1)
	assert.Equal(t, "no tool backend connected", rec.events[0].Data["error"])
}

func TestSession_SwitchProviderUnknown(t *testing.T) {
	prov := newFakeProvider()
	session, _ := newTestSession(t, prov)

	err := session.SwitchProvider(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider not found")
}

func TestSession_TranscriptTitleTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("日本語の質問", 30)
	prov := newFakeProvider(scriptedTurn{content: "answer"})
	session, store := newTestSession(t, prov)
	ctx := context.Background()

	_, err := session.SendMessage(ctx, long)
	require.NoError(t, err)

	transcripts, err := store.ListTranscripts(ctx)
	require.NoError(t, err)
	require.Len(t, transcripts, 1)
	title := transcripts[0].Title
	assert.True(t, utf8.ValidString(title))
	assert.Equal(t, 80, utf8.RuneCountInString(title))
	assert.True(t, strings.HasPrefix(long, title))
}

func TestSession_ClearStartsFreshTranscript(t *testing.T) {
	prov := newFakeProvider(
		scriptedTurn{content: "first"},
		scriptedTurn{content: "second"},
	)
	session, store := newTestSession(t, prov)
	ctx := context.Background()

	_, err := session.SendMessage(ctx, "one")
	require.NoError(t, err)
	session.Clear()
	assert.Equal(t, 0, session.History().Len())

	_, err = session.SendMessage(ctx, "two")
	require.NoError(t, err)

	transcripts, err := store.ListTranscripts(ctx)
	require.NoError(t, err)
	assert.Len(t, transcripts, 2)
}

func TestSession_SubscribeSurvivesProviderResolution(t *testing.T) {
	prov := newFakeProvider(scriptedTurn{content: "hi"})
	session, _ := newTestSession(t, prov)

	rec := newRecorder(event.Content)
	session.Subscribe(rec)

	_, err := session.SendMessage(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, rec.events, 1)
	assert.Equal(t, "hi", rec.events[0].Data["content"])
}
