package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/hark/internal/session"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "state", "history.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAppendAndListEvents(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, session.Event{Type: session.EventListeningState, SessionID: "s1", Status: session.ListeningStarted, At: at}))
	require.NoError(t, store.Append(ctx, session.Event{Type: session.EventPartialResults, SessionID: "s1", Matches: session.ResultSet{"hel"}, At: at.Add(time.Second)}))
	require.NoError(t, store.Append(ctx, session.Event{Type: session.EventPartialResults, SessionID: "s1", Matches: session.ResultSet{"hello", "yellow"}, At: at.Add(2 * time.Second)}))
	require.NoError(t, store.Append(ctx, session.Event{Type: session.EventListeningState, SessionID: "s1", Status: session.ListeningStopped, At: at.Add(3 * time.Second)}))

	entries, err := store.Events(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 4)
	require.Equal(t, "started", entries[0].Status)
	require.Empty(t, entries[0].Matches)
	require.Equal(t, []string{"hello", "yellow"}, entries[2].Matches)
	require.Equal(t, at.Add(2*time.Second), entries[2].CreatedAt)

	summaries, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, "s1", summaries[0].SessionID)
	require.Equal(t, 4, summaries[0].Events)
	require.Equal(t, "hello", summaries[0].Transcript)
	require.Equal(t, at, summaries[0].StartedAt)
	require.Equal(t, at.Add(3*time.Second), summaries[0].UpdatedAt)
}

func TestSegmentsAccumulateTranscript(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	events := []session.Event{
		{Type: session.EventSegmentResults, Matches: session.ResultSet{"first  part", "fast part"}},
		{Type: session.EventSegmentResults, Matches: session.ResultSet{}},
		{Type: session.EventSegmentResults, Matches: session.ResultSet{" second part"}},
		{Type: session.EventEndOfSegmentedSession},
	}
	for i, event := range events {
		event.SessionID = "seg"
		event.At = at.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.Append(ctx, event))
	}

	summaries, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, "first part second part", summaries[0].Transcript)
}

func TestAppendIgnoresEventsWithoutSession(t *testing.T) {
	store := openStore(t)
	require.NoError(t, store.Append(context.Background(), session.Event{Type: session.EventListeningState}))

	summaries, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, summaries)
}

func TestRecentOrdersNewestFirstAndLimits(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Append(ctx, session.Event{
			Type: session.EventListeningState, SessionID: id, Status: session.ListeningStarted,
			At: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	summaries, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.Equal(t, "c", summaries[0].SessionID)
	require.Equal(t, "b", summaries[1].SessionID)
}

func TestPruneRemovesOldSessionsAndEvents(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return now }

	require.NoError(t, store.Append(ctx, session.Event{Type: session.EventSegmentResults, SessionID: "old", Matches: session.ResultSet{"x"}, At: now.AddDate(0, 0, -45)}))
	require.NoError(t, store.Append(ctx, session.Event{Type: session.EventSegmentResults, SessionID: "new", Matches: session.ResultSet{"y"}, At: now.AddDate(0, 0, -1)}))

	removed, err := store.Prune(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	entries, err := store.Events(ctx, "old")
	require.NoError(t, err)
	require.Empty(t, entries)

	summaries, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, "new", summaries[0].SessionID)

	removed, err = store.Prune(ctx, 0)
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestOpenReusesExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	first, err := Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, first.Append(ctx, session.Event{Type: session.EventEndOfSegmentedSession, SessionID: "s1"}))
	require.NoError(t, first.Close())

	second, err := Open(ctx, path, nil)
	require.NoError(t, err)
	defer second.Close()

	entries, err := second.Events(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, session.EventEndOfSegmentedSession, entries[0].Type)
}
