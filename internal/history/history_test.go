package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chutedev/chute/internal/envelope"
	"github.com/chutedev/chute/internal/store"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st.DB())
}

func makeEvent(t envelope.Type, aggregateID string, lamport uint64) *envelope.Event {
	return &envelope.Event{
		EventID:       envelope.NewID(),
		EventType:     t,
		AggregateID:   aggregateID,
		AggregateType: envelope.AggregateWorkPackage,
		Payload:       map[string]any{"entry": "x"},
		Timestamp:     envelope.FormatTimestamp(time.Now()),
		NodeID:        "aabbccddeeff",
		LamportClock:  lamport,
	}
}

func TestLog_AppendAndRecent(t *testing.T) {
	ctx := context.Background()
	l := newTestLog(t)

	first := makeEvent(envelope.TypeHistoryAdded, "WP01", 1)
	second := makeEvent(envelope.TypeWPAssigned, "WP02", 2)
	require.NoError(t, l.Append(ctx, first, false))
	require.NoError(t, l.Append(ctx, second, true))

	entries, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, second.EventID, entries[0].EventID)
	assert.True(t, entries[0].LocalOnly)
	assert.Equal(t, first.EventID, entries[1].EventID)
	assert.False(t, entries[1].LocalOnly)
	assert.Equal(t, envelope.TypeHistoryAdded, entries[1].EventType)
	assert.Equal(t, uint64(1), entries[1].Event.LamportClock)
}

func TestLog_Append_Idempotent(t *testing.T) {
	ctx := context.Background()
	l := newTestLog(t)

	ev := makeEvent(envelope.TypeHistoryAdded, "WP01", 1)
	require.NoError(t, l.Append(ctx, ev, false))
	require.NoError(t, l.Append(ctx, ev, false))

	entries, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLog_ForAggregate(t *testing.T) {
	ctx := context.Background()
	l := newTestLog(t)

	a1 := makeEvent(envelope.TypeWPCreated, "WP01", 1)
	b := makeEvent(envelope.TypeWPCreated, "WP02", 2)
	a2 := makeEvent(envelope.TypeWPAssigned, "WP01", 3)
	for _, ev := range []*envelope.Event{a1, b, a2} {
		require.NoError(t, l.Append(ctx, ev, false))
	}

	entries, err := l.ForAggregate(ctx, "WP01")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, a1.EventID, entries[0].EventID, "oldest first")
	assert.Equal(t, a2.EventID, entries[1].EventID)
}
