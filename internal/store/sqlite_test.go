package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sixwire/sixwire/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func seedMessage(t *testing.T, st *SQLiteStore, id, recipient string) {
	t.Helper()
	err := st.CreateMessage(context.Background(), &models.Message{
		ID:          id,
		SenderID:    "111111",
		RecipientID: recipient,
		Content:     "hello",
		CreatedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestSQLiteMarkMessagesReadCountsTransitions(t *testing.T) {
	ctx := context.Background()
	st := newTestSQLiteStore(t)

	seedMessage(t, st, "msg-1", "222222")
	seedMessage(t, st, "msg-2", "222222")
	seedMessage(t, st, "msg-3", "333333")

	updated, err := st.MarkMessagesRead(ctx, "222222", nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), updated)

	// Re-marking finds nothing left to flip.
	updated, err = st.MarkMessagesRead(ctx, "222222", nil)
	require.NoError(t, err)
	require.Equal(t, int64(0), updated)

	updated, err = st.MarkMessagesRead(ctx, "222222", []string{"msg-1"})
	require.NoError(t, err)
	require.Equal(t, int64(0), updated)

	// The other recipient's message is untouched.
	unread, err := st.CountMessages(ctx, "333333", true)
	require.NoError(t, err)
	require.Equal(t, int64(1), unread)
}

func TestSQLiteMarkMessagesReadByID(t *testing.T) {
	ctx := context.Background()
	st := newTestSQLiteStore(t)

	seedMessage(t, st, "msg-1", "222222")
	seedMessage(t, st, "msg-2", "222222")

	updated, err := st.MarkMessagesRead(ctx, "222222", []string{"msg-1"})
	require.NoError(t, err)
	require.Equal(t, int64(1), updated)

	updated, err = st.MarkMessagesRead(ctx, "222222", []string{"msg-1", "msg-2"})
	require.NoError(t, err)
	require.Equal(t, int64(1), updated)

	unread, err := st.CountMessages(ctx, "222222", true)
	require.NoError(t, err)
	require.Equal(t, int64(0), unread)
}
