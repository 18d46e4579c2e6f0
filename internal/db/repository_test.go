package db

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/dmsync/internal/models"
)

func createTestThread(t *testing.T, db *DB) *models.Thread {
	t.Helper()
	thread := &models.Thread{
		Inviter: models.User{Username: "viewer", FullName: "The Viewer"},
		Users:   []models.User{{Username: "peer", FullName: "The Peer"}},
	}
	require.NoError(t, NewThreadRepository(db).Create(context.Background(), thread))
	return thread
}

func insertText(t *testing.T, repo *MessageRepository, threadID, id string, ts int64) {
	t.Helper()
	msg := &models.Message{
		ItemID:    id,
		Timestamp: ts,
		ItemType:  models.ItemTypeText,
		Payload:   models.TextPayload{Text: "msg " + id},
	}
	require.NoError(t, repo.Insert(context.Background(), threadID, msg))
}

func itemIDs(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ItemID)
	}
	return out
}

func TestThreadRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewThreadRepository(db)

	thread := createTestThread(t, db)
	require.NotEmpty(t, thread.ThreadID)
	require.NotEmpty(t, thread.Inviter.ID)

	got, err := repo.Get(ctx, thread.ThreadID)
	require.NoError(t, err)
	require.Equal(t, "viewer", got.Viewer().Username)
	require.Equal(t, "The Peer", got.Peer().FullName)

	_, err = repo.Get(ctx, "missing")
	require.True(t, errors.Is(err, ErrThreadNotFound))
}

func TestThreadRepository_ReusesUsers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := createTestThread(t, db)
	second := &models.Thread{
		Inviter: models.User{Username: "viewer"},
		Users:   []models.User{{Username: "someone-else"}},
	}
	require.NoError(t, NewThreadRepository(db).Create(ctx, second))
	require.Equal(t, first.Inviter.ID, second.Inviter.ID)

	err := NewThreadRepository(db).Create(ctx, &models.Thread{Inviter: models.User{Username: "x"}})
	require.ErrorIs(t, err, ErrInvalidThread)
}

func TestThreadRepository_ListByActivity(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	messages := NewMessageRepository(db)

	quiet := createTestThread(t, db)
	busy := &models.Thread{
		Inviter: models.User{Username: "viewer"},
		Users:   []models.User{{Username: "chatty"}},
	}
	require.NoError(t, NewThreadRepository(db).Create(ctx, busy))

	insertText(t, messages, quiet.ThreadID, "q1", 100)
	insertText(t, messages, busy.ThreadID, "b1", 500)

	threads, err := NewThreadRepository(db).List(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	require.Equal(t, busy.ThreadID, threads[0].ThreadID)
}

func TestMessageRepository_InsertDefaults(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	thread := createTestThread(t, db)
	repo := NewMessageRepository(db)

	msg := &models.Message{IsSentByViewer: true, Payload: models.TextPayload{Text: "hi"}}
	require.NoError(t, repo.Insert(ctx, thread.ThreadID, msg))
	require.NotEmpty(t, msg.ItemID)
	require.Greater(t, msg.Timestamp, int64(0))
	require.Equal(t, models.ItemTypeText, msg.ItemType)

	latest, err := repo.Latest(ctx, thread.ThreadID, 10)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	require.Equal(t, *msg, latest[0])
}

func TestMessageRepository_ListNewer(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	thread := createTestThread(t, db)
	repo := NewMessageRepository(db)

	for i, ts := range []int64{100, 200, 300} {
		insertText(t, repo, thread.ThreadID, string(rune('a'+i)), ts)
	}

	newer, err := repo.ListNewer(ctx, thread.ThreadID, 100, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b"}, itemIDs(newer))

	none, err := repo.ListNewer(ctx, thread.ThreadID, 300, 10)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestMessageRepository_ListNewerReturnsOldestFirstWindow(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	thread := createTestThread(t, db)
	repo := NewMessageRepository(db)

	insertText(t, repo, thread.ThreadID, "a", 100)
	insertText(t, repo, thread.ThreadID, "b", 200)
	insertText(t, repo, thread.ThreadID, "c", 300)
	insertText(t, repo, thread.ThreadID, "d", 300)
	insertText(t, repo, thread.ThreadID, "e", 400)

	page, err := repo.ListNewer(ctx, thread.ThreadID, 0, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, itemIDs(page))

	// The window stretches over every message sharing its last timestamp.
	page, err = repo.ListNewer(ctx, thread.ThreadID, 200, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"d", "c"}, itemIDs(page))

	page, err = repo.ListNewer(ctx, thread.ThreadID, 300, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"e"}, itemIDs(page))
}

func TestMessageRepository_ListBeforeWalksTies(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	thread := createTestThread(t, db)
	repo := NewMessageRepository(db)

	insertText(t, repo, thread.ThreadID, "a", 100)
	insertText(t, repo, thread.ThreadID, "b", 200)
	insertText(t, repo, thread.ThreadID, "c", 200)
	insertText(t, repo, thread.ThreadID, "d", 300)

	page, more, err := repo.ListBefore(ctx, thread.ThreadID, Position{Timestamp: 300, ItemID: "d"}, 2)
	require.NoError(t, err)
	require.True(t, more)
	require.Equal(t, []string{"c", "b"}, itemIDs(page))

	page, more, err = repo.ListBefore(ctx, thread.ThreadID, PositionOf(page[len(page)-1]), 2)
	require.NoError(t, err)
	require.False(t, more)
	require.Equal(t, []string{"a"}, itemIDs(page))

	count, err := repo.Count(ctx, thread.ThreadID)
	require.NoError(t, err)
	require.Equal(t, 4, count)
}

func TestMessageRepository_RejectsMalformed(t *testing.T) {
	db := setupTestDB(t)
	thread := createTestThread(t, db)

	err := NewMessageRepository(db).Insert(context.Background(), thread.ThreadID, &models.Message{ItemID: "x", Timestamp: -1})
	require.ErrorIs(t, err, ErrInvalidMessage)
	require.ErrorIs(t, err, models.ErrMalformedMessage)
}
