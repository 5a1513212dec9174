package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/replay-chat-crawler/internal/crawler"
)

var (
	testJob     = crawler.CrawlJob{Title: "stream", ScheduledDuration: "1:00"}
	testRecords = []crawler.MessageRecord{
		{Timestamp: "0:01", AuthorName: "alice", MessageText: "hi", AvatarURL: "a"},
		{Timestamp: "0:02", AuthorName: "bob", MessageText: "yo", AvatarURL: ""},
	}
)

func TestMirrorReplacesJobRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewChatStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM chat_messages").
		WithArgs("stream", "1:00").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	for i, rec := range testRecords {
		mock.ExpectExec("INSERT INTO chat_messages").
			WithArgs("stream", "1:00", i, rec.Timestamp, rec.AuthorName, rec.MessageText, rec.AvatarURL, "digest").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	uri, err := store.Mirror(context.Background(), testJob, testRecords, crawler.Artifact{SHA256: "digest"})
	require.NoError(t, err)
	assert.Empty(t, uri)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMirrorRollsBackOnInsertFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewChatStoreWithPool(mock, "replay_chat")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM replay_chat").
		WithArgs("stream", "1:00").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO replay_chat").
		WithArgs("stream", "1:00", 0, "0:01", "alice", "hi", "a", "").
		WillReturnError(errors.New("relation does not exist"))
	mock.ExpectRollback()

	_, err = store.Mirror(context.Background(), testJob, testRecords, crawler.Artifact{})
	require.ErrorContains(t, err, "insert chat row 0")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMirrorHeaderOnlyJobClearsRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewChatStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM chat_messages").
		WithArgs("stream", "1:00").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	_, err = store.Mirror(context.Background(), testJob, nil, crawler.Artifact{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewChatStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChatStoreWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewChatStoreWithPool(mock, "chat; DROP TABLE x")
	require.ErrorContains(t, err, "invalid table name")

	_, err = NewChatStore(context.Background(), Config{})
	require.ErrorContains(t, err, "dsn is required")

	var nilStore *ChatStore
	_, err = nilStore.Mirror(context.Background(), testJob, nil, crawler.Artifact{})
	require.Error(t, err)
}
