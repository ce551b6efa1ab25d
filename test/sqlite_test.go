package test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/oagudo/courier/pkg/courier"
	"github.com/oagudo/courier/pkg/outbox"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// every connection to :memory: is a distinct database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(createOutboxTableQuery(outbox.SQLDialectSQLite))
	require.NoError(t, err)
	return db
}

func TestSQLiteSaveMessage(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	store := newStore(t, outbox.SQLDialectSQLite)

	ok, err := store.SaveMessage(ctx, db, record("abc"))
	require.NoError(t, err)
	assert.True(t, ok)

	row, err := readRow(ctx, db, outbox.SQLDialectSQLite, "abc")
	require.NoError(t, err)
	assert.Equal(t, storedRow{topic: "orders", status: 0, retry: 0}, row)
}

func TestSQLiteSaveMessageDuplicateIsFatal(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	store := newStore(t, outbox.SQLDialectSQLite)

	_, err := store.SaveMessage(ctx, db, record("abc"))
	require.NoError(t, err)

	ok, err := store.SaveMessage(ctx, db, record("abc"))
	assert.False(t, ok)
	assert.ErrorIs(t, err, outbox.ErrStorageFatal)
	assert.NotErrorIs(t, err, outbox.ErrStorageTransient)
}

func TestSQLiteSaveMessageRollsBackWithCallerTransaction(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	store := newStore(t, outbox.SQLDialectSQLite)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)

	ok, err := store.SaveMessage(ctx, tx, record("abc"))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = readRow(ctx, tx, outbox.SQLDialectSQLite, "abc")
	require.NoError(t, err)

	require.NoError(t, tx.Rollback())

	_, err = readRow(ctx, db, outbox.SQLDialectSQLite, "abc")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestSQLiteSaveMessageCommitsWithCallerTransaction(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	store := newStore(t, outbox.SQLDialectSQLite)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)

	_, err = tx.ExecContext(ctx, "CREATE TABLE orders (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, "INSERT INTO orders (id) VALUES (1)")
	require.NoError(t, err)

	_, err = store.SaveMessage(ctx, tx, record("abc"))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	_, err = readRow(ctx, db, outbox.SQLDialectSQLite, "abc")
	assert.NoError(t, err)
}

func TestSQLitePublishFallbackStrongestQuorum(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	publisher, err := courier.NewPublisher(courier.Channels{
		Event: courier.Channel{Producer: fakeProducer{status: courier.PossiblyPersisted}, Acks: courier.AckAll},
	}, newStore(t, outbox.SQLDialectSQLite), courier.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	env, err := courier.NewEnvelope(map[string]int{"orderId": 1}, "urn:orders", "order.created", courier.WithID("abc"))
	require.NoError(t, err)

	status, err := publisher.PublishWithOutboxFallback(ctx, courier.ChannelSelector{Topic: "orders", Kind: courier.ChannelEvent}, env, db)
	require.NoError(t, err)
	assert.Equal(t, courier.Persisted, status)

	row, err := readRow(ctx, db, outbox.SQLDialectSQLite, "abc")
	require.NoError(t, err)
	assert.Equal(t, "orders", row.topic)
	assert.Equal(t, int(outbox.StatusPending), row.status)
}

func TestSQLitePublishFallbackWeakerQuorum(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	publisher, err := courier.NewPublisher(courier.Channels{
		Event: courier.Channel{Producer: fakeProducer{status: courier.PossiblyPersisted}, Acks: courier.AckLeader},
	}, newStore(t, outbox.SQLDialectSQLite))
	require.NoError(t, err)

	env, err := courier.NewEnvelope(map[string]int{"orderId": 1}, "urn:orders", "order.created", courier.WithID("abc"))
	require.NoError(t, err)

	status, err := publisher.PublishWithOutboxFallback(ctx, courier.ChannelSelector{Topic: "orders", Kind: courier.ChannelEvent}, env, db)
	require.NoError(t, err)
	assert.Equal(t, courier.Persisted, status)

	_, err = readRow(ctx, db, outbox.SQLDialectSQLite, "abc")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestSQLitePublishFallbackFatalStorage(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	_, err := db.Exec("DROP TABLE " + quoteTable(outbox.SQLDialectSQLite))
	require.NoError(t, err)

	publisher, err := courier.NewPublisher(courier.Channels{
		Queue: courier.Channel{Producer: fakeProducer{status: courier.NotPersisted, err: errors.New("broker down")}},
	}, newStore(t, outbox.SQLDialectSQLite))
	require.NoError(t, err)

	env, err := courier.NewEnvelope(map[string]int{"orderId": 1}, "urn:orders", "order.created")
	require.NoError(t, err)

	status, err := publisher.PublishWithOutboxFallback(ctx, courier.ChannelSelector{Topic: "jobs", Kind: courier.ChannelQueue}, env, db)
	assert.Equal(t, courier.NotPersisted, status)
	assert.ErrorIs(t, err, outbox.ErrStorageFatal)
	assert.ErrorIs(t, err, courier.ErrBrokerSend)
}
