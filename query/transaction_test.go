/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/sparrow/database"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// processLog captures everything this package logs during tests.
// TestMain installs it before the pool opens; the process logger is
// install-once, so it has to win the race against the lazy default.
var processLog = &captureLogger{}

type captureLogger struct {
	mu      sync.Mutex
	entries []string
}

func (c *captureLogger) SetLevel(database.LogLevel) {}

func (c *captureLogger) Debug(msg string, fields ...interface{}) { c.record(msg, fields) }
func (c *captureLogger) Info(msg string, fields ...interface{})  { c.record(msg, fields) }
func (c *captureLogger) Warn(msg string, fields ...interface{})  { c.record(msg, fields) }
func (c *captureLogger) Error(msg string, fields ...interface{}) { c.record(msg, fields) }

func (c *captureLogger) record(msg string, fields []interface{}) {
	c.mu.Lock()
	c.entries = append(c.entries, fmt.Sprintf("%s %v", msg, fields))
	c.mu.Unlock()
}

func (c *captureLogger) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.entries...)
}

func TestTransactionCommit(t *testing.T) {
	const table = "t_tx_commit"
	createTable(t, table)
	ctx := context.Background()

	err := RunInTransaction(ctx, func(tx *Tx) error {
		if _, err := tx.Table(table).Insert(ctx, map[string]interface{}{"name": "alice"}); err != nil {
			return err
		}
		if _, err := tx.Table(table).Insert(ctx, map[string]interface{}{"name": "bob"}); err != nil {
			return err
		}

		// The transaction's own connection sees uncommitted writes.
		count, err := tx.Table(table).Count(ctx)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(2), count)
		assert.Len(t, tx.ID(), 8)
		return nil
	})
	require.NoError(t, err)

	count, err := Table(table).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestTransactionRollbackOnError(t *testing.T) {
	const table = "t_tx_rollback"
	createTable(t, table)
	ctx := context.Background()

	insertUser(t, table, "alice", "active", 30)
	insertUser(t, table, "bob", "active", 25)

	boom := errors.New("boom")
	err := RunInTransaction(ctx, func(tx *Tx) error {
		if _, err := tx.Table(table).Where("name", "alice").
			Update(ctx, map[string]interface{}{"status": "blocked"}); err != nil {
			return err
		}
		if _, err := tx.Table(table).Where("name", "bob").
			Update(ctx, map[string]interface{}{"status": "blocked"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Both updates rolled back together.
	blocked, err := Table(table).Where("status", "blocked").Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, blocked)
}

func TestTransactionRollbackOnPanic(t *testing.T) {
	const table = "t_tx_panic"
	createTable(t, table)
	ctx := context.Background()

	require.Panics(t, func() {
		_ = RunInTransaction(ctx, func(tx *Tx) error {
			if _, err := tx.Table(table).Insert(ctx, map[string]interface{}{"name": "alice"}); err != nil {
				return err
			}
			panic("unexpected")
		})
	})

	count, err := Table(table).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestTransactionRawStatements(t *testing.T) {
	const table = "t_tx_raw"
	createTable(t, table)
	ctx := context.Background()

	err := RunInTransaction(ctx, func(tx *Tx) error {
		if _, err := tx.Exec(ctx, "INSERT INTO "+table+" (name, status) VALUES (?, ?)", "alice", "active"); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, "SELECT name FROM "+table+" WHERE status = ?", "active")
		if err != nil {
			return err
		}
		assert.Len(t, rows, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestTransactionBuilderIsConsumable(t *testing.T) {
	const table = "t_tx_consume"
	createTable(t, table)
	ctx := context.Background()

	err := RunInTransaction(ctx, func(tx *Tx) error {
		b := tx.Table(table)
		if _, err := b.Find(ctx); err != nil {
			return err
		}
		_, err := b.Find(ctx)
		assert.Error(t, err)
		return nil
	})
	require.NoError(t, err)
}

func TestTransactionOnUnconnectedPool(t *testing.T) {
	pool := database.NewPool(&database.Config{Type: "sqlite", Database: ":memory:"})

	err := RunInTransactionOn(context.Background(), pool, func(tx *Tx) error {
		t.Fatal("must not run")
		return nil
	})
	require.ErrorIs(t, err, database.ErrNotInitialized)
}

func newMockBunDB(t *testing.T) (*bun.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return bun.NewDB(db, sqlitedialect.New()), mock
}

func TestTransactionBeginFailure(t *testing.T) {
	db, mock := newMockBunDB(t)
	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	err := runInTransaction(context.Background(), db, nil, func(tx *Tx) error {
		t.Fatal("must not run")
		return nil
	})
	require.Error(t, err)
	var txErr *database.TxError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, "begin", txErr.Stage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionCommitFailure(t *testing.T) {
	db, mock := newMockBunDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("disk full"))

	err := runInTransaction(context.Background(), db, nil, func(tx *Tx) error {
		return nil
	})
	require.Error(t, err)
	var txErr *database.TxError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, "commit", txErr.Stage)

	// database/sql marks the transaction done before invoking the
	// driver's Commit, so the recovery rollback sees sql.ErrTxDone and
	// no driver-level Rollback follows; the failed commit itself
	// released the connection. Only Begin and Commit may reach the
	// driver here.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRollbackFailureEscalates(t *testing.T) {
	db, mock := newMockBunDB(t)
	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(errors.New("connection lost"))

	err := runInTransaction(context.Background(), db, nil, func(tx *Tx) error {
		return boom
	})
	require.Error(t, err)
	// Both the original cause and the rollback failure surface.
	assert.ErrorIs(t, err, boom)
	var txErr *database.TxError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, "rollback", txErr.Stage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRollbackToleratesFinishedTx(t *testing.T) {
	db, mock := newMockBunDB(t)
	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := runInTransaction(context.Background(), db, nil, func(tx *Tx) error {
		// The caller rolled back by hand; the coordinator's own rollback
		// then sees sql.ErrTxDone and must not report it.
		require.NoError(t, tx.tx.Rollback())
		return boom
	})
	require.ErrorIs(t, err, boom)
	var txErr *database.TxError
	assert.False(t, errors.As(err, &txErr))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionLogsCorrelationID(t *testing.T) {
	seen := len(processLog.snapshot())

	var id string
	err := RunInTransaction(context.Background(), func(tx *Tx) error {
		id = tx.ID()
		return nil
	})
	require.NoError(t, err)
	require.Len(t, id, 8)

	var started, committed bool
	for _, entry := range processLog.snapshot()[seen:] {
		if !strings.Contains(entry, id) {
			continue
		}
		if strings.Contains(entry, "Transaction started") {
			started = true
		}
		if strings.Contains(entry, "Transaction committed") {
			committed = true
		}
	}
	assert.True(t, started, "begin line carries the transaction id")
	assert.True(t, committed, "commit line carries the transaction id")
}
