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
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tomoncle/sparrow/database"
	"github.com/uptrace/bun"
)

// Tx is an open transaction handed to caller logic. Every statement
// built from it runs on the transaction's dedicated connection, which
// no concurrent caller can touch until commit or rollback releases it.
type Tx struct {
	tx   bun.Tx
	id   string
	pool *database.Pool
}

// ID returns the short correlation id carried in this transaction's
// log lines.
func (t *Tx) ID() string { return t.id }

// Table starts a builder whose statements run inside the transaction.
func (t *Tx) Table(name string) *Builder {
	return &Builder{stmt: newStatement(name), conn: t.tx, pool: t.pool}
}

// Query runs a caller-written query on the transaction's connection.
func (t *Tx) Query(ctx context.Context, sqlText string, args ...interface{}) ([]Row, error) {
	return RawOn(ctx, t.tx, sqlText, args...)
}

// Exec runs a caller-written mutation on the transaction's connection.
func (t *Tx) Exec(ctx context.Context, sqlText string, args ...interface{}) (sql.Result, error) {
	return RawExecOn(ctx, t.tx, sqlText, args...)
}

// RunInTransaction begins a transaction on the process-global pool,
// runs fn, and commits when fn returns nil or rolls back when it
// returns an error. See RunInTransactionOn for the guarantees.
func RunInTransaction(ctx context.Context, fn func(tx *Tx) error) error {
	pool, err := database.GetPool()
	if err != nil {
		return err
	}
	return RunInTransactionOn(ctx, pool, fn)
}

// RunInTransactionOn is the explicit-pool form. Lifecycle: begin
// acquires a dedicated connection; fn runs against it; a nil return
// commits, an error (or a failed commit) rolls back. The connection
// returns to the pool exactly once on every path, including panics,
// which roll back and then continue unwinding. A rollback failure is
// fatal: the connection state is unknown, so it is logged and returned
// joined with the original cause. Nested transactions are not managed
// here; opening one inside fn behaves however the driver decides.
func RunInTransactionOn(ctx context.Context, pool *database.Pool, fn func(tx *Tx) error) error {
	db := pool.DB()
	if db == nil {
		return database.ErrNotInitialized
	}
	return runInTransaction(ctx, db, pool, fn)
}

func runInTransaction(ctx context.Context, db *bun.DB, pool *database.Pool, fn func(tx *Tx) error) error {
	logger := database.GetLogger()
	id := uuid.NewString()[:8]

	bunTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &database.TxError{Stage: "begin", Err: err}
	}
	logger.Debug("Transaction started", "tx_id", id)

	txn := &Tx{tx: bunTx, id: id, pool: pool}

	var completed bool
	defer func() {
		if completed {
			return
		}
		// fn panicked. Roll back so the connection is released, then
		// let the panic keep unwinding.
		if rbErr := rollbackQuietly(bunTx); rbErr != nil {
			logger.Error("Transaction rollback failed after panic, connection state unknown",
				"tx_id", id, "error", rbErr)
		} else {
			logger.Warn("Transaction rolled back after panic", "tx_id", id)
		}
	}()

	if err := fn(txn); err != nil {
		completed = true
		if rbErr := rollbackQuietly(bunTx); rbErr != nil {
			logger.Error("Transaction rollback failed, connection state unknown",
				"tx_id", id, "error", rbErr, "cause", err)
			return errors.Join(err, &database.TxError{Stage: "rollback", Err: rbErr})
		}
		logger.Debug("Transaction rolled back", "tx_id", id, "cause", err)
		return err
	}

	if err := bunTx.Commit(); err != nil {
		completed = true
		commitErr := &database.TxError{Stage: "commit", Err: err}
		if rbErr := rollbackQuietly(bunTx); rbErr != nil {
			logger.Error("Transaction rollback failed after commit failure, connection state unknown",
				"tx_id", id, "error", rbErr, "cause", err)
			return errors.Join(commitErr, &database.TxError{Stage: "rollback", Err: rbErr})
		}
		logger.Warn("Transaction commit failed, rolled back", "tx_id", id, "error", err)
		return commitErr
	}
	completed = true
	logger.Debug("Transaction committed", "tx_id", id)
	return nil
}

// rollbackQuietly tolerates sql.ErrTxDone: a transaction the driver
// already finished counts as released, not as a rollback failure.
func rollbackQuietly(tx bun.Tx) error {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return nil
}
