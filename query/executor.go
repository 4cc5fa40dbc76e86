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
	"fmt"
	"strconv"

	"github.com/tomoncle/sparrow/database"
	"github.com/tomoncle/sparrow/types"
	"github.com/tomoncle/sparrow/utils"
	"github.com/uptrace/bun"
)

// Row is one result row keyed by column name. Driver byte slices are
// normalized to strings, so text-mode values (including date strings)
// come back as plain string.
type Row map[string]interface{}

// resolve picks the connection capability for this builder: an explicit
// connection, an explicit pool, or the process-global pool, in that
// order. Resolution happens at the terminal call, which is where use
// before initialization surfaces.
func (b *Builder) resolve() (bun.IConn, *database.Config, error) {
	if b.conn != nil {
		if b.pool != nil {
			return b.conn, b.pool.Config(), nil
		}
		return b.conn, nil, nil
	}
	pool := b.pool
	if pool == nil {
		var err error
		pool, err = database.GetPool()
		if err != nil {
			return nil, nil, err
		}
	}
	db := pool.DB()
	if db == nil {
		return nil, nil, database.ErrNotInitialized
	}
	return db, pool.Config(), nil
}

// consume gates row-returning and mutating terminals: the first one
// claims the builder, later ones fail until Reset.
func (b *Builder) consume(op string) error {
	if b.stmt.err != nil {
		return b.stmt.err
	}
	if b.consumed {
		return &database.ValidationError{Op: op, Reason: "statement already executed, Reset it or build a new one"}
	}
	b.consumed = true
	return nil
}

// statementCtx applies the configured statement timeout, when one is
// set, to a single database round-trip.
func statementCtx(ctx context.Context, cfg *database.Config) (context.Context, context.CancelFunc) {
	if cfg != nil && cfg.StatementTimeout > 0 {
		return context.WithTimeout(ctx, cfg.StatementTimeout)
	}
	return ctx, func() {}
}

// Find executes the statement and returns every matching row.
func (b *Builder) Find(ctx context.Context) ([]Row, error) {
	if err := b.consume("find"); err != nil {
		return nil, err
	}
	sqlText, args, err := render(b.stmt)
	if err != nil {
		return nil, err
	}
	return b.queryRows(ctx, sqlText, args)
}

// First executes with limit 1 forced onto a derived copy and returns
// the row, or nil when nothing matches. Absence is not an error.
func (b *Builder) First(ctx context.Context) (Row, error) {
	if err := b.consume("first"); err != nil {
		return nil, err
	}
	derived := b.stmt.clone()
	derived.limit = 1
	sqlText, args, err := render(derived)
	if err != nil {
		return nil, err
	}
	rows, err := b.queryRows(ctx, sqlText, args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Count runs COUNT(*) with this builder's predicates against a derived
// statement. Like all aggregates it leaves the builder unconsumed and
// its column selection untouched.
func (b *Builder) Count(ctx context.Context) (int64, error) {
	v, err := b.scalar(ctx, "COUNT(*)")
	if err != nil {
		return 0, err
	}
	return toInt64(v), nil
}

// Sum runs SUM(column) with this builder's predicates; no matching
// rows yield 0.
func (b *Builder) Sum(ctx context.Context, column string) (float64, error) {
	v, err := b.scalar(ctx, fmt.Sprintf("SUM(%s)", column))
	if err != nil {
		return 0, err
	}
	return toFloat64(v), nil
}

// Avg runs AVG(column) with this builder's predicates; no matching
// rows yield 0.
func (b *Builder) Avg(ctx context.Context, column string) (float64, error) {
	v, err := b.scalar(ctx, fmt.Sprintf("AVG(%s)", column))
	if err != nil {
		return 0, err
	}
	return toFloat64(v), nil
}

// Exists reports whether any row matches the predicates.
func (b *Builder) Exists(ctx context.Context) (bool, error) {
	n, err := b.Count(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// scalar renders an aggregate expression against a derived copy of the
// statement: the column list is substituted and row-shaping clauses
// (order, limit, offset, distinct, lock) are stripped. The builder's
// own statement is never touched. A missing row comes back as nil.
func (b *Builder) scalar(ctx context.Context, expr string) (interface{}, error) {
	if b.stmt.err != nil {
		return nil, b.stmt.err
	}
	derived := b.stmt.clone()
	derived.columns = []string{expr + " AS aggregate"}
	derived.distinct = false
	derived.orders = nil
	derived.limit = -1
	derived.offset = -1
	derived.lock = ""

	sqlText, args, err := render(derived)
	if err != nil {
		return nil, err
	}
	rows, err := b.queryRows(ctx, sqlText, args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0]["aggregate"], nil
}

// Paginate runs the companion count query (same predicates, no
// limit/offset), then fetches the requested page and assembles the
// metadata. Page floors at 1 and size at 10, per types.PageRequest.
func (b *Builder) Paginate(ctx context.Context, page, pageSize int) (*types.Pagination[Row], error) {
	if err := b.consume("paginate"); err != nil {
		return nil, err
	}
	req := types.NewDefaultPageRequest(page, pageSize)

	countStmt := b.stmt.clone()
	countStmt.columns = []string{"COUNT(*) AS aggregate"}
	countStmt.distinct = false
	countStmt.orders = nil
	countStmt.limit = -1
	countStmt.offset = -1
	countStmt.lock = ""
	countSQL, countArgs, err := render(countStmt)
	if err != nil {
		return nil, err
	}
	countRows, err := b.queryRows(ctx, countSQL, countArgs)
	if err != nil {
		return nil, err
	}
	var total int64
	if len(countRows) > 0 {
		total = toInt64(countRows[0]["aggregate"])
	}
	if total == 0 {
		return types.NewPagination[Row](req.GetPage(), req.GetPageSize(), 0, nil), nil
	}

	pageStmt := b.stmt.clone()
	pageStmt.limit = req.GetPageSize()
	pageStmt.offset = req.GetOffset()
	pageSQL, pageArgs, err := render(pageStmt)
	if err != nil {
		return nil, err
	}
	items, err := b.queryRows(ctx, pageSQL, pageArgs)
	if err != nil {
		return nil, err
	}
	return types.NewPagination[Row](req.GetPage(), req.GetPageSize(), total, items), nil
}

// Insert creates one row from data, dropping nil-valued keys first,
// and echoes the cleaned values back merged with the generated
// identifier under "id" when the driver reports one.
func (b *Builder) Insert(ctx context.Context, data map[string]interface{}) (Row, error) {
	if err := b.consume("insert"); err != nil {
		return nil, err
	}
	cleaned := utils.CleanObject(data)
	sqlText, args, err := renderInsert(b.stmt.table, cleaned)
	if err != nil {
		return nil, err
	}
	res, err := b.exec(ctx, sqlText, args)
	if err != nil {
		return nil, err
	}
	echo := make(Row, len(cleaned)+1)
	for k, v := range cleaned {
		echo[k] = v
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		echo["id"] = id
	}
	return echo, nil
}

// Update rewrites matching rows from data (nil-valued keys dropped)
// and returns the affected-row count. Updating without conditions is
// refused before any SQL is sent.
func (b *Builder) Update(ctx context.Context, data map[string]interface{}) (int64, error) {
	if err := b.consume("update"); err != nil {
		return 0, err
	}
	sqlText, args, err := renderUpdate(b.stmt, utils.CleanObject(data))
	if err != nil {
		return 0, err
	}
	res, err := b.exec(ctx, sqlText, args)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete removes matching rows and returns the affected-row count.
// Deleting without conditions is refused before any SQL is sent.
func (b *Builder) Delete(ctx context.Context) (int64, error) {
	if err := b.consume("delete"); err != nil {
		return 0, err
	}
	sqlText, args, err := renderDelete(b.stmt)
	if err != nil {
		return 0, err
	}
	res, err := b.exec(ctx, sqlText, args)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (b *Builder) queryRows(ctx context.Context, sqlText string, args []interface{}) ([]Row, error) {
	conn, cfg, err := b.resolve()
	if err != nil {
		return nil, err
	}
	ctx, cancel := statementCtx(ctx, cfg)
	defer cancel()

	rows, err := conn.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return scanRows(rows)
}

func (b *Builder) exec(ctx context.Context, sqlText string, args []interface{}) (sql.Result, error) {
	conn, cfg, err := b.resolve()
	if err != nil {
		return nil, err
	}
	ctx, cancel := statementCtx(ctx, cfg)
	defer cancel()

	res, err := conn.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute statement: %w", err)
	}
	return res, nil
}

// Raw runs a caller-written query against the process-global pool: no
// clause building, same connection capability and error handling.
func Raw(ctx context.Context, sqlText string, args ...interface{}) ([]Row, error) {
	db, err := database.GetDB()
	if err != nil {
		return nil, err
	}
	return RawOn(ctx, db, sqlText, args...)
}

// RawOn runs a caller-written query on an explicit connection.
func RawOn(ctx context.Context, conn bun.IConn, sqlText string, args ...interface{}) ([]Row, error) {
	rows, err := conn.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return scanRows(rows)
}

// RawExec runs a caller-written mutation against the process-global
// pool.
func RawExec(ctx context.Context, sqlText string, args ...interface{}) (sql.Result, error) {
	db, err := database.GetDB()
	if err != nil {
		return nil, err
	}
	return RawExecOn(ctx, db, sqlText, args...)
}

// RawExecOn runs a caller-written mutation on an explicit connection.
func RawExecOn(ctx context.Context, conn bun.IConn, sqlText string, args ...interface{}) (sql.Result, error) {
	res, err := conn.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute statement: %w", err)
	}
	return res, nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	out := make([]Row, 0, 16)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(Row, len(columns))
		for i, c := range columns {
			row[c] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return out, nil
}

func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case nil:
		return 0
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	case []byte:
		i, _ := strconv.ParseInt(string(n), 10, 64)
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}

func toFloat64(v interface{}) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case []byte:
		f, _ := strconv.ParseFloat(string(n), 64)
		return f
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}
