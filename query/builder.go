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
	"fmt"
	"strings"

	"github.com/tomoncle/sparrow/database"
	"github.com/tomoncle/sparrow/types"
	"github.com/tomoncle/sparrow/utils"
	"github.com/uptrace/bun"
)

// Builder owns one Statement and mutates it through chained calls.
// One builder describes one statement: row-returning and mutating
// terminal calls consume it, after which only Reset or Clone make it
// usable again. Aggregate terminals run against derived copies and
// leave the builder untouched.
type Builder struct {
	stmt     *Statement
	conn     bun.IConn
	pool     *database.Pool
	consumed bool
}

// Table starts a builder against the process-global pool. The pool is
// resolved lazily at the terminal call, so statements may be built
// before InitDB; executing them without it fails as uninitialized.
func Table(name string) *Builder {
	return &Builder{stmt: newStatement(name)}
}

// OnPool starts a builder bound to an explicit pool. Independent pools
// never share statements or configuration.
func OnPool(pool *database.Pool, name string) *Builder {
	return &Builder{stmt: newStatement(name), pool: pool}
}

// On starts a builder bound to an explicit connection capability, such
// as a bun.DB, bun.Conn or an open transaction.
func On(conn bun.IConn, name string) *Builder {
	return &Builder{stmt: newStatement(name), conn: conn}
}

// Err returns the first construction error recorded so far, if any.
func (b *Builder) Err() error {
	return b.stmt.err
}

// Select replaces the column list entirely; the default is all columns.
func (b *Builder) Select(columns ...string) *Builder {
	b.stmt.columns = append([]string(nil), columns...)
	return b
}

// Distinct marks the statement to eliminate duplicate rows.
func (b *Builder) Distinct() *Builder {
	b.stmt.distinct = true
	return b
}

// Where appends an equality predicate joined by AND. A nil value
// renders as "column IS NULL" and binds no parameter.
func (b *Builder) Where(column string, value interface{}) *Builder {
	return b.addEq(conjAnd, column, value)
}

// OrWhere appends an equality predicate joined by OR.
func (b *Builder) OrWhere(column string, value interface{}) *Builder {
	return b.addEq(conjOr, column, value)
}

// WhereMap appends one AND-joined equality predicate per map entry,
// in sorted key order so rendered SQL text is deterministic.
func (b *Builder) WhereMap(conditions map[string]interface{}) *Builder {
	for _, column := range utils.SortedKeys(conditions) {
		b.addEq(conjAnd, column, conditions[column])
	}
	return b
}

// OrWhereMap appends one OR-joined equality predicate per map entry.
func (b *Builder) OrWhereMap(conditions map[string]interface{}) *Builder {
	for _, column := range utils.SortedKeys(conditions) {
		b.addEq(conjOr, column, conditions[column])
	}
	return b
}

func (b *Builder) addEq(conj, column string, value interface{}) *Builder {
	if utils.IsNil(value) {
		value = nil
	}
	b.stmt.predicates = append(b.stmt.predicates, predicate{
		kind:   predicateEq,
		conj:   conj,
		column: column,
		values: []interface{}{value},
	})
	return b
}

// WhereIn appends a set-membership predicate with one placeholder per
// element. An empty set is silently omitted, it does not mean
// "match nothing".
func (b *Builder) WhereIn(column string, values ...interface{}) *Builder {
	return b.addIn(column, false, values)
}

// WhereNotIn appends a negated set-membership predicate; an empty set
// is silently omitted.
func (b *Builder) WhereNotIn(column string, values ...interface{}) *Builder {
	return b.addIn(column, true, values)
}

func (b *Builder) addIn(column string, negated bool, values []interface{}) *Builder {
	if len(values) == 0 {
		return b
	}
	b.stmt.predicates = append(b.stmt.predicates, predicate{
		kind:    predicateIn,
		conj:    conjAnd,
		column:  column,
		negated: negated,
		values:  append([]interface{}(nil), values...),
	})
	return b
}

// WhereBetween appends a range predicate. Both bounds are required;
// the predicate is omitted when either is nil.
func (b *Builder) WhereBetween(column string, min, max interface{}) *Builder {
	if utils.IsNil(min) || utils.IsNil(max) {
		return b
	}
	b.stmt.predicates = append(b.stmt.predicates, predicate{
		kind:   predicateBetween,
		conj:   conjAnd,
		column: column,
		values: []interface{}{min, max},
	})
	return b
}

// WhereLike appends a pattern predicate; the value is wrapped in
// wildcards on both sides and bound as a parameter, never spliced into
// the SQL text.
func (b *Builder) WhereLike(column string, value interface{}) *Builder {
	b.stmt.predicates = append(b.stmt.predicates, predicate{
		kind:   predicateLike,
		conj:   conjAnd,
		column: column,
		values: []interface{}{fmt.Sprintf("%%%v%%", value)},
	})
	return b
}

// WhereNull appends "column IS NULL"; no parameter is bound.
func (b *Builder) WhereNull(column string) *Builder {
	return b.addNull(column, false)
}

// WhereNotNull appends "column IS NOT NULL"; no parameter is bound.
func (b *Builder) WhereNotNull(column string) *Builder {
	return b.addNull(column, true)
}

func (b *Builder) addNull(column string, negated bool) *Builder {
	b.stmt.predicates = append(b.stmt.predicates, predicate{
		kind:    predicateNull,
		conj:    conjAnd,
		column:  column,
		negated: negated,
	})
	return b
}

// WhereRaw appends a literal SQL fragment with its parameters. This is
// the escape hatch: identifiers and operators pass through unchecked,
// but the placeholder count must match the argument count or the
// statement fails before any SQL is sent.
func (b *Builder) WhereRaw(expr string, args ...interface{}) *Builder {
	if n := strings.Count(expr, "?"); n != len(args) {
		b.stmt.fail("where", fmt.Sprintf("raw fragment %q expects %d parameters, got %d", expr, n, len(args)))
		return b
	}
	b.stmt.predicates = append(b.stmt.predicates, predicate{
		kind:   predicateRaw,
		conj:   conjAnd,
		expr:   expr,
		values: append([]interface{}(nil), args...),
	})
	return b
}

// WhereFilter appends a raw fragment carried by a types.QueryFilter.
func (b *Builder) WhereFilter(filter *types.QueryFilter) *Builder {
	if filter == nil {
		return b
	}
	return b.WhereRaw(filter.Schema, filter.Args...)
}

// GroupBy appends grouping fields in call order.
func (b *Builder) GroupBy(columns ...string) *Builder {
	b.stmt.groupBy = append(b.stmt.groupBy, columns...)
	return b
}

// OrderBy appends an ordering fragment. Any case-insensitive "desc"
// normalizes to DESC, everything else to ASC.
func (b *Builder) OrderBy(column string, direction string) *Builder {
	b.stmt.orders = append(b.stmt.orders, orderSpec{
		column:    column,
		direction: normalizeDirection(direction),
	})
	return b
}

// Limit caps the row count; negative input fails the statement.
func (b *Builder) Limit(n int) *Builder {
	if n < 0 {
		b.stmt.fail("limit", fmt.Sprintf("negative limit %d", n))
		return b
	}
	b.stmt.limit = n
	return b
}

// Offset skips rows; negative input fails the statement. An offset
// renders only together with a limit.
func (b *Builder) Offset(n int) *Builder {
	if n < 0 {
		b.stmt.fail("offset", fmt.Sprintf("negative offset %d", n))
		return b
	}
	b.stmt.offset = n
	return b
}

// Page sets limit and offset together: page floors at 1, size floors
// at the default 10, offset is (page-1)*size.
func (b *Builder) Page(page, pageSize int) *Builder {
	req := types.NewDefaultPageRequest(page, pageSize)
	b.stmt.limit = req.GetPageSize()
	b.stmt.offset = req.GetOffset()
	return b
}

// Join appends a join clause; kind is "INNER" or "LEFT" in any case.
// Anything else fails the statement.
func (b *Builder) Join(kind, table, on string) *Builder {
	switch strings.ToUpper(strings.TrimSpace(kind)) {
	case "INNER":
		kind = "INNER JOIN"
	case "LEFT":
		kind = "LEFT JOIN"
	default:
		b.stmt.fail("join", fmt.Sprintf("unsupported join kind %q", kind))
		return b
	}
	b.stmt.joins = append(b.stmt.joins, joinSpec{kind: kind, table: table, on: on})
	return b
}

// InnerJoin appends an inner join.
func (b *Builder) InnerJoin(table, on string) *Builder {
	return b.Join("INNER", table, on)
}

// LeftJoin appends a left join.
func (b *Builder) LeftJoin(table, on string) *Builder {
	return b.Join("LEFT", table, on)
}

// ForUpdate appends a row-locking clause for exclusive locks.
func (b *Builder) ForUpdate() *Builder {
	b.stmt.lock = "FOR UPDATE"
	return b
}

// ForShare appends a row-locking clause for shared locks.
func (b *Builder) ForShare() *Builder {
	b.stmt.lock = "FOR SHARE"
	return b
}

// Clone returns an unconsumed deep copy bound to the same connection.
func (b *Builder) Clone() *Builder {
	return &Builder{stmt: b.stmt.clone(), conn: b.conn, pool: b.pool}
}

// Reset clears every clause and the consumed mark, keeping the table
// and connection, so the builder can describe a fresh statement.
func (b *Builder) Reset() *Builder {
	b.stmt.reset()
	b.consumed = false
	return b
}

// ToSQL renders the statement without executing it. Rendering is
// side-effect-free and never marks the builder consumed.
func (b *Builder) ToSQL() (string, []interface{}, error) {
	return render(b.stmt)
}
