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

package sparrow

import (
	"context"
	"reflect"

	"github.com/go-openapi/inflect"
	"github.com/tomoncle/sparrow/database"
	"github.com/tomoncle/sparrow/query"
	"github.com/tomoncle/sparrow/types"
)

// Model binds a table name to the query package so call sites do not
// repeat it. Every method builds a fresh statement, so a Model is safe
// to share between goroutines and to reuse across calls.
type Model struct {
	table string
	pool  *database.Pool
}

// NewModel returns a Model for the given table on the global pool.
func NewModel(table string) *Model {
	return &Model{table: table}
}

// NewModelOn returns a Model for the given table on an explicit pool.
func NewModelOn(pool *database.Pool, table string) *Model {
	return &Model{table: table, pool: pool}
}

// ModelFor derives the table name from the type name, underscored and
// pluralized: UserProfile becomes user_profiles.
func ModelFor[T any]() *Model {
	return NewModel(tableNameOf[T]())
}

// ModelForOn is ModelFor against an explicit pool.
func ModelForOn[T any](pool *database.Pool) *Model {
	return NewModelOn(pool, tableNameOf[T]())
}

func tableNameOf[T any]() string {
	name := reflect.TypeOf((*T)(nil)).Elem().Name()
	return inflect.Pluralize(inflect.Underscore(name))
}

// Table reports the bound table name.
func (m *Model) Table() string {
	return m.table
}

// Query starts a fresh statement builder for the bound table.
func (m *Model) Query() *query.Builder {
	if m.pool != nil {
		return query.OnPool(m.pool, m.table)
	}
	return query.Table(m.table)
}

// Find returns the rows matching the equality conditions; a nil or
// empty map matches every row.
func (m *Model) Find(ctx context.Context, conditions map[string]interface{}) ([]query.Row, error) {
	return m.Query().WhereMap(conditions).Find(ctx)
}

// First returns the first matching row, or nil when nothing matches.
func (m *Model) First(ctx context.Context, conditions map[string]interface{}) (query.Row, error) {
	return m.Query().WhereMap(conditions).First(ctx)
}

// List returns the rows matching a raw filter fragment.
func (m *Model) List(ctx context.Context, filter *types.QueryFilter) ([]query.Row, error) {
	return m.Query().WhereFilter(filter).Find(ctx)
}

// Count returns the number of matching rows.
func (m *Model) Count(ctx context.Context, conditions map[string]interface{}) (int64, error) {
	return m.Query().WhereMap(conditions).Count(ctx)
}

// Exists reports whether at least one row matches.
func (m *Model) Exists(ctx context.Context, conditions map[string]interface{}) (bool, error) {
	return m.Query().WhereMap(conditions).Exists(ctx)
}

// Paginate returns one page of matching rows with total counts.
func (m *Model) Paginate(ctx context.Context, page, pageSize int, conditions map[string]interface{}) (*types.Pagination[query.Row], error) {
	return m.Query().WhereMap(conditions).Paginate(ctx, page, pageSize)
}

// Insert stores one row and returns the stored values.
func (m *Model) Insert(ctx context.Context, data map[string]interface{}) (query.Row, error) {
	return m.Query().Insert(ctx, data)
}

// Update modifies the matching rows and returns the affected count.
// It refuses to run without conditions.
func (m *Model) Update(ctx context.Context, data, conditions map[string]interface{}) (int64, error) {
	return m.Query().WhereMap(conditions).Update(ctx, data)
}

// Delete removes the matching rows and returns the affected count.
// It refuses to run without conditions.
func (m *Model) Delete(ctx context.Context, conditions map[string]interface{}) (int64, error) {
	return m.Query().WhereMap(conditions).Delete(ctx)
}
