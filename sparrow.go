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

// Package sparrow is a minimal data-access layer over a relational
// database: a fluent statement builder, a deterministic SQL renderer,
// an executor over a pooled connection, and transactions with
// commit-or-rollback guarantees.
//
//	_, err := sparrow.Init(&sparrow.Config{Database: "app"})
//	rows, err := sparrow.Table("users").
//		Where("status", "active").
//		OrderBy("created_at", "desc").
//		Find(ctx)
package sparrow

import (
	"context"

	"github.com/tomoncle/sparrow/database"
	"github.com/tomoncle/sparrow/query"
)

// Aliases so simple programs import one package.
type (
	Config = database.Config
	Pool   = database.Pool
	Row    = query.Row
	Tx     = query.Tx
)

// Init opens the process-global pool. Call once at startup.
func Init(cfg *Config) (*Pool, error) {
	return database.InitDB(cfg)
}

// InitFromFile loads a YAML configuration and opens the global pool.
func InitFromFile(path string) (*Pool, error) {
	cfg, err := database.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return database.InitDB(cfg)
}

// Close tears the global pool down; calling it twice is a no-op.
func Close() error {
	return database.CloseDB()
}

// NewPool builds an independent pool with its own lifecycle.
func NewPool(cfg *Config) *Pool {
	return database.NewPool(cfg)
}

// Table starts a statement builder against the global pool.
func Table(name string) *query.Builder {
	return query.Table(name)
}

// Transaction runs fn inside a transaction on the global pool.
func Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	return query.RunInTransaction(ctx, fn)
}
