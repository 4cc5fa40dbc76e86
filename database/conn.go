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

package database

import (
	"context"
	"sync"

	"github.com/uptrace/bun"
)

var (
	globalPool *Pool
	globalMu   sync.RWMutex
)

// InitDB opens the process-global pool from cfg and returns it. Most
// applications call this once at startup; code that needs isolated
// pools builds them with NewPool instead.
func InitDB(cfg *Config) (*Pool, error) {
	pool := NewPool(cfg)
	if err := pool.Connect(context.Background()); err != nil {
		return nil, err
	}

	globalMu.Lock()
	old := globalPool
	globalPool = pool
	globalMu.Unlock()

	// A leftover pool from a previous InitDB holds driver connections.
	if old != nil {
		_ = old.Close()
	}
	return pool, nil
}

// GetPool returns the global pool, or ErrNotInitialized before InitDB
// and after CloseDB.
func GetPool() (*Pool, error) {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalPool == nil {
		return nil, ErrNotInitialized
	}
	return globalPool, nil
}

// GetDB returns the global bun handle, or ErrNotInitialized.
func GetDB() (*bun.DB, error) {
	pool, err := GetPool()
	if err != nil {
		return nil, err
	}
	db := pool.DB()
	if db == nil {
		return nil, ErrNotInitialized
	}
	return db, nil
}

// CloseDB closes the global pool. Calling it twice, or without InitDB,
// is a no-op; the handle is unusable afterwards until InitDB runs again.
func CloseDB() error {
	globalMu.Lock()
	pool := globalPool
	globalPool = nil
	globalMu.Unlock()

	if pool == nil {
		return nil
	}
	return pool.Close()
}

// GetHealthStatus returns the current health of the global pool.
func GetHealthStatus(ctx context.Context) *HealthStatus {
	pool, err := GetPool()
	if err != nil {
		return &HealthStatus{
			Healthy:   false,
			Connected: false,
			LastError: err.Error(),
		}
	}
	return pool.HealthCheck(ctx)
}

// GetDatabaseStats returns connection statistics for the global pool.
func GetDatabaseStats() *DBStats {
	pool, err := GetPool()
	if err != nil {
		return &DBStats{}
	}
	return pool.Stats()
}
