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
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

// Pool owns one database connection pool. Callers hold it by reference
// and pass it to whatever needs a connection; independent pools can
// coexist in one process. Failed statements are reported, never retried.
type Pool struct {
	config    *Config
	db        *bun.DB
	sqlDB     *sql.DB
	logger    Logger
	mu        sync.RWMutex
	connected bool
	lastError error
}

// NewPool builds an unconnected pool from cfg. A nil cfg gets defaults,
// which will fail Validate on Connect since no database name is set.
func NewPool(cfg *Config) *Pool {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.normalize()
	return &Pool{config: cfg, logger: GetLogger()}
}

// Connect validates the configuration, opens the pool and verifies it
// with a ping. Connecting an already connected pool is a no-op.
func (p *Pool) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected && p.db != nil {
		return nil
	}

	if err := p.config.Validate(); err != nil {
		p.lastError = err
		return err
	}

	var err error
	p.sqlDB, p.db, err = p.open()
	if err != nil {
		p.lastError = err
		return fmt.Errorf("failed to create database connection: %w", err)
	}

	p.sqlDB.SetMaxOpenConns(p.config.ConnectionLimit)
	p.sqlDB.SetMaxIdleConns(p.config.MaxIdleConns)
	p.sqlDB.SetConnMaxLifetime(p.config.ConnMaxLifetime)
	p.sqlDB.SetConnMaxIdleTime(p.config.ConnMaxIdleTime)

	ctxTimeout, cancel := context.WithTimeout(ctx, p.config.ConnectTimeout)
	defer cancel()

	if err := p.db.PingContext(ctxTimeout); err != nil {
		p.lastError = err
		return fmt.Errorf("database connection test failed: %w", err)
	}

	p.connected = true
	p.lastError = nil

	if p.logger != nil {
		p.logger.Info("Database connected successfully:",
			"type", p.config.Type, "host", p.config.Host, "database", p.config.Database)
	}
	return nil
}

func (p *Pool) open() (*sql.DB, *bun.DB, error) {
	var sqlDB *sql.DB
	var db *bun.DB
	var err error

	switch p.config.Type {
	case "mysql":
		sqlDB, err = sql.Open("mysql", p.config.DSN())
		if err == nil {
			db = bun.NewDB(sqlDB, mysqldialect.New())
		}
	case "postgres", "postgresql":
		sqlDB, err = sql.Open("postgres", p.config.DSN())
		if err == nil {
			db = bun.NewDB(sqlDB, pgdialect.New())
		}
	case "sqlite", "sqlite3":
		sqlDB, err = sql.Open(sqliteshim.ShimName, p.config.DSN())
		if err == nil {
			db = bun.NewDB(sqlDB, sqlitedialect.New())
		}
	default:
		return nil, nil, &ConfigError{Reason: fmt.Sprintf("unsupported database type: %s", p.config.Type)}
	}

	if err != nil {
		return nil, nil, err
	}

	if p.config.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
		db.AddQueryHook(NewQueryHook(true))
	}

	if p.config.SlowQueryTime > 0 {
		db.AddQueryHook(NewSlowQueryHook(p.config.SlowQueryTime, p.logger))
	}

	return sqlDB, db, nil
}

// Close shuts the pool down. Closing twice, or a never-connected pool,
// is a no-op.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return nil
	}

	err := p.db.Close()
	p.db = nil
	p.sqlDB = nil
	p.connected = false

	if p.logger != nil {
		if err != nil {
			p.logger.Error("Failed to close database connection", "error", err)
		} else {
			p.logger.Info("Database connection closed")
		}
	}
	return err
}

// DB returns the bun handle, or nil before Connect and after Close.
func (p *Pool) DB() *bun.DB {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.db
}

// SQLDB returns the raw database/sql pool for callers that need it.
func (p *Pool) SQLDB() *sql.DB {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sqlDB
}

// Config returns the pool configuration.
func (p *Pool) Config() *Config {
	return p.config
}

func (p *Pool) Ping(ctx context.Context) error {
	p.mu.RLock()
	db := p.db
	p.mu.RUnlock()

	if db == nil {
		return ErrNotInitialized
	}
	return db.PingContext(ctx)
}

// HealthCheck pings with a short deadline and snapshots pool counters.
func (p *Pool) HealthCheck(ctx context.Context) *HealthStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	status := &HealthStatus{
		LastCheckTime: start,
		Connected:     p.connected,
	}

	if p.db == nil {
		status.Healthy = false
		status.LastError = ErrNotInitialized.Error()
		return status
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	err := p.db.PingContext(ctxTimeout)
	status.ResponseTime = time.Since(start)

	if err != nil {
		status.Healthy = false
		status.Connected = false
		status.LastError = err.Error()
		p.lastError = err
	} else {
		status.Healthy = true
		status.Connected = true
		p.lastError = nil
	}

	if p.sqlDB != nil {
		stats := p.sqlDB.Stats()
		status.ActiveConns = stats.InUse
		status.IdleConns = stats.Idle
		status.MaxOpenConns = stats.MaxOpenConnections
	}
	return status
}

// Stats mirrors database/sql counters. WaitCount climbing means the
// connection limit is saturated and statements are queueing.
func (p *Pool) Stats() *DBStats {
	p.mu.RLock()
	sqlDB := p.sqlDB
	p.mu.RUnlock()

	if sqlDB == nil {
		return &DBStats{}
	}

	stats := sqlDB.Stats()
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

func (p *Pool) SetLogger(logger Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger = logger
}
