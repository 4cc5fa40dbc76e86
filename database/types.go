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
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config describes how to reach a database and tune its pool. Every
// option except Database has a default, so Config{Database: "app"}
// layered over DefaultConfig is a complete configuration.
type Config struct {
	Type     string `yaml:"type" json:"type"` // mysql, postgres, sqlite
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	Database string `yaml:"database" json:"database"`

	// ConnectionLimit caps concurrently open connections. The pool queues
	// without bound beyond it: a saturated pool makes new statements wait
	// indefinitely rather than fail.
	ConnectionLimit int `yaml:"connection_limit" json:"connection_limit"`

	// Timezone is the session location for temporal values. The literal
	// "local" selects the process timezone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// DateStrings keeps DATE/DATETIME columns as plain strings instead of
	// parsed time values.
	DateStrings bool   `yaml:"date_strings" json:"date_strings"`
	SSLMode     string `yaml:"sslmode" json:"sslmode"`
	Charset     string `yaml:"charset" json:"charset"` // MySQL:utf8mb4, Postgres:UTF8

	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"-" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"-" json:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `yaml:"-" json:"connect_timeout"`
	ReadTimeout     time.Duration `yaml:"-" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"-" json:"write_timeout"`

	// StatementTimeout bounds each statement execution when positive;
	// zero leaves statements without a layer-imposed deadline.
	StatementTimeout time.Duration `yaml:"-" json:"statement_timeout"`

	EnableQueryLog bool          `yaml:"enable_query_log" json:"enable_query_log"`
	SlowQueryTime  time.Duration `yaml:"-" json:"slow_query_time"`
}

// DefaultConfig returns the documented defaults. Database stays empty
// and must be supplied by the caller.
func DefaultConfig() *Config {
	return &Config{
		Type:            "mysql",
		Host:            "localhost",
		Port:            3306,
		User:            "root",
		Password:        "",
		ConnectionLimit: 10,
		Timezone:        "local",
		DateStrings:     true,
		Charset:         "utf8mb4",
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 30,
		ConnectTimeout:  time.Second * 10,
		ReadTimeout:     time.Second * 30,
		WriteTimeout:    time.Second * 30,
		SlowQueryTime:   time.Second * 2,
	}
}

// normalize fills zero-valued basics with their defaults so hand-built
// Config literals behave like DefaultConfig derivatives.
func (c *Config) normalize() {
	d := DefaultConfig()
	if c.Type == "" {
		c.Type = d.Type
	}
	if c.Host == "" {
		c.Host = d.Host
	}
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.User == "" {
		c.User = d.User
	}
	if c.ConnectionLimit == 0 {
		c.ConnectionLimit = d.ConnectionLimit
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.Charset == "" {
		c.Charset = d.Charset
	}
	// Zero idle connections would drop a shared-cache in-memory SQLite
	// database between statements, so pool knobs floor to defaults too.
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = d.MaxIdleConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = d.ConnMaxLifetime
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = d.ConnMaxIdleTime
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
}

// Validate reports configuration problems before any connection attempt.
func (c *Config) Validate() error {
	if c.Database == "" {
		return ErrMissingDatabase
	}
	switch c.Type {
	case "mysql", "postgres", "postgresql", "sqlite", "sqlite3":
		return nil
	default:
		return &ConfigError{Reason: fmt.Sprintf("unsupported database type: %s", c.Type)}
	}
}

// DSN builds the driver connection string for the configured type.
func (c *Config) DSN() string {
	switch c.Type {
	case "postgres", "postgresql":
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
			c.User, c.Password, c.Host, c.Port, c.Database,
			sslMode, int(c.ConnectTimeout.Seconds()))
	case "sqlite", "sqlite3":
		if c.Database == ":memory:" {
			return "file::memory:?cache=shared"
		}
		return fmt.Sprintf("%s.db", c.Database)
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s&timeout=%s&readTimeout=%s&writeTimeout=%s",
			c.User, c.Password, c.Host, c.Port, c.Database,
			c.Charset, !c.DateStrings, c.locationName(),
			c.ConnectTimeout, c.ReadTimeout, c.WriteTimeout)
	}
}

func (c *Config) locationName() string {
	if c.Timezone == "" || c.Timezone == "local" || c.Timezone == "Local" {
		return "Local"
	}
	return url.QueryEscape(c.Timezone)
}

// fileConfig mirrors Config for YAML, with durations written as strings
// ("10s", "2m") since yaml.v3 has no native duration support.
type fileConfig struct {
	ConnMaxLifetime  string `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime  string `yaml:"conn_max_idle_time"`
	ConnectTimeout   string `yaml:"connect_timeout"`
	ReadTimeout      string `yaml:"read_timeout"`
	WriteTimeout     string `yaml:"write_timeout"`
	StatementTimeout string `yaml:"statement_timeout"`
	SlowQueryTime    string `yaml:"slow_query_time"`
}

// LoadConfig reads a YAML file over the defaults, then applies
// environment overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	var durations fileConfig
	if err := yaml.Unmarshal(data, &durations); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	for _, d := range []struct {
		raw string
		dst *time.Duration
	}{
		{durations.ConnMaxLifetime, &cfg.ConnMaxLifetime},
		{durations.ConnMaxIdleTime, &cfg.ConnMaxIdleTime},
		{durations.ConnectTimeout, &cfg.ConnectTimeout},
		{durations.ReadTimeout, &cfg.ReadTimeout},
		{durations.WriteTimeout, &cfg.WriteTimeout},
		{durations.StatementTimeout, &cfg.StatementTimeout},
		{durations.SlowQueryTime, &cfg.SlowQueryTime},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config duration %q: %w", d.raw, err)
		}
		*d.dst = v
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides configuration values from environment
// variables, so deployments never need credentials in files.
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USERNAME"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.Database = dbname
	}
	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.SSLMode = sslmode
	}
	if limit := os.Getenv("DB_CONNECTION_LIMIT"); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			cfg.ConnectionLimit = val
		}
	}
	if maxIdle := os.Getenv("DB_MAX_IDLE_CONNS"); maxIdle != "" {
		if val, err := strconv.Atoi(maxIdle); err == nil {
			cfg.MaxIdleConns = val
		}
	}
	if maxLifetime := os.Getenv("DB_CONN_MAX_LIFETIME"); maxLifetime != "" {
		if val, err := strconv.Atoi(maxLifetime); err == nil {
			cfg.ConnMaxLifetime = time.Duration(val) * time.Second
		}
	}
	if enableQueryLog := os.Getenv("DB_ENABLE_QUERY_LOG"); enableQueryLog != "" {
		cfg.EnableQueryLog = enableQueryLog == "true"
	}
}

// HealthStatus holds the result of a health check against the database.
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Connected     bool          `json:"connected"`
	ResponseTime  time.Duration `json:"response_time"`
	ActiveConns   int           `json:"active_conns"`
	IdleConns     int           `json:"idle_conns"`
	MaxOpenConns  int           `json:"max_open_conns"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// DBStats mirrors database/sql stats returned by the pool.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}
