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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "mysql", cfg.Type)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 3306, cfg.Port)
	assert.Equal(t, "root", cfg.User)
	assert.Equal(t, "", cfg.Password)
	assert.Equal(t, "", cfg.Database)
	assert.Equal(t, 10, cfg.ConnectionLimit)
	assert.Equal(t, "local", cfg.Timezone)
	assert.True(t, cfg.DateStrings)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingDatabase)

	cfg.Database = "app"
	require.NoError(t, cfg.Validate())

	cfg.Type = "oracle"
	err = cfg.Validate()
	require.Error(t, err)
	var configErr *ConfigError
	assert.ErrorAs(t, err, &configErr)
}

func TestNormalizeFillsZeroValues(t *testing.T) {
	cfg := &Config{Database: "app"}
	cfg.normalize()

	assert.Equal(t, "mysql", cfg.Type)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 3306, cfg.Port)
	assert.Equal(t, 10, cfg.ConnectionLimit)
	assert.Equal(t, 10, cfg.MaxIdleConns)
	assert.Equal(t, time.Hour, cfg.ConnMaxLifetime)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
}

func TestMysqlDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database = "app"
	cfg.Password = "secret"

	dsn := cfg.DSN()
	assert.Contains(t, dsn, "root:secret@tcp(localhost:3306)/app")
	assert.Contains(t, dsn, "charset=utf8mb4")
	// DateStrings on means the driver must not parse temporal columns.
	assert.Contains(t, dsn, "parseTime=false")
	assert.Contains(t, dsn, "loc=Local")

	cfg.DateStrings = false
	cfg.Timezone = "Asia/Shanghai"
	dsn = cfg.DSN()
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "loc=Asia%2FShanghai")
}

func TestPostgresDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Type = "postgres"
	cfg.Port = 5432
	cfg.Database = "app"

	dsn := cfg.DSN()
	assert.Contains(t, dsn, "postgres://root:@localhost:5432/app")
	assert.Contains(t, dsn, "sslmode=disable")

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}

func TestSqliteDSN(t *testing.T) {
	cfg := &Config{Type: "sqlite", Database: ":memory:"}
	assert.Equal(t, "file::memory:?cache=shared", cfg.DSN())

	cfg.Database = "local"
	assert.Equal(t, "local.db", cfg.DSN())
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "database.yaml")
	content := []byte(`
type: postgres
host: db.internal
port: 5432
user: svc
password: secret
database: app
connection_limit: 25
connect_timeout: 3s
statement_timeout: 45s
enable_query_log: true
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Type)
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "svc", cfg.User)
	assert.Equal(t, "app", cfg.Database)
	assert.Equal(t, 25, cfg.ConnectionLimit)
	assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 45*time.Second, cfg.StatementTimeout)
	assert.True(t, cfg.EnableQueryLog)

	// Absent keys keep their defaults.
	assert.Equal(t, "utf8mb4", cfg.Charset)
	assert.True(t, cfg.DateStrings)
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "database.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: app\nconnect_timeout: soon\n"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duration")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "database.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: app\nhost: filehost\n"), 0o600))

	t.Setenv("DB_HOST", "envhost")
	t.Setenv("DB_PORT", "13306")
	t.Setenv("DB_USERNAME", "envuser")
	t.Setenv("DB_PASSWORD", "envpass")
	t.Setenv("DB_NAME", "envdb")
	t.Setenv("DB_CONNECTION_LIMIT", "42")
	t.Setenv("DB_CONN_MAX_LIFETIME", "120")
	t.Setenv("DB_ENABLE_QUERY_LOG", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "envhost", cfg.Host)
	assert.Equal(t, 13306, cfg.Port)
	assert.Equal(t, "envuser", cfg.User)
	assert.Equal(t, "envpass", cfg.Password)
	assert.Equal(t, "envdb", cfg.Database)
	assert.Equal(t, 42, cfg.ConnectionLimit)
	assert.Equal(t, 120*time.Second, cfg.ConnMaxLifetime)
	assert.True(t, cfg.EnableQueryLog)
}
