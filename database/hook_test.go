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
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
)

func TestEnableSqlSilentMutesQueryHook(t *testing.T) {
	t.Setenv("SPARROW_SQL", "2")
	t.Cleanup(func() { EnableSqlSilent(false) })

	var buf bytes.Buffer
	hook := NewQueryHook(true)
	hook.writer = &buf
	event := &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()}

	EnableSqlSilent(true)
	hook.AfterQuery(context.Background(), event)
	assert.Zero(t, buf.Len(), "silent mode beats any configuration")

	EnableSqlSilent(false)
	hook.AfterQuery(context.Background(), event)
	assert.Contains(t, buf.String(), "SELECT 1")
}

func TestQueryHookPrintsFailuresOnly(t *testing.T) {
	t.Setenv("SPARROW_SQL", "1")

	var buf bytes.Buffer
	hook := NewQueryHook(false)
	hook.writer = &buf

	hook.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	hook.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 2", StartTime: time.Now(), Err: sql.ErrNoRows})
	assert.Zero(t, buf.Len(), "successful and no-rows statements stay quiet without verbose")

	hook.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT broken", StartTime: time.Now(), Err: errors.New("syntax error")})
	out := buf.String()
	assert.Contains(t, out, "SELECT broken")
	assert.Contains(t, out, "syntax error")
}

func TestQueryHookEnvKillSwitch(t *testing.T) {
	t.Setenv("SPARROW_SQL", "0")

	var buf bytes.Buffer
	hook := NewQueryHook(true)
	hook.writer = &buf

	hook.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	assert.Zero(t, buf.Len())
}

type recordingLogger struct {
	warns []string
}

func (r *recordingLogger) SetLevel(LogLevel)                       {}
func (r *recordingLogger) Debug(msg string, fields ...interface{}) {}
func (r *recordingLogger) Info(msg string, fields ...interface{})  {}
func (r *recordingLogger) Warn(msg string, fields ...interface{})  { r.warns = append(r.warns, msg) }
func (r *recordingLogger) Error(msg string, fields ...interface{}) {}

func TestSlowQueryHook(t *testing.T) {
	rec := &recordingLogger{}
	hook := NewSlowQueryHook(50*time.Millisecond, rec)

	hook.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	assert.Empty(t, rec.warns, "fast statements pass unremarked")

	slow := &bun.QueryEvent{Query: "SELECT heavy", StartTime: time.Now().Add(-time.Second)}
	hook.AfterQuery(context.Background(), slow)
	assert.Len(t, rec.warns, 1)

	EnableSqlSilent(true)
	t.Cleanup(func() { EnableSqlSilent(false) })
	hook.AfterQuery(context.Background(), slow)
	assert.Len(t, rec.warns, 1, "silent mode mutes the slow-query warning too")
}
