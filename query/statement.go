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
	"strings"

	"github.com/tomoncle/sparrow/database"
)

// Predicate connectives. The first fragment in a WHERE clause carries
// none; every later fragment joins with its own.
const (
	conjAnd = "AND"
	conjOr  = "OR"
)

type predicateKind int

const (
	predicateEq predicateKind = iota
	predicateIn
	predicateBetween
	predicateLike
	predicateNull
	predicateRaw
)

// predicate is one WHERE fragment. Each variant carries its own bound
// values, so placeholder text and parameters stay paired structurally
// and render together in a single pass.
type predicate struct {
	kind    predicateKind
	conj    string
	column  string
	negated bool // NOT IN, IS NOT NULL
	values  []interface{}
	expr    string // raw fragment text, placeholders included
}

type joinSpec struct {
	kind  string // "INNER JOIN" or "LEFT JOIN"
	table string
	on    string
}

type orderSpec struct {
	column    string
	direction string // "ASC" or "DESC"
}

// Statement is the in-memory form of one SQL statement: clauses only,
// no connection, no side effects. Builders mutate it, the renderer
// serializes it, and nothing here ever touches the database.
type Statement struct {
	table      string
	columns    []string
	distinct   bool
	predicates []predicate
	joins      []joinSpec
	groupBy    []string
	orders     []orderSpec
	limit      int // -1 when unset
	offset     int // -1 when unset
	lock       string
	err        error
}

func newStatement(table string) *Statement {
	return &Statement{table: table, limit: -1, offset: -1}
}

// fail records the first construction error; rendering and terminal
// calls surface it before any SQL is produced.
func (s *Statement) fail(op, reason string) {
	if s.err == nil {
		s.err = &database.ValidationError{Op: op, Reason: reason}
	}
}

// clone deep-copies the statement. Aggregate and fetch-one derivations
// render against clones so substitutions never leak back.
func (s *Statement) clone() *Statement {
	out := &Statement{
		table:    s.table,
		distinct: s.distinct,
		limit:    s.limit,
		offset:   s.offset,
		lock:     s.lock,
		err:      s.err,
	}
	out.columns = append([]string(nil), s.columns...)
	out.groupBy = append([]string(nil), s.groupBy...)
	out.joins = append([]joinSpec(nil), s.joins...)
	out.orders = append([]orderSpec(nil), s.orders...)
	out.predicates = make([]predicate, len(s.predicates))
	for i, p := range s.predicates {
		cp := p
		cp.values = append([]interface{}(nil), p.values...)
		out.predicates[i] = cp
	}
	return out
}

// reset clears every clause and any recorded error, keeping the table.
func (s *Statement) reset() {
	*s = Statement{table: s.table, limit: -1, offset: -1}
}

func normalizeDirection(direction string) string {
	if strings.EqualFold(strings.TrimSpace(direction), "desc") {
		return "DESC"
	}
	return "ASC"
}
