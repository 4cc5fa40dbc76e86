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
	"strconv"
	"strings"

	"github.com/tomoncle/sparrow/database"
	"github.com/tomoncle/sparrow/utils"
)

// render serializes a statement to SQL text and its ordered parameter
// list. The invariant: every placeholder in the text has its parameter
// at the same ordinal position in the returned slice. Clause order is
// fixed: SELECT, FROM, joins, WHERE, GROUP BY, ORDER BY, LIMIT/OFFSET,
// lock clause.
func render(s *Statement) (string, []interface{}, error) {
	if s.err != nil {
		return "", nil, s.err
	}
	if s.table == "" {
		return "", nil, &database.ValidationError{Op: "select", Reason: "missing table name"}
	}

	var sb strings.Builder
	args := make([]interface{}, 0, 8)

	sb.WriteString("SELECT ")
	if s.distinct {
		sb.WriteString("DISTINCT ")
	}
	if len(s.columns) == 0 {
		sb.WriteString("*")
	} else {
		sb.WriteString(strings.Join(s.columns, ", "))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(s.table)

	for _, j := range s.joins {
		sb.WriteString(" ")
		sb.WriteString(j.kind)
		sb.WriteString(" ")
		sb.WriteString(j.table)
		sb.WriteString(" ON ")
		sb.WriteString(j.on)
	}

	args = renderWhere(&sb, s.predicates, args)

	if len(s.groupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(s.groupBy, ", "))
	}

	if len(s.orders) > 0 {
		sb.WriteString(" ORDER BY ")
		for i, o := range s.orders {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(o.column)
			sb.WriteString(" ")
			sb.WriteString(o.direction)
		}
	}

	// An offset renders only together with a limit; the grammar has no
	// standalone OFFSET.
	if s.limit >= 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(s.limit))
		if s.offset >= 0 {
			sb.WriteString(" OFFSET ")
			sb.WriteString(strconv.Itoa(s.offset))
		}
	}

	if s.lock != "" {
		sb.WriteString(" ")
		sb.WriteString(s.lock)
	}

	return sb.String(), args, nil
}

func renderWhere(sb *strings.Builder, preds []predicate, args []interface{}) []interface{} {
	if len(preds) == 0 {
		return args
	}
	sb.WriteString(" WHERE ")
	for i, p := range preds {
		if i > 0 {
			sb.WriteString(" ")
			sb.WriteString(p.conj)
			sb.WriteString(" ")
		}
		switch p.kind {
		case predicateEq:
			if p.values[0] == nil {
				sb.WriteString(p.column)
				sb.WriteString(" IS NULL")
			} else {
				sb.WriteString(p.column)
				sb.WriteString(" = ?")
				args = append(args, p.values[0])
			}
		case predicateIn:
			op := "IN"
			if p.negated {
				op = "NOT IN"
			}
			sb.WriteString(fmt.Sprintf("%s %s (%s)", p.column, op, placeholders(len(p.values))))
			args = append(args, p.values...)
		case predicateBetween:
			sb.WriteString(p.column)
			sb.WriteString(" BETWEEN ? AND ?")
			args = append(args, p.values...)
		case predicateLike:
			sb.WriteString(p.column)
			sb.WriteString(" LIKE ?")
			args = append(args, p.values[0])
		case predicateNull:
			sb.WriteString(p.column)
			if p.negated {
				sb.WriteString(" IS NOT NULL")
			} else {
				sb.WriteString(" IS NULL")
			}
		case predicateRaw:
			sb.WriteString(p.expr)
			args = append(args, p.values...)
		}
	}
	return args
}

// renderInsert serializes INSERT INTO t (c1, c2) VALUES (?, ?). Columns
// render in sorted order so the text is deterministic for any map.
// The data must already be cleaned of nil values.
func renderInsert(table string, data map[string]interface{}) (string, []interface{}, error) {
	if len(data) == 0 {
		return "", nil, &database.ValidationError{Op: "insert", Reason: "empty row data"}
	}
	columns := utils.SortedKeys(data)
	args := make([]interface{}, 0, len(columns))
	for _, c := range columns {
		args = append(args, data[c])
	}
	sqlText := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), placeholders(len(columns)))
	return sqlText, args, nil
}

// renderUpdate serializes UPDATE t SET ... WHERE ... with SET
// parameters preceding WHERE parameters. A statement without
// conditions is refused before any SQL exists: an unguarded UPDATE
// would silently rewrite the whole table.
func renderUpdate(s *Statement, data map[string]interface{}) (string, []interface{}, error) {
	if s.err != nil {
		return "", nil, s.err
	}
	if len(data) == 0 {
		return "", nil, &database.ValidationError{Op: "update", Reason: "empty update data"}
	}
	if len(s.predicates) == 0 {
		return "", nil, &database.ValidationError{Op: "update", Reason: "refusing to update without conditions"}
	}

	var sb strings.Builder
	args := make([]interface{}, 0, len(data)+4)

	sb.WriteString("UPDATE ")
	sb.WriteString(s.table)
	sb.WriteString(" SET ")
	for i, c := range utils.SortedKeys(data) {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c)
		sb.WriteString(" = ?")
		args = append(args, data[c])
	}
	args = renderWhere(&sb, s.predicates, args)
	return sb.String(), args, nil
}

// renderDelete serializes DELETE FROM t WHERE ..., refusing the
// condition-free form for the same reason as update.
func renderDelete(s *Statement) (string, []interface{}, error) {
	if s.err != nil {
		return "", nil, s.err
	}
	if len(s.predicates) == 0 {
		return "", nil, &database.ValidationError{Op: "delete", Reason: "refusing to delete without conditions"}
	}

	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(s.table)
	args := renderWhere(&sb, s.predicates, make([]interface{}, 0, 4))
	return sb.String(), args, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
