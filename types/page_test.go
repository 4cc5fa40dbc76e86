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

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageRequestNormalization(t *testing.T) {
	tests := []struct {
		name       string
		page       int
		pageSize   int
		wantPage   int
		wantSize   int
		wantOffset int
	}{
		{"first page default size", 1, 10, 1, 10, 0},
		{"second page of twenty", 2, 20, 2, 20, 20},
		{"zero page floors to one", 0, 10, 1, 10, 0},
		{"negative page floors to one", -3, 10, 1, 10, 0},
		{"zero size floors to ten", 5, 0, 5, 10, 40},
		{"negative size floors to ten", 1, -8, 1, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewDefaultPageRequest(tt.page, tt.pageSize)
			assert.Equal(t, tt.wantPage, req.GetPage())
			assert.Equal(t, tt.wantSize, req.GetPageSize())
			assert.Equal(t, tt.wantOffset, req.GetOffset())
		})
	}
}

func TestPageRequestFilterAndOrders(t *testing.T) {
	filter := NewQueryFilter("status = ? AND age > ?", "active", 18)
	req := NewPageRequest(1, 10, filter, []string{"id DESC"})

	assert.Equal(t, "status = ? AND age > ?", req.GetFilter().Schema)
	assert.Equal(t, []interface{}{"active", 18}, req.GetFilter().Args)
	assert.Equal(t, []string{"id DESC"}, req.GetOrders())
}

func TestPaginationTotalPages(t *testing.T) {
	tests := []struct {
		name        string
		page        int
		pageSize    int
		total       int64
		wantPages   int
		wantHasMore bool
	}{
		{"45 rows at 20 per page", 2, 20, 45, 3, true},
		{"exact multiple", 1, 10, 30, 3, true},
		{"last page", 3, 10, 30, 3, false},
		{"single partial page", 1, 10, 7, 1, false},
		{"no rows", 1, 10, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPagination[int](tt.page, tt.pageSize, tt.total, nil)
			assert.Equal(t, tt.wantPages, p.TotalPages)
			assert.Equal(t, tt.wantHasMore, p.HasMore())
			assert.NotNil(t, p.Items)
		})
	}
}

func TestPaginationKeepsItems(t *testing.T) {
	p := NewPagination[string](1, 2, 3, []string{"a", "b"})
	assert.Equal(t, []string{"a", "b"}, p.Items)
	assert.Equal(t, int64(3), p.Total)
	assert.Equal(t, 2, p.TotalPages)
}
