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
	"github.com/stretchr/testify/require"
)

func TestPageRequest(t *testing.T) {
	t.Run("Should clamp page and size", func(t *testing.T) {
		req := NewPageRequest(0, 0)
		assert.Equal(t, DefaultPage, req.GetPage())
		assert.Equal(t, DefaultPageSize, req.GetPageSize())
		assert.Equal(t, 0, req.GetOffset())

		req = NewPageRequest(3, MaxPageSize+1, "name ASC")
		assert.Equal(t, MaxPageSize, req.GetPageSize())
		assert.Equal(t, 2*MaxPageSize, req.GetOffset())
		assert.Equal(t, []string{"name ASC"}, req.GetOrders())
	})

	t.Run("Should count pages", func(t *testing.T) {
		p := NewPagination[struct{}](NewPageRequest(1, 10))
		assert.Equal(t, 0, p.Pages())
		assert.NotNil(t, p.Items)
		p.Total = 21
		assert.Equal(t, 3, p.Pages())
	})
}

func TestQueryFilter(t *testing.T) {
	t.Run("Should treat nil and blank filters as empty", func(t *testing.T) {
		var nilFilter *QueryFilter
		assert.True(t, nilFilter.IsEmpty())
		assert.True(t, NewQueryFilter("  ").IsEmpty())
		assert.False(t, NewQueryFilter("id = ?", 1).IsEmpty())
	})

	t.Run("Should combine filters with AND", func(t *testing.T) {
		combined := NewQueryFilter("a = ?", 1).And(NewQueryFilter("b IN (?, ?)", 2, 3))
		require.NotNil(t, combined)
		assert.Equal(t, "(a = ?) AND (b IN (?, ?))", combined.Schema)
		assert.Equal(t, []interface{}{1, 2, 3}, combined.Args)
	})

	t.Run("Should drop empty operands", func(t *testing.T) {
		f := NewQueryFilter("a = ?", 1)
		var empty *QueryFilter
		assert.Same(t, f, f.And(empty))
		assert.Same(t, f, empty.And(f))
		assert.Nil(t, empty.And(nil))
	})
}

func TestJsonObject(t *testing.T) {
	t.Run("Should scan text and bytes", func(t *testing.T) {
		var obj JsonObject
		require.NoError(t, obj.Scan(`{"a":1}`))
		assert.Equal(t, float64(1), obj["a"])
		require.NoError(t, obj.Scan([]byte(`{"b":"x"}`)))
		assert.Equal(t, "x", obj["b"])
		require.NoError(t, obj.Scan(nil))
		assert.Empty(t, obj)
		assert.Error(t, obj.Scan(42))
	})

	t.Run("Should render NULL for nil maps", func(t *testing.T) {
		v, err := JsonObject(nil).Value()
		require.NoError(t, err)
		assert.Nil(t, v)
		v, err = JsonObject{"k": "v"}.Value()
		require.NoError(t, err)
		assert.Equal(t, `{"k":"v"}`, v)
	})
}
