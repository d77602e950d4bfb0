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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type tenant struct {
	bun.BaseModel `bun:"table:tenants"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull"`
}

type member struct {
	bun.BaseModel `bun:"table:members"`

	ID       int64  `bun:"id,pk,autoincrement"`
	TenantID int64  `bun:"tenant_id,notnull"`
	Email    string `bun:"email,unique"`
}

func TestModelRegistry(t *testing.T) {
	t.Run("Should order models by priority keeping registration order on ties", func(t *testing.T) {
		r := NewModelRegistry()
		first := NewModelAdapter(&member{}, 2)
		second := NewModelAdapter(&tenant{}, 1)
		third := NewModelAdapter(&member{}, 2)
		r.Register(first)
		r.Register(second)
		r.Register(third)

		models := r.Models()
		require.Len(t, models, 3)
		assert.Same(t, second, models[0])
		assert.Same(t, first, models[1])
		assert.Same(t, third, models[2])
	})

	t.Run("Should unwrap instances", func(t *testing.T) {
		tn := &tenant{}
		assert.Equal(t, []interface{}{tn}, ModelInstances([]SQLModel{NewModelAdapter(tn, 0)}))
	})
}

func TestRegisterModels(t *testing.T) {
	t.Run("Should reject values that are not struct pointers", func(t *testing.T) {
		m := connectSQLite(t)
		err := RegisterModels(m.DB(), []SQLModel{NewModelAdapter(tenant{}, 0)})
		assert.ErrorContains(t, err, "must be a struct pointer")

		err = RegisterModels(m.DB(), []SQLModel{NewModelAdapter(new(int), 0)})
		assert.Error(t, err)
	})

	t.Run("Should accept struct pointers", func(t *testing.T) {
		m := connectSQLite(t)
		assert.NoError(t, RegisterModels(m.DB(), []SQLModel{NewModelAdapter(&tenant{}, 0)}))
		assert.NoError(t, RegisterModels(m.DB(), nil))
	})
}

func TestCreateTables(t *testing.T) {
	t.Run("Should create missing tables and leave existing ones", func(t *testing.T) {
		m := connectSQLite(t)
		ctx := context.Background()
		models := []SQLModel{NewModelAdapter(&tenant{}, 0), NewModelAdapter(&member{}, 1)}

		require.NoError(t, CreateTables(ctx, m.DB(), models))
		_, err := m.DB().NewInsert().Model(&tenant{Name: "acme"}).Exec(ctx)
		require.NoError(t, err)

		require.NoError(t, CreateTables(ctx, m.DB(), models))
		count, err := m.DB().NewSelect().Model((*tenant)(nil)).Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		assert.True(t, tableExists(t, m, "members"))
	})
}
