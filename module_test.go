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
package coredb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/tomoncle/coredb/apperror"
	"github.com/tomoncle/coredb/database"
	"github.com/tomoncle/coredb/repository"
)

type Account struct {
	bun.BaseModel `bun:"table:accounts"`

	ID      int64  `bun:"id,pk,autoincrement"`
	Owner   string `bun:"owner,notnull"`
	Balance int64  `bun:"balance,notnull"`
}

func sqliteFactory(t *testing.T) ConfigFactory {
	t.Helper()
	path := filepath.Join(t.TempDir(), "module.db")
	return func(context.Context) (*database.ConnectionConfig, error) {
		cfg := database.DefaultConnectionConfig()
		cfg.Dialect = database.DialectSQLite
		cfg.Database = path
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnectRetries = 0
		return cfg, nil
	}
}

func TestForRootAsync(t *testing.T) {
	ctx := context.Background()

	t.Run("Should refuse to start when disabled", func(t *testing.T) {
		t.Setenv("DB_ENABLED", "false")
		m, err := ForRootAsync(ctx, ModuleOptions{Factory: sqliteFactory(t)})
		assert.ErrorIs(t, err, ErrModuleDisabled)
		assert.Nil(t, m)
	})

	t.Run("Should connect create tables and run transactions", func(t *testing.T) {
		t.Setenv("DB_ENABLED", "true")
		reg := prometheus.NewRegistry()
		m, err := ForRootAsync(ctx, ModuleOptions{
			Factory:      sqliteFactory(t),
			Models:       []any{(*Account)(nil)},
			CreateTables: true,
			Logger:       database.NopLogger{},
			Registerer:   reg,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = m.Close() })

		require.NotNil(t, m.DB())
		require.NotNil(t, m.Tx())
		assert.True(t, m.Manager().HealthCheck(ctx).Healthy)

		accounts := NewRepository[Account](m)
		err = m.Tx().RunInTransaction(ctx, func(ctx context.Context, tx bun.Tx) error {
			_, err := accounts.Create(ctx, &Account{Owner: "alice", Balance: 10}, repository.Options{Tx: tx})
			return err
		})
		require.NoError(t, err)

		count, err := accounts.Count(ctx, repository.Options{})
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		transactions, err := testutil.GatherAndCount(reg, "coredb_transactions_total")
		require.NoError(t, err)
		assert.Equal(t, 1, transactions)
	})

	t.Run("Should report factory errors", func(t *testing.T) {
		factoryErr := errors.New("vault unavailable")
		_, err := ForRootAsync(ctx, ModuleOptions{
			Factory: func(context.Context) (*database.ConnectionConfig, error) { return nil, factoryErr },
		})
		assert.ErrorIs(t, err, factoryErr)

		_, err = ForRootAsync(ctx, ModuleOptions{
			Factory: func(context.Context) (*database.ConnectionConfig, error) { return nil, nil },
		})
		assert.Error(t, err)
	})

	t.Run("Should report connect failures as connection errors", func(t *testing.T) {
		_, err := ForRootAsync(ctx, ModuleOptions{
			Logger: database.NopLogger{},
			Factory: func(context.Context) (*database.ConnectionConfig, error) {
				return &database.ConnectionConfig{Dialect: "oracle", Database: "app"}, nil
			},
		})
		appErr, ok := apperror.As(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeConnectionFailed, appErr.Code)
		assert.Error(t, errors.Unwrap(appErr))
	})

	t.Run("Should reject models that are not struct pointers", func(t *testing.T) {
		_, err := ForRootAsync(ctx, ModuleOptions{
			Factory: sqliteFactory(t),
			Models:  []any{Account{}},
			Logger:  database.NopLogger{},
		})
		assert.ErrorContains(t, err, "must be a struct pointer")
	})
}

func TestModule_Close(t *testing.T) {
	t.Run("Should disconnect once", func(t *testing.T) {
		m, err := ForRootAsync(context.Background(), ModuleOptions{
			Factory: sqliteFactory(t),
			Logger:  database.NopLogger{},
		})
		require.NoError(t, err)

		require.NoError(t, m.Close())
		require.NoError(t, m.Close())
		assert.ErrorIs(t, m.Manager().Ping(context.Background()), database.ErrNotConnected)
	})
}
