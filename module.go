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
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"

	"github.com/tomoncle/coredb/apperror"
	"github.com/tomoncle/coredb/database"
	"github.com/tomoncle/coredb/repository"
	"github.com/tomoncle/coredb/utils"
)

// ErrModuleDisabled is returned by ForRootAsync when DB_ENABLED is false.
var ErrModuleDisabled = errors.New("database module disabled by DB_ENABLED")

// ConfigFactory supplies the connection settings when the module starts.
type ConfigFactory func(ctx context.Context) (*database.ConnectionConfig, error)

// ModuleOptions configures ForRootAsync.
type ModuleOptions struct {
	// Factory defaults to database.LoadConfig for the current APP_ENV
	// without a config file.
	Factory ConfigFactory
	// Models are struct pointers registered with bun in order.
	Models []any
	// CreateTables creates missing tables for Models after connecting.
	CreateTables bool
	Logger       database.Logger
	// Registerer receives the transaction counters and pool statistics.
	// Nil disables metrics.
	Registerer prometheus.Registerer
	TxOptions  *sql.TxOptions
}

// Module owns a connection and the transaction runner built on it.
type Module struct {
	manager database.Manager
	tx      *database.TxRunner
	models  []database.SQLModel
	logger  database.Logger

	closeOnce sync.Once
	closeErr  error
}

// Enabled reports whether DB_ENABLED allows the module to start.
func Enabled() bool {
	return utils.EnvDefaultBool("DB_ENABLED", true)
}

// ForRootAsync builds a module: it resolves the configuration through the
// factory, connects, registers models and sets up the transaction runner.
// Connection failures are returned as CONNECTION_FAILED or
// CONNECTION_TIMEOUT application errors.
func ForRootAsync(ctx context.Context, opts ModuleOptions) (*Module, error) {
	if !Enabled() {
		return nil, ErrModuleDisabled
	}
	logger := opts.Logger
	if logger == nil {
		logger = database.GetLogger()
	}
	factory := opts.Factory
	if factory == nil {
		factory = func(context.Context) (*database.ConnectionConfig, error) {
			return database.LoadConfig("", database.CurrentEnvironment())
		}
	}

	cfg, err := factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database config: %w", err)
	}
	if cfg == nil {
		return nil, errors.New("database configuration cannot be empty")
	}

	manager := database.NewManager(cfg, logger)
	if err := manager.Connect(ctx); err != nil {
		return nil, connectError(err)
	}

	m := &Module{manager: manager, logger: logger}
	if err := m.init(ctx, opts); err != nil {
		_ = manager.Disconnect()
		return nil, err
	}
	logger.Info("Database module started", "dialect", cfg.Dialect, "database", cfg.Database, "models", len(m.models))
	return m, nil
}

// connectError reports every connect failure as a connection error, keeping
// CONNECTION_TIMEOUT when the driver or context timed out.
func connectError(err error) error {
	if apperror.CodeOf(database.TranslateError(err)) == apperror.CodeConnectionTimeout {
		return apperror.New(apperror.CodeConnectionTimeout, apperror.WithCause(err))
	}
	return apperror.New(apperror.CodeConnectionFailed, apperror.WithCause(err))
}

func (m *Module) init(ctx context.Context, opts ModuleOptions) error {
	for i, model := range opts.Models {
		m.models = append(m.models, database.NewModelAdapter(model, i))
	}
	if err := database.RegisterModels(m.manager.DB(), m.models); err != nil {
		return err
	}
	if opts.CreateTables {
		if err := database.CreateTables(ctx, m.manager.DB(), m.models); err != nil {
			return database.TranslateError(err)
		}
	}

	metrics, err := database.NewTxMetrics(opts.Registerer)
	if err != nil {
		return fmt.Errorf("failed to register transaction metrics: %w", err)
	}
	if err := database.RegisterDBStats(opts.Registerer, m.manager); err != nil {
		return fmt.Errorf("failed to register pool metrics: %w", err)
	}
	m.tx = database.NewTxRunner(m.manager.DB(),
		database.WithTxOptions(opts.TxOptions),
		database.WithTxLogger(m.logger),
		database.WithTxMetrics(metrics),
	)
	return nil
}

func (m *Module) DB() *bun.DB { return m.manager.DB() }

func (m *Module) Tx() *database.TxRunner { return m.tx }

func (m *Module) Manager() database.Manager { return m.manager }

// Close disconnects once; later calls return the first result.
func (m *Module) Close() error {
	m.closeOnce.Do(func() {
		m.closeErr = m.manager.Disconnect()
	})
	return m.closeErr
}

// NewRepository returns a repository for T on the module connection.
func NewRepository[T any](m *Module) repository.Repository[T] {
	return repository.New[T](m.DB())
}
