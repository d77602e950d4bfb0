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
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/spf13/afero"

	"github.com/tomoncle/coredb/apperror"
	"github.com/tomoncle/coredb/migration"
)

// Only one migration run per process at a time.
var gooseMu sync.Mutex

// MigrationSource tells the MigrationManager where to find migration files.
type MigrationSource struct {
	// Fs is read only. Defaults to the OS filesystem.
	Fs      afero.Fs
	Roots   []string
	Pattern string
}

// MigrationStatus is the state of one discovered migration.
type MigrationStatus struct {
	Version   int64     `json:"version"`
	Package   string    `json:"package"`
	File      string    `json:"file"`
	Applied   bool      `json:"applied"`
	AppliedAt time.Time `json:"applied_at,omitempty"`
}

// MigrationResult is the outcome of one applied or rolled back migration.
type MigrationResult struct {
	Version   int64         `json:"version"`
	Package   string        `json:"package"`
	File      string        `json:"file"`
	Direction string        `json:"direction"`
	Duration  time.Duration `json:"duration"`
	Empty     bool          `json:"empty"`
}

// MigrationManager applies SQL migrations discovered across packages with
// goose. Every call rediscovers the files, so new files are picked up
// without rebuilding the manager.
type MigrationManager struct {
	db        *sql.DB
	dialect   string
	source    MigrationSource
	logger    Logger
	tableName string
}

type MigrationOption func(*MigrationManager)

// WithMigrationTable overrides the goose version table name.
func WithMigrationTable(name string) MigrationOption {
	return func(mm *MigrationManager) { mm.tableName = name }
}

// NewMigrationManager constructs a MigrationManager over the connection of m,
// which must be connected before any migration runs.
func NewMigrationManager(m Manager, source MigrationSource, logger Logger, opts ...MigrationOption) *MigrationManager {
	return NewMigrationManagerFromDB(m.SQLDB(), m.Config().Dialect, source, logger, opts...)
}

// NewMigrationManagerFromDB is NewMigrationManager for a bare connection.
func NewMigrationManagerFromDB(db *sql.DB, dialect string, source MigrationSource, logger Logger, opts ...MigrationOption) *MigrationManager {
	if source.Fs == nil {
		source.Fs = afero.NewOsFs()
	}
	if source.Pattern == "" {
		source.Pattern = migration.DefaultPattern
	}
	mm := &MigrationManager{
		db:      db,
		dialect: strings.ToLower(dialect),
		source:  source,
		logger:  loggerOrDefault(logger),
	}
	for _, opt := range opts {
		opt(mm)
	}
	return mm
}

// Discover lists the migration files of the configured roots in run order.
func (mm *MigrationManager) Discover() ([]migration.Descriptor, error) {
	descs, err := migration.Discover(mm.source.Fs, mm.source.Roots, mm.source.Pattern)
	if err != nil {
		return nil, apperror.MigrationFailed(err.Error())
	}
	return descs, nil
}

// Up applies every pending migration. A failing migration stops the run;
// migrations applied before it stay applied.
func (mm *MigrationManager) Up(ctx context.Context) ([]MigrationResult, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	provider, planned, err := mm.provider()
	if err != nil || provider == nil {
		return nil, err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		var partial *goose.PartialError
		if errors.As(err, &partial) {
			mm.logResults(convertResults(partial.Applied, planned))
		}
		return nil, mm.failure(err, planned)
	}
	converted := convertResults(results, planned)
	mm.logResults(converted)
	mm.logger.Info("Database migrations completed!", "applied", len(converted))
	return converted, nil
}

// Down rolls back the most recently applied migration. It returns nil and no
// error when nothing is applied.
func (mm *MigrationManager) Down(ctx context.Context) (*MigrationResult, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	provider, planned, err := mm.provider()
	if err != nil || provider == nil {
		return nil, err
	}

	result, err := provider.Down(ctx)
	if errors.Is(err, goose.ErrNoNextVersion) {
		mm.logger.Info("No migration to roll back")
		return nil, nil
	}
	if err != nil {
		return nil, mm.failure(err, planned)
	}
	converted := convertResults([]*goose.MigrationResult{result}, planned)
	mm.logResults(converted)
	return &converted[0], nil
}

// Status reports every discovered migration with its applied state.
func (mm *MigrationManager) Status(ctx context.Context) ([]MigrationStatus, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	provider, planned, err := mm.provider()
	if err != nil || provider == nil {
		return []MigrationStatus{}, err
	}

	statuses, err := provider.Status(ctx)
	if err != nil {
		return nil, mm.failure(err, planned)
	}
	byVersion := plannedByVersion(planned)
	out := make([]MigrationStatus, 0, len(statuses))
	for _, s := range statuses {
		p := byVersion[s.Source.Version]
		out = append(out, MigrationStatus{
			Version:   s.Source.Version,
			Package:   p.Package,
			File:      p.Path,
			Applied:   s.State == goose.StateApplied,
			AppliedAt: s.AppliedAt,
		})
	}
	return out, nil
}

// EnsureNoPending returns a MIGRATION_PENDING error naming the first pending
// file when the database is behind the discovered migrations.
func (mm *MigrationManager) EnsureNoPending(ctx context.Context) error {
	statuses, err := mm.Status(ctx)
	if err != nil {
		return err
	}
	pending := make([]string, 0)
	for _, s := range statuses {
		if !s.Applied {
			pending = append(pending, s.File)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	return apperror.New(apperror.CodeMigrationPending,
		apperror.WithMessage(fmt.Sprintf("%d migration(s) pending, first: %s", len(pending), pending[0])),
		apperror.WithDetails(map[string]any{"pending": pending}),
	)
}

// provider returns a nil provider and no error when there is nothing to run.
// The provider is never closed: Close would close the shared *sql.DB.
func (mm *MigrationManager) provider() (*goose.Provider, []migration.Planned, error) {
	if mm.db == nil {
		return nil, nil, apperror.MigrationFailed("database not initialized")
	}
	dialect, err := gooseDialect(mm.dialect)
	if err != nil {
		return nil, nil, apperror.New(apperror.CodeMigrationFailed, apperror.WithMessage(err.Error()))
	}
	descs, err := mm.Discover()
	if err != nil {
		return nil, nil, err
	}
	if len(descs) == 0 {
		mm.logger.Info("No migration files found", "roots", strings.Join(mm.source.Roots, ","))
		return nil, nil, nil
	}
	planned, err := migration.Plan(descs)
	if err != nil {
		return nil, nil, apperror.MigrationFailed(err.Error())
	}
	staged, err := migration.Stage(descs, mm.source.Fs)
	if err != nil {
		return nil, nil, apperror.New(apperror.CodeMigrationFailed, apperror.WithCause(err))
	}

	opts := []goose.ProviderOption{
		goose.WithDisableGlobalRegistry(true),
		// packages merge by timestamp, so an older file can arrive late
		goose.WithAllowOutofOrder(true),
		goose.WithLogger(&gooseLogger{logger: mm.logger}),
		goose.WithVerbose(true),
	}
	if mm.tableName != "" {
		opts = append(opts, goose.WithTableName(mm.tableName))
	}
	provider, err := goose.NewProvider(dialect, mm.db, staged, opts...)
	if err != nil {
		return nil, nil, apperror.New(apperror.CodeMigrationFailed, apperror.WithCause(err))
	}
	return provider, planned, nil
}

func (mm *MigrationManager) failure(err error, planned []migration.Planned) error {
	details := map[string]any{}
	var partial *goose.PartialError
	if errors.As(err, &partial) && partial.Failed != nil && partial.Failed.Source != nil {
		version := partial.Failed.Source.Version
		details["version"] = version
		if p, ok := plannedByVersion(planned)[version]; ok {
			details["file"] = p.Path
		} else {
			details["file"] = partial.Failed.Source.Path
		}
	}
	appErr := apperror.New(apperror.CodeMigrationFailed,
		apperror.WithDetails(details),
		apperror.WithCause(err),
	)
	mm.logger.Error("Database migration failed", "error", err, "details", details)
	return appErr
}

func (mm *MigrationManager) logResults(results []MigrationResult) {
	for _, r := range results {
		mm.logger.Info("Migration executed successfully",
			"version", r.Version, "package", r.Package, "file", r.File,
			"direction", r.Direction, "duration", r.Duration)
	}
}

func convertResults(results []*goose.MigrationResult, planned []migration.Planned) []MigrationResult {
	byVersion := plannedByVersion(planned)
	out := make([]MigrationResult, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		p := byVersion[r.Source.Version]
		out = append(out, MigrationResult{
			Version:   r.Source.Version,
			Package:   p.Package,
			File:      p.Path,
			Direction: r.Direction,
			Duration:  r.Duration,
			Empty:     r.Empty,
		})
	}
	return out
}

func plannedByVersion(planned []migration.Planned) map[int64]migration.Planned {
	byVersion := make(map[int64]migration.Planned, len(planned))
	for _, p := range planned {
		byVersion[p.Version] = p
	}
	return byVersion
}

func gooseDialect(dialect string) (goose.Dialect, error) {
	switch dialect {
	case DialectMySQL:
		return goose.DialectMySQL, nil
	case DialectPostgres, "postgresql":
		return goose.DialectPostgres, nil
	case DialectSQLite, "sqlite3":
		return goose.DialectSQLite3, nil
	default:
		return "", fmt.Errorf("unsupported migration dialect: %s", dialect)
	}
}

// gooseLogger routes goose output through the package logger.
type gooseLogger struct {
	logger Logger
}

func (l *gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
