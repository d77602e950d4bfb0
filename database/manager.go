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
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/sethvargo/go-retry"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

var ErrNotConnected = errors.New("database not connected")

type defaultManager struct {
	config    ConnectionConfig
	db        *bun.DB
	sqlDB     *sql.DB
	logger    Logger
	mu        sync.RWMutex
	connected bool
	lastError error
}

// NewManager returns a Manager for config. A nil config uses
// DefaultConnectionConfig and a nil logger the package logger.
func NewManager(config *ConnectionConfig, logger Logger) Manager {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	return &defaultManager{
		config: *config,
		logger: loggerOrDefault(logger),
	}
}

// Connect opens the pool and pings it, retrying with exponential backoff up
// to ConnectRetries times. Calling Connect on a connected manager is a no-op.
func (dm *defaultManager) Connect(ctx context.Context) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.connected && dm.db != nil {
		return nil
	}
	if err := dm.config.Validate(); err != nil {
		return fmt.Errorf("invalid connection config: %w", err)
	}

	sqlDB, db, err := dm.createConnection()
	if err != nil {
		dm.lastError = err
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	dm.configureConnectionPool(sqlDB)

	if err := dm.pingWithRetry(ctx, db); err != nil {
		dm.lastError = err
		_ = db.Close()
		return fmt.Errorf("database connection test failed: %w", err)
	}

	dm.sqlDB, dm.db = sqlDB, db
	dm.connected = true
	dm.lastError = nil
	dm.logger.Info("Database connected successfully",
		"dialect", dm.config.Dialect, "host", dm.config.Host, "database", dm.config.Database)
	return nil
}

func (dm *defaultManager) pingWithRetry(ctx context.Context, db *bun.DB) error {
	interval := dm.config.RetryInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	backoff := retry.WithMaxRetries(dm.config.ConnectRetries, retry.NewExponential(interval))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		pingCtx := ctx
		if dm.config.ConnectTimeout > 0 {
			var cancel context.CancelFunc
			pingCtx, cancel = context.WithTimeout(ctx, dm.config.ConnectTimeout)
			defer cancel()
		}
		if err := db.PingContext(pingCtx); err != nil {
			dm.logger.Warn("Database ping failed", "attempt", attempt, "error", err)
			if isPermanentConnectError(err) {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
}

// isPermanentConnectError reports errors that another attempt cannot fix,
// such as bad credentials or an unknown database.
func isPermanentConnectError(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1044, 1045, 1049:
			return true
		}
	}
	return false
}

func (dm *defaultManager) createConnection() (*sql.DB, *bun.DB, error) {
	if dm.config.ConnectTimeout <= 0 {
		dm.config.ConnectTimeout = 30 * time.Second
	}

	var (
		sqlDB *sql.DB
		db    *bun.DB
		err   error
	)
	switch dm.config.Dialect {
	case DialectMySQL:
		sqlDB, err = sql.Open("mysql", MySQLDSN(&dm.config))
		if err == nil {
			db = bun.NewDB(sqlDB, mysqldialect.New())
		}
	case DialectPostgres, "postgresql":
		sqlDB, err = sql.Open("postgres", PostgresDSN(&dm.config))
		if err == nil {
			db = bun.NewDB(sqlDB, pgdialect.New())
		}
	case DialectSQLite, "sqlite3":
		sqlDB, err = sql.Open(sqliteshim.ShimName, SQLiteDSN(&dm.config))
		if err == nil {
			db = bun.NewDB(sqlDB, sqlitedialect.New())
		}
	default:
		return nil, nil, fmt.Errorf("unsupported database dialect: %s", dm.config.Dialect)
	}
	if err != nil {
		return nil, nil, err
	}

	db.AddQueryHook(&CallbackHook{})
	if dm.config.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	if dm.config.SlowQueryTime > 0 {
		db.AddQueryHook(NewSlowQueryHook(dm.config.SlowQueryTime, dm.logger))
	}
	return sqlDB, db, nil
}

// MySQLDSN renders the go-sql-driver DSN for config. clientFoundRows makes
// UPDATE report matched rows, so an update that changes nothing still counts.
func MySQLDSN(config *ConnectionConfig) string {
	cfg := mysql.NewConfig()
	cfg.User = config.Username
	cfg.Passwd = config.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	cfg.DBName = config.Database
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	cfg.Timeout = config.ConnectTimeout
	cfg.ReadTimeout = config.ReadTimeout
	cfg.WriteTimeout = config.WriteTimeout
	charset := config.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	_ = cfg.Apply(mysql.Charset(charset, ""))
	return cfg.FormatDSN()
}

func PostgresDSN(config *ConnectionConfig) string {
	sslMode := config.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	if config.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(config.ConnectTimeout.Seconds())))
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(config.Username, config.Password),
		Host:     net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		Path:     "/" + config.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// SQLiteDSN maps Database to a file name. ":memory:" and "file:" URIs are
// used verbatim.
func SQLiteDSN(config *ConnectionConfig) string {
	name := config.Database
	switch {
	case name == ":memory:", strings.HasPrefix(name, "file:"), strings.HasSuffix(name, ".db"):
		return name
	}
	return name + ".db"
}

func (dm *defaultManager) configureConnectionPool(sqlDB *sql.DB) {
	sqlDB.SetMaxIdleConns(dm.config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(dm.config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(dm.config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(dm.config.ConnMaxIdleTime)
}

func (dm *defaultManager) Disconnect() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.db == nil {
		return nil
	}
	err := dm.db.Close()
	dm.db = nil
	dm.sqlDB = nil
	dm.connected = false
	if err != nil {
		dm.logger.Error("Failed to close database connection", "error", err)
	} else {
		dm.logger.Info("Database connection closed")
	}
	return err
}

func (dm *defaultManager) Ping(ctx context.Context) error {
	dm.mu.RLock()
	db := dm.db
	dm.mu.RUnlock()

	if db == nil {
		return ErrNotConnected
	}
	return db.PingContext(ctx)
}

func (dm *defaultManager) DB() *bun.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.db
}

func (dm *defaultManager) SQLDB() *sql.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.sqlDB
}

func (dm *defaultManager) Config() ConnectionConfig {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.config
}

func (dm *defaultManager) HealthCheck(ctx context.Context) *HealthStatus {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	start := time.Now()
	status := &HealthStatus{
		LastCheckTime: start,
		Connected:     dm.connected,
	}
	if dm.db == nil {
		status.LastError = ErrNotConnected.Error()
		return status
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	err := dm.db.PingContext(ctxTimeout)
	status.ResponseTime = time.Since(start)
	if err != nil {
		status.Connected = false
		status.LastError = err.Error()
		dm.lastError = err
	} else {
		status.Healthy = true
		status.Connected = true
		dm.lastError = nil
	}

	stats := dm.sqlDB.Stats()
	status.ActiveConns = stats.InUse
	status.IdleConns = stats.Idle
	status.MaxOpenConns = stats.MaxOpenConnections
	return status
}

func (dm *defaultManager) Stats() *DBStats {
	dm.mu.RLock()
	sqlDB := dm.sqlDB
	dm.mu.RUnlock()

	if sqlDB == nil {
		return &DBStats{}
	}
	stats := sqlDB.Stats()
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}
