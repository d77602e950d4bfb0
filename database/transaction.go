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

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/tomoncle/coredb/database"
	txSpanName = "coredb/tx"
)

// TxFunc is a unit of work. Every statement it issues must go through tx.
type TxFunc func(ctx context.Context, tx bun.Tx) error

// TxRunner runs units of work inside a transaction: one begin, then exactly
// one commit or rollback per call.
type TxRunner struct {
	db        *bun.DB
	txOptions *sql.TxOptions
	logger    Logger
	metrics   *TxMetrics
	tracer    trace.Tracer
}

type TxRunnerOption func(*TxRunner)

// WithTxOptions sets the isolation level and read-only flag of every
// transaction.
func WithTxOptions(opts *sql.TxOptions) TxRunnerOption {
	return func(r *TxRunner) { r.txOptions = opts }
}

func WithTxLogger(logger Logger) TxRunnerOption {
	return func(r *TxRunner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithTxMetrics(metrics *TxMetrics) TxRunnerOption {
	return func(r *TxRunner) { r.metrics = metrics }
}

func WithTracer(tracer trace.Tracer) TxRunnerOption {
	return func(r *TxRunner) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// NewTxRunner returns a runner over db. Without options it uses default
// transaction options, the package logger, the global tracer provider and
// no metrics.
func NewTxRunner(db *bun.DB, opts ...TxRunnerOption) *TxRunner {
	r := &TxRunner{
		db:     db,
		logger: GetLogger(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DB returns the pool the runner opens transactions on.
func (r *TxRunner) DB() *bun.DB { return r.db }

// RunInTransaction begins a transaction and calls fn with it.
//
// If fn returns nil the transaction is committed and the commit error, if
// any, is returned as is; no rollback is attempted after a failed commit. If
// fn returns an error the transaction is rolled back and that same error
// value is returned; a failing rollback is only logged. If fn panics the
// transaction is rolled back and the panic continues. A begin failure is
// returned without calling fn.
func (r *TxRunner) RunInTransaction(ctx context.Context, fn TxFunc) error {
	ctx, span := r.tracer.Start(ctx, txSpanName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("db.system", r.db.Dialect().Name().String())),
	)
	defer span.End()

	tx, err := r.db.BeginTx(ctx, r.txOptions)
	if err != nil {
		r.finish(span, OutcomeBeginError, err)
		r.logger.Error("Failed to begin transaction", "error", err)
		return err
	}

	returned := false
	defer func() {
		if returned {
			return
		}
		// fn panicked or called runtime.Goexit
		p := recover()
		r.rollback(tx)
		r.finish(span, OutcomeRollback, fmt.Errorf("unit of work aborted: %v", p))
		if p != nil {
			panic(p)
		}
	}()

	fnErr := fn(ctx, tx)
	returned = true

	if fnErr != nil {
		r.rollback(tx)
		r.finish(span, OutcomeRollback, fnErr)
		r.logger.Debug("Transaction rolled back", "error", fnErr)
		return fnErr
	}

	if err := tx.Commit(); err != nil {
		r.finish(span, OutcomeCommitError, err)
		r.logger.Error("Failed to commit transaction", "error", err)
		return err
	}
	r.finish(span, OutcomeCommit, nil)
	r.logger.Debug("Transaction committed")
	return nil
}

// rollback does not take the caller's context: bun.Tx.Rollback is bound to
// the begin context and database/sql rolls back on its own when that context
// is canceled, in which case ErrTxDone is expected here.
func (r *TxRunner) rollback(tx bun.Tx) {
	err := tx.Rollback()
	switch {
	case err == nil:
	case errors.Is(err, sql.ErrTxDone):
		r.logger.Debug("Transaction already terminated before rollback")
	default:
		r.logger.Error("Failed to roll back transaction", "error", err)
	}
}

func (r *TxRunner) finish(span trace.Span, outcome string, err error) {
	r.metrics.observe(outcome)
	span.SetAttributes(attribute.String("coredb.tx.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
}

// RunInTransaction runs fn through r and returns its result. The zero value
// is returned together with any error, including a commit failure.
func RunInTransaction[T any](ctx context.Context, r *TxRunner, fn func(ctx context.Context, tx bun.Tx) (T, error)) (T, error) {
	var result T
	err := r.RunInTransaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		v, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
