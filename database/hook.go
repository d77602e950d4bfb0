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
	"time"

	"github.com/uptrace/bun"
)

// QueryLogFunc receives a statement and the time it took.
type QueryLogFunc func(query string, elapsed time.Duration)

type queryLogKey struct{}

// WithQueryLog returns a context whose statements are reported to fn by
// CallbackHook. A nil fn returns ctx unchanged.
func WithQueryLog(ctx context.Context, fn QueryLogFunc) context.Context {
	if fn == nil {
		return ctx
	}
	return context.WithValue(ctx, queryLogKey{}, fn)
}

// QueryLogFrom returns the function installed by WithQueryLog, if any.
func QueryLogFrom(ctx context.Context) QueryLogFunc {
	fn, _ := ctx.Value(queryLogKey{}).(QueryLogFunc)
	return fn
}

// CallbackHook forwards every statement executed with a WithQueryLog context
// to its callback. Manager installs it on each connection; a bun.DB built by
// hand needs db.AddQueryHook(&CallbackHook{}).
type CallbackHook struct{}

var _ bun.QueryHook = (*CallbackHook)(nil)

func (h *CallbackHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *CallbackHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if fn := QueryLogFrom(ctx); fn != nil {
		fn(event.Query, time.Since(event.StartTime))
	}
}

// SlowQueryHook warns about successful statements slower than its threshold.
type SlowQueryHook struct {
	threshold time.Duration
	logger    Logger
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

func NewSlowQueryHook(threshold time.Duration, logger Logger) *SlowQueryHook {
	return &SlowQueryHook{threshold: threshold, logger: loggerOrDefault(logger)}
}

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if event.Err != nil {
		return
	}
	duration := time.Since(event.StartTime)
	if duration > h.threshold {
		h.logger.Warn("Database slow query detected",
			"duration", duration.Round(time.Microsecond),
			"slow_threshold", h.threshold,
			"operation", event.Operation(),
			"query", event.Query,
		)
	}
}
