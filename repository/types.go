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

package repository

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/tomoncle/coredb/types"
)

// Options controls one repository call. The zero value runs on the
// repository's own connection without filtering.
type Options struct {
	// Filter restricts the rows a call reads, updates or deletes.
	Filter *types.QueryFilter
	// Tx, when set, carries every statement of the call, usually a bun.Tx
	// handed out by database.TxRunner.
	Tx bun.IDB
	// Logging receives each statement of the call with its duration.
	Logging func(query string, elapsed time.Duration)
	Limit   int
	Offset  int
	// Orders such as "name ASC" or "created_at DESC".
	Orders []string
}

// Values maps column names to new values.
type Values map[string]any

// CrudRepository defines basic CRUD operations for a generic entity type.
type CrudRepository[T any] interface {
	FindByID(ctx context.Context, id any, opts Options) (*T, error)

	Create(ctx context.Context, entity *T, opts Options) (*T, error)

	BulkCreate(ctx context.Context, entities []*T, opts Options) ([]*T, error)

	UpdateByID(ctx context.Context, id any, values Values, opts Options) (*T, error)

	DeleteByID(ctx context.Context, id any, opts Options) (int64, error)
}

// QueryRepository defines the filter based operations.
type QueryRepository[T any] interface {
	FindOne(ctx context.Context, opts Options) (*T, error)

	FindAll(ctx context.Context, opts Options) ([]*T, error)

	Count(ctx context.Context, opts Options) (int, error)

	Exists(ctx context.Context, opts Options) (bool, error)

	Update(ctx context.Context, values Values, opts Options) (int64, []*T, error)

	Delete(ctx context.Context, opts Options) (int64, error)
}

// PageQueryRepository defines pagination functionality for listing entities.
type PageQueryRepository[T any] interface {
	Page(ctx context.Context, page *types.PageRequest, opts Options) (*types.Pagination[T], error)
}

// Repository combines CRUD, filtered queries, pagination and upsert, and
// exposes the connection for queries the interface does not cover.
type Repository[T any] interface {
	CrudRepository[T]
	QueryRepository[T]
	PageQueryRepository[T]
	// Upsert inserts entities, updating fields on rows that collide on
	// conflictKeys (ignored on MySQL, which uses the table's unique keys).
	Upsert(ctx context.Context, entities []*T, fields []string, conflictKeys []string, opts Options) error
	DB() bun.IDB
}
