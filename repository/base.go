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
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/coredb/apperror"
	"github.com/tomoncle/coredb/database"
	"github.com/tomoncle/coredb/types"
)

type baseRepositoryImpl[T any] struct {
	db bun.IDB
}

// New returns a repository for T over db. T must be a bun model struct.
func New[T any](db bun.IDB) Repository[T] {
	return &baseRepositoryImpl[T]{db: db}
}

func (r *baseRepositoryImpl[T]) DB() bun.IDB { return r.db }

// conn returns the handle a call runs on and a context carrying its logger.
func (r *baseRepositoryImpl[T]) conn(ctx context.Context, opts Options) (context.Context, bun.IDB) {
	ctx = database.WithQueryLog(ctx, opts.Logging)
	if opts.Tx != nil {
		return ctx, opts.Tx
	}
	return ctx, r.db
}

func (r *baseRepositoryImpl[T]) table(db bun.IDB) *schema.Table {
	return db.Dialect().Tables().Get(reflect.TypeOf((*T)(nil)).Elem())
}

func (r *baseRepositoryImpl[T]) pk(db bun.IDB) (*schema.Field, error) {
	table := r.table(db)
	if len(table.PKs) != 1 {
		return nil, apperror.InvalidQuery(
			fmt.Sprintf("%s must have exactly one primary key, found %d", table.TypeName, len(table.PKs)))
	}
	return table.PKs[0], nil
}

func applyFilter[Q interface {
	Where(string, ...interface{}) Q
}](q Q, filter *types.QueryFilter) Q {
	if filter.IsEmpty() {
		return q
	}
	return q.Where(filter.Schema, filter.Args...)
}

func (r *baseRepositoryImpl[T]) FindByID(ctx context.Context, id any, opts Options) (*T, error) {
	ctx, db := r.conn(ctx, opts)
	pk, err := r.pk(db)
	if err != nil {
		return nil, err
	}
	entity := new(T)
	err = db.NewSelect().Model(entity).Where("? = ?", pk.SQLName, id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T]) FindOne(ctx context.Context, opts Options) (*T, error) {
	ctx, db := r.conn(ctx, opts)
	entity := new(T)
	query := applyFilter(db.NewSelect().Model(entity), opts.Filter)
	if len(opts.Orders) > 0 {
		query = query.Order(opts.Orders...)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}
	err := query.Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T]) FindAll(ctx context.Context, opts Options) ([]*T, error) {
	ctx, db := r.conn(ctx, opts)
	entities := make([]*T, 0)
	query := applyFilter(db.NewSelect().Model(&entities), opts.Filter)
	if len(opts.Orders) > 0 {
		query = query.Order(opts.Orders...)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	return entities, nil
}

// Count ignores Limit, Offset and Orders.
func (r *baseRepositoryImpl[T]) Count(ctx context.Context, opts Options) (int, error) {
	ctx, db := r.conn(ctx, opts)
	return applyFilter(db.NewSelect().Model((*T)(nil)), opts.Filter).Count(ctx)
}

func (r *baseRepositoryImpl[T]) Exists(ctx context.Context, opts Options) (bool, error) {
	n, err := r.Count(ctx, opts)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Create inserts entity and fills in generated columns such as an auto
// increment key.
func (r *baseRepositoryImpl[T]) Create(ctx context.Context, entity *T, opts Options) (*T, error) {
	if entity == nil {
		return nil, apperror.InvalidQuery("entity must not be nil")
	}
	ctx, db := r.conn(ctx, opts)
	if _, err := db.NewInsert().Model(entity).Exec(ctx); err != nil {
		return nil, err
	}
	return entity, nil
}

// BulkCreate inserts all entities with one statement. Run it in a
// transaction for all-or-nothing semantics across engines.
func (r *baseRepositoryImpl[T]) BulkCreate(ctx context.Context, entities []*T, opts Options) ([]*T, error) {
	if len(entities) == 0 {
		return make([]*T, 0), nil
	}
	for i, entity := range entities {
		if entity == nil {
			return nil, apperror.InvalidQuery(fmt.Sprintf("entity at index %d must not be nil", i))
		}
	}
	ctx, db := r.conn(ctx, opts)
	if _, err := db.NewInsert().Model(&entities).Exec(ctx); err != nil {
		return nil, err
	}
	return entities, nil
}

// Update sets values on every row matching opts.Filter and reads the
// matching rows back with the same filter, transaction and logger.
func (r *baseRepositoryImpl[T]) Update(ctx context.Context, values Values, opts Options) (int64, []*T, error) {
	if opts.Filter.IsEmpty() {
		return 0, nil, apperror.InvalidQuery("update requires a filter")
	}
	qctx, db := r.conn(ctx, opts)
	query, err := r.newUpdate(db, values)
	if err != nil {
		return 0, nil, err
	}
	res, err := applyFilter(query, opts.Filter).Exec(qctx)
	if err != nil {
		return 0, nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil, err
	}
	entities, err := r.FindAll(ctx, Options{Filter: opts.Filter, Tx: opts.Tx, Logging: opts.Logging})
	if err != nil {
		return 0, nil, err
	}
	return affected, entities, nil
}

// UpdateByID returns RECORD_NOT_FOUND when no row has the key.
func (r *baseRepositoryImpl[T]) UpdateByID(ctx context.Context, id any, values Values, opts Options) (*T, error) {
	qctx, db := r.conn(ctx, opts)
	pk, err := r.pk(db)
	if err != nil {
		return nil, err
	}
	query, err := r.newUpdate(db, values)
	if err != nil {
		return nil, err
	}
	res, err := query.Where("? = ?", pk.SQLName, id).Exec(qctx)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, notFound(id)
	}
	entity, err := r.FindByID(ctx, id, Options{Tx: opts.Tx, Logging: opts.Logging})
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, notFound(id)
	}
	return entity, nil
}

func notFound(id any) error {
	return apperror.New(apperror.CodeRecordNotFound,
		apperror.WithMessage(fmt.Sprintf("Record with id %v not found", id)),
		apperror.WithDetails(map[string]any{"id": id}),
	)
}

// newUpdate builds an UPDATE of T setting values in column order.
func (r *baseRepositoryImpl[T]) newUpdate(db bun.IDB, values Values) (*bun.UpdateQuery, error) {
	if len(values) == 0 {
		return nil, apperror.InvalidQuery("no values to update")
	}
	table := r.table(db)
	columns := make([]string, 0, len(values))
	for column := range values {
		if !table.HasField(column) {
			return nil, apperror.New(apperror.CodeInvalidQuery,
				apperror.WithMessage(fmt.Sprintf("unknown column %q for %s", column, table.TypeName)),
				apperror.WithDetails(map[string]any{"column": column}),
			)
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)

	query := db.NewUpdate().Model((*T)(nil))
	for _, column := range columns {
		query = query.Set("? = ?", bun.Ident(column), values[column])
	}
	return query, nil
}

// Delete removes the rows matching opts.Filter and returns how many.
func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, opts Options) (int64, error) {
	if opts.Filter.IsEmpty() {
		return 0, apperror.InvalidQuery("delete requires a filter")
	}
	ctx, db := r.conn(ctx, opts)
	res, err := applyFilter(db.NewDelete().Model((*T)(nil)), opts.Filter).Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *baseRepositoryImpl[T]) DeleteByID(ctx context.Context, id any, opts Options) (int64, error) {
	ctx, db := r.conn(ctx, opts)
	pk, err := r.pk(db)
	if err != nil {
		return 0, err
	}
	res, err := db.NewDelete().Model((*T)(nil)).Where("? = ?", pk.SQLName, id).Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Page returns one page of the rows matching opts.Filter. The orders of the
// page request win over opts.Orders.
func (r *baseRepositoryImpl[T]) Page(ctx context.Context, pageRequest *types.PageRequest, opts Options) (*types.Pagination[T], error) {
	if pageRequest == nil {
		pageRequest = types.NewPageRequest(types.DefaultPage, types.DefaultPageSize)
	}
	pagination := types.NewPagination[T](pageRequest)
	total, err := r.Count(ctx, opts)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return pagination, nil
	}
	orders := pageRequest.GetOrders()
	if len(orders) == 0 {
		orders = opts.Orders
	}
	items, err := r.FindAll(ctx, Options{
		Filter:  opts.Filter,
		Tx:      opts.Tx,
		Logging: opts.Logging,
		Limit:   pageRequest.GetPageSize(),
		Offset:  pageRequest.GetOffset(),
		Orders:  orders,
	})
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = items
	return pagination, nil
}

func (r *baseRepositoryImpl[T]) Upsert(ctx context.Context, entities []*T, fields []string, conflictKeys []string, opts Options) error {
	if len(fields) == 0 {
		return apperror.InvalidQuery("upsert fields cannot be empty")
	}
	if len(entities) == 0 {
		return nil
	}
	ctx, db := r.conn(ctx, opts)
	table := r.table(db)
	for _, field := range fields {
		if !table.HasField(field) {
			return apperror.InvalidQuery(fmt.Sprintf("unknown column %q for %s", field, table.TypeName))
		}
	}

	features := db.Dialect().Features()
	switch {
	case features.Has(feature.InsertOnConflict):
		return r.upsertOnConflict(ctx, db, table, entities, fields, conflictKeys)
	case features.Has(feature.InsertOnDuplicateKey):
		return r.upsertOnDuplicateKey(ctx, db, entities, fields)
	default:
		return apperror.InvalidQuery(fmt.Sprintf("upsert is not supported by %s", db.Dialect().Name()))
	}
}

func (r *baseRepositoryImpl[T]) upsertOnDuplicateKey(ctx context.Context, db bun.IDB, entities []*T, fields []string) error {
	query := db.NewInsert().Model(&entities).On("DUPLICATE KEY UPDATE")
	for _, field := range fields {
		query = query.Set("? = VALUES(?)", bun.Ident(field), bun.Ident(field))
	}
	_, err := query.Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) upsertOnConflict(ctx context.Context, db bun.IDB, table *schema.Table, entities []*T, fields []string, conflictKeys []string) error {
	keys := make([]interface{}, 0, len(table.PKs))
	for _, key := range conflictKeys {
		keys = append(keys, bun.Ident(key))
	}
	if len(keys) == 0 {
		for _, pk := range table.PKs {
			keys = append(keys, pk.SQLName)
		}
	}
	query := db.NewInsert().
		Model(&entities).
		On("CONFLICT (?) DO UPDATE", bun.In(keys))
	for _, field := range fields {
		query = query.Set("? = EXCLUDED.?", bun.Ident(field), bun.Ident(field))
	}
	_, err := query.Exec(ctx)
	return err
}
