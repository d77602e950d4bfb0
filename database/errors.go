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
	"database/sql/driver"
	"errors"
	"net"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/tomoncle/coredb/apperror"
)

// SQLError is the driver independent kind of a storage error.
type SQLError int

const (
	UnknownErr SQLError = iota
	NoRowsErr
	NoIndexErr
	NoColumnErr
	ExistIndexErr
	ExistColumnErr
	NoTableErr
	ExistTableErr
	DuplicateKeyErr
	NotNullViolationErr
	ForeignKeyViolationErr
	CheckConstraintViolationErr
	DataTruncatedErr
	InvalidTypeCastErr
	SyntaxErr
	DeadlockErr
	LockTimeoutErr
	ConnectionErr
)

// ClassifySQLError recognizes MySQL and PostgreSQL error structs and, for
// other drivers such as SQLite, the error text. is is false when err is not
// recognizably a storage error.
func ClassifySQLError(err error) (is bool, sqlErr SQLError) {
	if err == nil {
		return false, UnknownErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true, NoRowsErr
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return true, classifyMySQL(mysqlErr.Number)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return true, classifyPostgres(pqErr.Code)
	}
	return classifyMessage(strings.ToLower(err.Error()))
}

func classifyMySQL(number uint16) SQLError {
	switch number {
	case 1091:
		return NoIndexErr
	case 1054:
		return NoColumnErr
	case 1061:
		return ExistIndexErr
	case 1060:
		return ExistColumnErr
	case 1146:
		return NoTableErr
	case 1050:
		return ExistTableErr
	case 1062, 1586:
		return DuplicateKeyErr
	case 1048, 1364:
		return NotNullViolationErr
	case 1216, 1217, 1451, 1452:
		return ForeignKeyViolationErr
	case 3819:
		return CheckConstraintViolationErr
	case 1265, 1406:
		return DataTruncatedErr
	case 1366:
		return InvalidTypeCastErr
	case 1064, 1149:
		return SyntaxErr
	case 1213:
		return DeadlockErr
	case 1205:
		return LockTimeoutErr
	case 1040, 1044, 1045, 1049, 1053, 1129, 1130:
		return ConnectionErr
	default:
		return UnknownErr
	}
}

func classifyPostgres(code pq.ErrorCode) SQLError {
	switch code {
	case "42703":
		return NoColumnErr
	case "42704":
		return NoIndexErr
	case "42P01":
		return NoTableErr
	case "42P07":
		return ExistTableErr
	case "42701":
		return ExistColumnErr
	case "23505":
		return DuplicateKeyErr
	case "23502":
		return NotNullViolationErr
	case "23503":
		return ForeignKeyViolationErr
	case "23514":
		return CheckConstraintViolationErr
	case "22001":
		return DataTruncatedErr
	case "42804", "22P02":
		return InvalidTypeCastErr
	case "42601":
		return SyntaxErr
	case "40P01", "40001":
		return DeadlockErr
	case "55P03":
		return LockTimeoutErr
	}
	switch code.Class() {
	case "08", "28", "3D", "53", "57":
		return ConnectionErr
	}
	return UnknownErr
}

func classifyMessage(s string) (bool, SQLError) {
	switch {
	case strings.Contains(s, "sqlstate 42703"),
		strings.Contains(s, "undefined column"),
		strings.Contains(s, "no such column"),
		strings.Contains(s, "has no column named"):
		return true, NoColumnErr
	case strings.Contains(s, "sqlstate 42704"),
		strings.Contains(s, "no such index"):
		return true, NoIndexErr
	case strings.Contains(s, "sqlstate 42p01"),
		strings.Contains(s, "undefined table"),
		strings.Contains(s, "no such table"):
		return true, NoTableErr
	case strings.Contains(s, "already exists") && strings.Contains(s, "index"):
		return true, ExistIndexErr
	case strings.Contains(s, "already exists") &&
		(strings.Contains(s, "table") || strings.Contains(s, "relation")):
		return true, ExistTableErr
	case strings.Contains(s, "duplicate key value"),
		strings.Contains(s, "unique constraint failed"),
		strings.Contains(s, "sqlstate 23505"):
		return true, DuplicateKeyErr
	case strings.Contains(s, "not-null constraint"),
		strings.Contains(s, "not null constraint failed"),
		strings.Contains(s, "sqlstate 23502"):
		return true, NotNullViolationErr
	case strings.Contains(s, "foreign key violation"),
		strings.Contains(s, "foreign key constraint failed"),
		strings.Contains(s, "sqlstate 23503"):
		return true, ForeignKeyViolationErr
	case strings.Contains(s, "check constraint"),
		strings.Contains(s, "sqlstate 23514"):
		return true, CheckConstraintViolationErr
	case strings.Contains(s, "string data right truncation"),
		strings.Contains(s, "data truncated"),
		strings.Contains(s, "sqlstate 22001"):
		return true, DataTruncatedErr
	case strings.Contains(s, "datatype mismatch"),
		strings.Contains(s, "sqlstate 42804"):
		return true, InvalidTypeCastErr
	case strings.Contains(s, "syntax error"):
		return true, SyntaxErr
	case strings.Contains(s, "deadlock"):
		return true, DeadlockErr
	case strings.Contains(s, "database is locked"),
		strings.Contains(s, "database table is locked"),
		strings.Contains(s, "sqlite_busy"):
		return true, LockTimeoutErr
	case strings.Contains(s, "unable to open database"),
		strings.Contains(s, "connection refused"):
		return true, ConnectionErr
	}
	return false, UnknownErr
}

func (e SQLError) code() apperror.Code {
	switch e {
	case NoRowsErr:
		return apperror.CodeRecordNotFound
	case DuplicateKeyErr:
		return apperror.CodeUniqueConstraintViolation
	case ForeignKeyViolationErr:
		return apperror.CodeForeignKeyConstraintViolation
	case NoColumnErr, NoTableErr, SyntaxErr, NotNullViolationErr,
		CheckConstraintViolationErr, DataTruncatedErr, InvalidTypeCastErr:
		return apperror.CodeInvalidQuery
	case DeadlockErr:
		return apperror.CodeTransactionFailed
	case LockTimeoutErr:
		return apperror.CodeTransactionTimeout
	case ConnectionErr:
		return apperror.CodeConnectionFailed
	default:
		return apperror.CodeQueryFailed
	}
}

// TranslateError maps a raw storage error onto the apperror taxonomy. The
// raw error stays reachable through errors.Unwrap. Taxonomy errors and nil
// pass through unchanged.
func TranslateError(err error) error {
	return translate(err, false)
}

// TranslateTxError is TranslateError for failures that happened inside a
// transaction: deadline expiry becomes TRANSACTION_TIMEOUT.
func TranslateTxError(err error) error {
	return translate(err, true)
}

func translate(err error, inTx bool) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.As(err); ok {
		return err
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return apperror.New(apperror.CodeRecordNotFound, apperror.WithCause(err))
	case errors.Is(err, sql.ErrTxDone):
		return apperror.New(apperror.CodeTransactionFailed, apperror.WithCause(err))
	case errors.Is(err, context.DeadlineExceeded):
		if inTx {
			return apperror.New(apperror.CodeTransactionTimeout, apperror.WithCause(err))
		}
		return apperror.New(apperror.CodeConnectionTimeout, apperror.WithCause(err))
	case errors.Is(err, context.Canceled):
		return apperror.New(apperror.CodeQueryFailed,
			apperror.WithMessage("Database query canceled"), apperror.WithCause(err))
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.Is(err, sql.ErrConnDone):
		return apperror.New(apperror.CodeConnectionFailed, apperror.WithCause(err))
	}

	if is, kind := ClassifySQLError(err); is {
		code := kind.code()
		opts := []apperror.Option{apperror.WithCause(err)}
		if dc := driverCode(err); dc != "" {
			opts = append(opts, apperror.WithDetails(map[string]any{"driver_code": dc}))
		}
		return apperror.New(code, opts...)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return apperror.New(apperror.CodeConnectionTimeout, apperror.WithCause(err))
		}
		return apperror.New(apperror.CodeConnectionFailed, apperror.WithCause(err))
	}
	return apperror.New(apperror.CodeQueryFailed, apperror.WithCause(err))
}

func driverCode(err error) string {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return strconv.Itoa(int(mysqlErr.Number))
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
