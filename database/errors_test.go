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
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/coredb/apperror"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifySQLError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want SQLError
	}{
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, DuplicateKeyErr},
		{"mysql foreign key", &mysql.MySQLError{Number: 1452}, ForeignKeyViolationErr},
		{"mysql deadlock", &mysql.MySQLError{Number: 1213}, DeadlockErr},
		{"mysql access denied", &mysql.MySQLError{Number: 1045}, ConnectionErr},
		{"postgres unique", &pq.Error{Code: "23505"}, DuplicateKeyErr},
		{"postgres foreign key", &pq.Error{Code: "23503"}, ForeignKeyViolationErr},
		{"postgres serialization", &pq.Error{Code: "40001"}, DeadlockErr},
		{"postgres connection class", &pq.Error{Code: "08006"}, ConnectionErr},
		{"sqlite unique", errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)"), DuplicateKeyErr},
		{"sqlite foreign key", errors.New("FOREIGN KEY constraint failed"), ForeignKeyViolationErr},
		{"sqlite missing table", errors.New("SQL logic error: no such table: users (1)"), NoTableErr},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), LockTimeoutErr},
		{"wrapped no rows", fmt.Errorf("load: %w", sql.ErrNoRows), NoRowsErr},
	}
	for _, tc := range cases {
		t.Run("Should classify "+tc.name, func(t *testing.T) {
			is, kind := ClassifySQLError(tc.err)
			assert.True(t, is)
			assert.Equal(t, tc.want, kind)
		})
	}

	t.Run("Should not classify unrelated errors", func(t *testing.T) {
		is, kind := ClassifySQLError(errors.New("something else"))
		assert.False(t, is)
		assert.Equal(t, UnknownErr, kind)
		is, _ = ClassifySQLError(nil)
		assert.False(t, is)
	})
}

func TestTranslateError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want apperror.Code
	}{
		{"no rows", sql.ErrNoRows, apperror.CodeRecordNotFound},
		{"tx done", sql.ErrTxDone, apperror.CodeTransactionFailed},
		{"deadline", context.DeadlineExceeded, apperror.CodeConnectionTimeout},
		{"canceled", context.Canceled, apperror.CodeQueryFailed},
		{"bad conn", driver.ErrBadConn, apperror.CodeConnectionFailed},
		{"mysql invalid conn", mysql.ErrInvalidConn, apperror.CodeConnectionFailed},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, apperror.CodeUniqueConstraintViolation},
		{"postgres foreign key", &pq.Error{Code: "23503"}, apperror.CodeForeignKeyConstraintViolation},
		{"postgres syntax", &pq.Error{Code: "42601"}, apperror.CodeInvalidQuery},
		{"sqlite not null", errors.New("NOT NULL constraint failed: users.name"), apperror.CodeInvalidQuery},
		{"net timeout", &net.OpError{Op: "dial", Err: timeoutError{}}, apperror.CodeConnectionTimeout},
		{"unknown", errors.New("boom"), apperror.CodeQueryFailed},
	}
	for _, tc := range cases {
		t.Run("Should translate "+tc.name, func(t *testing.T) {
			translated := TranslateError(tc.err)
			e, ok := apperror.As(translated)
			require.True(t, ok)
			assert.Equal(t, tc.want, e.Code)
			assert.ErrorIs(t, translated, tc.err)
		})
	}

	t.Run("Should report deadline expiry inside a transaction as a transaction timeout", func(t *testing.T) {
		err := TranslateTxError(fmt.Errorf("exec: %w", context.DeadlineExceeded))
		assert.Equal(t, apperror.CodeTransactionTimeout, apperror.CodeOf(err))
		assert.Equal(t, http.StatusGatewayTimeout, apperror.StatusOf(err))
	})

	t.Run("Should keep the driver code as detail", func(t *testing.T) {
		e, ok := apperror.As(TranslateError(&mysql.MySQLError{Number: 1062}))
		require.True(t, ok)
		assert.Equal(t, "1062", e.Details["driver_code"])
		assert.Equal(t, http.StatusConflict, e.Status)
	})

	t.Run("Should pass nil and taxonomy errors through", func(t *testing.T) {
		assert.NoError(t, TranslateError(nil))
		original := apperror.RecordNotFound("gone")
		assert.Same(t, original, TranslateError(original))
	})
}
