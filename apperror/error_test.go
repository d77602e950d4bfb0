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
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/coredb/types"
)

func TestCode(t *testing.T) {
	t.Run("Should map every code to its status and message", func(t *testing.T) {
		cases := []struct {
			code    Code
			status  int
			message string
		}{
			{CodeRecordNotFound, http.StatusNotFound, "Record not found"},
			{CodeTransactionFailed, http.StatusInternalServerError, "Database transaction failed"},
			{CodeTransactionTimeout, http.StatusGatewayTimeout, "Database transaction timed out"},
			{CodeConnectionFailed, http.StatusServiceUnavailable, "Database connection failed"},
			{CodeConnectionTimeout, http.StatusGatewayTimeout, "Database connection timed out"},
			{CodeQueryFailed, http.StatusInternalServerError, "Database query failed"},
			{CodeInvalidQuery, http.StatusBadRequest, "Invalid database query"},
			{CodeUniqueConstraintViolation, http.StatusConflict, "Unique constraint violation"},
			{CodeForeignKeyConstraintViolation, http.StatusConflict, "Foreign key constraint violation"},
			{CodeMigrationFailed, http.StatusInternalServerError, "Database migration failed"},
			{CodeMigrationPending, http.StatusServiceUnavailable, "Database migration pending"},
		}
		require.Len(t, Codes(), len(cases))
		for _, tc := range cases {
			assert.True(t, tc.code.IsValid(), tc.code)
			assert.Equal(t, tc.status, tc.code.Status(), tc.code)
			assert.Equal(t, tc.message, tc.code.Desc(), tc.code)
			assert.Equal(t, string(tc.code), tc.code.Name())
		}
	})

	t.Run("Should number codes in declaration order", func(t *testing.T) {
		for i, code := range Codes() {
			assert.Equal(t, i+1, code.Number())
		}
	})

	t.Run("Should fall back for unknown codes", func(t *testing.T) {
		code := Code("SOMETHING_ELSE")
		assert.False(t, code.IsValid())
		assert.Equal(t, types.IllegalValue, code.Number())
		assert.Equal(t, types.IllegalName, code.Name())
		assert.Equal(t, "SOMETHING_ELSE", code.Desc())
		assert.Equal(t, http.StatusInternalServerError, code.Status())
	})
}

func TestNew(t *testing.T) {
	t.Run("Should use the default message without override", func(t *testing.T) {
		err := New(CodeUniqueConstraintViolation)
		assert.Equal(t, http.StatusConflict, err.Status)
		assert.Equal(t, "Unique constraint violation", err.Message)
		assert.Nil(t, err.Details)
		assert.Equal(t, "UNIQUE_CONSTRAINT_VIOLATION: Unique constraint violation", err.Error())
	})

	t.Run("Should apply message details and cause", func(t *testing.T) {
		cause := errors.New("duplicate entry")
		err := New(CodeUniqueConstraintViolation,
			WithMessage("email taken"),
			WithDetails(map[string]any{"column": "email"}),
			WithCause(cause),
		)
		assert.Equal(t, "email taken", err.Message)
		assert.Equal(t, "email", err.Details["column"])
		assert.Same(t, cause, errors.Unwrap(err))
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "UNIQUE_CONSTRAINT_VIOLATION: email taken: duplicate entry", err.Error())
	})

	t.Run("Should ignore empty message overrides", func(t *testing.T) {
		assert.Equal(t, "Record not found", RecordNotFound("").Message)
		assert.Equal(t, "Record not found", RecordNotFound().Message)
		assert.Equal(t, "gone", RecordNotFound("gone").Message)
	})

	t.Run("Should build each code through its constructor", func(t *testing.T) {
		constructors := map[Code]func(...string) *Error{
			CodeRecordNotFound:                RecordNotFound,
			CodeTransactionFailed:             TransactionFailed,
			CodeTransactionTimeout:            TransactionTimeout,
			CodeConnectionFailed:              ConnectionFailed,
			CodeConnectionTimeout:             ConnectionTimeout,
			CodeQueryFailed:                   QueryFailed,
			CodeInvalidQuery:                  InvalidQuery,
			CodeUniqueConstraintViolation:     UniqueConstraintViolation,
			CodeForeignKeyConstraintViolation: ForeignKeyConstraintViolation,
			CodeMigrationFailed:               MigrationFailed,
			CodeMigrationPending:              MigrationPending,
		}
		for code, build := range constructors {
			err := build()
			assert.Equal(t, code, err.Code)
			assert.Equal(t, code.Status(), err.Status)
		}
	})
}

func TestHelpers(t *testing.T) {
	wrapped := fmt.Errorf("load user: %w", RecordNotFound())

	t.Run("Should find taxonomy errors in the chain", func(t *testing.T) {
		e, ok := As(wrapped)
		require.True(t, ok)
		assert.Equal(t, CodeRecordNotFound, e.Code)
		assert.Equal(t, CodeRecordNotFound, CodeOf(wrapped))
		assert.Equal(t, http.StatusNotFound, StatusOf(wrapped))
		assert.True(t, IsClientError(wrapped))
		assert.True(t, IsCode(wrapped, CodeRecordNotFound))
	})

	t.Run("Should match by code with errors.Is", func(t *testing.T) {
		assert.ErrorIs(t, wrapped, New(CodeRecordNotFound))
		assert.NotErrorIs(t, wrapped, New(CodeQueryFailed))
	})

	t.Run("Should treat foreign errors as server errors", func(t *testing.T) {
		plain := errors.New("boom")
		_, ok := As(plain)
		assert.False(t, ok)
		assert.Equal(t, Code(""), CodeOf(plain))
		assert.Equal(t, http.StatusInternalServerError, StatusOf(plain))
		assert.False(t, IsClientError(plain))
		assert.False(t, IsClientError(New(CodeConnectionFailed)))
	})
}
