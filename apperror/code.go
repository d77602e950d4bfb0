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
	"net/http"

	"github.com/tomoncle/coredb/types"
)

// Code identifies a database failure category.
type Code string

const (
	CodeRecordNotFound                Code = "RECORD_NOT_FOUND"
	CodeTransactionFailed             Code = "TRANSACTION_FAILED"
	CodeTransactionTimeout            Code = "TRANSACTION_TIMEOUT"
	CodeConnectionFailed              Code = "CONNECTION_FAILED"
	CodeConnectionTimeout             Code = "CONNECTION_TIMEOUT"
	CodeQueryFailed                   Code = "QUERY_FAILED"
	CodeInvalidQuery                  Code = "INVALID_QUERY"
	CodeUniqueConstraintViolation     Code = "UNIQUE_CONSTRAINT_VIOLATION"
	CodeForeignKeyConstraintViolation Code = "FOREIGN_KEY_CONSTRAINT_VIOLATION"
	CodeMigrationFailed               Code = "MIGRATION_FAILED"
	CodeMigrationPending              Code = "MIGRATION_PENDING"
)

type codeInfo struct {
	number  int
	status  int
	message string
}

var codeTable = map[Code]codeInfo{
	CodeRecordNotFound:                {1, http.StatusNotFound, "Record not found"},
	CodeTransactionFailed:             {2, http.StatusInternalServerError, "Database transaction failed"},
	CodeTransactionTimeout:            {3, http.StatusGatewayTimeout, "Database transaction timed out"},
	CodeConnectionFailed:              {4, http.StatusServiceUnavailable, "Database connection failed"},
	CodeConnectionTimeout:             {5, http.StatusGatewayTimeout, "Database connection timed out"},
	CodeQueryFailed:                   {6, http.StatusInternalServerError, "Database query failed"},
	CodeInvalidQuery:                  {7, http.StatusBadRequest, "Invalid database query"},
	CodeUniqueConstraintViolation:     {8, http.StatusConflict, "Unique constraint violation"},
	CodeForeignKeyConstraintViolation: {9, http.StatusConflict, "Foreign key constraint violation"},
	CodeMigrationFailed:               {10, http.StatusInternalServerError, "Database migration failed"},
	CodeMigrationPending:              {11, http.StatusServiceUnavailable, "Database migration pending"},
}

var _ types.BaseEnum = Code("")

// Codes lists every known code in declaration order.
func Codes() []Code {
	return []Code{
		CodeRecordNotFound,
		CodeTransactionFailed,
		CodeTransactionTimeout,
		CodeConnectionFailed,
		CodeConnectionTimeout,
		CodeQueryFailed,
		CodeInvalidQuery,
		CodeUniqueConstraintViolation,
		CodeForeignKeyConstraintViolation,
		CodeMigrationFailed,
		CodeMigrationPending,
	}
}

func (c Code) IsValid() bool {
	_, ok := codeTable[c]
	return ok
}

func (c Code) Number() int {
	if info, ok := codeTable[c]; ok {
		return info.number
	}
	return types.IllegalValue
}

func (c Code) String() string { return string(c) }

func (c Code) Name() string {
	if c.IsValid() {
		return string(c)
	}
	return types.IllegalName
}

// Desc returns the default human readable message. Unknown codes fall back
// to the code string itself.
func (c Code) Desc() string {
	if info, ok := codeTable[c]; ok {
		return info.message
	}
	return string(c)
}

// Status returns the HTTP status class of the code, 500 for unknown codes.
func (c Code) Status() int {
	if info, ok := codeTable[c]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}
