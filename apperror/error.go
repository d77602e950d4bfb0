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

	"github.com/tomoncle/coredb/types"
)

// Error is a database failure carrying a code, its HTTP status class and an
// optional underlying cause.
type Error struct {
	Code    Code             `json:"code"`
	Status  int              `json:"status"`
	Message string           `json:"message"`
	Details types.JsonObject `json:"details,omitempty"`
	Err     error            `json:"-"`
}

// Option customizes an Error built by New.
type Option func(*Error)

// WithMessage overrides the default message of the code. Empty strings are
// ignored.
func WithMessage(msg string) Option {
	return func(e *Error) {
		if msg != "" {
			e.Message = msg
		}
	}
}

// WithDetails attaches structured details.
func WithDetails(details map[string]any) Option {
	return func(e *Error) {
		if len(details) == 0 {
			return
		}
		if e.Details == nil {
			e.Details = make(types.JsonObject, len(details))
		}
		for k, v := range details {
			e.Details[k] = v
		}
	}
}

// WithCause records the error that triggered this one.
func WithCause(err error) Option {
	return func(e *Error) { e.Err = err }
}

// New builds an Error for code. It never fails: unknown codes get status 500
// and the code string as message.
func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Status:  code.Status(),
		Message: code.Desc(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so errors.Is(err, New(code))
// works as a code check.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// IsClientError reports whether the error is caused by the caller (4xx).
func (e *Error) IsClientError() bool {
	return e.Status >= http.StatusBadRequest && e.Status < http.StatusInternalServerError
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of err, or an empty Code when err is not part of
// the taxonomy.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// StatusOf returns the HTTP status of err. Errors outside the taxonomy map to
// 500.
func StatusOf(err error) int {
	if e, ok := As(err); ok {
		return e.Status
	}
	return http.StatusInternalServerError
}

// IsClientError reports whether err is a taxonomy error with a 4xx status.
func IsClientError(err error) bool {
	if e, ok := As(err); ok {
		return e.IsClientError()
	}
	return false
}

// IsCode reports whether err carries code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

func firstMessage(msg []string) Option {
	if len(msg) == 0 {
		return WithMessage("")
	}
	return WithMessage(msg[0])
}

func RecordNotFound(msg ...string) *Error {
	return New(CodeRecordNotFound, firstMessage(msg))
}

func TransactionFailed(msg ...string) *Error {
	return New(CodeTransactionFailed, firstMessage(msg))
}

func TransactionTimeout(msg ...string) *Error {
	return New(CodeTransactionTimeout, firstMessage(msg))
}

func ConnectionFailed(msg ...string) *Error {
	return New(CodeConnectionFailed, firstMessage(msg))
}

func ConnectionTimeout(msg ...string) *Error {
	return New(CodeConnectionTimeout, firstMessage(msg))
}

func QueryFailed(msg ...string) *Error {
	return New(CodeQueryFailed, firstMessage(msg))
}

func InvalidQuery(msg ...string) *Error {
	return New(CodeInvalidQuery, firstMessage(msg))
}

func UniqueConstraintViolation(msg ...string) *Error {
	return New(CodeUniqueConstraintViolation, firstMessage(msg))
}

func ForeignKeyConstraintViolation(msg ...string) *Error {
	return New(CodeForeignKeyConstraintViolation, firstMessage(msg))
}

func MigrationFailed(msg ...string) *Error {
	return New(CodeMigrationFailed, firstMessage(msg))
}

func MigrationPending(msg ...string) *Error {
	return New(CodeMigrationPending, firstMessage(msg))
}
