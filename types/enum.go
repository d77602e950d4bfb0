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

package types

// Sentinels an enum reports for a value outside its member table, e.g. an
// error code string that was never declared.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
)

// BaseEnum is a closed set of string members backed by a lookup table, such
// as the persistence error codes. Number is the stable error number clients
// may persist or log; it never changes once assigned. Desc is the default
// message shown to API callers and Name the member identifier.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}
