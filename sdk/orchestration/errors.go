// Copyright 2025 The Duratask Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestration

import (
	"github.com/duratask-io/duratask/sdk/internal"
)

// ActivityError is the error a Task carries when the underlying
// activity failed after exhausting its retries.
type ActivityError = internal.ActivityError

// NonDeterminismError indicates replay diverged from recorded history.
// The instance is moved to Failed; fix the orchestration code rather
// than retrying.
type NonDeterminismError = internal.NonDeterminismError

// ErrEmptyRace is the fault carried by Any called with no tasks.
var ErrEmptyRace = internal.ErrEmptyRace
