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

package internal

import (
	"errors"
	"fmt"
)

// errorSuspendedTask is thrown in a panic when Get is called on a Task
// that has no recorded outcome yet. It unwinds the orchestration function
// back to the scheduler, which parks the instance until new history
// arrives. The concept is the yield of a coroutine: the function pauses
// here and a later replay resumes past this point.
type errorSuspendedTask struct{}

func (e errorSuspendedTask) Error() string {
	return "suspended_task"
}

// continueAsNewSignal unwinds the orchestration function when it calls
// ContinueAsNew. The carried input seeds the next execution.
type continueAsNewSignal struct {
	input []any
}

func (s continueAsNewSignal) Error() string {
	return "continue_as_new"
}

// ErrEmptyRace is returned by Get on a Task produced by Any with no
// arguments: a race between zero tasks can never settle.
var ErrEmptyRace = errors.New("race over an empty set of tasks can never settle")

// ErrDuplicateRegistration reports a second registration under a name
// already present in a registry.
var ErrDuplicateRegistration = errors.New("name already registered")

// ActivityError is the recoverable failure of one activity call. The
// orchestration function receives it from Get and may catch it, retry
// with a timer, or let it propagate and fail the instance.
type ActivityError struct {
	Activity string
	Message  string
}

func (e *ActivityError) Error() string {
	return fmt.Sprintf("activity %s failed: %s", e.Activity, e.Message)
}

// NonDeterminismError reports that a replay requested a different action
// than the history recorded at the same position. The orchestration code
// no longer matches its own recorded past, so no replay can be trusted:
// the instance fails terminally.
type NonDeterminismError struct {
	InstanceID string
	EventID    int64
	Expected   string
	Got        string
}

func (e *NonDeterminismError) Error() string {
	return fmt.Sprintf("non-deterministic orchestration %s: action %d replayed as %q but history recorded %q",
		e.InstanceID, e.EventID, e.Got, e.Expected)
}
