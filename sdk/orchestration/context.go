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
	"time"

	"github.com/duratask-io/duratask/sdk/internal"
)

// Context is the deterministic execution context of an orchestration.
//
// It extends context.Context with durable operations. Every interaction
// with the outside world goes through this context so that replay can
// substitute recorded outcomes for real execution.
type Context = internal.Context

// Task is the handle of a pending or settled durable operation. Get
// blocks logically: if the outcome is not recorded yet, the whole
// orchestration suspends and resumes once it is.
type Task = internal.Task

// CallActivity schedules an activity for execution and returns its Task.
//
// The activity is a function registered with the worker, or its
// registered name. Arguments must be serializable.
func CallActivity(ctx Context, activity any, args ...any) Task {
	return ctx.CallActivity(activity, args...)
}

// CreateTimer returns a Task that settles when the durable timer fires.
// The timer survives process restarts; use it instead of time.Sleep.
func CreateTimer(ctx Context, fireAt time.Time) Task {
	return ctx.CreateTimer(fireAt)
}

// WaitForEvent returns a Task for the next external event with the
// given name. Events raised before the wait are buffered in arrival
// order and never lost.
func WaitForEvent(ctx Context, name string) Task {
	return ctx.WaitForEvent(name)
}

// CurrentTime is the replay-safe clock. It returns the same value at
// the same execution point on every replay; use it for deadlines
// instead of time.Now.
func CurrentTime(ctx Context) time.Time {
	return ctx.CurrentTime()
}

// GetInput deserializes the orchestration's start input into valuePtr.
func GetInput(ctx Context, valuePtr any) error {
	return ctx.GetInput(valuePtr)
}

// SetCustomStatus publishes an orchestration-defined status value,
// visible to clients through GetStatus.
func SetCustomStatus(ctx Context, status any) {
	ctx.SetCustomStatus(status)
}

// ContinueAsNew completes the current execution and atomically restarts
// the instance with the given input and a fresh history. It does not
// return.
func ContinueAsNew(ctx Context, input ...any) {
	ctx.ContinueAsNew(input...)
}

// All combines tasks into one that resolves with all results in
// argument order. It fails fast: the first recorded fault settles the
// combined task with that error. All with no tasks resolves immediately.
func All(ctx Context, tasks ...Task) Task {
	return ctx.All(tasks...)
}

// Any races tasks and resolves with the index of the first to settle,
// decided by recorded history order, so the winner is stable across
// replays. Any with no tasks faults with ErrEmptyRace.
func Any(ctx Context, tasks ...Task) Task {
	return ctx.Any(tasks...)
}
