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
	"fmt"
	"log/slog"
	"reflect"

	"github.com/duratask-io/duratask/api/serde"
)

type outcomeKind int

const (
	// outcomeSuspended: the function hit an unsettled Task; newly
	// recorded actions go out and the instance parks.
	outcomeSuspended outcomeKind = iota
	// outcomeCompleted: the function returned normally.
	outcomeCompleted
	// outcomeContinued: the function requested ContinueAsNew.
	outcomeContinued
	// outcomeFailed: the function returned an error, panicked, or
	// diverged from its recorded history.
	outcomeFailed
)

// outcome is the result of one replay pass over an orchestration
// function.
type outcome struct {
	kind          outcomeKind
	output        []any
	continueInput []any
	err           error
	// nonDeterministic marks replay divergence, which the scheduler
	// reports distinctly from ordinary orchestration failures.
	nonDeterministic bool
}

// executeOrchestration runs one replay pass: the function is called from
// the top against the folded state and runs until it suspends, finishes,
// continues as new, or fails.
func executeOrchestration(wfctx *orchestrationContext, fn any, typeConverter *serde.TypeConverter, logger *slog.Logger) (out outcome) {
	state := wfctx.state

	var results []reflect.Value
	var panicked bool

	execErr := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				switch sig := r.(type) {
				case errorSuspendedTask:
					out.kind = outcomeSuspended
				case continueAsNewSignal:
					out.kind = outcomeContinued
					out.continueInput = sig.input
				case *NonDeterminismError:
					out.kind = outcomeFailed
					out.err = sig
					out.nonDeterministic = true
				default:
					logger.Error("orchestration panicked",
						"instance_id", state.id, "orchestration", state.orchestration, "panic", r)
					out.kind = outcomeFailed
					out.err = fmt.Errorf("orchestration panic: %v", r)
				}
			}
		}()

		fnv := reflect.ValueOf(fn)
		fnt := fnv.Type()

		// A context-only signature reads its input through GetInput
		// instead of parameters.
		if fnt.NumIn() == 1 {
			results = fnv.Call([]reflect.Value{reflect.ValueOf(Context(wfctx))})
			return nil
		}

		if fnt.NumIn() != len(state.input)+1 {
			return fmt.Errorf("argument count mismatch: orchestration expects %d, got %d",
				fnt.NumIn()-1, len(state.input))
		}

		inputv := make([]reflect.Value, len(state.input))
		for idx, arg := range state.input {
			// In(0) is the orchestration context.
			converted, err := typeConverter.ConvertToType(arg, fnt.In(idx+1))
			if err != nil {
				return fmt.Errorf("failed to convert orchestration argument %d: %w", idx, err)
			}
			inputv[idx] = converted
		}

		results = fnv.Call(append([]reflect.Value{reflect.ValueOf(Context(wfctx))}, inputv...))
		return nil
	}()

	// A panic already classified the outcome in the recover above.
	if panicked {
		return out
	}

	if execErr != nil {
		out.kind = outcomeFailed
		out.err = execErr
		return out
	}

	// The function returned without consuming every recorded action:
	// an earlier execution suspended on work this code no longer asks
	// for, so the logic diverged.
	if state.nextEventID < state.maxHistoryID {
		out.kind = outcomeFailed
		out.nonDeterministic = true
		out.err = &NonDeterminismError{
			InstanceID: state.id.String(),
			EventID:    state.nextEventID + 1,
			Expected:   "a scheduled action",
			Got:        "orchestration return",
		}
		return out
	}

	output, err := reflectValuesToAny(results)
	if err != nil {
		out.kind = outcomeFailed
		out.err = err
		return out
	}

	out.kind = outcomeCompleted
	out.output = output
	return out
}
