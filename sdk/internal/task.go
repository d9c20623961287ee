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
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/duratask-io/duratask/api/serde"
)

// Task is the handle of one pending or settled durable operation. Get
// blocks logically, not physically: calling it on an unsettled Task
// suspends the whole orchestration pass, and a later replay re-executes
// the function with the outcome recorded in history.
type Task interface {
	Get(ctx context.Context, valuePtr any) error
}

var _ Task = (*task)(nil)

type task struct {
	state *instanceState

	settled bool
	value   any
	err     error
	at      time.Time
	order   int

	converter serde.BinarySerde
	logger    *slog.Logger
}

// settledTask builds an already-resolved or already-faulted handle from
// a recorded completion.
func settledTask(s *instanceState, comp *completion, converter serde.BinarySerde, logger *slog.Logger) *task {
	return &task{
		state:     s,
		settled:   true,
		value:     comp.value,
		err:       comp.err,
		at:        comp.at,
		order:     comp.order,
		converter: converter,
		logger:    logger,
	}
}

func pendingTask(s *instanceState, converter serde.BinarySerde, logger *slog.Logger) *task {
	return &task{state: s, converter: converter, logger: logger}
}

func (t *task) Get(ctx context.Context, valuePtr any) error {
	if !t.settled {
		panic(errorSuspendedTask{})
	}

	// Observing the outcome advances CurrentTime to when it was recorded.
	if t.state != nil && !t.at.IsZero() {
		t.state.observe(t.at)
	}

	if t.err != nil {
		return t.err
	}
	if valuePtr == nil || t.value == nil {
		return nil
	}

	if t.converter == nil {
		return fmt.Errorf("no converter available for type conversion")
	}

	// Recorded values lost their Go types on the wire; round-trip them
	// through the serde into the caller's pointer.
	data, err := t.converter.SerializeBinary(t.value)
	if err != nil {
		return fmt.Errorf("failed to serialize task result: %w", err)
	}
	if err := t.converter.DeserializeBinary(data, valuePtr); err != nil {
		return fmt.Errorf("failed to deserialize task result into target type: %w", err)
	}
	return nil
}
