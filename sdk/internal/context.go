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

	"github.com/duratask-io/duratask/api"
	"github.com/duratask-io/duratask/api/serde"
)

// Context is the deterministic facade an orchestration function runs
// against. Every operation either consumes a recorded outcome (replay)
// or records a new action; direct I/O, wall-clock reads and random
// values belong in activities, never here.
type Context interface {
	context.Context

	ID() api.InstanceID
	Orchestration() string

	// GetInput deserializes the instance's start input into valuePtr.
	GetInput(valuePtr any) error

	// CallActivity schedules the named activity (a registered function
	// or its name) with the given arguments.
	CallActivity(activity any, args ...any) Task

	// CreateTimer returns a Task that settles once the durable timer
	// fires at the given absolute time.
	CreateTimer(fireAt time.Time) Task

	// WaitForEvent returns a Task for the next unconsumed external
	// event with the given name. Events arriving before the wait are
	// buffered and consumed in arrival order.
	WaitForEvent(name string) Task

	// CurrentTime is the replay-safe clock: it only advances when the
	// function observes a recorded outcome.
	CurrentTime() time.Time

	// SetCustomStatus publishes an orchestration-defined status value
	// visible through get-status.
	SetCustomStatus(status any)

	// ContinueAsNew finishes this execution and restarts the instance
	// with fresh input and an empty history. Does not return.
	ContinueAsNew(input ...any)

	All(tasks ...Task) Task
	Any(tasks ...Task) Task

	WithValue(key any, value any) Context
}

var _ Context = (*orchestrationContext)(nil)

type orchestrationContext struct {
	state *instanceState
	context.Context

	converter serde.BinarySerde
	logger    *slog.Logger
}

func newOrchestrationContext(ctx context.Context, state *instanceState, converter serde.BinarySerde, logger *slog.Logger) *orchestrationContext {
	if ctx == nil {
		ctx = context.Background()
	}
	if converter == nil {
		converter = &serde.MsgpackSerde{}
	}
	return &orchestrationContext{
		state:     state,
		Context:   ctx,
		converter: converter,
		logger:    defaultLogger(logger),
	}
}

func (c *orchestrationContext) ID() api.InstanceID    { return c.state.id }
func (c *orchestrationContext) Orchestration() string { return c.state.orchestration }

func (c *orchestrationContext) GetInput(valuePtr any) error {
	if valuePtr == nil {
		return nil
	}
	input := c.state.input
	var raw any
	switch len(input) {
	case 0:
		return nil
	case 1:
		raw = input[0]
	default:
		raw = input
	}

	data, err := c.converter.SerializeBinary(raw)
	if err != nil {
		return fmt.Errorf("failed to serialize orchestration input: %w", err)
	}
	if err := c.converter.DeserializeBinary(data, valuePtr); err != nil {
		return fmt.Errorf("failed to deserialize orchestration input: %w", err)
	}
	return nil
}

func (c *orchestrationContext) CallActivity(activity any, args ...any) Task {
	name, err := callableName(activity)
	if err != nil {
		c.logger.Error("failed to resolve activity name", "error", err)
		panic(err)
	}

	id := c.state.nextActionID()

	// Replay: the history already holds this position.
	if sch, ok := c.state.scheduled[id]; ok {
		if sch.kind != actionActivity || sch.name != name {
			panic(&NonDeterminismError{
				InstanceID: c.state.id.String(),
				EventID:    id,
				Expected:   fmt.Sprintf("%s %s", sch.kind, sch.name),
				Got:        fmt.Sprintf("%s %s", actionActivity, name),
			})
		}
		return c.taskFor(id)
	}

	// Fresh execution: record the schedule request for dispatch.
	event := &api.ActivityScheduled{
		EventMeta: api.EventMeta{ID: c.state.id, At: time.Now()},
		EventID:   id,
		Activity:  name,
		Input:     args,
	}
	if opts := getActivityOptions(c); opts != nil {
		event.Retry = opts.retryPolicyForWire()
	}
	c.state.recordThat(event)

	return pendingTask(c.state, c.converter, c.logger)
}

func (c *orchestrationContext) CreateTimer(fireAt time.Time) Task {
	id := c.state.nextActionID()

	if sch, ok := c.state.scheduled[id]; ok {
		if sch.kind != actionTimer {
			panic(&NonDeterminismError{
				InstanceID: c.state.id.String(),
				EventID:    id,
				Expected:   fmt.Sprintf("%s %s", sch.kind, sch.name),
				Got:        actionTimer.String(),
			})
		}
		return c.taskFor(id)
	}

	c.state.recordThat(&api.TimerCreated{
		EventMeta: api.EventMeta{ID: c.state.id, At: time.Now()},
		EventID:   id,
		FireAt:    fireAt,
	})

	return pendingTask(c.state, c.converter, c.logger)
}

func (c *orchestrationContext) WaitForEvent(name string) Task {
	idx := c.state.raisedCursor[name]
	c.state.raisedCursor[name] = idx + 1

	buffered := c.state.raised[name]
	if idx < len(buffered) {
		evt := buffered[idx]
		return settledTask(c.state, &completion{
			value: evt.payload,
			at:    evt.at,
			order: evt.order,
		}, c.converter, c.logger)
	}

	// Nothing buffered for this wait yet. Waits are passive: raised
	// events append to history on their own, so there is nothing to
	// record here.
	return pendingTask(c.state, c.converter, c.logger)
}

func (c *orchestrationContext) CurrentTime() time.Time {
	return c.state.now
}

func (c *orchestrationContext) SetCustomStatus(status any) {
	c.state.statusSetThisPass++
	c.state.customStatus = status

	// Replayed calls are already in history; only record past them.
	if c.state.statusSetThisPass <= c.state.statusSetInHistory {
		return
	}
	c.state.recordThat(&api.CustomStatusSet{
		EventMeta: api.EventMeta{ID: c.state.id, At: time.Now()},
		Status:    status,
	})
}

func (c *orchestrationContext) ContinueAsNew(input ...any) {
	panic(continueAsNewSignal{input: input})
}

// taskFor builds the handle for a replayed action: settled when its
// completion was recorded, pending otherwise.
func (c *orchestrationContext) taskFor(id int64) Task {
	if comp, ok := c.state.completions[id]; ok {
		return settledTask(c.state, comp, c.converter, c.logger)
	}
	return pendingTask(c.state, c.converter, c.logger)
}

type activityOptionsKey struct{}

// ActivityOptions tune the execution of activities scheduled through a
// derived context.
type ActivityOptions struct {
	RetryPolicy *RetryPolicy
}

// RetryPolicy mirrors api.RetryPolicy with native durations.
type RetryPolicy struct {
	// InitialInterval is the backoff before the first retry. Defaults
	// to one second when zero.
	InitialInterval time.Duration

	// BackoffCoefficient multiplies the interval after each attempt.
	// Must be 1 or larger. Defaults to 2.0.
	BackoffCoefficient float64

	// MaximumInterval caps the backoff. Defaults to 100x the initial
	// interval when zero.
	MaximumInterval time.Duration

	// MaximumAttempts bounds total attempts. Zero or one means no
	// retries.
	MaximumAttempts int32

	// NonRetryableErrors lists error messages that stop retries.
	NonRetryableErrors []string
}

func (o *ActivityOptions) retryPolicyForWire() *api.RetryPolicy {
	if o == nil || o.RetryPolicy == nil {
		return nil
	}
	rp := o.RetryPolicy
	return &api.RetryPolicy{
		InitialIntervalMs:  rp.InitialInterval.Milliseconds(),
		BackoffCoefficient: rp.BackoffCoefficient,
		MaximumIntervalMs:  rp.MaximumInterval.Milliseconds(),
		MaximumAttempts:    rp.MaximumAttempts,
		NonRetryableErrors: rp.NonRetryableErrors,
	}
}

func getActivityOptions(ctx Context) *ActivityOptions {
	val := ctx.Value(activityOptionsKey{})
	if val == nil {
		return nil
	}
	opts, ok := val.(ActivityOptions)
	if !ok {
		panic("ActivityOptions has wrong type in context")
	}
	return &opts
}

// WithActivityOptions derives a context whose CallActivity uses opts.
func WithActivityOptions(ctx Context, opts ActivityOptions) Context {
	return ctx.WithValue(activityOptionsKey{}, opts)
}

func (c *orchestrationContext) WithValue(key any, value any) Context {
	baseCtx := c.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &orchestrationContext{
		state:     c.state,
		Context:   context.WithValue(baseCtx, key, value),
		converter: c.converter,
		logger:    c.logger,
	}
}
