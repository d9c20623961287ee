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
	"errors"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/duratask-io/duratask/api"
	"github.com/duratask-io/duratask/api/serde"
	"github.com/duratask-io/duratask/internal/history"
)

type (
	WorkerOptions struct {
		Logger *slog.Logger

		// MaxConcurrentTasks caps how many tasks run at once across
		// all instances. Replay passes of a single instance are always
		// serialized regardless. Zero means DefaultMaxConcurrentTasks.
		MaxConcurrentTasks int
	}

	OrchestrationRegisterOption struct{}

	ActivityRegisterOption struct{}

	OrchestrationRegistry interface {
		RegisterOrchestration(fn any, options ...OrchestrationRegisterOption) error
		RegisterOrchestrationWithName(name string, fn any) error
	}

	ActivityRegistry interface {
		RegisterActivity(fn any, options ...ActivityRegisterOption) error
		RegisterActivityWithName(name string, fn any) error
	}
)

const DefaultMaxConcurrentTasks = 16

type workerImpl struct {
	c Client

	converter     serde.BinarySerde
	typeConverter *serde.TypeConverter

	TaskProcessor

	orchestrationRegistry registry
	activityRegistry      registry

	hist   *history.Log
	logger *slog.Logger

	maxConcurrent int

	locksMu       sync.Mutex
	instanceLocks map[api.InstanceID]*sync.Mutex
}

func NewWorker(c Client, opts *WorkerOptions) (*workerImpl, error) {
	if c == nil {
		return nil, fmt.Errorf("worker requires a client")
	}
	if opts == nil {
		opts = &WorkerOptions{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = c.getLogger()
	}
	logger = defaultLogger(logger)

	js, err := c.getConn().JS()
	if err != nil {
		return nil, err
	}

	maxConcurrent := opts.MaxConcurrentTasks
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentTasks
	}

	conv := c.getSerde()
	return &workerImpl{
		c:                     c,
		converter:             conv,
		typeConverter:         serde.NewTypeConverter(conv),
		TaskProcessor:         c.getConn(),
		orchestrationRegistry: newInMemoryRegistry(),
		activityRegistry:      newInMemoryRegistry(),
		hist:                  history.NewLog(js, conv),
		logger:                logger,
		maxConcurrent:         maxConcurrent,
		instanceLocks:         make(map[api.InstanceID]*sync.Mutex),
	}, nil
}

func (w *workerImpl) RegisterOrchestration(fn any, options ...OrchestrationRegisterOption) error {
	fnName, err := extractFullFunctionName(fn)
	if err != nil {
		return err
	}
	return w.orchestrationRegistry.set(fnName, fn)
}

// RegisterOrchestrationWithName registers under an explicit name instead
// of the function's package-qualified name.
func (w *workerImpl) RegisterOrchestrationWithName(name string, fn any) error {
	return w.orchestrationRegistry.set(name, fn)
}

func (w *workerImpl) RegisterActivity(fn any, opts ...ActivityRegisterOption) error {
	fnName, err := extractFullFunctionName(fn)
	if err != nil {
		return err
	}
	return w.activityRegistry.set(fnName, fn)
}

func (w *workerImpl) RegisterActivityWithName(name string, fn any) error {
	return w.activityRegistry.set(name, fn)
}

func (w *workerImpl) Run(ctx context.Context) error {
	if err := w.advertiseOrchestrations(ctx); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.runProcessingLoop(gCtx)
	})
	return g.Wait()
}

// advertiseOrchestrations publishes the registered orchestration names
// into the catalog bucket, which the manager consults when validating
// start requests.
func (w *workerImpl) advertiseOrchestrations(ctx context.Context) error {
	for _, name := range w.orchestrationRegistry.names() {
		if _, err := w.c.getConn().Set(ctx, api.OrchestrationCatalogBucket, api.CatalogKey(name), []byte(name)); err != nil {
			return fmt.Errorf("failed to advertise orchestration %q: %w", name, err)
		}
	}
	return nil
}

func (w *workerImpl) runProcessingLoop(ctx context.Context) error {
	orchestrationEnabled := w.orchestrationRegistry.size() > 0
	activityEnabled := w.activityRegistry.size() > 0
	if !orchestrationEnabled && !activityEnabled {
		return fmt.Errorf("worker has no registered orchestrations or activities")
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(w.maxConcurrent)

	tasks, err := w.ReceiveTask(gCtx, orchestrationEnabled, activityEnabled)
	if err != nil {
		return err
	}
	for token := range tasks {
		g.Go(func() error {
			switch task := token.Task.(type) {
			case *api.OrchestrationTask:
				return w.handleOrchestrationTask(gCtx, token, task)
			case *api.ActivityTask:
				return w.handleActivityTask(gCtx, token, task)
			default:
				w.logger.Warn("received unknown task type, terminating task")
				token.Term(gCtx)
				return nil
			}
		})
	}

	return g.Wait()
}

func (w *workerImpl) handleOrchestrationTask(ctx context.Context, token *TaskToken, task *api.OrchestrationTask) error {
	id := api.InstanceID(task.InstanceID)

	// One replay pass per instance at a time; everything the pass reads
	// and appends stays consistent with a single logical writer.
	mu := w.instanceLock(id)
	mu.Lock()
	defer mu.Unlock()

	events, lastSeq, err := w.hist.Read(ctx, id)
	if err != nil {
		w.logger.Error("failed to read history", "instance_id", id, "error", err)
		token.Nak(ctx)
		return err
	}
	if len(events) == 0 {
		// Purged or reset underneath the task; nothing left to run.
		w.logger.Warn("orchestration task without history, terminating", "instance_id", id)
		token.Term(ctx)
		return nil
	}

	state, err := foldHistory(events)
	if err != nil {
		w.logger.Error("failed to fold history", "instance_id", id, "error", err)
		token.Term(ctx)
		return err
	}

	if state.terminated != nil || state.finished {
		w.logger.Debug("instance already reached an end state, skipping replay", "instance_id", id)
		w.releaseInstanceLock(id, mu)
		token.Ack(ctx)
		return nil
	}

	fn, err := w.orchestrationRegistry.get(state.orchestration)
	if err != nil {
		w.logger.Error("orchestration not found in registry", "orchestration", state.orchestration, "error", err)
		failure := &api.OrchestrationFailed{
			EventMeta: api.EventMeta{ID: id, At: time.Now()},
			Error:     err.Error(),
		}
		if _, err := w.hist.AppendAfter(ctx, id, lastSeq, failure); err != nil {
			token.Nak(ctx)
			return err
		}
		token.Ack(ctx)
		return nil
	}

	wfctx := newOrchestrationContext(ctx, state, w.converter, w.logger)
	out := executeOrchestration(wfctx, fn, w.typeConverter, w.logger)

	newEvents := state.newEvents
	switch out.kind {
	case outcomeSuspended:
		// Scheduled actions go out; the instance parks until one of
		// them settles and triggers the next replay pass.
	case outcomeCompleted:
		newEvents = append(newEvents, &api.OrchestrationCompleted{
			EventMeta: api.EventMeta{ID: id, At: time.Now()},
			Output:    out.output,
		})
	case outcomeContinued:
		newEvents = append(newEvents, &api.OrchestrationContinued{
			EventMeta: api.EventMeta{ID: id, At: time.Now()},
			Input:     out.continueInput,
		})
	case outcomeFailed:
		if out.nonDeterministic {
			w.logger.Error("replay diverged from history", "instance_id", id, "error", out.err)
		}
		// Actions scheduled by the failed pass are not dispatched.
		newEvents = []api.HistoryEvent{&api.OrchestrationFailed{
			EventMeta: api.EventMeta{ID: id, At: time.Now()},
			Error:     out.err.Error(),
		}}
	}

	if len(newEvents) == 0 {
		// A pass that only consumed already-settled outcomes, e.g. a
		// wait on an external event that has not arrived.
		token.Ack(ctx)
		return nil
	}

	if _, err := w.hist.AppendAfter(ctx, id, lastSeq, newEvents...); err != nil {
		if errors.Is(err, history.ErrConflict) {
			// Another writer appended since our read. Redeliver and
			// replay against the longer history.
			w.logger.Debug("history advanced during replay, retrying", "instance_id", id)
			token.Nak(ctx)
			return nil
		}
		token.Nak(ctx)
		return err
	}

	if out.kind == outcomeCompleted || out.kind == outcomeFailed {
		w.releaseInstanceLock(id, mu)
	}

	token.Ack(ctx)
	return nil
}

func (w *workerImpl) handleActivityTask(ctx context.Context, token *TaskToken, task *api.ActivityTask) error {
	id := api.InstanceID(task.InstanceID)

	fn, err := w.activityRegistry.get(task.Activity)
	if err != nil {
		w.logger.Error("activity not found in registry", "activity", task.Activity, "error", err)
		return w.recordActivityOutcome(ctx, token, task, nil, err)
	}

	results, execErr := w.executeActivityFunc(ctx, fn, task.Input)

	attempt := int32(1)
	for execErr != nil && w.shouldRetryActivity(task, attempt, execErr) {
		delay := retryDelay(task.Retry, attempt)
		w.logger.Info("activity will retry",
			"activity", task.Activity, "instance_id", id, "attempt", attempt, "next_delay", delay)

		select {
		case <-ctx.Done():
			token.Nak(ctx)
			return ctx.Err()
		case <-time.After(delay):
		}

		attempt++
		results, execErr = w.executeActivityFunc(ctx, fn, task.Input)
	}

	return w.recordActivityOutcome(ctx, token, task, results, execErr)
}

func (w *workerImpl) recordActivityOutcome(ctx context.Context, token *TaskToken, task *api.ActivityTask, results []any, execErr error) error {
	id := api.InstanceID(task.InstanceID)

	var event api.HistoryEvent
	if execErr != nil {
		w.logger.Warn("activity failed", "activity", task.Activity, "instance_id", id, "error", execErr)
		event = &api.ActivityFailed{
			EventMeta: api.EventMeta{ID: id, At: time.Now()},
			EventID:   task.EventID,
			Error:     execErr.Error(),
		}
	} else {
		event = &api.ActivityCompleted{
			EventMeta: api.EventMeta{ID: id, At: time.Now()},
			EventID:   task.EventID,
			Result:    results,
		}
	}
	msgID := activityOutcomeMsgID(task, execErr != nil)

	if err := w.hist.AppendIdempotent(ctx, id, msgID, event); err != nil {
		w.logger.Error("failed to record activity outcome", "activity", task.Activity, "instance_id", id, "error", err)
		token.Nak(ctx)
		return err
	}

	token.Ack(ctx)
	return nil
}

// activityOutcomeMsgID keys the recorded outcome of one activity call.
// The key derives from the schedule record's stream sequence rather than
// the EventID: EventIDs restart at 1 after continue-as-new, stream
// sequences never repeat, so outcomes from consecutive executions of the
// same instance cannot be deduplicated against each other.
func activityOutcomeMsgID(task *api.ActivityTask, failed bool) string {
	if failed {
		return fmt.Sprintf("acfail-%s-%d", task.InstanceID, task.ScheduledSeq)
	}
	return fmt.Sprintf("accomp-%s-%d", task.InstanceID, task.ScheduledSeq)
}

// shouldRetryActivity decides worker-local re-execution before the
// failure becomes part of history.
func (w *workerImpl) shouldRetryActivity(task *api.ActivityTask, attempt int32, err error) bool {
	policy := task.Retry
	if policy == nil || policy.MaximumAttempts <= 1 {
		return false
	}
	if attempt >= policy.MaximumAttempts {
		w.logger.Info("max attempts reached for activity", "activity", task.Activity, "max_attempts", policy.MaximumAttempts)
		return false
	}
	if slices.Contains(policy.NonRetryableErrors, err.Error()) {
		w.logger.Info("non-retryable error for activity", "activity", task.Activity, "error", err.Error())
		return false
	}
	return true
}

// retryDelay computes exponential backoff for the next attempt.
func retryDelay(policy *api.RetryPolicy, attempt int32) time.Duration {
	if policy == nil {
		return time.Second
	}

	initialInterval := time.Duration(policy.InitialIntervalMs) * time.Millisecond
	if initialInterval == 0 {
		initialInterval = time.Second
	}

	backoffCoefficient := policy.BackoffCoefficient
	if backoffCoefficient <= 0 {
		backoffCoefficient = 2.0
	}

	maxInterval := time.Duration(policy.MaximumIntervalMs) * time.Millisecond
	if maxInterval == 0 {
		maxInterval = 100 * initialInterval
	}

	nextDelay := time.Duration(
		float64(initialInterval) * math.Pow(backoffCoefficient, float64(attempt-1)),
	)
	return min(nextDelay, maxInterval)
}

func (w *workerImpl) executeActivityFunc(ctx context.Context, fn any, inputs []any) ([]any, error) {
	fnv := reflect.ValueOf(fn)
	fnt := fnv.Type()

	if fnt.NumIn() != len(inputs)+1 { // +1 for the context.Context
		return nil, fmt.Errorf("argument count mismatch: activity expects %d, got %d", fnt.NumIn()-1, len(inputs))
	}
	if fnt.In(0) != reflect.TypeOf((*context.Context)(nil)).Elem() {
		return nil, fmt.Errorf("activity function must accept context.Context as its first argument")
	}

	callArgs := make([]reflect.Value, len(inputs)+1)
	callArgs[0] = reflect.ValueOf(ctx)
	for idx, arg := range inputs {
		converted, err := w.typeConverter.ConvertToType(arg, fnt.In(idx+1))
		if err != nil {
			return nil, fmt.Errorf("failed to convert parameter %d: %w", idx, err)
		}
		callArgs[idx+1] = converted
	}

	return reflectValuesToAny(fnv.Call(callArgs))
}

func (w *workerImpl) instanceLock(id api.InstanceID) *sync.Mutex {
	w.locksMu.Lock()
	defer w.locksMu.Unlock()

	mu, ok := w.instanceLocks[id]
	if !ok {
		mu = &sync.Mutex{}
		w.instanceLocks[id] = mu
	}
	return mu
}

// releaseInstanceLock drops the lock entry once an instance is terminal,
// so a long-lived worker does not accumulate one mutex per instance it
// ever touched. A pass already waiting on the old mutex may overlap a
// later pass that recreated the entry; the history append fence still
// serializes their writes.
func (w *workerImpl) releaseInstanceLock(id api.InstanceID, mu *sync.Mutex) {
	w.locksMu.Lock()
	defer w.locksMu.Unlock()

	if w.instanceLocks[id] == mu {
		delete(w.instanceLocks, id)
	}
}
