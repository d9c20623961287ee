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
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/duratask-io/duratask/api"
	"github.com/duratask-io/duratask/api/serde"
)

var testBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// histDriver steps an orchestration function through replay passes the
// way the worker does: fold the history, run one pass, append the new
// events, repeat.
type histDriver struct {
	t      *testing.T
	events []api.HistoryEvent
	logger *slog.Logger
	conv   serde.BinarySerde
}

func newDriver(t *testing.T, input ...any) *histDriver {
	t.Helper()
	return &histDriver{
		t:      t,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		conv:   &serde.MsgpackSerde{},
		events: []api.HistoryEvent{
			&api.OrchestrationStarted{
				EventMeta:     api.EventMeta{ID: "inst-1", At: testBase},
				Orchestration: "TestOrchestration",
				Input:         input,
			},
		},
	}
}

func (d *histDriver) append(events ...api.HistoryEvent) {
	d.events = append(d.events, events...)
}

// run executes one replay pass and folds the pass's newly recorded
// events back into the history, like the worker's append step.
func (d *histDriver) run(fn any) (outcome, *instanceState) {
	d.t.Helper()
	state, err := foldHistory(d.events)
	if err != nil {
		d.t.Fatalf("foldHistory: %v", err)
	}
	wfctx := newOrchestrationContext(d.t.Context(), state, d.conv, d.logger)
	out := executeOrchestration(wfctx, fn, serde.NewTypeConverter(d.conv), d.logger)
	d.append(state.newEvents...)
	return out, state
}

// replayOnly executes one pass without appending new events, for
// checking that re-running the same history is stable.
func (d *histDriver) replayOnly(fn any) (outcome, *instanceState) {
	d.t.Helper()
	state, err := foldHistory(d.events)
	if err != nil {
		d.t.Fatalf("foldHistory: %v", err)
	}
	wfctx := newOrchestrationContext(d.t.Context(), state, d.conv, d.logger)
	return executeOrchestration(wfctx, fn, serde.NewTypeConverter(d.conv), d.logger), state
}

func (d *histDriver) completeActivity(eventID int64, at time.Time, result ...any) {
	d.append(&api.ActivityCompleted{
		EventMeta: api.EventMeta{ID: "inst-1", At: at},
		EventID:   eventID,
		Result:    result,
	})
}

func (d *histDriver) failActivity(eventID int64, at time.Time, msg string) {
	d.append(&api.ActivityFailed{
		EventMeta: api.EventMeta{ID: "inst-1", At: at},
		EventID:   eventID,
		Error:     msg,
	})
}

func (d *histDriver) fireTimer(eventID int64, at time.Time) {
	d.append(&api.TimerFired{
		EventMeta: api.EventMeta{ID: "inst-1", At: at},
		EventID:   eventID,
	})
}

func (d *histDriver) raiseEvent(name string, at time.Time, payload any) {
	d.append(&api.EventRaised{
		EventMeta: api.EventMeta{ID: "inst-1", At: at},
		Name:      name,
		Payload:   payload,
	})
}

// lastScheduledActivity returns the most recent ActivityScheduled event.
func (d *histDriver) lastScheduledActivity() *api.ActivityScheduled {
	d.t.Helper()
	for i := len(d.events) - 1; i >= 0; i-- {
		if evt, ok := d.events[i].(*api.ActivityScheduled); ok {
			return evt
		}
	}
	d.t.Fatal("no ActivityScheduled event in history")
	return nil
}

func TestReplayChaining(t *testing.T) {
	chained := func(ctx Context) ([]string, error) {
		var name string
		if err := ctx.GetInput(&name); err != nil {
			return nil, err
		}
		var out []string
		for _, city := range []string{"Tokyo", "Seattle", "London"} {
			var greeting string
			if err := ctx.CallActivity("SayHello", name+" - "+city).Get(ctx, &greeting); err != nil {
				return nil, err
			}
			out = append(out, greeting)
		}
		return out, nil
	}

	d := newDriver(t, "World")

	greetings := []string{"Hello World - Tokyo!", "Hello World - Seattle!", "Hello World - London!"}
	for i, greeting := range greetings {
		out, state := d.run(chained)
		if out.kind != outcomeSuspended {
			t.Fatalf("pass %d: kind = %v, want suspended", i, out.kind)
		}
		if len(state.newEvents) != 1 {
			t.Fatalf("pass %d: recorded %d new events, want 1", i, len(state.newEvents))
		}
		sch := d.lastScheduledActivity()
		if sch.EventID != int64(i+1) {
			t.Fatalf("pass %d: scheduled event ID = %d, want %d", i, sch.EventID, i+1)
		}
		if sch.Activity != "SayHello" {
			t.Fatalf("pass %d: scheduled activity = %q", i, sch.Activity)
		}
		d.completeActivity(sch.EventID, testBase.Add(time.Duration(i+1)*time.Second), greeting)
	}

	out, state := d.run(chained)
	if out.kind != outcomeCompleted {
		t.Fatalf("final pass: kind = %v, err = %v, want completed", out.kind, out.err)
	}
	if len(state.newEvents) != 0 {
		t.Fatalf("final pass recorded %d new events, want 0", len(state.newEvents))
	}
	if len(out.output) != 1 {
		t.Fatalf("output = %v, want a single value", out.output)
	}
	got, ok := out.output[0].([]string)
	if !ok {
		t.Fatalf("output[0] type = %T", out.output[0])
	}
	for i, want := range greetings {
		if got[i] != want {
			t.Errorf("greeting[%d] = %q, want %q", i, got[i], want)
		}
	}
}

func TestReplayDeterminism(t *testing.T) {
	chained := func(ctx Context) (string, error) {
		var first, second string
		if err := ctx.CallActivity("StepOne").Get(ctx, &first); err != nil {
			return "", err
		}
		if err := ctx.CallActivity("StepTwo", first).Get(ctx, &second); err != nil {
			return "", err
		}
		return second, nil
	}

	d := newDriver(t)
	d.run(chained)
	d.completeActivity(1, testBase.Add(time.Second), "one")
	d.run(chained)
	d.completeActivity(2, testBase.Add(2*time.Second), "two")

	// Replaying the complete history any number of times yields the
	// same outcome and records nothing new.
	for i := range 3 {
		out, state := d.replayOnly(chained)
		if out.kind != outcomeCompleted {
			t.Fatalf("replay %d: kind = %v, err = %v", i, out.kind, out.err)
		}
		if len(state.newEvents) != 0 {
			t.Fatalf("replay %d recorded %d new events, want 0", i, len(state.newEvents))
		}
		if got := out.output[0].(string); got != "two" {
			t.Fatalf("replay %d output = %q, want %q", i, got, "two")
		}
	}
}

func TestReplayFanOutPreservesOrder(t *testing.T) {
	fanOut := func(ctx Context) ([]int, error) {
		tasks := make([]Task, 3)
		for i := range tasks {
			tasks[i] = ctx.CallActivity("Square", i+1)
		}
		var results []int
		if err := ctx.All(tasks...).Get(ctx, &results); err != nil {
			return nil, err
		}
		return results, nil
	}

	d := newDriver(t)
	out, state := d.run(fanOut)
	if out.kind != outcomeSuspended {
		t.Fatalf("first pass kind = %v, want suspended", out.kind)
	}
	if len(state.newEvents) != 3 {
		t.Fatalf("first pass recorded %d events, want 3", len(state.newEvents))
	}

	// Completions arrive out of order; All still yields argument order.
	d.completeActivity(2, testBase.Add(1*time.Second), 4)
	d.completeActivity(3, testBase.Add(2*time.Second), 9)
	d.completeActivity(1, testBase.Add(3*time.Second), 1)

	out, _ = d.run(fanOut)
	if out.kind != outcomeCompleted {
		t.Fatalf("final pass kind = %v, err = %v", out.kind, out.err)
	}
	got := out.output[0].([]int)
	for i, want := range []int{1, 4, 9} {
		if got[i] != want {
			t.Errorf("results[%d] = %d, want %d", i, got[i], want)
		}
	}
}

func TestReplayAllFailsFast(t *testing.T) {
	fanOut := func(ctx Context) error {
		a := ctx.CallActivity("Slow")
		b := ctx.CallActivity("Broken")
		return ctx.All(a, b).Get(ctx, nil)
	}

	d := newDriver(t)
	d.run(fanOut)

	// Only the second activity has settled, with a fault. All must not
	// wait for the first.
	d.failActivity(2, testBase.Add(time.Second), "boom")

	out, _ := d.run(fanOut)
	if out.kind != outcomeFailed {
		t.Fatalf("kind = %v, want failed", out.kind)
	}
	var actErr *ActivityError
	if !errors.As(out.err, &actErr) {
		t.Fatalf("err = %v, want *ActivityError", out.err)
	}
	if actErr.Message != "boom" {
		t.Errorf("message = %q, want %q", actErr.Message, "boom")
	}
}

func TestReplayAnyWinnerByHistoryOrder(t *testing.T) {
	race := func(ctx Context) (string, error) {
		approval := ctx.WaitForEvent("ApprovalEvent")
		timeout := ctx.CreateTimer(ctx.CurrentTime().Add(time.Hour))

		var winner int
		if err := ctx.Any(approval, timeout).Get(ctx, &winner); err != nil {
			return "", err
		}
		if winner == 0 {
			var approved bool
			if err := approval.Get(ctx, &approved); err != nil {
				return "", err
			}
			if approved {
				return "approved", nil
			}
			return "rejected", nil
		}
		return "escalated", nil
	}

	tests := []struct {
		name   string
		settle func(d *histDriver)
		want   string
	}{
		{
			name: "approval before timer",
			settle: func(d *histDriver) {
				d.raiseEvent("ApprovalEvent", testBase.Add(time.Minute), true)
			},
			want: "approved",
		},
		{
			name: "rejection before timer",
			settle: func(d *histDriver) {
				d.raiseEvent("ApprovalEvent", testBase.Add(time.Minute), false)
			},
			want: "rejected",
		},
		{
			name: "timer before approval",
			settle: func(d *histDriver) {
				d.fireTimer(1, testBase.Add(time.Hour))
			},
			want: "escalated",
		},
		{
			name: "both settled, event first in history",
			settle: func(d *histDriver) {
				d.raiseEvent("ApprovalEvent", testBase.Add(time.Minute), true)
				d.fireTimer(1, testBase.Add(time.Hour))
			},
			want: "approved",
		},
		{
			name: "both settled, timer first in history",
			settle: func(d *histDriver) {
				d.fireTimer(1, testBase.Add(time.Hour))
				d.raiseEvent("ApprovalEvent", testBase.Add(61*time.Minute), true)
			},
			want: "escalated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDriver(t)
			out, _ := d.run(race)
			if out.kind != outcomeSuspended {
				t.Fatalf("first pass kind = %v, want suspended", out.kind)
			}

			tt.settle(d)

			out, _ = d.run(race)
			if out.kind != outcomeCompleted {
				t.Fatalf("final pass kind = %v, err = %v", out.kind, out.err)
			}
			if got := out.output[0].(string); got != tt.want {
				t.Errorf("result = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReplayEmptyCombinators(t *testing.T) {
	t.Run("all of nothing resolves empty", func(t *testing.T) {
		fn := func(ctx Context) ([]any, error) {
			var results []any
			if err := ctx.All().Get(ctx, &results); err != nil {
				return nil, err
			}
			return results, nil
		}

		d := newDriver(t)
		out, _ := d.run(fn)
		if out.kind != outcomeCompleted {
			t.Fatalf("kind = %v, err = %v", out.kind, out.err)
		}
		if results := out.output[0].([]any); len(results) != 0 {
			t.Errorf("results = %v, want empty", results)
		}
	})

	t.Run("any of nothing faults", func(t *testing.T) {
		fn := func(ctx Context) error {
			return ctx.Any().Get(ctx, nil)
		}

		d := newDriver(t)
		out, _ := d.run(fn)
		if out.kind != outcomeFailed {
			t.Fatalf("kind = %v, want failed", out.kind)
		}
		if !errors.Is(out.err, ErrEmptyRace) {
			t.Errorf("err = %v, want ErrEmptyRace", out.err)
		}
	})
}

func TestReplayAnyLoserStaysReadable(t *testing.T) {
	fn := func(ctx Context) (string, error) {
		fast := ctx.CallActivity("Fast")
		slow := ctx.CallActivity("Slow")

		var winner int
		if err := ctx.Any(fast, slow).Get(ctx, &winner); err != nil {
			return "", err
		}

		// The losing handle still surfaces its outcome once recorded.
		var a, b string
		if err := fast.Get(ctx, &a); err != nil {
			return "", err
		}
		if err := slow.Get(ctx, &b); err != nil {
			return "", err
		}
		return a + "+" + b, nil
	}

	d := newDriver(t)
	d.run(fn)
	d.completeActivity(2, testBase.Add(time.Second), "slow-done")
	d.completeActivity(1, testBase.Add(2*time.Second), "fast-done")

	out, _ := d.run(fn)
	if out.kind != outcomeCompleted {
		t.Fatalf("kind = %v, err = %v", out.kind, out.err)
	}
	if got := out.output[0].(string); got != "fast-done+slow-done" {
		t.Errorf("result = %q", got)
	}
}

func TestReplayNonDeterminism(t *testing.T) {
	t.Run("wrong action kind at replayed position", func(t *testing.T) {
		original := func(ctx Context) error {
			return ctx.CreateTimer(ctx.CurrentTime().Add(time.Minute)).Get(ctx, nil)
		}
		changed := func(ctx Context) error {
			return ctx.CallActivity("NewActivity").Get(ctx, nil)
		}

		d := newDriver(t)
		out, _ := d.run(original)
		if out.kind != outcomeSuspended {
			t.Fatalf("setup pass kind = %v", out.kind)
		}

		out, _ = d.replayOnly(changed)
		if out.kind != outcomeFailed || !out.nonDeterministic {
			t.Fatalf("kind = %v, nonDeterministic = %v, want failed divergence", out.kind, out.nonDeterministic)
		}
		var ndErr *NonDeterminismError
		if !errors.As(out.err, &ndErr) {
			t.Fatalf("err = %v, want *NonDeterminismError", out.err)
		}
		if ndErr.EventID != 1 {
			t.Errorf("diverged at event %d, want 1", ndErr.EventID)
		}
	})

	t.Run("wrong activity name at replayed position", func(t *testing.T) {
		original := func(ctx Context) error {
			return ctx.CallActivity("Charge").Get(ctx, nil)
		}
		changed := func(ctx Context) error {
			return ctx.CallActivity("Refund").Get(ctx, nil)
		}

		d := newDriver(t)
		d.run(original)

		out, _ := d.replayOnly(changed)
		if out.kind != outcomeFailed || !out.nonDeterministic {
			t.Fatalf("kind = %v, nonDeterministic = %v", out.kind, out.nonDeterministic)
		}
	})

	t.Run("return with unconsumed history", func(t *testing.T) {
		original := func(ctx Context) error {
			a := ctx.CallActivity("First")
			b := ctx.CallActivity("Second")
			return ctx.All(a, b).Get(ctx, nil)
		}
		shortened := func(ctx Context) error {
			return nil
		}

		d := newDriver(t)
		d.run(original)

		out, _ := d.replayOnly(shortened)
		if out.kind != outcomeFailed || !out.nonDeterministic {
			t.Fatalf("kind = %v, nonDeterministic = %v", out.kind, out.nonDeterministic)
		}
	})
}

func TestReplayBoundedPolling(t *testing.T) {
	type pollResult struct {
		Status  string
		Retries int
	}

	// Every status check is followed by one interval timer, the final
	// one included.
	const maxAttempts = 3
	monitor := func(ctx Context) (pollResult, error) {
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			var done bool
			if err := ctx.CallActivity("CheckJob").Get(ctx, &done); err != nil {
				return pollResult{}, err
			}
			if done {
				return pollResult{Status: "completed", Retries: attempt}, nil
			}
			if err := ctx.CreateTimer(ctx.CurrentTime().Add(time.Minute)).Get(ctx, nil); err != nil {
				return pollResult{}, err
			}
		}
		return pollResult{Status: "timeout", Retries: maxAttempts}, nil
	}

	d := newDriver(t)
	at := testBase
	for attempt := 0; attempt < maxAttempts; attempt++ {
		out, _ := d.run(monitor)
		if out.kind != outcomeSuspended {
			t.Fatalf("poll %d: kind = %v, want suspended", attempt, out.kind)
		}
		at = at.Add(time.Second)
		d.completeActivity(int64(attempt*2+1), at, false)

		out, _ = d.run(monitor)
		if out.kind != outcomeSuspended {
			t.Fatalf("timer wait %d: kind = %v, want suspended", attempt, out.kind)
		}
		at = at.Add(time.Minute)
		d.fireTimer(int64(attempt*2+2), at)
	}

	out, _ := d.run(monitor)
	if out.kind != outcomeCompleted {
		t.Fatalf("final kind = %v, err = %v", out.kind, out.err)
	}
	got := out.output[0].(pollResult)
	if got.Status != "timeout" || got.Retries != maxAttempts {
		t.Errorf("result = %+v, want {timeout %d}", got, maxAttempts)
	}

	// Exactly maxAttempts checks and as many timers were scheduled.
	checks, timers := 0, 0
	for _, evt := range d.events {
		switch sch := evt.(type) {
		case *api.ActivityScheduled:
			if sch.Activity == "CheckJob" {
				checks++
			}
		case *api.TimerCreated:
			timers++
		}
	}
	if checks != maxAttempts {
		t.Errorf("scheduled %d checks, want %d", checks, maxAttempts)
	}
	if timers != maxAttempts {
		t.Errorf("scheduled %d timers, want %d", timers, maxAttempts)
	}
}

func TestReplayContinueAsNew(t *testing.T) {
	fn := func(ctx Context) (string, error) {
		var count int
		if err := ctx.GetInput(&count); err != nil {
			return "", err
		}
		if count < 3 {
			ctx.ContinueAsNew(count + 1)
		}
		return "done", nil
	}

	d := newDriver(t, 0)
	out, _ := d.run(fn)
	if out.kind != outcomeContinued {
		t.Fatalf("kind = %v, want continued", out.kind)
	}
	if len(out.continueInput) != 1 || out.continueInput[0] != 1 {
		t.Errorf("continue input = %v, want [1]", out.continueInput)
	}

	final := newDriver(t, 3)
	out, _ = final.run(fn)
	if out.kind != outcomeCompleted {
		t.Fatalf("kind = %v, err = %v, want completed", out.kind, out.err)
	}
	if got := out.output[0].(string); got != "done" {
		t.Errorf("result = %q, want %q", got, "done")
	}
}

func TestReplayOrchestrationError(t *testing.T) {
	fn := func(ctx Context) error {
		return errors.New("business rule violated")
	}

	d := newDriver(t)
	out, _ := d.run(fn)
	if out.kind != outcomeFailed {
		t.Fatalf("kind = %v, want failed", out.kind)
	}
	if out.nonDeterministic {
		t.Error("ordinary failures must not be classified as divergence")
	}
	if out.err == nil || out.err.Error() != "business rule violated" {
		t.Errorf("err = %v", out.err)
	}
}

func TestReplayStructResultsRoundTrip(t *testing.T) {
	type charge struct {
		ID     string
		Amount float64
	}

	fn := func(ctx Context) (charge, error) {
		var c charge
		if err := ctx.CallActivity("Charge").Get(ctx, &c); err != nil {
			return charge{}, err
		}
		return c, nil
	}

	d := newDriver(t)
	d.run(fn)

	// Simulate the wire: completions come back as generic maps, the
	// way a decoded history delivers them.
	d.completeActivity(1, testBase.Add(time.Second), map[string]any{
		"ID":     "ch-1",
		"Amount": 12.5,
	})

	out, _ := d.run(fn)
	if out.kind != outcomeCompleted {
		t.Fatalf("kind = %v, err = %v", out.kind, out.err)
	}
	got := out.output[0].(charge)
	if got.ID != "ch-1" || got.Amount != 12.5 {
		t.Errorf("charge = %+v", got)
	}
}
