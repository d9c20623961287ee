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
	"testing"
	"time"

	"github.com/duratask-io/duratask/api"
)

func TestGetInput(t *testing.T) {
	tests := []struct {
		name  string
		input []any
		check func(t *testing.T, ctx Context)
	}{
		{
			name:  "single scalar",
			input: []any{"World"},
			check: func(t *testing.T, ctx Context) {
				var got string
				if err := ctx.GetInput(&got); err != nil {
					t.Fatal(err)
				}
				if got != "World" {
					t.Errorf("input = %q, want %q", got, "World")
				}
			},
		},
		{
			name:  "multiple values as slice",
			input: []any{"a", "b"},
			check: func(t *testing.T, ctx Context) {
				var got []string
				if err := ctx.GetInput(&got); err != nil {
					t.Fatal(err)
				}
				if len(got) != 2 || got[0] != "a" || got[1] != "b" {
					t.Errorf("input = %v", got)
				}
			},
		},
		{
			name:  "no input leaves target untouched",
			input: nil,
			check: func(t *testing.T, ctx Context) {
				got := "unchanged"
				if err := ctx.GetInput(&got); err != nil {
					t.Fatal(err)
				}
				if got != "unchanged" {
					t.Errorf("input = %q", got)
				}
			},
		},
		{
			name:  "nil target is a no-op",
			input: []any{"ignored"},
			check: func(t *testing.T, ctx Context) {
				if err := ctx.GetInput(nil); err != nil {
					t.Fatal(err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDriver(t, tt.input...)
			state, err := foldHistory(d.events)
			if err != nil {
				t.Fatal(err)
			}
			ctx := newOrchestrationContext(t.Context(), state, d.conv, d.logger)
			tt.check(t, ctx)
		})
	}
}

func TestCurrentTimeIsLogical(t *testing.T) {
	var observed []time.Time
	fn := func(ctx Context) error {
		observed = append(observed, ctx.CurrentTime())
		if err := ctx.CallActivity("Step").Get(ctx, nil); err != nil {
			return err
		}
		observed = append(observed, ctx.CurrentTime())
		return nil
	}

	d := newDriver(t)
	d.run(fn)
	settleAt := testBase.Add(90 * time.Second)
	d.completeActivity(1, settleAt, nil)

	// Two full replays of the same history observe identical times.
	for i := range 2 {
		observed = observed[:0]
		out, _ := d.replayOnly(fn)
		if out.kind != outcomeCompleted {
			t.Fatalf("replay %d: kind = %v, err = %v", i, out.kind, out.err)
		}
		if !observed[0].Equal(testBase) {
			t.Errorf("replay %d: time before activity = %v, want %v", i, observed[0], testBase)
		}
		if !observed[1].Equal(settleAt) {
			t.Errorf("replay %d: time after activity = %v, want %v", i, observed[1], settleAt)
		}
	}
}

func TestWaitForEventBuffering(t *testing.T) {
	t.Run("event raised before wait is consumed", func(t *testing.T) {
		fn := func(ctx Context) (string, error) {
			var payload string
			if err := ctx.WaitForEvent("Signal").Get(ctx, &payload); err != nil {
				return "", err
			}
			return payload, nil
		}

		d := newDriver(t)
		d.raiseEvent("Signal", testBase.Add(time.Second), "early")

		out, _ := d.run(fn)
		if out.kind != outcomeCompleted {
			t.Fatalf("kind = %v, err = %v", out.kind, out.err)
		}
		if got := out.output[0].(string); got != "early" {
			t.Errorf("payload = %q, want %q", got, "early")
		}
	})

	t.Run("repeated waits consume in arrival order", func(t *testing.T) {
		fn := func(ctx Context) ([]string, error) {
			var first, second string
			if err := ctx.WaitForEvent("Signal").Get(ctx, &first); err != nil {
				return nil, err
			}
			if err := ctx.WaitForEvent("Signal").Get(ctx, &second); err != nil {
				return nil, err
			}
			return []string{first, second}, nil
		}

		d := newDriver(t)
		d.raiseEvent("Signal", testBase.Add(time.Second), "one")
		d.raiseEvent("Signal", testBase.Add(2*time.Second), "two")

		out, _ := d.run(fn)
		if out.kind != outcomeCompleted {
			t.Fatalf("kind = %v, err = %v", out.kind, out.err)
		}
		got := out.output[0].([]string)
		if got[0] != "one" || got[1] != "two" {
			t.Errorf("payloads = %v, want [one two]", got)
		}
	})

	t.Run("wait with no event suspends", func(t *testing.T) {
		fn := func(ctx Context) error {
			return ctx.WaitForEvent("Signal").Get(ctx, nil)
		}

		d := newDriver(t)
		out, state := d.run(fn)
		if out.kind != outcomeSuspended {
			t.Fatalf("kind = %v, want suspended", out.kind)
		}
		// Waiting is passive, nothing new goes into history.
		if len(state.newEvents) != 0 {
			t.Errorf("recorded %d events, want 0", len(state.newEvents))
		}
	})

	t.Run("different names do not cross", func(t *testing.T) {
		fn := func(ctx Context) error {
			return ctx.WaitForEvent("Wanted").Get(ctx, nil)
		}

		d := newDriver(t)
		d.raiseEvent("Other", testBase.Add(time.Second), "noise")

		out, _ := d.run(fn)
		if out.kind != outcomeSuspended {
			t.Fatalf("kind = %v, want suspended", out.kind)
		}
	})
}

func TestSetCustomStatusRecordsOnlyNewValues(t *testing.T) {
	fn := func(ctx Context) error {
		ctx.SetCustomStatus("phase-1")
		if err := ctx.CallActivity("Step").Get(ctx, nil); err != nil {
			return err
		}
		ctx.SetCustomStatus("phase-2")
		return nil
	}

	d := newDriver(t)
	out, state := d.run(fn)
	if out.kind != outcomeSuspended {
		t.Fatalf("first pass kind = %v", out.kind)
	}
	if n := countEvents[*api.CustomStatusSet](state.newEvents); n != 1 {
		t.Fatalf("first pass recorded %d status events, want 1", n)
	}

	d.completeActivity(1, testBase.Add(time.Second), nil)

	// The replayed phase-1 call must not be re-recorded; only phase-2
	// is new.
	out, state = d.run(fn)
	if out.kind != outcomeCompleted {
		t.Fatalf("final pass kind = %v, err = %v", out.kind, out.err)
	}
	if n := countEvents[*api.CustomStatusSet](state.newEvents); n != 1 {
		t.Fatalf("final pass recorded %d status events, want 1", n)
	}
	if state.customStatus != "phase-2" {
		t.Errorf("custom status = %v, want phase-2", state.customStatus)
	}
}

func countEvents[E api.HistoryEvent](events []api.HistoryEvent) int {
	n := 0
	for _, evt := range events {
		if _, ok := evt.(E); ok {
			n++
		}
	}
	return n
}

func TestActivityOptionsFlowToSchedule(t *testing.T) {
	fn := func(ctx Context) error {
		retryCtx := WithActivityOptions(ctx, ActivityOptions{
			RetryPolicy: &RetryPolicy{MaximumAttempts: 5},
		})
		return retryCtx.CallActivity("Flaky").Get(retryCtx, nil)
	}

	d := newDriver(t)
	out, _ := d.run(fn)
	if out.kind != outcomeSuspended {
		t.Fatalf("kind = %v, want suspended", out.kind)
	}

	sch := d.lastScheduledActivity()
	if sch.Retry == nil {
		t.Fatal("scheduled activity carries no retry policy")
	}
	if sch.Retry.MaximumAttempts != 5 {
		t.Errorf("max attempts = %d, want 5", sch.Retry.MaximumAttempts)
	}
}

func TestRegistry(t *testing.T) {
	reg := newInMemoryRegistry()

	fn := func() {}
	if err := reg.set("alpha", fn); err != nil {
		t.Fatal(err)
	}
	if err := reg.set("alpha", fn); err == nil {
		t.Error("duplicate registration must fail")
	}
	if err := reg.set("beta", "not a function"); err == nil {
		t.Error("non-function registration must fail")
	}

	if _, err := reg.get("alpha"); err != nil {
		t.Errorf("get registered: %v", err)
	}
	if _, err := reg.get("missing"); err == nil {
		t.Error("get unknown must fail")
	}
	if reg.size() != 1 {
		t.Errorf("size = %d, want 1", reg.size())
	}
}
