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
	"time"

	"github.com/duratask-io/duratask/api"
)

type actionKind int

const (
	actionActivity actionKind = iota
	actionTimer
)

func (k actionKind) String() string {
	switch k {
	case actionActivity:
		return "activity"
	case actionTimer:
		return "timer"
	}
	return "unknown"
}

// scheduledAction is a recorded side-effect request, keyed by EventID.
type scheduledAction struct {
	kind   actionKind
	name   string
	fireAt time.Time
}

// completion is the recorded outcome of a scheduled action. The order
// field is the position of the settling event within the history, which
// decides race winners.
type completion struct {
	value any
	err   error
	at    time.Time
	order int
}

// raisedExternalEvent is one buffered external event, retained until a
// WaitForEvent call with the matching name consumes it.
type raisedExternalEvent struct {
	payload any
	at      time.Time
	order   int
}

// instanceState is the replay state of one orchestration instance,
// folded from its history before each execution pass and consumed by the
// orchestration context while the function re-runs.
type instanceState struct {
	id            api.InstanceID
	orchestration string
	input         []any
	now           time.Time

	// nextEventID is the last action ID handed out during this pass;
	// maxHistoryID is the highest one the history recorded.
	nextEventID  int64
	maxHistoryID int64

	scheduled   map[int64]*scheduledAction
	completions map[int64]*completion

	raised       map[string][]*raisedExternalEvent
	raisedCursor map[string]int

	customStatus       any
	statusSetInHistory int
	statusSetThisPass  int

	terminated *api.OrchestrationTerminated
	finished   bool

	settleOrder int

	newEvents []api.HistoryEvent
}

func newInstanceState() *instanceState {
	return &instanceState{
		scheduled:    make(map[int64]*scheduledAction),
		completions:  make(map[int64]*completion),
		raised:       make(map[string][]*raisedExternalEvent),
		raisedCursor: make(map[string]int),
	}
}

// foldHistory builds the replay state from a recorded history.
func foldHistory(events []api.HistoryEvent) (*instanceState, error) {
	s := newInstanceState()
	for _, e := range events {
		if err := s.apply(e); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *instanceState) apply(e api.HistoryEvent) error {
	switch evt := e.(type) {
	case *api.OrchestrationStarted:
		s.id = evt.ID
		s.orchestration = evt.Orchestration
		s.input = evt.Input
		s.now = evt.At
	case *api.ActivityScheduled:
		s.scheduled[evt.EventID] = &scheduledAction{kind: actionActivity, name: evt.Activity}
		s.maxHistoryID = max(s.maxHistoryID, evt.EventID)
	case *api.ActivityCompleted:
		s.completions[evt.EventID] = &completion{
			value: primaryResult(evt.Result),
			at:    evt.At,
			order: s.nextSettleOrder(),
		}
	case *api.ActivityFailed:
		name := "unknown"
		if sch, ok := s.scheduled[evt.EventID]; ok {
			name = sch.name
		}
		s.completions[evt.EventID] = &completion{
			err:   &ActivityError{Activity: name, Message: evt.Error},
			at:    evt.At,
			order: s.nextSettleOrder(),
		}
	case *api.TimerCreated:
		s.scheduled[evt.EventID] = &scheduledAction{kind: actionTimer, fireAt: evt.FireAt}
		s.maxHistoryID = max(s.maxHistoryID, evt.EventID)
	case *api.TimerFired:
		s.completions[evt.EventID] = &completion{
			at:    evt.At,
			order: s.nextSettleOrder(),
		}
	case *api.EventRaised:
		s.raised[evt.Name] = append(s.raised[evt.Name], &raisedExternalEvent{
			payload: evt.Payload,
			at:      evt.At,
			order:   s.nextSettleOrder(),
		})
	case *api.CustomStatusSet:
		s.customStatus = evt.Status
		s.statusSetInHistory++
	case *api.OrchestrationTerminated:
		s.terminated = evt
	case *api.OrchestrationCompleted, *api.OrchestrationFailed, *api.OrchestrationContinued:
		s.finished = true
	default:
		return fmt.Errorf("unknown event type: %T", e)
	}
	return nil
}

// nextSettleOrder numbers settling events in history order. Append order
// is arrival order, so the numbering reproduces real completion order on
// every replay.
func (s *instanceState) nextSettleOrder() int {
	s.settleOrder++
	return s.settleOrder
}

// nextActionID hands out correlation IDs in call order: the k-th action
// the function requests is always action k, on first execution and on
// every replay.
func (s *instanceState) nextActionID() int64 {
	s.nextEventID++
	return s.nextEventID
}

// observe advances the logical clock to the timestamp of a consumed
// outcome. The clock only moves when the function observes recorded
// data, so every replay sees the identical sequence of times.
func (s *instanceState) observe(at time.Time) {
	if at.After(s.now) {
		s.now = at
	}
}

func (s *instanceState) recordThat(e api.HistoryEvent) {
	s.newEvents = append(s.newEvents, e)
}

// primaryResult collapses an activity's recorded return values to the
// value surfaced through Get: one value stays scalar, several stay a
// slice, none is nil.
func primaryResult(result []any) any {
	switch len(result) {
	case 0:
		return nil
	case 1:
		return result[0]
	default:
		return result
	}
}
