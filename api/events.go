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

package api

import (
	"fmt"
	"time"
)

type InstanceID string

func (id InstanceID) String() string { return string(id) }

// HistoryEvent is one record in an instance's append-only history.
//
// Events carrying an EventID correlate a scheduled action with its
// completion: the k-th action requested by the orchestration function
// gets EventID k, and a replay positions completions by that ID alone.
type HistoryEvent interface {
	EventName() string
	Instance() InstanceID
	OccurredAt() time.Time

	isHistoryEvent()
}

// EventMeta carries the fields shared by every history event.
type EventMeta struct {
	ID InstanceID `json:"id"`
	At time.Time  `json:"at"`
}

func (m EventMeta) Instance() InstanceID  { return m.ID }
func (m EventMeta) OccurredAt() time.Time { return m.At }

var _ HistoryEvent = (*OrchestrationStarted)(nil)
var _ HistoryEvent = (*ActivityScheduled)(nil)
var _ HistoryEvent = (*ActivityCompleted)(nil)
var _ HistoryEvent = (*ActivityFailed)(nil)
var _ HistoryEvent = (*TimerCreated)(nil)
var _ HistoryEvent = (*TimerFired)(nil)
var _ HistoryEvent = (*EventRaised)(nil)
var _ HistoryEvent = (*CustomStatusSet)(nil)
var _ HistoryEvent = (*OrchestrationCompleted)(nil)
var _ HistoryEvent = (*OrchestrationFailed)(nil)
var _ HistoryEvent = (*OrchestrationTerminated)(nil)
var _ HistoryEvent = (*OrchestrationContinued)(nil)

// -- Orchestration Started Event --
type OrchestrationStarted struct {
	EventMeta

	Orchestration string `json:"name"`
	Input         []any  `json:"input"`
}

func (*OrchestrationStarted) EventName() string { return "orchestration/started" }
func (*OrchestrationStarted) isHistoryEvent()   {}

// -- Activity Scheduled Event --
type ActivityScheduled struct {
	EventMeta

	EventID  int64        `json:"event_id"`
	Activity string       `json:"name"`
	Input    []any        `json:"input"`
	Retry    *RetryPolicy `json:"retry,omitempty"`
}

func (*ActivityScheduled) EventName() string { return "activity/scheduled" }
func (*ActivityScheduled) isHistoryEvent()   {}

// -- Activity Completed Event --
type ActivityCompleted struct {
	EventMeta

	EventID int64 `json:"event_id"`
	Result  []any `json:"result"`
}

func (*ActivityCompleted) EventName() string { return "activity/completed" }
func (*ActivityCompleted) isHistoryEvent()   {}

// -- Activity Failed Event --
type ActivityFailed struct {
	EventMeta

	EventID int64  `json:"event_id"`
	Error   string `json:"error"`
}

func (*ActivityFailed) EventName() string { return "activity/failed" }
func (*ActivityFailed) isHistoryEvent()   {}

// -- Timer Created Event --
type TimerCreated struct {
	EventMeta

	EventID int64     `json:"event_id"`
	FireAt  time.Time `json:"fire_at"`
}

func (*TimerCreated) EventName() string { return "timer/created" }
func (*TimerCreated) isHistoryEvent()   {}

// -- Timer Fired Event --
type TimerFired struct {
	EventMeta

	EventID int64 `json:"event_id"`
}

func (*TimerFired) EventName() string { return "timer/fired" }
func (*TimerFired) isHistoryEvent()   {}

// -- Event Raised Event --
//
// External events are not correlated by EventID: they are buffered per
// name and consumed by WaitForEvent calls in arrival order.
type EventRaised struct {
	EventMeta

	Name    string `json:"name"`
	Payload any    `json:"payload"`
}

func (*EventRaised) EventName() string { return "event/raised" }
func (*EventRaised) isHistoryEvent()   {}

// -- Custom Status Set Event --
type CustomStatusSet struct {
	EventMeta

	Status any `json:"status"`
}

func (*CustomStatusSet) EventName() string { return "orchestration/custom-status" }
func (*CustomStatusSet) isHistoryEvent()   {}

// -- Orchestration Completed --
type OrchestrationCompleted struct {
	EventMeta

	Output []any `json:"output"`
}

func (*OrchestrationCompleted) EventName() string { return "orchestration/completed" }
func (*OrchestrationCompleted) isHistoryEvent()   {}

// -- Orchestration Failed --
type OrchestrationFailed struct {
	EventMeta

	Error string `json:"error"`
}

func (*OrchestrationFailed) EventName() string { return "orchestration/failed" }
func (*OrchestrationFailed) isHistoryEvent()   {}

// -- Orchestration Terminated --
type OrchestrationTerminated struct {
	EventMeta

	Reason string `json:"reason"`
}

func (*OrchestrationTerminated) EventName() string { return "orchestration/terminated" }
func (*OrchestrationTerminated) isHistoryEvent()   {}

// -- Orchestration Continued --
//
// Recorded when the function requests ContinueAsNew. The continuation
// projector resets the instance's history and starts a fresh execution
// with the carried input.
type OrchestrationContinued struct {
	EventMeta

	Input []any `json:"input"`
}

func (*OrchestrationContinued) EventName() string { return "orchestration/continued" }
func (*OrchestrationContinued) isHistoryEvent()   {}

// NewEvent returns an empty event of the named type, ready to be
// deserialized into. Consumers dispatch on the event-name header.
func NewEvent(name string) (HistoryEvent, error) {
	switch name {
	case "orchestration/started":
		return &OrchestrationStarted{}, nil
	case "activity/scheduled":
		return &ActivityScheduled{}, nil
	case "activity/completed":
		return &ActivityCompleted{}, nil
	case "activity/failed":
		return &ActivityFailed{}, nil
	case "timer/created":
		return &TimerCreated{}, nil
	case "timer/fired":
		return &TimerFired{}, nil
	case "event/raised":
		return &EventRaised{}, nil
	case "orchestration/custom-status":
		return &CustomStatusSet{}, nil
	case "orchestration/completed":
		return &OrchestrationCompleted{}, nil
	case "orchestration/failed":
		return &OrchestrationFailed{}, nil
	case "orchestration/terminated":
		return &OrchestrationTerminated{}, nil
	case "orchestration/continued":
		return &OrchestrationContinued{}, nil
	default:
		return nil, fmt.Errorf("unknown history event type: %q", name)
	}
}
