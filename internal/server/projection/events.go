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

// Package projection hosts the manager-side consumers that react to
// history events: scheduling replay passes, dispatching activity tasks,
// firing timers, maintaining status snapshots and handling
// continue-as-new restarts. Each projector is a durable JetStream
// consumer on the history stream, so the projections survive restarts
// and resume where they left off.
package projection

import (
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/duratask-io/duratask/api"
	"github.com/duratask-io/duratask/api/serde"
	"github.com/duratask-io/duratask/internal/history"
)

// decodeEvent materializes the history event carried by a consumed
// message, dispatching on the event-name header.
func decodeEvent(msg jetstream.Msg, conv serde.BinarySerde) (api.HistoryEvent, error) {
	if len(msg.Data()) == 0 {
		return nil, fmt.Errorf("empty history event payload")
	}
	return history.DecodeMsg(msg, conv)
}

// streamSeq returns the history stream sequence of a consumed message.
// It is stable across consumer recreation, unlike the consumer sequence,
// so it anchors deduplication IDs for derived messages.
func streamSeq(msg jetstream.Msg) (uint64, error) {
	meta, err := msg.Metadata()
	if err != nil {
		return 0, fmt.Errorf("failed to read message metadata: %w", err)
	}
	return meta.Sequence.Stream, nil
}

// activityTaskFor builds the worker task and dedup message ID for one
// ActivityScheduled record. The ID is anchored to the record's stream
// sequence: EventIDs restart after a continue-as-new purge, stream
// sequences never do, so tasks from consecutive executions of the same
// instance cannot collide inside the duplicate window.
func activityTaskFor(scheduled *api.ActivityScheduled, seq uint64) (api.ActivityTask, string) {
	task := api.ActivityTask{
		InstanceID:   string(scheduled.Instance()),
		EventID:      scheduled.EventID,
		ScheduledSeq: seq,
		Activity:     scheduled.Activity,
		Input:        scheduled.Input,
		Retry:        scheduled.Retry,
	}
	return task, fmt.Sprintf("actask-%s-%d", task.InstanceID, seq)
}

// timerFiringFor builds the TimerFired event and dedup message ID for
// one TimerCreated record, anchored to its stream sequence for the same
// reason as activityTaskFor.
func timerFiringFor(created *api.TimerCreated, seq uint64) (*api.TimerFired, string) {
	fired := &api.TimerFired{
		EventMeta: api.EventMeta{ID: created.Instance(), At: created.FireAt},
		EventID:   created.EventID,
	}
	return fired, fmt.Sprintf("timerfired-%s-%d", created.Instance(), seq)
}
