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

package projection

import (
	"testing"
	"time"

	"github.com/duratask-io/duratask/api"
)

// Two consecutive executions of the same instance reuse EventIDs after
// the continue-as-new purge, so dedup IDs must key on the stream
// sequence instead. This drives two back-to-back cycles of a monitor
// style instance through the ID derivation and checks that nothing from
// the second cycle collides with the first.
func TestDedupIDsAcrossContinuedExecutions(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	meta := api.EventMeta{ID: "inst-9", At: at}

	scheduled := &api.ActivityScheduled{EventMeta: meta, EventID: 1, Activity: "CheckJob"}
	created := &api.TimerCreated{EventMeta: meta, EventID: 2, FireAt: at.Add(5 * time.Second)}

	// First execution: schedule at stream seq 2, timer at seq 3.
	// Second execution, after purge and restart: identical EventIDs at
	// later stream sequences.
	task1, taskID1 := activityTaskFor(scheduled, 2)
	_, firedID1 := timerFiringFor(created, 3)

	task2, taskID2 := activityTaskFor(scheduled, 9)
	fired2, firedID2 := timerFiringFor(created, 10)

	if taskID1 == taskID2 {
		t.Errorf("activity task IDs collide across executions: %q", taskID1)
	}
	if firedID1 == firedID2 {
		t.Errorf("timer firing IDs collide across executions: %q", firedID1)
	}

	// Redelivery of the same record keeps the same ID.
	_, taskID1Again := activityTaskFor(scheduled, 2)
	if taskID1 != taskID1Again {
		t.Errorf("redelivered schedule changed ID: %q vs %q", taskID1, taskID1Again)
	}

	// The worker needs the sequence to scope its own outcome keys.
	if task1.ScheduledSeq != 2 || task2.ScheduledSeq != 9 {
		t.Errorf("tasks carry sequences %d and %d, want 2 and 9", task1.ScheduledSeq, task2.ScheduledSeq)
	}

	// The replay correlation itself still runs on the EventID.
	if task1.EventID != 1 || task2.EventID != 1 {
		t.Errorf("tasks carry event IDs %d and %d, want 1 and 1", task1.EventID, task2.EventID)
	}
	if fired2.EventID != 2 {
		t.Errorf("firing carries event ID %d, want 2", fired2.EventID)
	}
	if !fired2.At.Equal(created.FireAt) {
		t.Errorf("firing timestamped %v, want the due time %v", fired2.At, created.FireAt)
	}
}
