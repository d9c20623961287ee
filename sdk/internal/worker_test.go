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
	"sync"
	"testing"

	"github.com/duratask-io/duratask/api"
)

// Outcome keys must be scoped by the schedule record's stream sequence:
// after continue-as-new the next execution reuses EventID 1, and keying
// on the EventID alone would deduplicate the new execution's outcome
// against the old one.
func TestActivityOutcomeMsgIDScopedToExecution(t *testing.T) {
	firstCycle := &api.ActivityTask{InstanceID: "inst-3", EventID: 1, ScheduledSeq: 2}
	secondCycle := &api.ActivityTask{InstanceID: "inst-3", EventID: 1, ScheduledSeq: 9}

	if activityOutcomeMsgID(firstCycle, false) == activityOutcomeMsgID(secondCycle, false) {
		t.Error("completion IDs collide across executions")
	}
	if activityOutcomeMsgID(firstCycle, true) == activityOutcomeMsgID(secondCycle, true) {
		t.Error("failure IDs collide across executions")
	}

	// Same schedule record, redelivered: the key must not change.
	if activityOutcomeMsgID(firstCycle, false) != activityOutcomeMsgID(&api.ActivityTask{
		InstanceID: "inst-3", EventID: 1, ScheduledSeq: 2,
	}, false) {
		t.Error("redelivered task changed its completion ID")
	}

	// Success and failure of the same call record under distinct keys.
	if activityOutcomeMsgID(firstCycle, false) == activityOutcomeMsgID(firstCycle, true) {
		t.Error("completion and failure share an ID")
	}
}

func TestInstanceLockEviction(t *testing.T) {
	w := &workerImpl{instanceLocks: make(map[api.InstanceID]*sync.Mutex)}

	mu := w.instanceLock("inst-1")
	if len(w.instanceLocks) != 1 {
		t.Fatalf("lock map holds %d entries, want 1", len(w.instanceLocks))
	}
	if w.instanceLock("inst-1") != mu {
		t.Fatal("second acquisition returned a different mutex")
	}

	w.releaseInstanceLock("inst-1", mu)
	if len(w.instanceLocks) != 0 {
		t.Fatalf("lock map holds %d entries after release, want 0", len(w.instanceLocks))
	}

	// A stale pointer must not evict the entry a later pass recreated.
	fresh := w.instanceLock("inst-1")
	w.releaseInstanceLock("inst-1", mu)
	if w.instanceLocks["inst-1"] != fresh {
		t.Error("stale release evicted the live lock")
	}
}
