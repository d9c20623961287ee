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
)

func TestRunTaskSourcesClosesAfterAllSources(t *testing.T) {
	out := make(chan *TaskToken)
	release := make(chan struct{})

	// Two sources, both held open: the channel must stay open until
	// both have returned, then close without further sends.
	runTaskSources(out,
		func() { <-release },
		func() { <-release; out <- &TaskToken{} },
	)

	select {
	case <-out:
		t.Fatal("received before any source produced")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)

	var received int
	for range out {
		received++
	}
	if received != 1 {
		t.Errorf("received %d tokens, want 1", received)
	}
}

func TestRunTaskSourcesNoSources(t *testing.T) {
	out := make(chan *TaskToken)
	runTaskSources(out)

	select {
	case _, ok := <-out:
		if ok {
			t.Fatal("received a token from zero sources")
		}
	case <-time.After(time.Second):
		t.Fatal("channel never closed")
	}
}
