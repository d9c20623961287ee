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

import "fmt"

// All combines tasks into one that resolves with their results in
// argument order once every task has resolved. Faults fail fast: as soon
// as any constituent has a recorded fault, the combined task faults with
// the earliest-settled error, even while siblings are still pending.
// All() with no tasks resolves immediately to an empty result list.
func (c *orchestrationContext) All(tasks ...Task) Task {
	if len(tasks) == 0 {
		return settledTask(c.state, &completion{value: []any{}}, c.converter, c.logger)
	}

	members := c.memberTasks(tasks)

	var firstFault *task
	for _, t := range members {
		if t.settled && t.err != nil {
			if firstFault == nil || t.order < firstFault.order {
				firstFault = t
			}
		}
	}
	if firstFault != nil {
		return settledTask(c.state, &completion{
			err:   firstFault.err,
			at:    firstFault.at,
			order: firstFault.order,
		}, c.converter, c.logger)
	}

	results := make([]any, len(members))
	last := &completion{}
	for i, t := range members {
		if !t.settled {
			return pendingTask(c.state, c.converter, c.logger)
		}
		results[i] = t.value
		if t.order > last.order {
			last.order = t.order
			last.at = t.at
		}
	}
	last.value = results
	return settledTask(c.state, last, c.converter, c.logger)
}

// Any combines tasks into one that resolves with the zero-based index of
// the first task to settle, decided by history order. When the winner
// faulted, the combined task faults with the winner's error instead.
// Losers stay valid handles: their outcomes, once recorded, remain
// readable. Any() with no tasks faults with ErrEmptyRace.
func (c *orchestrationContext) Any(tasks ...Task) Task {
	if len(tasks) == 0 {
		return settledTask(c.state, &completion{err: ErrEmptyRace}, c.converter, c.logger)
	}

	members := c.memberTasks(tasks)

	winnerIdx := -1
	var winner *task
	for i, t := range members {
		if !t.settled {
			continue
		}
		if winner == nil || t.order < winner.order {
			winner = t
			winnerIdx = i
		}
	}
	if winner == nil {
		return pendingTask(c.state, c.converter, c.logger)
	}

	comp := &completion{at: winner.at, order: winner.order}
	if winner.err != nil {
		comp.err = winner.err
	} else {
		comp.value = winnerIdx
	}
	return settledTask(c.state, comp, c.converter, c.logger)
}

// memberTasks asserts the combinator arguments down to the concrete
// implementation; handles from a different runtime are a caller bug.
func (c *orchestrationContext) memberTasks(tasks []Task) []*task {
	members := make([]*task, len(tasks))
	for i, t := range tasks {
		impl, ok := t.(*task)
		if !ok {
			panic(fmt.Sprintf("combinators accept tasks created by this context, got %T", t))
		}
		members[i] = impl
	}
	return members
}
