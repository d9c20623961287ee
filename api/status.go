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

import "time"

// RuntimeStatus is the lifecycle state of an orchestration instance.
type RuntimeStatus string

const (
	StatusPending        RuntimeStatus = "Pending"
	StatusRunning        RuntimeStatus = "Running"
	StatusCompleted      RuntimeStatus = "Completed"
	StatusFailed         RuntimeStatus = "Failed"
	StatusTerminated     RuntimeStatus = "Terminated"
	StatusContinuedAsNew RuntimeStatus = "ContinuedAsNew"
)

// IsTerminal reports whether no further transitions are possible.
// ContinuedAsNew is not terminal: a fresh execution follows immediately.
func (s RuntimeStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTerminated:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle state machine permits
// moving from s to next. Terminal states admit nothing.
func (s RuntimeStatus) CanTransitionTo(next RuntimeStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusTerminated || next == StatusFailed
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed ||
			next == StatusTerminated || next == StatusContinuedAsNew
	case StatusContinuedAsNew:
		return next == StatusRunning || next == StatusTerminated
	}
	return false
}

// InstanceStatus is the queryable snapshot of an instance, maintained by
// the status projector and served by the get-status command.
type InstanceStatus struct {
	InstanceID    string        `json:"instance_id"`
	Orchestration string        `json:"orchestration"`
	RuntimeStatus RuntimeStatus `json:"runtime_status"`
	Input         []any         `json:"input,omitempty"`
	Output        []any         `json:"output,omitempty"`
	Error         string        `json:"error,omitempty"`
	CustomStatus  any           `json:"custom_status,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	// HistoryPurged marks instances whose event log was deleted while the
	// status record itself is retained.
	HistoryPurged bool `json:"history_purged,omitempty"`
}
