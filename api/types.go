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

type CommandType string

const (
	StartOrchestrationCommand CommandType = "StartOrchestration"
	RaiseEventCommand         CommandType = "RaiseEvent"
	TerminateCommand          CommandType = "Terminate"
	PurgeHistoryCommand       CommandType = "PurgeHistory"
	GetStatusCommand          CommandType = "GetStatus"
)

type (
	Command struct {
		CommandType CommandType `json:"type"`
		Attributes  []byte      `json:"attributes"`
	}

	StartOrchestrationAttributes struct {
		Orchestration string `json:"orchestration"`
		Input         []any  `json:"input"`
	}

	StartOrchestrationReply struct {
		Error      string `json:"error,omitempty"`
		ErrorCode  string `json:"error_code,omitempty"`
		InstanceID string `json:"instance_id"`
	}

	RaiseEventAttributes struct {
		InstanceID string `json:"instance_id"`
		Name       string `json:"name"`
		Payload    any    `json:"payload"`
		// RequestID deduplicates redeliveries of the same raise call.
		RequestID string `json:"request_id"`
	}

	RaiseEventReply struct {
		Error     string `json:"error,omitempty"`
		ErrorCode string `json:"error_code,omitempty"`
	}

	TerminateAttributes struct {
		InstanceID string `json:"instance_id"`
		Reason     string `json:"reason"`
	}

	TerminateReply struct {
		Error     string `json:"error,omitempty"`
		ErrorCode string `json:"error_code,omitempty"`
		// AlreadyTerminal reports that the instance had reached a terminal
		// status before this command, so no event was recorded.
		AlreadyTerminal bool `json:"already_terminal,omitempty"`
	}

	PurgeHistoryAttributes struct {
		InstanceID string `json:"instance_id"`
	}

	PurgeHistoryReply struct {
		Error     string `json:"error,omitempty"`
		ErrorCode string `json:"error_code,omitempty"`
		// AlreadyPurged reports an earlier purge of the same instance.
		AlreadyPurged bool `json:"already_purged,omitempty"`
	}

	GetStatusAttributes struct {
		InstanceID string `json:"instance_id"`
	}

	GetStatusReply struct {
		Error     string          `json:"error,omitempty"`
		ErrorCode string          `json:"error_code,omitempty"`
		Status    *InstanceStatus `json:"status,omitempty"`
	}
)

// Error codes carried on command replies.
const (
	ErrorCodeNotFound     = "NotFound"
	ErrorCodeInvalidState = "InvalidState"
	ErrorCodeInternal     = "Internal"
)

type (
	Task interface {
		isTask()
	}

	// OrchestrationTask asks a worker to run one replay pass.
	OrchestrationTask struct {
		InstanceID    string `json:"instance_id"`
		Orchestration string `json:"orchestration"`
		Input         []any  `json:"input"`
	}

	// ActivityTask asks a worker to execute one scheduled activity call.
	ActivityTask struct {
		InstanceID string `json:"instance_id"`
		EventID    int64  `json:"event_id"`
		// ScheduledSeq is the history stream sequence of the
		// ActivityScheduled record. EventIDs restart at 1 after
		// ContinueAsNew purges the history, so idempotency keys for
		// this call derive from ScheduledSeq, which never repeats.
		ScheduledSeq uint64       `json:"scheduled_seq"`
		Activity     string       `json:"activity"`
		Input        []any        `json:"input"`
		Retry        *RetryPolicy `json:"retry,omitempty"`
	}
)

// RetryPolicy controls worker-side re-execution of a failing activity
// before its failure is recorded into history. Retries happen outside
// the orchestration's view: history sees a single scheduled action and a
// single terminal outcome.
type RetryPolicy struct {
	// InitialIntervalMs is the backoff before the first retry.
	// Defaults to one second when zero.
	InitialIntervalMs int64 `json:"initial_interval_ms,omitempty"`

	// BackoffCoefficient multiplies the interval after each attempt.
	// Must be 1 or larger. Defaults to 2.0.
	BackoffCoefficient float64 `json:"backoff_coefficient,omitempty"`

	// MaximumIntervalMs caps the backoff interval.
	// Defaults to 100x the initial interval when zero.
	MaximumIntervalMs int64 `json:"maximum_interval_ms,omitempty"`

	// MaximumAttempts bounds total execution attempts. Zero or one
	// means no retries.
	MaximumAttempts int32 `json:"maximum_attempts,omitempty"`

	// NonRetryableErrors lists error messages that stop retrying
	// immediately.
	NonRetryableErrors []string `json:"non_retryable_errors,omitempty"`
}

func (t *OrchestrationTask) isTask() {}
func (t *ActivityTask) isTask()      {}
