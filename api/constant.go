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

// NATS Stream Names
const (
	OrchestrationHistoryStream = "ORCHESTRATION_HISTORY"
	OrchestrationTasksStream   = "ORCHESTRATION_TASKS"
	ActivityTasksStream        = "ACTIVITY_TASKS"
)

// NATS Subject Prefix
const (
	HistorySubjectPrefix = "history"
)

// NATS Subject Format
const (
	HistoryPublishSubjectPattern = HistorySubjectPrefix + ".%s" // instanceID

	OrchestrationTaskPublishSubjectPattern = "orchestration.%s.tasks" // instanceID
	ActivityTaskPublishSubjectPattern      = "activity.%s.tasks"      // instanceID
)

// NATS Subject Patterns
const (
	HistoryFilterSubjectPattern = HistorySubjectPrefix + ".>"

	CommandRequestSubjectPattern = "command.request.>"

	OrchestrationTasksFilterSubjectPattern = "orchestration.*.tasks"
	ActivityTasksFilterSubjectPattern      = "activity.*.tasks"
)

// Specific Command Subjects
const (
	CommandRequestStart      = "command.request.start"
	CommandRequestRaiseEvent = "command.request.raise-event"
	CommandRequestTerminate  = "command.request.terminate"
	CommandRequestPurge      = "command.request.purge"
	CommandRequestGetStatus  = "command.request.get-status"
)

// Consumer Names
const (
	ManagerCommandProcessorsConsumer   = "manager-command-processors"
	OrchestrationTaskProjectorConsumer = "projector-orchestration-tasks"
	ActivityTaskProjectorConsumer      = "projector-activity-tasks"
	TimerProjectorConsumer             = "projector-timers"
	StatusProjectorConsumer            = "projector-instance-status"
	ContinuationProjectorConsumer      = "projector-continuations"

	OrchestrationTaskWorkerConsumer = "worker-orchestration-tasks"
	ActivityTaskWorkerConsumer      = "worker-activity-tasks"
)

// KeyValue Bucket Names
const (
	InstanceStatusBucket       = "instance-status"
	InstanceInputBucket        = "instance-input"
	OrchestrationCatalogBucket = "orchestration-catalog"
)

// JetStream Headers
const (
	EventNameHeader = "Duratask-Event-Name"
)
