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

package app

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/duratask-io/duratask/api"
)

func (m *Manager) ensureStreams(ctx context.Context) error {
	// Orchestration history: the source of truth, retained by limits so
	// replay can always re-read it.
	if _, err := m.conn.EnsureStream(ctx, jetstream.StreamConfig{
		Name:      api.OrchestrationHistoryStream,
		Subjects:  []string{api.HistoryFilterSubjectPattern},
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	}); err != nil {
		return fmt.Errorf("failed to ensure orchestration history stream: %w", err)
	}

	// Task streams are work queues: one worker consumes each task.
	if _, err := m.conn.EnsureStream(ctx, jetstream.StreamConfig{
		Name:      api.OrchestrationTasksStream,
		Subjects:  []string{api.OrchestrationTasksFilterSubjectPattern},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	}); err != nil {
		return fmt.Errorf("failed to ensure orchestration tasks stream: %w", err)
	}

	if _, err := m.conn.EnsureStream(ctx, jetstream.StreamConfig{
		Name:      api.ActivityTasksStream,
		Subjects:  []string{api.ActivityTasksFilterSubjectPattern},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	}); err != nil {
		return fmt.Errorf("failed to ensure activity tasks stream: %w", err)
	}
	return nil
}

func (m *Manager) ensureKV(ctx context.Context) error {
	buckets := []string{
		api.InstanceStatusBucket,
		api.InstanceInputBucket,
		api.OrchestrationCatalogBucket,
	}
	for _, bucket := range buckets {
		if _, err := m.conn.EnsureKV(ctx, jetstream.KeyValueConfig{
			Bucket: bucket,
		}); err != nil {
			return fmt.Errorf("failed to ensure KV bucket %s: %w", bucket, err)
		}
	}
	return nil
}
