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
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/duratask-io/duratask/api"
	"github.com/duratask-io/duratask/api/serde"
	jetstreamx "github.com/duratask-io/duratask/internal/server/infra/jetstream"
)

// InstanceStatus maintains the queryable status snapshot of every
// instance in the status bucket. Transitions go through the lifecycle
// state machine; an event arriving after a terminal status is ignored,
// which is what makes terminate idempotent from the outside.
func InstanceStatus(ctx context.Context, conn *jetstreamx.Connection, conv serde.BinarySerde) error {
	consumer, err := conn.EnsureConsumer(ctx, api.OrchestrationHistoryStream, jetstream.ConsumerConfig{
		Durable:       api.StatusProjectorConsumer,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: api.HistoryFilterSubjectPattern,
	})
	if err != nil {
		return fmt.Errorf("failed to create status projector consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		event, err := decodeEvent(msg, conv)
		if err != nil {
			slog.Error("status projector: undecodable event", "error", err)
			msg.Term()
			return
		}

		if err := applyStatusEvent(ctx, conn, conv, event); err != nil {
			slog.Error("status projector: failed to apply event",
				"instance_id", event.Instance(), "event", event.EventName(), "error", err)
			msg.Nak()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("status projector failed: %w", err)
	}

	<-ctx.Done()
	cc.Stop()
	slog.Debug("status projector stopped")
	return nil
}

func applyStatusEvent(ctx context.Context, conn *jetstreamx.Connection, conv serde.BinarySerde, event api.HistoryEvent) error {
	id := event.Instance()

	status, err := loadStatus(ctx, conn, conv, id)
	if err != nil {
		return err
	}
	if status == nil {
		// The start command writes the Pending snapshot before the
		// first event; anything else without a snapshot is a stray.
		if _, ok := event.(*api.OrchestrationStarted); !ok {
			slog.Warn("status projector: event for unknown instance",
				"instance_id", id, "event", event.EventName())
			return nil
		}
		status = &api.InstanceStatus{
			InstanceID:    string(id),
			RuntimeStatus: api.StatusPending,
			CreatedAt:     event.OccurredAt(),
		}
	}

	next := *status
	var transition api.RuntimeStatus

	switch e := event.(type) {
	case *api.OrchestrationStarted:
		transition = api.StatusRunning
		next.Orchestration = e.Orchestration
		next.Input = e.Input
		next.Error = ""
		next.Output = nil
		next.CustomStatus = nil
	case *api.OrchestrationCompleted:
		transition = api.StatusCompleted
		next.Output = e.Output
	case *api.OrchestrationFailed:
		transition = api.StatusFailed
		next.Error = e.Error
	case *api.OrchestrationTerminated:
		transition = api.StatusTerminated
		next.Error = e.Reason
	case *api.OrchestrationContinued:
		transition = api.StatusContinuedAsNew
		next.Input = e.Input
	case *api.CustomStatusSet:
		next.CustomStatus = e.Status
	default:
		return nil
	}

	if transition != "" {
		if !status.RuntimeStatus.CanTransitionTo(transition) {
			// Late or duplicate event against a settled lifecycle.
			slog.Debug("status projector: dropping impossible transition",
				"instance_id", id, "from", status.RuntimeStatus, "to", transition)
			return nil
		}
		next.RuntimeStatus = transition
	}
	next.UpdatedAt = event.OccurredAt()

	return storeStatus(ctx, conn, conv, &next)
}

func loadStatus(ctx context.Context, conn *jetstreamx.Connection, conv serde.BinarySerde, id api.InstanceID) (*api.InstanceStatus, error) {
	entry, err := conn.Get(ctx, api.InstanceStatusBucket, api.InstanceStatusKey(id))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load status of %s: %w", id, err)
	}

	var status api.InstanceStatus
	if err := conv.DeserializeBinary(entry.Value(), &status); err != nil {
		return nil, fmt.Errorf("failed to deserialize status of %s: %w", id, err)
	}
	return &status, nil
}

func storeStatus(ctx context.Context, conn *jetstreamx.Connection, conv serde.BinarySerde, status *api.InstanceStatus) error {
	data, err := conv.SerializeBinary(status)
	if err != nil {
		return fmt.Errorf("failed to serialize status of %s: %w", status.InstanceID, err)
	}
	if _, err := conn.Set(ctx, api.InstanceStatusBucket, api.InstanceStatusKey(api.InstanceID(status.InstanceID)), data); err != nil {
		return err
	}
	return nil
}
