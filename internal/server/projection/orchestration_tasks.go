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
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/duratask-io/duratask/api"
	"github.com/duratask-io/duratask/api/serde"
	jetstreamx "github.com/duratask-io/duratask/internal/server/infra/jetstream"
)

// OrchestrationTasks schedules a replay pass whenever a history event
// can unblock the orchestration function: the initial start, an
// activity outcome, a fired timer or a raised external event.
func OrchestrationTasks(ctx context.Context, conn *jetstreamx.Connection, conv serde.BinarySerde) error {
	js, _ := conn.JS()

	consumer, err := conn.EnsureConsumer(ctx, api.OrchestrationHistoryStream, jetstream.ConsumerConfig{
		Durable:       api.OrchestrationTaskProjectorConsumer,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: api.HistoryFilterSubjectPattern,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestration task projector consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		event, err := decodeEvent(msg, conv)
		if err != nil {
			slog.Error("orchestration task projector: undecodable event", "error", err)
			msg.Term()
			return
		}

		seq, err := streamSeq(msg)
		if err != nil {
			slog.Error("orchestration task projector: no metadata", "error", err)
			msg.Term()
			return
		}

		var task *api.OrchestrationTask
		switch e := event.(type) {
		case *api.OrchestrationStarted:
			task = &api.OrchestrationTask{
				InstanceID:    string(e.Instance()),
				Orchestration: e.Orchestration,
				Input:         e.Input,
			}
		case *api.ActivityCompleted, *api.ActivityFailed, *api.TimerFired, *api.EventRaised:
			task, err = taskFromInputRecord(ctx, conn, conv, event.Instance())
			if err != nil {
				slog.Error("orchestration task projector: cannot build task",
					"instance_id", event.Instance(), "error", err)
				msg.Nak()
				return
			}
		default:
			// Terminal events, custom status and scheduled actions need
			// no replay pass.
			msg.Ack()
			return
		}

		taskData, err := conv.SerializeBinary(task)
		if err != nil {
			slog.Error("orchestration task projector: serialize failed", "error", err)
			msg.Term()
			return
		}

		subject := fmt.Sprintf(api.OrchestrationTaskPublishSubjectPattern, task.InstanceID)
		msgID := fmt.Sprintf("orctask-%s-%d", task.InstanceID, seq)
		if _, err := js.PublishMsg(ctx,
			&nats.Msg{Subject: subject, Data: taskData},
			jetstream.WithMsgID(msgID),
		); err != nil {
			slog.Error("orchestration task projector: publish failed",
				"instance_id", task.InstanceID, "error", err)
			msg.Nak()
			return
		}

		slog.Debug("scheduled replay pass",
			"instance_id", task.InstanceID,
			"trigger", event.EventName(),
			"msg_id", msgID,
		)
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("orchestration task projector failed: %w", err)
	}

	<-ctx.Done()
	cc.Stop()
	slog.Debug("orchestration task projector stopped")
	return nil
}

// taskFromInputRecord rebuilds the replay task for an instance whose
// trigger event does not carry the orchestration name, using the start
// record persisted in the input bucket.
func taskFromInputRecord(ctx context.Context, conn *jetstreamx.Connection, conv serde.BinarySerde, id api.InstanceID) (*api.OrchestrationTask, error) {
	entry, err := conn.Get(ctx, api.InstanceInputBucket, api.InstanceInputKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to load input record of %s: %w", id, err)
	}

	var record api.StartOrchestrationAttributes
	if err := conv.DeserializeBinary(entry.Value(), &record); err != nil {
		return nil, fmt.Errorf("failed to deserialize input record of %s: %w", id, err)
	}

	return &api.OrchestrationTask{
		InstanceID:    string(id),
		Orchestration: record.Orchestration,
		Input:         record.Input,
	}, nil
}
