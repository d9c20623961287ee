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

// ActivityTasks dispatches scheduled activities to the worker queue.
// The task's message ID is derived from the instance and the schedule
// record's stream sequence, so a redelivered record never enqueues a
// duplicate and executions separated by continue-as-new never share an
// ID.
func ActivityTasks(ctx context.Context, conn *jetstreamx.Connection, conv serde.BinarySerde) error {
	js, _ := conn.JS()

	consumer, err := conn.EnsureConsumer(ctx, api.OrchestrationHistoryStream, jetstream.ConsumerConfig{
		Durable:       api.ActivityTaskProjectorConsumer,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: api.HistoryFilterSubjectPattern,
	})
	if err != nil {
		return fmt.Errorf("failed to create activity task projector consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		event, err := decodeEvent(msg, conv)
		if err != nil {
			slog.Error("activity task projector: undecodable event", "error", err)
			msg.Term()
			return
		}

		scheduled, ok := event.(*api.ActivityScheduled)
		if !ok {
			msg.Ack()
			return
		}

		seq, err := streamSeq(msg)
		if err != nil {
			slog.Error("activity task projector: no message metadata", "error", err)
			msg.Nak()
			return
		}
		task, msgID := activityTaskFor(scheduled, seq)

		taskData, err := conv.SerializeBinary(task)
		if err != nil {
			slog.Error("activity task projector: serialize failed", "error", err)
			msg.Term()
			return
		}

		subject := fmt.Sprintf(api.ActivityTaskPublishSubjectPattern, task.InstanceID)
		if _, err := js.PublishMsg(ctx,
			&nats.Msg{Subject: subject, Data: taskData},
			jetstream.WithMsgID(msgID),
		); err != nil {
			slog.Error("activity task projector: publish failed",
				"instance_id", task.InstanceID, "activity", task.Activity, "error", err)
			msg.Nak()
			return
		}

		slog.Info("dispatched activity task",
			"instance_id", task.InstanceID,
			"activity", task.Activity,
			"event_id", task.EventID,
		)
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("activity task projector failed: %w", err)
	}

	<-ctx.Done()
	cc.Stop()
	slog.Debug("activity task projector stopped")
	return nil
}
