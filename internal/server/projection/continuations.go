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
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/duratask-io/duratask/api"
	"github.com/duratask-io/duratask/api/serde"
	"github.com/duratask-io/duratask/internal/history"
	jetstreamx "github.com/duratask-io/duratask/internal/server/infra/jetstream"
)

// Continuations restarts instances that requested continue-as-new: the
// old history is purged and a fresh OrchestrationStarted with the
// carried-over input opens the next execution under the same instance
// ID. External events raised after the continued event were part of the
// purged history; senders race a restart the same way they race
// completion.
func Continuations(ctx context.Context, conn *jetstreamx.Connection, conv serde.BinarySerde) error {
	js, _ := conn.JS()
	log := history.NewLog(js, conv)

	consumer, err := conn.EnsureConsumer(ctx, api.OrchestrationHistoryStream, jetstream.ConsumerConfig{
		Durable:       api.ContinuationProjectorConsumer,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: api.HistoryFilterSubjectPattern,
	})
	if err != nil {
		return fmt.Errorf("failed to create continuation projector consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		event, err := decodeEvent(msg, conv)
		if err != nil {
			slog.Error("continuation projector: undecodable event", "error", err)
			msg.Term()
			return
		}

		continued, ok := event.(*api.OrchestrationContinued)
		if !ok {
			msg.Ack()
			return
		}

		seq, err := streamSeq(msg)
		if err != nil {
			slog.Error("continuation projector: no metadata", "error", err)
			msg.Term()
			return
		}

		if err := restartInstance(ctx, conn, conv, log, continued, seq); err != nil {
			slog.Error("continuation projector: restart failed",
				"instance_id", continued.Instance(), "error", err)
			msg.Nak()
			return
		}

		slog.Info("instance continued as new", "instance_id", continued.Instance())
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("continuation projector failed: %w", err)
	}

	<-ctx.Done()
	cc.Stop()
	slog.Debug("continuation projector stopped")
	return nil
}

func restartInstance(ctx context.Context, conn *jetstreamx.Connection, conv serde.BinarySerde, log *history.Log, continued *api.OrchestrationContinued, seq uint64) error {
	id := continued.Instance()

	// The orchestration name survives the restart; only the input is
	// replaced.
	prev, err := taskFromInputRecord(ctx, conn, conv, id)
	if err != nil {
		return err
	}

	record := api.StartOrchestrationAttributes{
		Orchestration: prev.Orchestration,
		Input:         continued.Input,
	}
	recordData, err := conv.SerializeBinary(record)
	if err != nil {
		return fmt.Errorf("failed to serialize input record of %s: %w", id, err)
	}
	if _, err := conn.Set(ctx, api.InstanceInputBucket, api.InstanceInputKey(id), recordData); err != nil {
		return err
	}

	if err := log.Purge(ctx, id); err != nil {
		return err
	}

	started := &api.OrchestrationStarted{
		EventMeta:     api.EventMeta{ID: id, At: time.Now().UTC()},
		Orchestration: prev.Orchestration,
		Input:         continued.Input,
	}
	// The dedup ID is anchored to the continued event's stream sequence:
	// a redelivered continuation cannot double-start the instance.
	msgID := fmt.Sprintf("restart-%s-%d", id, seq)
	if err := log.AppendIdempotent(ctx, id, msgID, started); err != nil {
		return err
	}
	return nil
}
