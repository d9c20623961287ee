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

// maxTimerNakDelay bounds one redelivery wait; longer timers loop
// through multiple redeliveries.
const maxTimerNakDelay = 1 * time.Minute

// Timers turns TimerCreated events into TimerFired events once their
// due time passes. A timer that is not due yet is parked by delayed
// redelivery instead of an in-process sleep: the pending firing lives
// in the stream, not in this process, and survives a manager restart.
func Timers(ctx context.Context, conn *jetstreamx.Connection, conv serde.BinarySerde) error {
	js, _ := conn.JS()
	log := history.NewLog(js, conv)

	consumer, err := conn.EnsureConsumer(ctx, api.OrchestrationHistoryStream, jetstream.ConsumerConfig{
		Durable:       api.TimerProjectorConsumer,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: api.HistoryFilterSubjectPattern,
		// A due timer must not wait behind a parked one.
		MaxAckPending: -1,
		AckWait:       2 * maxTimerNakDelay,
	})
	if err != nil {
		return fmt.Errorf("failed to create timer projector consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		event, err := decodeEvent(msg, conv)
		if err != nil {
			slog.Error("timer projector: undecodable event", "error", err)
			msg.Term()
			return
		}

		created, ok := event.(*api.TimerCreated)
		if !ok {
			msg.Ack()
			return
		}

		if wait := time.Until(created.FireAt); wait > 0 {
			if wait > maxTimerNakDelay {
				wait = maxTimerNakDelay
			}
			msg.NakWithDelay(wait)
			return
		}

		seq, err := streamSeq(msg)
		if err != nil {
			slog.Error("timer projector: no message metadata", "error", err)
			msg.Nak()
			return
		}
		fired, msgID := timerFiringFor(created, seq)
		if err := log.AppendIdempotent(ctx, created.Instance(), msgID, fired); err != nil {
			slog.Error("timer projector: failed to record firing",
				"instance_id", created.Instance(), "event_id", created.EventID, "error", err)
			msg.Nak()
			return
		}

		slog.Info("timer fired",
			"instance_id", created.Instance(),
			"event_id", created.EventID,
			"fire_at", created.FireAt,
		)
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("timer projector failed: %w", err)
	}

	<-ctx.Done()
	cc.Stop()
	slog.Debug("timer projector stopped")
	return nil
}
