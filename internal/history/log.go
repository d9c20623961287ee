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

// Package history reads and appends per-instance event logs stored in a
// JetStream stream, one subject per orchestration instance.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/duratask-io/duratask/api"
	"github.com/duratask-io/duratask/api/serde"
)

// ErrConflict reports that an append raced with another writer on the
// same instance subject. Callers re-read the history and retry.
var ErrConflict = errors.New("history: concurrent append conflict")

const readMaxWait = 5 * time.Second

type Log struct {
	js    jetstream.JetStream
	serde serde.BinarySerde
}

func NewLog(js jetstream.JetStream, s serde.BinarySerde) *Log {
	return &Log{js: js, serde: s}
}

// Subject returns the history subject of one instance.
func Subject(id api.InstanceID) string {
	return fmt.Sprintf(api.HistoryPublishSubjectPattern, id)
}

// Read returns the full recorded history of an instance in append order,
// together with the stream sequence of the last event. A missing subject
// yields an empty history and sequence zero.
func (l *Log) Read(ctx context.Context, id api.InstanceID) ([]api.HistoryEvent, uint64, error) {
	subject := Subject(id)

	lastSeq, err := l.LastSequence(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if lastSeq == 0 {
		return nil, 0, nil
	}

	cons, err := l.js.OrderedConsumer(ctx, api.OrchestrationHistoryStream, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{subject},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create history consumer for %s: %w", id, err)
	}

	var events []api.HistoryEvent
	for {
		msg, err := cons.Next(jetstream.FetchMaxWait(readMaxWait))
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read history of %s: %w", id, err)
		}

		event, err := DecodeMsg(msg, l.serde)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, event)

		meta, err := msg.Metadata()
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read message metadata: %w", err)
		}
		if meta.Sequence.Stream >= lastSeq {
			break
		}
	}
	return events, lastSeq, nil
}

// LastSequence returns the stream sequence of the newest event on the
// instance's subject, or zero when the instance has no history.
func (l *Log) LastSequence(ctx context.Context, id api.InstanceID) (uint64, error) {
	stream, err := l.js.Stream(ctx, api.OrchestrationHistoryStream)
	if err != nil {
		return 0, fmt.Errorf("failed to open history stream: %w", err)
	}

	raw, err := stream.GetLastMsgForSubject(ctx, Subject(id))
	if err != nil {
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to look up last history sequence of %s: %w", id, err)
	}
	return raw.Sequence, nil
}

// AppendAfter appends events with per-subject optimistic concurrency:
// the first publish expects lastSeq to still be the newest sequence on
// the subject. Returns the new last sequence, or ErrConflict when a
// concurrent writer got there first.
func (l *Log) AppendAfter(ctx context.Context, id api.InstanceID, lastSeq uint64, events ...api.HistoryEvent) (uint64, error) {
	cur := lastSeq
	for _, event := range events {
		msg, err := Encode(event, l.serde)
		if err != nil {
			return cur, err
		}

		ack, err := l.js.PublishMsg(ctx, msg, jetstream.WithExpectLastSequencePerSubject(cur))
		if err != nil {
			if isWrongLastSequence(err) {
				return cur, fmt.Errorf("%w: instance %s at seq %d", ErrConflict, id, cur)
			}
			return cur, fmt.Errorf("failed to append %s for %s: %w", event.EventName(), id, err)
		}
		cur = ack.Sequence
	}
	return cur, nil
}

// AppendIdempotent appends a single event deduplicated by message ID,
// for writers that cannot hold a sequence expectation (timer firings,
// activity completions, raised events).
func (l *Log) AppendIdempotent(ctx context.Context, id api.InstanceID, msgID string, event api.HistoryEvent) error {
	msg, err := Encode(event, l.serde)
	if err != nil {
		return err
	}

	if _, err := l.js.PublishMsg(ctx, msg, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("failed to append %s for %s: %w", event.EventName(), id, err)
	}
	return nil
}

// Purge deletes every recorded event of the instance. The stream and
// other instances' subjects are untouched.
func (l *Log) Purge(ctx context.Context, id api.InstanceID) error {
	stream, err := l.js.Stream(ctx, api.OrchestrationHistoryStream)
	if err != nil {
		return fmt.Errorf("failed to open history stream: %w", err)
	}
	if err := stream.Purge(ctx, jetstream.WithPurgeSubject(Subject(id))); err != nil {
		return fmt.Errorf("failed to purge history of %s: %w", id, err)
	}
	return nil
}

// Encode builds the NATS message for one event: payload from the serde,
// event type carried in a header so consumers can dispatch without
// sniffing the body.
func Encode(event api.HistoryEvent, s serde.BinarySerde) (*nats.Msg, error) {
	data, err := s.SerializeBinary(event)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s: %w", event.EventName(), err)
	}

	msg := nats.NewMsg(Subject(event.Instance()))
	msg.Header.Set(api.EventNameHeader, event.EventName())
	msg.Data = data
	return msg, nil
}

// DecodeMsg reverses Encode for a consumed JetStream message.
func DecodeMsg(msg jetstream.Msg, s serde.BinarySerde) (api.HistoryEvent, error) {
	return Decode(msg.Headers().Get(api.EventNameHeader), msg.Data(), s)
}

// Decode materializes an event from its name and serialized payload.
func Decode(eventName string, data []byte, s serde.BinarySerde) (api.HistoryEvent, error) {
	if eventName == "" {
		return nil, fmt.Errorf("history message missing %s header", api.EventNameHeader)
	}

	event, err := api.NewEvent(eventName)
	if err != nil {
		return nil, err
	}
	if err := s.DeserializeBinary(data, event); err != nil {
		return nil, fmt.Errorf("failed to deserialize %s: %w", eventName, err)
	}
	return event, nil
}

func isWrongLastSequence(err error) bool {
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}
	return false
}
