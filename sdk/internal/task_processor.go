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

package internal

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/duratask-io/duratask/api"
)

type (
	// TaskToken pairs a dispatched task with its acknowledgement
	// callbacks. Ack consumes the task, Nak redelivers it, Term drops
	// it permanently.
	TaskToken struct {
		Task api.Task
		Ack  func(context.Context) error
		Nak  func(context.Context) error
		Term func(context.Context) error
	}

	TaskProcessor interface {
		ReceiveTask(ctx context.Context, includeOrchestration, includeActivity bool) (iter.Seq[*TaskToken], error)
	}
)

var _ TaskProcessor = (*Conn)(nil)

// ReceiveTask delivers orchestration and activity tasks from the work
// queues as a single sequence. Iteration ends when ctx is cancelled.
func (c *Conn) ReceiveTask(ctx context.Context, includeOrchestration, includeActivity bool) (iter.Seq[*TaskToken], error) {
	if !includeOrchestration && !includeActivity {
		return nil, fmt.Errorf("at least one task type must be enabled")
	}

	consumerCtx, cancelConsumers := context.WithCancel(ctx)
	taskChannel := make(chan *TaskToken)

	type consumerHandle struct {
		consumer jetstream.Consumer
		taskType string
		handler  func(msg jetstream.Msg)
	}

	var consumers []consumerHandle

	if includeOrchestration {
		orchestrationTaskConsumer, err := c.EnsureConsumer(
			consumerCtx,
			api.OrchestrationTasksStream,
			jetstream.ConsumerConfig{
				Name:          api.OrchestrationTaskWorkerConsumer,
				Durable:       api.OrchestrationTaskWorkerConsumer,
				FilterSubject: api.OrchestrationTasksFilterSubjectPattern,
				AckPolicy:     jetstream.AckExplicitPolicy,
			})
		if err != nil {
			cancelConsumers()
			return nil, err
		}
		consumers = append(consumers, consumerHandle{
			consumer: orchestrationTaskConsumer,
			taskType: "orchestration",
			handler: func(msg jetstream.Msg) {
				task := &api.OrchestrationTask{}
				if err := c.converter.DeserializeBinary(msg.Data(), task); err != nil {
					msg.Term()
					return
				}
				c.enqueueTask(consumerCtx, task, msg, taskChannel)
			},
		})
	}

	if includeActivity {
		activityTaskConsumer, err := c.EnsureConsumer(
			consumerCtx,
			api.ActivityTasksStream,
			jetstream.ConsumerConfig{
				Name:          api.ActivityTaskWorkerConsumer,
				Durable:       api.ActivityTaskWorkerConsumer,
				FilterSubject: api.ActivityTasksFilterSubjectPattern,
				AckPolicy:     jetstream.AckExplicitPolicy,
			})
		if err != nil {
			cancelConsumers()
			return nil, err
		}
		consumers = append(consumers, consumerHandle{
			consumer: activityTaskConsumer,
			taskType: "activity",
			handler: func(msg jetstream.Msg) {
				task := &api.ActivityTask{}
				if err := c.converter.DeserializeBinary(msg.Data(), task); err != nil {
					msg.Term()
					return
				}
				c.enqueueTask(consumerCtx, task, msg, taskChannel)
			},
		})
	}

	sources := make([]func(), 0, len(consumers))
	for _, handle := range consumers {
		ch := handle
		sources = append(sources, func() {
			defer cancelConsumers()

			consumeCtx, err := ch.consumer.Consume(func(msg jetstream.Msg) {
				ch.handler(msg)
			})
			if err != nil {
				c.Logger().Error("task consumer failed", "type", ch.taskType, "error", err)
				return
			}
			defer consumeCtx.Stop()

			<-consumerCtx.Done()
		})
	}
	runTaskSources(taskChannel, sources...)

	return func(yield func(*TaskToken) bool) {
		defer cancelConsumers()
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-taskChannel:
				if !ok {
					return
				}
				if t == nil {
					continue
				}
				switch t.Task.(type) {
				case *api.OrchestrationTask, *api.ActivityTask:
					if !yield(t) {
						return
					}
				default:
					// poison pill
					t.Term(consumerCtx)
				}
			}
		}
	}, nil
}

// runTaskSources runs each source in its own goroutine and closes out
// once every source has returned. The counter covers all sources before
// the closer starts waiting, so out cannot close while a source is
// still being registered.
func runTaskSources(out chan<- *TaskToken, sources ...func()) {
	var wg sync.WaitGroup
	wg.Add(len(sources))
	for _, src := range sources {
		go func(run func()) {
			defer wg.Done()
			run()
		}(src)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
}

func (c *Conn) enqueueTask(ctx context.Context, task api.Task, msg jetstream.Msg, taskChannel chan<- *TaskToken) {
	token := &TaskToken{
		Task: task,
		Ack:  msg.DoubleAck,
		Nak:  func(context.Context) error { return msg.Nak() },
		Term: func(context.Context) error { return msg.Term() },
	}

	select {
	case <-ctx.Done():
		msg.Nak()
	case taskChannel <- token:
	}
}
