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
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofrs/uuid/v5"
	"github.com/nats-io/nats.go"

	"github.com/duratask-io/duratask/api"
	"github.com/duratask-io/duratask/api/serde"
)

// ErrNotFound reports an operation against an unknown instance or an
// unregistered orchestration.
var ErrNotFound = errors.New("not found")

// ErrInvalidState reports an admin operation the instance's current
// lifecycle state does not permit.
var ErrInvalidState = errors.New("invalid state for operation")

var _ Client = (*clientImpl)(nil)

type (
	Client interface {
		// StartOrchestration asks the manager to create and schedule a
		// new instance of the given orchestration (a registered
		// function or its name).
		StartOrchestration(ctx context.Context, orchestration any, input ...any) (*OrchestrationRun, error)

		// GetStatus returns the instance's current status snapshot.
		GetStatus(ctx context.Context, instanceID string) (*api.InstanceStatus, error)

		// RaiseEvent delivers a named external event to a running
		// instance. Events raised before the instance waits are
		// buffered.
		RaiseEvent(ctx context.Context, instanceID, eventName string, payload any) error

		// Terminate force-stops a non-terminal instance. Terminating
		// an already-terminal instance is a no-op.
		Terminate(ctx context.Context, instanceID, reason string) error

		// PurgeHistory deletes the event log of a terminal instance,
		// retaining the status record.
		PurgeHistory(ctx context.Context, instanceID string) error

		// Accessors to underlying components, not exposed for public consumption
		getConn() *Conn
		getSerde() serde.BinarySerde
		getLogger() *slog.Logger
	}

	ClientOptions struct {
		Conn   *nats.Conn
		Logger *slog.Logger
	}
)

type clientImpl struct {
	converter serde.BinarySerde
	logger    *slog.Logger
	nc        *Conn
}

func NewClient(options *ClientOptions) (Client, error) {
	if options == nil || options.Conn == nil {
		return nil, fmt.Errorf("client options must include an established NATS connection")
	}

	serder := &serde.MsgpackSerde{}
	logger := defaultLogger(options.Logger)
	conn, err := wrapExisting(options.Conn, serder)
	if err != nil {
		return nil, err
	}
	conn.SetLogger(logger)

	return &clientImpl{
		converter: serder,
		logger:    logger,
		nc:        conn,
	}, nil
}

func (c *clientImpl) StartOrchestration(ctx context.Context, orchestration any, input ...any) (*OrchestrationRun, error) {
	name, err := callableName(orchestration)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve orchestration name: %w", err)
	}

	reply, err := startOrchestration(ctx, c.nc, &api.StartOrchestrationAttributes{
		Orchestration: name,
		Input:         input,
	})
	if err != nil {
		return nil, err
	}
	if err := replyError(reply.ErrorCode, reply.Error); err != nil {
		return nil, fmt.Errorf("starting orchestration %q: %w", name, err)
	}
	if reply.InstanceID == "" {
		return nil, fmt.Errorf("manager returned an empty instance ID")
	}

	return &OrchestrationRun{
		id:     api.InstanceID(reply.InstanceID),
		client: c,
	}, nil
}

func (c *clientImpl) GetStatus(ctx context.Context, instanceID string) (*api.InstanceStatus, error) {
	reply, err := getStatus(ctx, c.nc, &api.GetStatusAttributes{InstanceID: instanceID})
	if err != nil {
		return nil, err
	}
	if err := replyError(reply.ErrorCode, reply.Error); err != nil {
		return nil, fmt.Errorf("get status of %s: %w", instanceID, err)
	}
	return reply.Status, nil
}

func (c *clientImpl) RaiseEvent(ctx context.Context, instanceID, eventName string, payload any) error {
	requestID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate request ID: %w", err)
	}

	reply, err := raiseEvent(ctx, c.nc, &api.RaiseEventAttributes{
		InstanceID: instanceID,
		Name:       eventName,
		Payload:    payload,
		RequestID:  requestID.String(),
	})
	if err != nil {
		return err
	}
	if err := replyError(reply.ErrorCode, reply.Error); err != nil {
		return fmt.Errorf("raise event %q on %s: %w", eventName, instanceID, err)
	}
	return nil
}

func (c *clientImpl) Terminate(ctx context.Context, instanceID, reason string) error {
	reply, err := terminate(ctx, c.nc, &api.TerminateAttributes{
		InstanceID: instanceID,
		Reason:     reason,
	})
	if err != nil {
		return err
	}
	if err := replyError(reply.ErrorCode, reply.Error); err != nil {
		return fmt.Errorf("terminate %s: %w", instanceID, err)
	}
	if reply.AlreadyTerminal {
		c.logger.Debug("terminate was a no-op, instance already terminal", "instance_id", instanceID)
	}
	return nil
}

func (c *clientImpl) PurgeHistory(ctx context.Context, instanceID string) error {
	reply, err := purgeHistory(ctx, c.nc, &api.PurgeHistoryAttributes{InstanceID: instanceID})
	if err != nil {
		return err
	}
	if err := replyError(reply.ErrorCode, reply.Error); err != nil {
		return fmt.Errorf("purge history of %s: %w", instanceID, err)
	}
	return nil
}

func (c *clientImpl) getConn() *Conn              { return c.nc }
func (c *clientImpl) getSerde() serde.BinarySerde { return c.converter }
func (c *clientImpl) getLogger() *slog.Logger     { return c.logger }

// replyError maps a command reply's error code to a typed client error.
func replyError(code, message string) error {
	switch code {
	case "":
		if message != "" {
			return errors.New(message)
		}
		return nil
	case api.ErrorCodeNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, message)
	case api.ErrorCodeInvalidState:
		return fmt.Errorf("%w: %s", ErrInvalidState, message)
	default:
		return errors.New(message)
	}
}

// OrchestrationRun is the client-side handle of a started instance.
type OrchestrationRun struct {
	id     api.InstanceID
	client *clientImpl
}

func (r *OrchestrationRun) ID() api.InstanceID { return r.id }

// Get blocks until the instance reaches a terminal status, then
// deserializes its output into valuePtr. Failed and terminated runs
// surface as errors.
func (r *OrchestrationRun) Get(ctx context.Context, valuePtr any) error {
	status, err := r.client.getConn().WatchStatus(ctx, r.id)
	if err != nil {
		return err
	}

	switch status.RuntimeStatus {
	case api.StatusFailed:
		return fmt.Errorf("orchestration %s failed: %s", r.id, status.Error)
	case api.StatusTerminated:
		return fmt.Errorf("orchestration %s was terminated: %s", r.id, status.Error)
	}

	if valuePtr == nil || len(status.Output) == 0 {
		return nil
	}

	var raw any
	if len(status.Output) == 1 {
		raw = status.Output[0]
	} else {
		raw = status.Output
	}

	data, err := r.client.converter.SerializeBinary(raw)
	if err != nil {
		return fmt.Errorf("failed to serialize orchestration output: %w", err)
	}
	if err := r.client.converter.DeserializeBinary(data, valuePtr); err != nil {
		return fmt.Errorf("failed to deserialize orchestration output: %w", err)
	}
	return nil
}
