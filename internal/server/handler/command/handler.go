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

// Package command processes the client-facing command plane: start,
// raise-event, terminate, purge-history and get-status requests
// arriving over NATS request/reply.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/duratask-io/duratask/api"
	"github.com/duratask-io/duratask/api/serde"
	"github.com/duratask-io/duratask/internal/history"
	jetstreamx "github.com/duratask-io/duratask/internal/server/infra/jetstream"
)

type Handler struct {
	conv serde.BinarySerde
	conn *jetstreamx.Connection
}

func NewHandler(conn *jetstreamx.Connection, conv serde.BinarySerde) *Handler {
	return &Handler{
		conv: conv,
		conn: conn,
	}
}

func (h *Handler) log() (*history.Log, error) {
	js, err := h.conn.JS()
	if err != nil {
		return nil, err
	}
	return history.NewLog(js, h.conv), nil
}

// HandleRequest dispatches one command message. Every outcome,
// including failures, is answered on the reply subject so the client
// never waits out its timeout on a live manager.
func (h *Handler) HandleRequest(msg *nats.Msg) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in command handler", "subject", msg.Subject, "error", r)
			msg.Term()
		}
	}()

	ctx := context.Background()

	var cmd api.Command
	if err := h.conv.DeserializeBinary(msg.Data, &cmd); err != nil {
		slog.Error("undecodable command envelope", "subject", msg.Subject, "error", err)
		msg.Term()
		return
	}

	var reply any
	switch cmd.CommandType {
	case api.StartOrchestrationCommand:
		reply = h.handleStart(ctx, cmd.Attributes)
	case api.RaiseEventCommand:
		reply = h.handleRaiseEvent(ctx, cmd.Attributes)
	case api.TerminateCommand:
		reply = h.handleTerminate(ctx, cmd.Attributes)
	case api.PurgeHistoryCommand:
		reply = h.handlePurgeHistory(ctx, cmd.Attributes)
	case api.GetStatusCommand:
		reply = h.handleGetStatus(ctx, cmd.Attributes)
	default:
		slog.Warn("unknown command type", "type", cmd.CommandType)
		msg.Term()
		return
	}

	data, err := h.conv.SerializeBinary(reply)
	if err != nil {
		slog.Error("failed to serialize command reply", "type", cmd.CommandType, "error", err)
		msg.Term()
		return
	}
	if err := msg.Respond(data); err != nil {
		slog.Error("failed to respond to command", "type", cmd.CommandType, "error", err)
	}
}

func (h *Handler) handleStart(ctx context.Context, attrData []byte) *api.StartOrchestrationReply {
	var attrs api.StartOrchestrationAttributes
	if err := h.conv.DeserializeBinary(attrData, &attrs); err != nil {
		return &api.StartOrchestrationReply{
			Error:     "failed to parse request attributes: " + err.Error(),
			ErrorCode: api.ErrorCodeInternal,
		}
	}
	if attrs.Orchestration == "" {
		return &api.StartOrchestrationReply{
			Error:     "orchestration name is required",
			ErrorCode: api.ErrorCodeInvalidState,
		}
	}

	// Only orchestrations some worker has advertised may start;
	// otherwise the instance would hang in Pending forever.
	if _, err := h.conn.Get(ctx, api.OrchestrationCatalogBucket, api.CatalogKey(attrs.Orchestration)); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return &api.StartOrchestrationReply{
				Error:     fmt.Sprintf("orchestration %q is not registered by any worker", attrs.Orchestration),
				ErrorCode: api.ErrorCodeNotFound,
			}
		}
		return internalStartError(err)
	}

	instanceID, err := uuid.NewV7()
	if err != nil {
		return internalStartError(err)
	}
	id := api.InstanceID(instanceID.String())
	now := time.Now().UTC()

	// Persist the start record first: projectors rebuild replay tasks
	// from it for every later trigger event.
	recordData, err := h.conv.SerializeBinary(attrs)
	if err != nil {
		return internalStartError(err)
	}
	if _, err := h.conn.Set(ctx, api.InstanceInputBucket, api.InstanceInputKey(id), recordData); err != nil {
		return internalStartError(err)
	}

	snapshot := &api.InstanceStatus{
		InstanceID:    string(id),
		Orchestration: attrs.Orchestration,
		RuntimeStatus: api.StatusPending,
		Input:         attrs.Input,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	snapshotData, err := h.conv.SerializeBinary(snapshot)
	if err != nil {
		return internalStartError(err)
	}
	if _, err := h.conn.Set(ctx, api.InstanceStatusBucket, api.InstanceStatusKey(id), snapshotData); err != nil {
		return internalStartError(err)
	}

	log, err := h.log()
	if err != nil {
		return internalStartError(err)
	}
	started := &api.OrchestrationStarted{
		EventMeta:     api.EventMeta{ID: id, At: now},
		Orchestration: attrs.Orchestration,
		Input:         attrs.Input,
	}
	// A fresh V7 ID cannot have history: expecting sequence zero makes
	// the start append conflict-free by construction.
	if _, err := log.AppendAfter(ctx, id, 0, started); err != nil {
		return internalStartError(err)
	}

	slog.Info("started orchestration",
		"instance_id", id,
		"orchestration", attrs.Orchestration,
	)
	return &api.StartOrchestrationReply{InstanceID: string(id)}
}

func internalStartError(err error) *api.StartOrchestrationReply {
	return &api.StartOrchestrationReply{
		Error:     "internal server error: " + err.Error(),
		ErrorCode: api.ErrorCodeInternal,
	}
}

func (h *Handler) handleRaiseEvent(ctx context.Context, attrData []byte) *api.RaiseEventReply {
	var attrs api.RaiseEventAttributes
	if err := h.conv.DeserializeBinary(attrData, &attrs); err != nil {
		return &api.RaiseEventReply{
			Error:     "failed to parse request attributes: " + err.Error(),
			ErrorCode: api.ErrorCodeInternal,
		}
	}

	id := api.InstanceID(attrs.InstanceID)
	status, err := h.loadStatus(ctx, id)
	if err != nil {
		return &api.RaiseEventReply{Error: err.Error(), ErrorCode: api.ErrorCodeInternal}
	}
	if status == nil {
		return &api.RaiseEventReply{
			Error:     fmt.Sprintf("instance %s does not exist", id),
			ErrorCode: api.ErrorCodeNotFound,
		}
	}
	if status.RuntimeStatus.IsTerminal() {
		return &api.RaiseEventReply{
			Error:     fmt.Sprintf("instance %s is %s and accepts no more events", id, status.RuntimeStatus),
			ErrorCode: api.ErrorCodeInvalidState,
		}
	}

	log, err := h.log()
	if err != nil {
		return &api.RaiseEventReply{Error: err.Error(), ErrorCode: api.ErrorCodeInternal}
	}
	raised := &api.EventRaised{
		EventMeta: api.EventMeta{ID: id, At: time.Now().UTC()},
		Name:      attrs.Name,
		Payload:   attrs.Payload,
	}
	// The client's request ID makes a retried raise record exactly one
	// event.
	msgID := fmt.Sprintf("raise-%s-%s", id, attrs.RequestID)
	if err := log.AppendIdempotent(ctx, id, msgID, raised); err != nil {
		return &api.RaiseEventReply{Error: err.Error(), ErrorCode: api.ErrorCodeInternal}
	}

	slog.Info("raised external event", "instance_id", id, "event", attrs.Name)
	return &api.RaiseEventReply{}
}

func (h *Handler) handleTerminate(ctx context.Context, attrData []byte) *api.TerminateReply {
	var attrs api.TerminateAttributes
	if err := h.conv.DeserializeBinary(attrData, &attrs); err != nil {
		return &api.TerminateReply{
			Error:     "failed to parse request attributes: " + err.Error(),
			ErrorCode: api.ErrorCodeInternal,
		}
	}

	id := api.InstanceID(attrs.InstanceID)
	status, err := h.loadStatus(ctx, id)
	if err != nil {
		return &api.TerminateReply{Error: err.Error(), ErrorCode: api.ErrorCodeInternal}
	}
	if status == nil {
		return &api.TerminateReply{
			Error:     fmt.Sprintf("instance %s does not exist", id),
			ErrorCode: api.ErrorCodeNotFound,
		}
	}
	if status.RuntimeStatus.IsTerminal() {
		// Terminating a settled instance is a no-op, not an error.
		return &api.TerminateReply{AlreadyTerminal: true}
	}

	log, err := h.log()
	if err != nil {
		return &api.TerminateReply{Error: err.Error(), ErrorCode: api.ErrorCodeInternal}
	}
	terminated := &api.OrchestrationTerminated{
		EventMeta: api.EventMeta{ID: id, At: time.Now().UTC()},
		Reason:    attrs.Reason,
	}
	// One terminated event per instance, however often the command is
	// retried.
	msgID := fmt.Sprintf("terminate-%s", id)
	if err := log.AppendIdempotent(ctx, id, msgID, terminated); err != nil {
		return &api.TerminateReply{Error: err.Error(), ErrorCode: api.ErrorCodeInternal}
	}

	slog.Info("terminated orchestration", "instance_id", id, "reason", attrs.Reason)
	return &api.TerminateReply{}
}

func (h *Handler) handlePurgeHistory(ctx context.Context, attrData []byte) *api.PurgeHistoryReply {
	var attrs api.PurgeHistoryAttributes
	if err := h.conv.DeserializeBinary(attrData, &attrs); err != nil {
		return &api.PurgeHistoryReply{
			Error:     "failed to parse request attributes: " + err.Error(),
			ErrorCode: api.ErrorCodeInternal,
		}
	}

	id := api.InstanceID(attrs.InstanceID)
	status, err := h.loadStatus(ctx, id)
	if err != nil {
		return &api.PurgeHistoryReply{Error: err.Error(), ErrorCode: api.ErrorCodeInternal}
	}
	if status == nil {
		return &api.PurgeHistoryReply{
			Error:     fmt.Sprintf("instance %s does not exist", id),
			ErrorCode: api.ErrorCodeNotFound,
		}
	}
	if !status.RuntimeStatus.IsTerminal() {
		return &api.PurgeHistoryReply{
			Error:     fmt.Sprintf("instance %s is still %s; only finished instances can be purged", id, status.RuntimeStatus),
			ErrorCode: api.ErrorCodeInvalidState,
		}
	}
	if status.HistoryPurged {
		return &api.PurgeHistoryReply{AlreadyPurged: true}
	}

	log, err := h.log()
	if err != nil {
		return &api.PurgeHistoryReply{Error: err.Error(), ErrorCode: api.ErrorCodeInternal}
	}
	if err := log.Purge(ctx, id); err != nil {
		return &api.PurgeHistoryReply{Error: err.Error(), ErrorCode: api.ErrorCodeInternal}
	}

	// The status record survives the purge; only the event log goes.
	status.HistoryPurged = true
	status.UpdatedAt = time.Now().UTC()
	statusData, err := h.conv.SerializeBinary(status)
	if err != nil {
		return &api.PurgeHistoryReply{Error: err.Error(), ErrorCode: api.ErrorCodeInternal}
	}
	if _, err := h.conn.Set(ctx, api.InstanceStatusBucket, api.InstanceStatusKey(id), statusData); err != nil {
		return &api.PurgeHistoryReply{Error: err.Error(), ErrorCode: api.ErrorCodeInternal}
	}

	slog.Info("purged orchestration history", "instance_id", id)
	return &api.PurgeHistoryReply{}
}

func (h *Handler) handleGetStatus(ctx context.Context, attrData []byte) *api.GetStatusReply {
	var attrs api.GetStatusAttributes
	if err := h.conv.DeserializeBinary(attrData, &attrs); err != nil {
		return &api.GetStatusReply{
			Error:     "failed to parse request attributes: " + err.Error(),
			ErrorCode: api.ErrorCodeInternal,
		}
	}

	status, err := h.loadStatus(ctx, api.InstanceID(attrs.InstanceID))
	if err != nil {
		return &api.GetStatusReply{Error: err.Error(), ErrorCode: api.ErrorCodeInternal}
	}
	if status == nil {
		return &api.GetStatusReply{
			Error:     fmt.Sprintf("instance %s does not exist", attrs.InstanceID),
			ErrorCode: api.ErrorCodeNotFound,
		}
	}
	return &api.GetStatusReply{Status: status}
}

func (h *Handler) loadStatus(ctx context.Context, id api.InstanceID) (*api.InstanceStatus, error) {
	entry, err := h.conn.Get(ctx, api.InstanceStatusBucket, api.InstanceStatusKey(id))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load status of %s: %w", id, err)
	}

	var status api.InstanceStatus
	if err := h.conv.DeserializeBinary(entry.Value(), &status); err != nil {
		return nil, fmt.Errorf("failed to deserialize status of %s: %w", id, err)
	}
	return &status, nil
}

// RunProcessor serves commands until the context is canceled. Managers
// share the load through a queue group.
func RunProcessor(ctx context.Context, conn *jetstreamx.Connection, handler *Handler) error {
	sub, err := conn.QueueSubscribe(
		api.CommandRequestSubjectPattern,
		api.ManagerCommandProcessorsConsumer,
		handler.HandleRequest,
	)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	return nil
}
