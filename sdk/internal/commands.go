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

	"github.com/nats-io/nats.go"

	"github.com/duratask-io/duratask/api"
)

// roundTrip sends one command to the manager over request/reply and
// parses the typed reply.
func roundTrip(ctx context.Context, c *Conn, subject string, cmdType api.CommandType, attrs any, replyPtr any) error {
	attrsBytes, err := c.SerializeBinary(attrs)
	if err != nil {
		return fmt.Errorf("failed to serialize %s attributes: %w", cmdType, err)
	}

	command := api.Command{
		CommandType: cmdType,
		Attributes:  attrsBytes,
	}

	commandData, err := c.SerializeBinary(command)
	if err != nil {
		return fmt.Errorf("failed to serialize %s command: %w", cmdType, err)
	}

	reply, err := c.NATS().RequestWithContext(ctx, subject, commandData)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return fmt.Errorf("no managers available to handle %s: %w", cmdType, err)
		}
		return fmt.Errorf("failed to send %s request: %w", cmdType, err)
	}

	if err := c.DeserializeBinary(reply.Data, replyPtr); err != nil {
		return fmt.Errorf("failed to parse reply of %s request: %w", cmdType, err)
	}
	return nil
}

func startOrchestration(ctx context.Context, c *Conn, attrs *api.StartOrchestrationAttributes) (*api.StartOrchestrationReply, error) {
	var reply api.StartOrchestrationReply
	if err := roundTrip(ctx, c, api.CommandRequestStart, api.StartOrchestrationCommand, attrs, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func raiseEvent(ctx context.Context, c *Conn, attrs *api.RaiseEventAttributes) (*api.RaiseEventReply, error) {
	var reply api.RaiseEventReply
	if err := roundTrip(ctx, c, api.CommandRequestRaiseEvent, api.RaiseEventCommand, attrs, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func terminate(ctx context.Context, c *Conn, attrs *api.TerminateAttributes) (*api.TerminateReply, error) {
	var reply api.TerminateReply
	if err := roundTrip(ctx, c, api.CommandRequestTerminate, api.TerminateCommand, attrs, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func purgeHistory(ctx context.Context, c *Conn, attrs *api.PurgeHistoryAttributes) (*api.PurgeHistoryReply, error) {
	var reply api.PurgeHistoryReply
	if err := roundTrip(ctx, c, api.CommandRequestPurge, api.PurgeHistoryCommand, attrs, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func getStatus(ctx context.Context, c *Conn, attrs *api.GetStatusAttributes) (*api.GetStatusReply, error) {
	var reply api.GetStatusReply
	if err := roundTrip(ctx, c, api.CommandRequestGetStatus, api.GetStatusCommand, attrs, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}
