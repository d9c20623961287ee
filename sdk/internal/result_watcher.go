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

	"github.com/nats-io/nats.go/jetstream"

	"github.com/duratask-io/duratask/api"
)

// WatchStatus blocks until the instance's status snapshot reaches a
// terminal runtime status, and returns that snapshot. The watcher
// replays the current value first, so an already-finished instance
// returns immediately.
func (c *Conn) WatchStatus(ctx context.Context, id api.InstanceID) (*api.InstanceStatus, error) {
	watcher, err := c.WatchKV(ctx, api.InstanceStatusBucket, api.InstanceStatusKey(id))
	if err != nil {
		return nil, fmt.Errorf("could not start status watcher for '%s': %w", id, err)
	}
	defer watcher.Stop()
	c.Logger().Debug("watching for terminal status", "instance_id", id)

	for update := range watcher.Updates() {
		if update == nil {
			// Initial replay done; keep waiting for live updates.
			continue
		}
		if update.Operation() != jetstream.KeyValuePut {
			continue
		}

		var status api.InstanceStatus
		if err := c.DeserializeBinary(update.Value(), &status); err != nil {
			return nil, fmt.Errorf("failed to parse status snapshot of '%s': %w", id, err)
		}
		if status.RuntimeStatus.IsTerminal() {
			c.Logger().Debug("instance reached terminal status",
				"instance_id", id, "status", status.RuntimeStatus)
			return &status, nil
		}
	}

	return nil, fmt.Errorf("status watcher stopped before a terminal status: %w", ctx.Err())
}
