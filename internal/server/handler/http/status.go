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

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/duratask-io/duratask/api"
	"github.com/duratask-io/duratask/api/serde"
	jetstreamx "github.com/duratask-io/duratask/internal/server/infra/jetstream"
)

// StatusHandler serves instance status snapshots from the status
// bucket, bypassing the command plane for dashboards and debugging.
type StatusHandler struct {
	conn *jetstreamx.Connection
	conv serde.BinarySerde
}

func NewStatusHandler(conn *jetstreamx.Connection, conv serde.BinarySerde) *StatusHandler {
	return &StatusHandler{conn: conn, conv: conv}
}

// GetInstance handles GET /api/instances/{id}.
func (h *StatusHandler) GetInstance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "instance id is required", http.StatusBadRequest)
		return
	}

	entry, err := h.conn.Get(r.Context(), api.InstanceStatusBucket, api.InstanceStatusKey(api.InstanceID(id)))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			http.Error(w, "instance not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to load instance status", "instance_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var status api.InstanceStatus
	if err := h.conv.DeserializeBinary(entry.Value(), &status); err != nil {
		slog.Error("failed to decode instance status", "instance_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		slog.Error("failed to encode status response", "error", err)
	}
}
