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

// Package http exposes the manager's read-only admin surface: liveness
// and readiness probes and instance status lookups.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/duratask-io/duratask/api/serde"
	jetstreamx "github.com/duratask-io/duratask/internal/server/infra/jetstream"
)

type Server struct {
	server *http.Server
}

func NewServer(conn *jetstreamx.Connection, conv serde.BinarySerde, port string) *Server {
	health := NewHealthHandler(conn)
	status := NewStatusHandler(conn, conv)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", health.Health)
	mux.HandleFunc("GET /readyz", health.Ready)
	mux.HandleFunc("GET /api/instances/{id}", status.GetInstance)

	return &Server{
		server: &http.Server{
			Addr:    ":" + port,
			Handler: mux,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	slog.Info("starting admin HTTP server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.server.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
