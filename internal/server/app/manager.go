package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/duratask-io/duratask/api/serde"
	"github.com/duratask-io/duratask/internal/server/handler/command"
	httphandler "github.com/duratask-io/duratask/internal/server/handler/http"
	jetstreamx "github.com/duratask-io/duratask/internal/server/infra/jetstream"
	"github.com/duratask-io/duratask/internal/server/projection"
)

// Manager is the server-side control plane: it provisions the JetStream
// topology, answers client commands and runs the projectors that drive
// orchestrations forward.
type Manager struct {
	conn       *jetstreamx.Connection
	handler    *command.Handler
	httpServer *httphandler.Server
	serde      serde.BinarySerde
	httpPort   string
}

func NewManager(ctx context.Context, cfg jetstreamx.Config, conv serde.BinarySerde, httpPort string) (*Manager, error) {
	conn, err := jetstreamx.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	if !conn.IsConnected() {
		return nil, fmt.Errorf("cannot connect to NATS instance")
	}

	m := &Manager{
		conn:       conn,
		handler:    command.NewHandler(conn, conv),
		httpServer: httphandler.NewServer(conn, conv, httpPort),
		serde:      conv,
		httpPort:   httpPort,
	}

	if err := m.ensureStreams(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure NATS streams: %w", err)
	}

	if err := m.ensureKV(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure NATS KV buckets: %w", err)
	}

	return m, nil
}

func (m *Manager) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting admin HTTP server", "port", m.httpPort)
		return m.httpServer.Start(gCtx)
	})

	g.Go(func() error {
		slog.Info("starting command processor")
		return command.RunProcessor(gCtx, m.conn, m.handler)
	})

	g.Go(func() error {
		slog.Info("starting orchestration task projector")
		return projection.OrchestrationTasks(gCtx, m.conn, m.serde)
	})

	g.Go(func() error {
		slog.Info("starting activity task projector")
		return projection.ActivityTasks(gCtx, m.conn, m.serde)
	})

	g.Go(func() error {
		slog.Info("starting timer projector")
		return projection.Timers(gCtx, m.conn, m.serde)
	})

	g.Go(func() error {
		slog.Info("starting instance status projector")
		return projection.InstanceStatus(gCtx, m.conn, m.serde)
	})

	g.Go(func() error {
		slog.Info("starting continuation projector")
		return projection.Continuations(gCtx, m.conn, m.serde)
	})

	slog.Info("manager is running", "components", 7)

	err := g.Wait()

	slog.Info("initiating graceful shutdown")
	m.Shutdown()

	if err != nil && err != context.Canceled {
		slog.Error("manager stopped with error", "error", err)
		return err
	}

	slog.Info("manager shutdown complete")
	return nil
}

// Shutdown closes the NATS connection, draining subscriptions.
func (m *Manager) Shutdown() {
	if m.conn != nil {
		slog.Info("closing NATS connection")
		m.conn.Close()
	}
}
