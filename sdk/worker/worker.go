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

// Package worker provides the runtime that executes orchestrations and
// activities.
//
// A worker consumes tasks from NATS, replays orchestration histories,
// runs activity functions, and appends outcomes back to the history
// log. Orchestrations and activities must be registered before Run.
package worker

import (
	"context"

	"github.com/duratask-io/duratask/sdk/client"
	"github.com/duratask-io/duratask/sdk/internal"
)

// Worker executes registered orchestrations and activities.
//
// Example:
//
//	w, err := worker.NewWorker(c, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	w.RegisterOrchestration(GreetingOrchestration)
//	w.RegisterActivity(SayHelloActivity)
//
//	if err := w.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
type Worker interface {
	Registry
	// Run starts the worker and blocks until the context is canceled
	// or a fatal error occurs.
	Run(ctx context.Context) error
}

// Registry combines orchestration and activity registration.
type Registry interface {
	OrchestrationRegistry
	ActivityRegistry
}

// OrchestrationRegistry registers orchestration functions.
//
// An orchestration function's first parameter must be an
// orchestration.Context; it may return a result and an error.
type OrchestrationRegistry = internal.OrchestrationRegistry

// ActivityRegistry registers activity functions.
//
// An activity function's first parameter must be a context.Context; it
// may return a result and an error.
type ActivityRegistry = internal.ActivityRegistry

// Options contains configuration for creating a new Worker.
type Options = internal.WorkerOptions

// NewWorker creates a new Worker on top of the client's connection.
// A nil Options uses defaults.
func NewWorker(c client.Client, options *Options) (Worker, error) {
	return internal.NewWorker(c, options)
}
