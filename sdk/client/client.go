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

// Package client provides the management surface of a Duratask cluster.
//
// A Client starts orchestration instances, queries their status, raises
// external events into running instances, terminates them, and purges
// history of finished ones. All operations go over the NATS command
// plane and are safe for concurrent use.
package client

import "github.com/duratask-io/duratask/sdk/internal"

// Client manages orchestration instances.
//
// Example:
//
//	nc, err := nats.Connect(nats.DefaultURL)
//	if err != nil {
//		log.Fatal(err)
//	}
//	c, err := client.NewClient(&client.Options{Conn: nc})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	run, err := c.StartOrchestration(ctx, GreetingOrchestration, "World")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	var result string
//	if err := run.Get(ctx, &result); err != nil {
//		log.Fatal(err)
//	}
type Client = internal.Client

// Options contains configuration for creating a new Client.
type Options = internal.ClientOptions

// OrchestrationRun is a handle to a started instance. Get blocks until
// the instance reaches a terminal state and deserializes its output.
type OrchestrationRun = internal.OrchestrationRun

// NewClient creates a new Client with the provided Options.
//
// The Options must include an established NATS connection; the client
// uses it to reach the Duratask manager's command plane.
func NewClient(options *Options) (Client, error) {
	return internal.NewClient(options)
}
