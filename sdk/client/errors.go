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

package client

import (
	"github.com/duratask-io/duratask/sdk/internal"
)

// ErrNotFound is returned when the addressed instance does not exist,
// or when starting an orchestration no worker has advertised.
var ErrNotFound = internal.ErrNotFound

// ErrInvalidState is returned when an operation is not valid for the
// instance's current runtime status, such as raising an event into a
// finished instance or purging a running one.
var ErrInvalidState = internal.ErrInvalidState
