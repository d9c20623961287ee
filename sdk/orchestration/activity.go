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

package orchestration

import (
	"github.com/duratask-io/duratask/sdk/internal"
)

// ActivityOptions configures how scheduled activities execute.
type ActivityOptions = internal.ActivityOptions

// RetryPolicy describes automatic retries for a failed activity.
// Retries run on the worker; only the final outcome is recorded.
type RetryPolicy = internal.RetryPolicy

// WithActivityOptions returns a derived context whose subsequent
// CallActivity calls use opts.
func WithActivityOptions(ctx Context, opts ActivityOptions) Context {
	return internal.WithActivityOptions(ctx, opts)
}
