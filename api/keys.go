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

package api

// InstanceInputKey returns the KV key under which an instance's original
// input is persisted. Keyed by instance ID only: the orchestration name
// lives in the stored record, and an ID never outlives its instance.
//
// A valid key can contain a-z, A-Z, 0-9, _, -, ., = and /.
func InstanceInputKey(id InstanceID) string {
	return string(id)
}

// InstanceStatusKey returns the KV key of an instance's status snapshot.
func InstanceStatusKey(id InstanceID) string {
	return string(id)
}

// CatalogKey returns the KV key under which a worker advertises a
// registered orchestration. Fully qualified Go function names only use
// characters valid in KV keys.
func CatalogKey(orchestration string) string {
	return orchestration
}
