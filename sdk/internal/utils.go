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
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
)

// extractFullFunctionName extracts the function's name with the preceding package path.
func extractFullFunctionName(fn any) (string, error) {
	if reflect.TypeOf(fn).Kind() != reflect.Func {
		return "", fmt.Errorf("fn is not of function type")
	}
	fnObj := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if fnObj == nil {
		return "", fmt.Errorf("could not retrieve function metadata")
	}

	return fnObj.Name(), nil
}

// callableName resolves a string name or a function value to the
// registry name of the callable.
func callableName(fnOrName any) (string, error) {
	if name, ok := fnOrName.(string); ok {
		if name == "" {
			return "", fmt.Errorf("empty callable name")
		}
		return name, nil
	}
	return extractFullFunctionName(fnOrName)
}

// reflectValuesToAny converts call results to a serializable slice,
// dropping a trailing nil error and extracting a non-nil one.
func reflectValuesToAny(vals []reflect.Value) (results []any, err error) {
	if len(vals) > 0 {
		last := vals[len(vals)-1]
		if last.Type().Implements(reflect.TypeOf((*error)(nil)).Elem()) {
			if !last.IsNil() {
				err = last.Interface().(error)
			}
			vals = vals[:len(vals)-1]
		}
	}

	results = make([]any, len(vals))
	for i, v := range vals {
		results[i] = v.Interface()
	}
	return results, err
}

func defaultLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
