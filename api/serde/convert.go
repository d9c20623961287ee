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

package serde

import (
	"fmt"
	"reflect"
)

// TypeConverter recovers concrete Go types from values that went through
// a serialization round trip. Wire formats erase type identity: a struct
// comes back as map[string]any, a JSON int as float64. The converter
// bridges those gaps without assuming any particular format, by reusing
// the same serde that produced the value.
type TypeConverter struct {
	serde BinarySerde
}

func NewTypeConverter(s BinarySerde) *TypeConverter {
	return &TypeConverter{serde: s}
}

// ConvertToType converts value to targetType. Matching and directly
// convertible kinds take a fast path; structs, maps and slices round-trip
// through the serializer.
func (tc *TypeConverter) ConvertToType(value any, targetType reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(targetType), nil
	}

	valueType := reflect.TypeOf(value)
	if valueType == targetType {
		return reflect.ValueOf(value), nil
	}

	if valueType.ConvertibleTo(targetType) {
		if isNumericKind(valueType.Kind()) && isNumericKind(targetType.Kind()) {
			return tc.convertNumeric(value, valueType, targetType)
		}
		return reflect.ValueOf(value).Convert(targetType), nil
	}

	return tc.convertViaSerializer(value, targetType)
}

// ConvertSlice converts each element of values to targetElemType,
// preserving order.
func (tc *TypeConverter) ConvertSlice(values []any, targetElemType reflect.Type) ([]reflect.Value, error) {
	result := make([]reflect.Value, len(values))
	for i, val := range values {
		converted, err := tc.ConvertToType(val, targetElemType)
		if err != nil {
			return nil, fmt.Errorf("failed to convert element %d: %w", i, err)
		}
		result[i] = converted
	}
	return result, nil
}

// convertNumeric guards float-to-integer conversions against silent
// precision loss; everything else follows Go's conversion rules.
func (tc *TypeConverter) convertNumeric(value any, valueType, targetType reflect.Type) (reflect.Value, error) {
	if valueType.Kind() == reflect.Float64 || valueType.Kind() == reflect.Float32 {
		if isIntegerKind(targetType.Kind()) {
			floatVal := reflect.ValueOf(value).Float()
			intVal := int64(floatVal)
			if float64(intVal) != floatVal {
				return reflect.Value{}, fmt.Errorf("cannot convert %v to %v without losing precision", floatVal, targetType)
			}
			return reflect.ValueOf(intVal).Convert(targetType), nil
		}
	}

	if valueType.ConvertibleTo(targetType) {
		return reflect.ValueOf(value).Convert(targetType), nil
	}

	return reflect.Value{}, fmt.Errorf("cannot convert %v (%v) to %v", value, valueType, targetType)
}

func (tc *TypeConverter) convertViaSerializer(value any, targetType reflect.Type) (reflect.Value, error) {
	data, err := tc.serde.SerializeBinary(value)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("failed to serialize value for type conversion: %w", err)
	}

	var target reflect.Value
	if targetType.Kind() == reflect.Ptr {
		target = reflect.New(targetType.Elem())
	} else {
		target = reflect.New(targetType)
	}

	if err := tc.serde.DeserializeBinary(data, target.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("failed to deserialize value to target type: %w", err)
	}

	if targetType.Kind() != reflect.Ptr {
		return target.Elem(), nil
	}
	return target, nil
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func isIntegerKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}
