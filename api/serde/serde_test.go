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

package serde_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/duratask-io/duratask/api/serde"
)

type jobRequest struct {
	Name     string         `json:"name" msgpack:"name"`
	Attempts int            `json:"attempts" msgpack:"attempts"`
	Weight   float64        `json:"weight" msgpack:"weight"`
	Urgent   bool           `json:"urgent" msgpack:"urgent"`
	Items    []string       `json:"items" msgpack:"items"`
	Detail   *jobDetail     `json:"detail,omitempty" msgpack:"detail,omitempty"`
	Labels   map[string]any `json:"labels" msgpack:"labels"`
}

type jobDetail struct {
	Region string `json:"region" msgpack:"region"`
	Shard  int    `json:"shard" msgpack:"shard"`
}

var serdes = []struct {
	name  string
	serde serde.BinarySerde
}{
	{"JSON", &serde.JsonSerde{}},
	{"MessagePack", &serde.MsgpackSerde{}},
}

func TestRoundTrip(t *testing.T) {
	original := jobRequest{
		Name:     "resize-images",
		Attempts: 3,
		Weight:   12.5,
		Urgent:   true,
		Items:    []string{"Item1", "Item2", "Item3"},
		Detail:   &jobDetail{Region: "eu-west", Shard: 7},
		Labels:   map[string]any{"team": "media", "retries": 2, "audited": false},
	}

	for _, tc := range serdes {
		t.Run(tc.name, func(t *testing.T) {
			data, err := tc.serde.SerializeBinary(original)
			if err != nil {
				t.Fatalf("serialize: %v", err)
			}

			var got jobRequest
			if err := tc.serde.DeserializeBinary(data, &got); err != nil {
				t.Fatalf("deserialize: %v", err)
			}

			if got.Name != original.Name || got.Attempts != original.Attempts ||
				got.Weight != original.Weight || got.Urgent != original.Urgent {
				t.Errorf("scalar fields mismatch: got %+v, want %+v", got, original)
			}
			if !reflect.DeepEqual(got.Items, original.Items) {
				t.Errorf("Items mismatch: got %v, want %v", got.Items, original.Items)
			}
			if got.Detail == nil || *got.Detail != *original.Detail {
				t.Errorf("Detail mismatch: got %v, want %v", got.Detail, original.Detail)
			}
		})
	}
}

func TestTypeConverter(t *testing.T) {
	for _, tc := range serdes {
		t.Run(tc.name, func(t *testing.T) {
			converter := serde.NewTypeConverter(tc.serde)

			t.Run("IntThroughAny", func(t *testing.T) {
				data, _ := tc.serde.SerializeBinary(42)
				var anyValue any
				if err := tc.serde.DeserializeBinary(data, &anyValue); err != nil {
					t.Fatalf("deserialize: %v", err)
				}

				result, err := converter.ConvertToType(anyValue, reflect.TypeOf(0))
				if err != nil {
					t.Fatalf("convert: %v", err)
				}
				if result.Interface() != 42 {
					t.Errorf("got %v (%T), want 42 (int)", result.Interface(), result.Interface())
				}
			})

			t.Run("MapToStruct", func(t *testing.T) {
				data, _ := tc.serde.SerializeBinary(jobDetail{Region: "us-east", Shard: 9})
				var mapValue map[string]any
				if err := tc.serde.DeserializeBinary(data, &mapValue); err != nil {
					t.Fatalf("deserialize: %v", err)
				}

				result, err := converter.ConvertToType(mapValue, reflect.TypeOf(jobDetail{}))
				if err != nil {
					t.Fatalf("convert: %v", err)
				}
				got := result.Interface().(jobDetail)
				if got.Region != "us-east" || got.Shard != 9 {
					t.Errorf("got %+v, want {us-east 9}", got)
				}
			})

			t.Run("SliceElements", func(t *testing.T) {
				data, _ := tc.serde.SerializeBinary([]string{"a", "b", "c"})
				var anySlice []any
				if err := tc.serde.DeserializeBinary(data, &anySlice); err != nil {
					t.Fatalf("deserialize: %v", err)
				}

				results, err := converter.ConvertSlice(anySlice, reflect.TypeOf(""))
				if err != nil {
					t.Fatalf("convert slice: %v", err)
				}
				if len(results) != 3 {
					t.Fatalf("got %d elements, want 3", len(results))
				}
				for i, want := range []string{"a", "b", "c"} {
					if results[i].Interface() != want {
						t.Errorf("element %d: got %v, want %v", i, results[i].Interface(), want)
					}
				}
			})
		})
	}
}

func TestFloatToIntPrecision(t *testing.T) {
	converter := serde.NewTypeConverter(&serde.JsonSerde{})

	result, err := converter.ConvertToType(float64(7), reflect.TypeOf(0))
	if err != nil {
		t.Fatalf("whole float should convert: %v", err)
	}
	if result.Interface() != 7 {
		t.Errorf("got %v, want 7", result.Interface())
	}

	_, err = converter.ConvertToType(7.5, reflect.TypeOf(0))
	if err == nil {
		t.Fatal("fractional float to int should fail")
	}
	if !strings.Contains(err.Error(), "precision") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNilConvertsToZero(t *testing.T) {
	converter := serde.NewTypeConverter(&serde.MsgpackSerde{})

	result, err := converter.ConvertToType(nil, reflect.TypeOf(""))
	if err != nil {
		t.Fatalf("convert nil: %v", err)
	}
	if result.Interface() != "" {
		t.Errorf("got %q, want empty string", result.Interface())
	}
}
