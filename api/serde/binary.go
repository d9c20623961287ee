package serde

// BinarySerde converts values to and from a binary wire representation.
// Implementations must round-trip: anything serialized can be deserialized
// into a pointer of a compatible type.
type BinarySerde interface {
	SerializeBinary(value any) ([]byte, error)
	DeserializeBinary(data []byte, valuePtr any) error
}
