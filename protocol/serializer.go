package protocol

import "encoding/json"

// Serializer defines the contract for serializing and deserializing command payloads.
// This allows callers to choose their preferred format while interacting with the sequencer.
type Serializer interface {
	// Marshal serializes a Go struct (e.g. PlaceOrderCommand) into bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes bytes into a Go struct.
	// v must be a pointer to the target struct.
	Unmarshal(data []byte, v any) error
}

// DefaultJSONSerializer encodes payloads with encoding/json.
type DefaultJSONSerializer struct{}

func (s *DefaultJSONSerializer) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (s *DefaultJSONSerializer) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewCommand builds a Command envelope with the payload serialized by s.
func NewCommand(s Serializer, typ CommandType, seqID uint64, payload any) (*Command, error) {
	data, err := s.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Command{Version: 1, SeqID: seqID, Type: typ, Payload: data}, nil
}
