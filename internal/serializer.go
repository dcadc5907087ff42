package internal

import (
	"encoding/json"
	"errors"

	"google.golang.org/protobuf/proto"
)

// Marshal encodes payloads for the wire and for storage backends.
// Raw bytes and strings pass through untouched, protobuf messages use the
// binary encoding and everything else is JSON.
func Marshal(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v.MarshalJSON()
	case string:
		return []byte(v), nil
	case proto.Message:
		return proto.Marshal(v)
	default:
		return json.Marshal(payload)
	}
}

// Unmarshal is the inverse of Marshal. The holder must be a pointer.
func Unmarshal(data []byte, holder any) error {
	switch v := holder.(type) {
	case nil:
		return errors.New("unmarshal holder is nil")
	case *[]byte:
		*v = append((*v)[:0], data...)
		return nil
	case *json.RawMessage:
		*v = append((*v)[:0], data...)
		return nil
	case *string:
		*v = string(data)
		return nil
	case proto.Message:
		return proto.Unmarshal(data, v)
	default:
		return json.Unmarshal(data, holder)
	}
}
