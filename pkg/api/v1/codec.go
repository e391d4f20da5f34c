package v1

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// jsonCodec lets grpc.Server/grpc.ClientConn marshal plain Go structs
// instead of protoc-generated protobuf.Message values. Registered under the
// name "proto" (encoding.init below) so it's picked as the default codec
// without any per-call configuration — the same name grpc-go's built-in
// protobuf codec would otherwise claim.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return "proto" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// errorResult is folded into Status/Message fields rather than a distinct
// wire type; helper for service.go's handlers.
func errInvalidMessage(v any) error {
	return fmt.Errorf("v1: unexpected message type %T", v)
}
