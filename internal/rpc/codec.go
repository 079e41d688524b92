// Package rpc hand-describes the Command API and Subscription Hub as real
// google.golang.org/grpc services, without a .proto toolchain: it registers
// a JSON encoding.Codec and builds grpc.ServiceDesc/MethodDesc/StreamDesc
// the way protoc-gen-go-grpc would, carrying plain Go structs instead of
// generated proto.Message types.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the content-subtype negotiated on the wire ("application/grpc+json").
const codecName = "json"

// jsonCodec implements grpc/encoding.Codec over encoding/json.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
