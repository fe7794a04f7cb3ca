package grpcexchange

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is registered as a gRPC content-subtype so the exchange service
// can move plain JSON messages over gRPC's streaming transport without a
// protoc-generated codec, the same approach the pack's other gRPC-based
// invoker uses (grpc.CallContentSubtype("json")).
const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

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
