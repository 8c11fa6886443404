package daqpb

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype this codec registers under: wire
// frames are negotiated as "application/grpc+json" rather than the default
// "application/grpc+proto". A client selects it per call with
// grpc.CallContentSubtype(CodecName); the server picks the registered codec
// from each request's content-subtype.
const CodecName = "json"

// jsonCodec implements encoding.Codec (google.golang.org/grpc/encoding)
// over encoding/json, used in place of generated protobuf marshalling since
// the Go toolchain (and therefore protoc-gen-go) is never run to produce
// .pb.go stubs in this environment. This is a real, supported grpc-go
// extension point — registering a named codec via encoding.RegisterCodec
// and requesting it per-call via grpc.CallContentSubtype — not a
// protocol deviation.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return CodecName }

// Codec is the shared instance this package's init registers with
// google.golang.org/grpc/encoding.
var Codec = jsonCodec{}

func init() {
	encoding.RegisterCodec(Codec)
}
