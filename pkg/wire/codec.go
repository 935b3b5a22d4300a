package wire

import (
	"bytes"
	"encoding/gob"

	"google.golang.org/grpc/encoding"
)

// codecName is advertised in the gRPC content-subtype and must be
// registered identically on both client and server dial/serve options.
const codecName = "halo-gob"

// gobCodec implements google.golang.org/grpc/encoding.Codec over the
// plain structs in messages.go. Real production gRPC services generate
// this marshalling code with protoc; this module keeps the transport on
// the real grpc-go library (ClientConn, Server, streaming semantics,
// flow control) while avoiding hand-fabricated protoreflect descriptors
// by using grpc-go's documented Codec extension point instead.
type gobCodec struct{}

func (gobCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (gobCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(gobCodec{})
}

// CodecName returns the content-subtype string callers should pass via
// grpc.CallContentSubtype / grpc.ForceServerCodec when dialing or
// serving, so both sides agree on the wire codec.
func CodecName() string { return codecName }
