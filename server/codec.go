package server

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// codecNameCBOR is the Connect codec name; requests carry the content type
// application/cbor (or application/grpc+cbor over gRPC).
const codecNameCBOR = "cbor"

var cborEnc cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("server: failed to create CBOR enc mode: %v", err))
	}
	cborEnc = em
}

// cborCodec carries the service messages as canonical CBOR. IR terms have
// no protobuf schema, so the default proto codecs cannot serve them.
type cborCodec struct{}

func (cborCodec) Name() string { return codecNameCBOR }

func (cborCodec) Marshal(msg any) ([]byte, error) {
	return cborEnc.Marshal(msg)
}

func (cborCodec) Unmarshal(data []byte, msg any) error {
	return cbor.Unmarshal(data, msg)
}
