// Package jsoncodec registers a JSON grpc-go wire codec under the
// content-subtype "json" (google.golang.org/grpc/encoding's mechanism for
// selecting a codec other than the default protobuf one per call). Both
// acsd and acsctl import this package solely for its init side effect.
package jsoncodec

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// Name is the content-subtype acsd and acsctl negotiate; pass it to
// grpc.CallContentSubtype on the client and it is read automatically from
// the incoming request's content-type on the server.
const Name = "json"

type codec struct{}

func (codec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (codec) Name() string { return Name }

func init() {
	encoding.RegisterCodec(codec{})
}
