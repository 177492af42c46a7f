package protocol

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("protocol: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// MarshalRequest serializes a Request to CBOR bytes.
func MarshalRequest(r *Request) ([]byte, error) {
	return encMode.Marshal(r)
}

// UnmarshalRequest deserializes a Request from CBOR bytes.
func UnmarshalRequest(data []byte) (*Request, error) {
	var r Request
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal request: %w", err)
	}
	return &r, nil
}

// MarshalResponse serializes a Response to CBOR bytes.
func MarshalResponse(r *Response) ([]byte, error) {
	return encMode.Marshal(r)
}

// UnmarshalResponse deserializes a Response from CBOR bytes.
func UnmarshalResponse(data []byte) (*Response, error) {
	var r Response
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal response: %w", err)
	}
	return &r, nil
}
