// Package protocol defines the messages exchanged between a caller and the
// worker pool. Every request and response carries its operation tag; a
// response also carries a success flag and either result fields or the
// rendered error.
package protocol

// Tag names an operation.
type Tag string

const (
	TagInitialize    Tag = "INITIALIZE"
	TagKeyDerivation Tag = "KEY_DERIVATION"
	TagEncryption    Tag = "ENCRYPTION"
	TagDecryption    Tag = "DECRYPTION"
	TagHMAC          Tag = "HMAC"
	TagPerformance   Tag = "PERFORMANCE"
)

// Tags lists every operation a worker can be asked to run, in a stable
// order. TagInitialize is only ever sent by workers.
var Tags = []Tag{
	TagKeyDerivation,
	TagEncryption,
	TagDecryption,
	TagHMAC,
	TagPerformance,
}

// Valid reports whether t is a known tag.
func (t Tag) Valid() bool {
	if t == TagInitialize {
		return true
	}
	for _, known := range Tags {
		if t == known {
			return true
		}
	}
	return false
}

// Request asks a worker to run one operation. Fields unused by the tag are
// left empty.
type Request struct {
	Tag Tag `json:"operation" cbor:"1,keyasint"`

	Password   []byte `json:"password,omitempty" cbor:"2,keyasint,omitempty"`
	Salt       []byte `json:"salt,omitempty" cbor:"3,keyasint,omitempty"`
	Key        []byte `json:"key,omitempty" cbor:"4,keyasint,omitempty"`
	Nonce      []byte `json:"nonce,omitempty" cbor:"5,keyasint,omitempty"`
	Plaintext  []byte `json:"plaintext,omitempty" cbor:"6,keyasint,omitempty"`
	Ciphertext []byte `json:"ciphertext,omitempty" cbor:"7,keyasint,omitempty"`
	AAD        []byte `json:"aad,omitempty" cbor:"8,keyasint,omitempty"`
	Message    []byte `json:"message,omitempty" cbor:"9,keyasint,omitempty"`

	// Argon2id costs. Zero means the configured default.
	TimeCost    uint32 `json:"timeCost,omitempty" cbor:"10,keyasint,omitempty"`
	MemoryCost  uint32 `json:"memoryCost,omitempty" cbor:"11,keyasint,omitempty"`
	Parallelism uint32 `json:"parallelism,omitempty" cbor:"12,keyasint,omitempty"`

	// Operations overrides the performance probe's iteration count.
	Operations int `json:"operations,omitempty" cbor:"13,keyasint,omitempty"`
}

// Response reports the outcome of one request. Error and Kind are set only
// when Success is false. Payload fields are bytes: a plaintext need not be
// valid UTF-8.
type Response struct {
	Tag     Tag    `json:"operation" cbor:"1,keyasint"`
	Success bool   `json:"success" cbor:"2,keyasint"`
	Error   string `json:"error,omitempty" cbor:"3,keyasint,omitempty"`
	Kind    string `json:"kind,omitempty" cbor:"4,keyasint,omitempty"`
	Worker  string `json:"worker,omitempty" cbor:"5,keyasint,omitempty"`

	Key           []byte `json:"key,omitempty" cbor:"6,keyasint,omitempty"`
	OriginalText  []byte `json:"originalText,omitempty" cbor:"7,keyasint,omitempty"`
	Ciphertext    []byte `json:"ciphertext,omitempty" cbor:"8,keyasint,omitempty"`
	DecryptedText []byte `json:"decryptedText,omitempty" cbor:"9,keyasint,omitempty"`
	Plaintext     []byte `json:"plaintext,omitempty" cbor:"10,keyasint,omitempty"`
	HMAC          []byte `json:"hmac,omitempty" cbor:"11,keyasint,omitempty"`

	Operations   int   `json:"operations,omitempty" cbor:"12,keyasint,omitempty"`
	TotalTime    int64 `json:"totalTime,omitempty" cbor:"13,keyasint,omitempty"` // milliseconds
	OpsPerSecond int64 `json:"opsPerSecond,omitempty" cbor:"14,keyasint,omitempty"`
}

// Failure builds the failed response for tag.
func Failure(tag Tag, kind string, err error) *Response {
	return &Response{Tag: tag, Success: false, Error: err.Error(), Kind: kind}
}
