// Package cryptoabi defines the calling convention of the crypto module: the
// export names, the pointer/length shape of every operation, its status
// codes, and the operation bodies themselves. The host-native module and the
// guest image both run the bodies defined here, so the two engines agree
// byte for byte.
package cryptoabi

import (
	"fmt"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/boundary"
)

// Exported operation names.
const (
	ExportDeriveKey = "derive_key"
	ExportEncrypt   = "aes_gcm_encrypt"
	ExportDecrypt   = "aes_gcm_decrypt"
	ExportHMAC      = "hmac_sha256"
	ExportDescribe  = "describe"
	ExportAlloc     = "alloc"
	ExportDealloc   = "dealloc"
)

// Sizes fixed by the algorithms.
const (
	KeySize    = 32
	NonceSize  = 12
	TagSize    = 16
	DigestSize = 32
	MinSalt    = 8
)

// Argon2id costs used when a request does not carry its own.
const (
	DefaultTimeCost    = 3
	DefaultMemoryCost  = 65536 // KiB
	DefaultParallelism = 4
)

// Status is the i32 returned by every status-shaped operation.
type Status int32

// Status codes. Zero is success; the rest are only meaningful to the
// operation that returned them.
const (
	OK Status = iota
	StatusEmptyPassword
	StatusShortSalt
	StatusBadParams
	StatusBadKey
	StatusBadNonce
	StatusAuthFailed
	StatusEmptyKey
	StatusShortCiphertext
)

var statusText = map[Status]string{
	OK:                    "ok",
	StatusEmptyPassword:   "password cannot be empty",
	StatusShortSalt:       fmt.Sprintf("salt must be at least %d bytes", MinSalt),
	StatusBadParams:       "invalid argon2 parameters",
	StatusBadKey:          fmt.Sprintf("key must be %d bytes", KeySize),
	StatusBadNonce:        fmt.Sprintf("nonce must be %d bytes", NonceSize),
	StatusAuthFailed:      "message authentication failed",
	StatusEmptyKey:        "key cannot be empty",
	StatusShortCiphertext: fmt.Sprintf("ciphertext shorter than the %d-byte tag", TagSize),
}

func (s Status) Error() string {
	if text, ok := statusText[s]; ok {
		return text
	}
	return fmt.Sprintf("status %d", int32(s))
}

// StatusText renders an operation status code.
func StatusText(code int32) string {
	return Status(code).Error()
}

// StatusOf extracts the status carried by err. Nil is OK.
func StatusOf(err error) Status {
	if err == nil {
		return OK
	}
	if s, ok := err.(Status); ok {
		return s
	}
	return StatusBadParams
}

// Operation descriptors. Inputs are passed as (ptr, len) pairs in the order
// listed, scalars follow, then one pointer per output.
var (
	// DeriveKey: password, salt; time cost, memory cost (KiB), parallelism.
	DeriveKey = boundary.Op{
		Name:       ExportDeriveKey,
		Inputs:     2,
		Scalars:    3,
		Outputs:    []boundary.OutputSize{boundary.Fixed(KeySize)},
		StatusText: StatusText,
	}

	// Encrypt: key, nonce, plaintext, associated data.
	Encrypt = boundary.Op{
		Name:       ExportEncrypt,
		Inputs:     4,
		Outputs:    []boundary.OutputSize{boundary.Derived(sealedSize)},
		StatusText: StatusText,
	}

	// Decrypt: key, nonce, ciphertext, associated data.
	Decrypt = boundary.Op{
		Name:       ExportDecrypt,
		Inputs:     4,
		Outputs:    []boundary.OutputSize{boundary.Derived(openedSize)},
		StatusText: StatusText,
	}

	// HMAC: key, message.
	HMAC = boundary.Op{
		Name:       ExportHMAC,
		Inputs:     2,
		Outputs:    []boundary.OutputSize{boundary.Fixed(DigestSize)},
		StatusText: StatusText,
	}

	// Describe returns module-placed bytes as a packed (ptr, len).
	Describe = boundary.Op{
		Name:   ExportDescribe,
		Placed: true,
	}
)

// Ops lists every operation of the crypto module.
var Ops = []boundary.Op{DeriveKey, Encrypt, Decrypt, HMAC, Describe}

func sealedSize(inputs [][]byte) uint32 {
	return uint32(len(inputs[2])) + TagSize
}

func openedSize(inputs [][]byte) uint32 {
	if n := len(inputs[2]); n > TagSize {
		return uint32(n - TagSize)
	}
	return 0
}

// Signatures returns the raw export signatures a crypto image must carry,
// including the allocator pair.
func Signatures() map[string]boundary.Signature {
	sigs := map[string]boundary.Signature{
		ExportAlloc:   {Params: []boundary.ValueType{boundary.I32}, Results: []boundary.ValueType{boundary.I32}},
		ExportDealloc: {Params: []boundary.ValueType{boundary.I32, boundary.I32}},
	}
	for _, op := range Ops {
		sigs[op.Name] = SignatureOf(op)
	}
	return sigs
}

// SignatureOf derives the raw signature implied by an operation descriptor.
// Placed operations return the packed i64 form.
func SignatureOf(op boundary.Op) boundary.Signature {
	params := make([]boundary.ValueType, op.Params())
	for i := range params {
		params[i] = boundary.I32
	}
	if op.Placed {
		return boundary.Signature{Params: params, Results: []boundary.ValueType{boundary.I64}}
	}
	return boundary.Signature{Params: params, Results: []boundary.ValueType{boundary.I32}}
}

// Lookup finds an operation by export name.
func Lookup(name string) (boundary.Op, bool) {
	for _, op := range Ops {
		if op.Name == name {
			return op, true
		}
	}
	return boundary.Op{}, false
}
