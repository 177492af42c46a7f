package cryptoabi

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"math"

	"golang.org/x/crypto/argon2"
)

// Description is the text the describe export places in module memory.
const Description = "crypto module: argon2id, aes-256-gcm, hmac-sha256"

// Argon2Params holds the Argon2id cost parameters.
type Argon2Params struct {
	Time        uint32
	Memory      uint32 // KiB
	Parallelism uint32
}

// DefaultArgon2 returns the costs used when a request carries none.
func DefaultArgon2() Argon2Params {
	return Argon2Params{Time: DefaultTimeCost, Memory: DefaultMemoryCost, Parallelism: DefaultParallelism}
}

func (p Argon2Params) validate() error {
	switch {
	case p.Time < 1:
		return StatusBadParams
	case p.Parallelism < 1 || p.Parallelism > math.MaxUint8:
		return StatusBadParams
	case p.Memory < 8*p.Parallelism:
		return StatusBadParams
	}
	return nil
}

// DeriveKeyBytes derives a KeySize key from password and salt with Argon2id.
func DeriveKeyBytes(password, salt []byte, p Argon2Params) ([]byte, error) {
	if len(password) == 0 {
		return nil, StatusEmptyPassword
	}
	if len(salt) < MinSalt {
		return nil, StatusShortSalt
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return argon2.IDKey(password, salt, p.Time, p.Memory, uint8(p.Parallelism), KeySize), nil
}

func newGCM(key, nonce []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, StatusBadKey
	}
	if len(nonce) != NonceSize {
		return nil, StatusBadNonce
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, StatusBadKey
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext with AES-256-GCM. The result is the ciphertext
// followed by the TagSize tag.
func Seal(key, nonce, plaintext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key, nonce)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(make([]byte, 0, len(plaintext)+TagSize), nonce, plaintext, aad), nil
}

// Open authenticates and decrypts the output of Seal.
func Open(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key, nonce)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < TagSize {
		return nil, StatusShortCiphertext
	}
	out, err := gcm.Open(make([]byte, 0, len(ciphertext)-TagSize), nonce, ciphertext, aad)
	if err != nil {
		return nil, StatusAuthFailed
	}
	return out, nil
}

// Sum computes HMAC-SHA256 of message under key.
func Sum(key, message []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, StatusEmptyKey
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil), nil
}

// Run executes the named operation over host-owned inputs. Both module
// implementations dispatch through it after reading their arguments out of
// linear memory.
func Run(name string, inputs [][]byte, scalars []uint64) ([]byte, error) {
	op, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown operation '%s'", name)
	}
	if len(inputs) != op.Inputs || len(scalars) != op.Scalars {
		return nil, fmt.Errorf("operation '%s' takes %d inputs and %d scalars", name, op.Inputs, op.Scalars)
	}

	switch name {
	case ExportDeriveKey:
		return DeriveKeyBytes(inputs[0], inputs[1], Argon2Params{
			Time:        uint32(scalars[0]),
			Memory:      uint32(scalars[1]),
			Parallelism: uint32(scalars[2]),
		})
	case ExportEncrypt:
		return Seal(inputs[0], inputs[1], inputs[2], inputs[3])
	case ExportDecrypt:
		return Open(inputs[0], inputs[1], inputs[2], inputs[3])
	case ExportHMAC:
		return Sum(inputs[0], inputs[1])
	case ExportDescribe:
		return []byte(Description), nil
	}
	return nil, fmt.Errorf("unknown operation '%s'", name)
}
