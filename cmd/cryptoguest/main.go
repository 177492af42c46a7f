//go:build wasip1

// Command cryptoguest is the crypto module compiled to a WebAssembly
// reactor. Build it with:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o images/cryptoguest/module.wasm ./cmd/cryptoguest
//
// uint32 is used for pointers and lengths because wasm32 linear memory
// addresses are 32-bit.
package main

import (
	"unsafe"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/cryptoabi"
)

// Log levels understood by env.log_message.
const (
	levelDebug uint32 = iota
	levelInfo
	levelWarn
	levelError
)

//go:wasmimport env log_message
func logMessage(level, ptr, length uint32)

func log(level uint32, msg string) {
	if msg == "" {
		return
	}
	logMessage(level, uint32(uintptr(unsafe.Pointer(unsafe.StringData(msg)))), uint32(len(msg)))
}

// pinned keeps allocations handed to the host reachable until dealloc.
var pinned = map[uint32][]byte{}

// heapLimit caps the bytes pinned for the host at once. Past it alloc
// returns 0 so the host sees an out-of-memory error instead of a trap.
// A request under the limit can still trap if the Go runtime cannot grow
// linear memory to satisfy it.
const heapLimit = 64 << 20

var pinnedBytes uint64

//go:wasmexport alloc
func alloc(size uint32) uint32 {
	if size == 0 {
		size = 1
	}
	if pinnedBytes+uint64(size) > heapLimit {
		return 0
	}
	buf := make([]byte, size)
	ptr := uint32(uintptr(unsafe.Pointer(&buf[0])))
	pinned[ptr] = buf
	pinnedBytes += uint64(size)
	return ptr
}

//go:wasmexport dealloc
func dealloc(ptr, size uint32) {
	if buf, ok := pinned[ptr]; ok {
		pinnedBytes -= uint64(len(buf))
		delete(pinned, ptr)
	}
}

// bytesAt aliases length bytes of linear memory at ptr.
func bytesAt(ptr, length uint32) []byte {
	if length == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), length)
}

// run executes one operation and copies its result to out. Failures are
// reported as status codes; the host owns the output buffer and its size.
func run(name string, inputs [][]byte, scalars []uint64, out uint32) int32 {
	result, err := cryptoabi.Run(name, inputs, scalars)
	if err != nil {
		status := cryptoabi.StatusOf(err)
		log(levelWarn, name+": "+status.Error())
		return int32(status)
	}
	copy(bytesAt(out, uint32(len(result))), result)
	return int32(cryptoabi.OK)
}

//go:wasmexport derive_key
func deriveKey(pwPtr, pwLen, saltPtr, saltLen, timeCost, memoryCost, parallelism, out uint32) int32 {
	return run(cryptoabi.ExportDeriveKey,
		[][]byte{bytesAt(pwPtr, pwLen), bytesAt(saltPtr, saltLen)},
		[]uint64{uint64(timeCost), uint64(memoryCost), uint64(parallelism)},
		out,
	)
}

//go:wasmexport aes_gcm_encrypt
func encrypt(keyPtr, keyLen, noncePtr, nonceLen, ptPtr, ptLen, aadPtr, aadLen, out uint32) int32 {
	return run(cryptoabi.ExportEncrypt, [][]byte{
		bytesAt(keyPtr, keyLen),
		bytesAt(noncePtr, nonceLen),
		bytesAt(ptPtr, ptLen),
		bytesAt(aadPtr, aadLen),
	}, nil, out)
}

//go:wasmexport aes_gcm_decrypt
func decrypt(keyPtr, keyLen, noncePtr, nonceLen, ctPtr, ctLen, aadPtr, aadLen, out uint32) int32 {
	return run(cryptoabi.ExportDecrypt, [][]byte{
		bytesAt(keyPtr, keyLen),
		bytesAt(noncePtr, nonceLen),
		bytesAt(ctPtr, ctLen),
		bytesAt(aadPtr, aadLen),
	}, nil, out)
}

//go:wasmexport hmac_sha256
func hmacSHA256(keyPtr, keyLen, msgPtr, msgLen, out uint32) int32 {
	return run(cryptoabi.ExportHMAC,
		[][]byte{bytesAt(keyPtr, keyLen), bytesAt(msgPtr, msgLen)},
		nil, out,
	)
}

// describe places the description in guest-owned memory and returns it as
// ptr<<32 | len. The host frees it with dealloc.
//
//go:wasmexport describe
func describe() uint64 {
	text := cryptoabi.Description
	ptr := alloc(uint32(len(text)))
	copy(bytesAt(ptr, uint32(len(text))), text)
	log(levelDebug, "describe")
	return uint64(ptr)<<32 | uint64(len(text))
}

func main() {}
