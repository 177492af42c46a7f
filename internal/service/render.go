package service

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/pkg/protocol"
)

// Render formats a response for a terminal: one "field: value" line per
// populated field. Keys, ciphertexts and digests print in hex; payloads
// print as text when they are valid UTF-8 and in hex otherwise.
func Render(resp *protocol.Response) string {
	var b strings.Builder
	line := func(field, value string) {
		fmt.Fprintf(&b, "%-14s %s\n", field+":", value)
	}
	bytesLine := func(field string, v []byte) {
		if len(v) > 0 {
			line(field, hex.EncodeToString(v))
		}
	}
	textLine := func(field, v string) {
		if v != "" {
			line(field, v)
		}
	}
	payloadLine := func(field string, v []byte) {
		if len(v) > 0 {
			line(field, payload(v))
		}
	}

	line("operation", string(resp.Tag))
	if !resp.Success {
		line("status", "failed ("+resp.Kind+")")
		line("error", resp.Error)
		return b.String()
	}
	line("status", "ok")
	textLine("worker", resp.Worker)

	bytesLine("key", resp.Key)
	payloadLine("original", resp.OriginalText)
	bytesLine("ciphertext", resp.Ciphertext)
	payloadLine("decrypted", resp.DecryptedText)
	payloadLine("plaintext", resp.Plaintext)
	bytesLine("hmac", resp.HMAC)

	if resp.Tag == protocol.TagPerformance {
		line("operations", fmt.Sprint(resp.Operations))
		line("total time", fmt.Sprintf("%dms", resp.TotalTime))
		line("ops/second", fmt.Sprint(resp.OpsPerSecond))
	}
	return b.String()
}

func payload(v []byte) string {
	if utf8.Valid(v) {
		return string(v)
	}
	return "0x" + hex.EncodeToString(v)
}
