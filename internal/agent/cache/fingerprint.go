package cache

import (
	"encoding/hex"

	"github.com/zeebo/blake3"

	"support-agent/internal/common/text"
)

// Fingerprint hashes normalized text together with its scope values, so
// inputs that differ only in case or punctuation share a key while the same
// text under a different scope does not.
func Fingerprint(query string, scope ...string) string {
	h := blake3.New()
	_, _ = h.Write([]byte(text.Normalize(query)))
	for _, s := range scope {
		_, _ = h.Write([]byte{0x1f})
		_, _ = h.Write([]byte(s))
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// Key builds a namespaced cache key from a fingerprint.
func Key(namespace, fingerprint string) string {
	return namespace + ":" + fingerprint
}
