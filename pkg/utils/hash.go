package utils

import (
	"crypto/sha256"
	"fmt"
	"io"
)

// Fingerprint hashes parts in order. Each part is length-prefixed so that
// ("ab", "c") and ("a", "bc") differ.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:", len(p))
		io.WriteString(h, p)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
