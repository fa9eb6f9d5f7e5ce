package digest

import (
	"crypto/sha256"
	"fmt"

	"AssistChat/internal/session"
)

// Window fingerprints the role/content pairs of a context window. Timestamps
// are ignored, matching what is actually sent to the provider.
func Window(messages []session.Message) string {
	h := sha256.New()
	for _, msg := range messages {
		h.Write([]byte(msg.Role))
		h.Write([]byte{0})
		h.Write([]byte(msg.Content))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Short returns the leading 16 hex characters of a fingerprint.
func Short(fp string) string {
	if len(fp) > 16 {
		return fp[:16]
	}
	return fp
}
