package session

import (
	"crypto/rand"
	"encoding/base64"
)

// sessionIDLength is the size of the public session identifier. Six
// characters of the URL-safe base64 alphabet give a small, shareable code;
// the identifier space is deliberately tiny, so inserts must treat a
// unique-constraint collision as retryable with a fresh draw.
const sessionIDLength = 6

// maxIDAttempts bounds the create/retry loop on collisions.
const maxIDAttempts = 5

// newSessionID draws 4 random bytes and encodes them with the URL-safe
// base64 alphabet, yielding exactly sessionIDLength characters.
func newSessionID() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf)[:sessionIDLength], nil
}
