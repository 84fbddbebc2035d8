// ABOUTME: Random key generation for bot secrets and copy keys.
// ABOUTME: URL-safe alphabet; ambiguous base64 characters normalized to 'A'.

package service

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// ambiguous maps the base64 characters that are awkward in URLs and chat
// clients to a safe substitute.
var ambiguous = strings.NewReplacer("/", "A", "+", "A", "=", "A")

// randomKey returns a cryptographically random key of exactly length
// characters.
func randomKey(length int) (string, error) {
	// 4 base64 chars per 3 bytes; round up so the encoding covers length.
	buf := make([]byte, (length*3+3)/4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	key := ambiguous.Replace(base64.StdEncoding.EncodeToString(buf))
	return key[:length], nil
}
