package internal

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// EmailFingerprint returns a short stable digest of a normalized email for
// logs and audit metadata, so raw addresses are not written out.
func EmailFingerprint(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(email))
	return hex.EncodeToString(sum[:8])
}
