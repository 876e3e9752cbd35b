package vault

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Fingerprint returns a short stable digest of a credential payload,
// suitable for change detection in logs and audit entries without exposing
// the payload itself. The digest is over the raw bytes, so two payloads
// that differ only in JSON key order fingerprint differently.
func Fingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
