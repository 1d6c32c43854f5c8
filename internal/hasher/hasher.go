// Package hasher computes stable content digests and persists the
// path -> digest map used for incremental change detection (spec §4.1).
// It is the cheapest component in the pipeline but sits upstream of every
// other decision the Syncer makes.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest returns a stable, collision-resistant hex digest of content. SHA-256
// comfortably exceeds the 128-bit floor spec §4.1 requires.
func Digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
