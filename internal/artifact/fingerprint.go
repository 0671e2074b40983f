package artifact

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Fingerprint returns a stable digest of the artifact's canonical
// encoding. Equal artifacts always share a fingerprint.
func Fingerprint(c Codec, a *Artifact) (string, error) {
	raw, err := c.Encode(a)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
