// SPDX-License-Identifier: MIT

package media

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"

	"golang.org/x/text/unicode/norm"
)

// IDForPath returns the stable content id of a media file: a truncated
// sha256 of its cleaned, NFC-normalized absolute path.
func IDForPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	canonical := norm.NFC.String(filepath.Clean(abs))
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:16])
}
