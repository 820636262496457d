// Package md5 fingerprints page content. MD5 is used for change detection
// only, never for integrity or security.
package md5

import (
	"crypto/md5" //nolint:gosec // content fingerprint, not a security control
	"encoding/hex"
)

// Hasher implements site.Hasher using MD5.
type Hasher struct{}

// New returns an MD5 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the lowercase hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := md5.Sum(data) //nolint:gosec // see package doc
	return hex.EncodeToString(sum[:]), nil
}
