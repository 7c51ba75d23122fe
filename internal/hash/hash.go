// Package hash provides hex digest adapters for crawler.Hasher.
//
// MD5 drives the reproducible work-set selection order; SHA-256 names archived
// page bodies.
package hash

import (
	"crypto/md5" //nolint:gosec // content addressing, not security
	"crypto/sha256"
	"encoding/hex"
	stdhash "hash"
)

// Hasher implements crawler.Hasher over a standard library digest.
type Hasher struct {
	newDigest func() stdhash.Hash
}

// NewMD5 returns an MD5 hasher.
func NewMD5() *Hasher {
	return &Hasher{newDigest: md5.New}
}

// NewSHA256 returns a SHA-256 hasher.
func NewSHA256() *Hasher {
	return &Hasher{newDigest: sha256.New}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	d := h.newDigest()
	if _, err := d.Write(data); err != nil {
		return "", err
	}
	return hex.EncodeToString(d.Sum(nil)), nil
}
