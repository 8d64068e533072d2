package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// ContentDigest is the hex sha256 of a byte stream.
type ContentDigest struct {
	Hash string
	Size int64
}

// Sha256Hasher digests upload content.
type Sha256Hasher struct{}

// NewSha256Hasher creates a new Sha256Hasher.
func NewSha256Hasher() *Sha256Hasher {
	return &Sha256Hasher{}
}

// ComputeHashFromReader reads r to the end and returns its digest.
func (h *Sha256Hasher) ComputeHashFromReader(r io.Reader) (*ContentDigest, error) {
	hasher := sha256.New()
	n, err := io.Copy(hasher, r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	return &ContentDigest{
		Hash: hex.EncodeToString(hasher.Sum(nil)),
		Size: n,
	}, nil
}
