package hash

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/corona10/goimagehash"
)

// ImageHash is a 64-bit DCT perceptual hash.
type ImageHash struct {
	Hash   uint64
	Width  int
	Height int
}

// PerceptualHasher computes perceptual hashes of decoded images.
type PerceptualHasher struct{}

// NewPerceptualHasher creates a new PerceptualHasher.
func NewPerceptualHasher() *PerceptualHasher {
	return &PerceptualHasher{}
}

// ComputePHash computes the DCT-based perceptual hash of an image.
func (ph *PerceptualHasher) ComputePHash(img image.Image) (*ImageHash, error) {
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil, fmt.Errorf("failed to compute pHash: %w", err)
	}
	return &ImageHash{
		Hash:   hash.GetHash(),
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	}, nil
}

// ComputeHashFromReader decodes a JPEG or PNG stream and hashes it.
func (ph *PerceptualHasher) ComputeHashFromReader(r io.Reader) (*ImageHash, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return ph.ComputePHash(img)
}

// String returns a hex string representation of the hash.
func (h *ImageHash) String() string {
	return fmt.Sprintf("%016x", h.Hash)
}
