package moderator

import (
	"context"
	"encoding/binary"
	"image"

	"github.com/go-kratos/kratos/v2/log"

	"postguard/internal/pkg/hash"
)

// BloomFilter is the probabilistic pre-check in front of the bad image table.
type BloomFilter interface {
	AddWithCtx(ctx context.Context, data []byte) error
	ExistsWithCtx(ctx context.Context, data []byte) (bool, error)
}

// BadImageChecker is an interface for checking/storing bad images.
type BadImageChecker interface {
	// FindByPHash checks if a pHash exists in the database.
	FindByPHash(ctx context.Context, phash int64) (bool, error)
	// SaveBadImage saves a bad image pHash to the database.
	SaveBadImage(ctx context.Context, phash int64, label string, score float64, filename string) error
}

// BadImageIndex remembers perceptual hashes of rejected images so that
// re-uploads are rejected without calling the detector.
type BadImageIndex struct {
	bloom   BloomFilter
	checker BadImageChecker
	hasher  *hash.PerceptualHasher
	log     *log.Helper
}

// NewBadImageIndex creates a BadImageIndex.
func NewBadImageIndex(bloom BloomFilter, checker BadImageChecker, logger log.Logger) *BadImageIndex {
	return &BadImageIndex{
		bloom:   bloom,
		checker: checker,
		hasher:  hash.NewPerceptualHasher(),
		log:     log.NewHelper(logger),
	}
}

// PHash computes the 64-bit perceptual hash of img.
func (x *BadImageIndex) PHash(img image.Image) (uint64, error) {
	h, err := x.hasher.ComputePHash(img)
	if err != nil {
		return 0, err
	}
	return h.Hash, nil
}

// Contains reports whether phash belongs to a known bad image.
// A Bloom hit is confirmed against the database. Lookup errors count as a miss
// so the image still goes through detection.
func (x *BadImageIndex) Contains(ctx context.Context, phash uint64) bool {
	maybe, err := x.bloom.ExistsWithCtx(ctx, phashToBytes(phash))
	if err != nil {
		x.log.Warnf("Bloom filter check failed: %v", err)
		return false
	}
	if !maybe {
		return false
	}
	x.log.Debugf("Bloom filter hit for pHash %016x", phash)

	exists, err := x.checker.FindByPHash(ctx, int64(phash))
	if err != nil {
		x.log.Warnf("DB lookup failed: %v", err)
		return false
	}
	return exists
}

// Remember saves a bad image to DB and updates Bloom filter.
func (x *BadImageIndex) Remember(ctx context.Context, phash uint64, label string, score float64, filename string) error {
	if err := x.checker.SaveBadImage(ctx, int64(phash), label, score, filename); err != nil {
		return err
	}
	if err := x.bloom.AddWithCtx(ctx, phashToBytes(phash)); err != nil {
		x.log.Warnf("Failed to add pHash to Bloom filter: %v", err)
	}
	x.log.Infof("Saved bad image: pHash=%016x, label=%s, score=%.2f", phash, label, score)
	return nil
}

// Rebuild re-adds every pHash to the Bloom filter and returns how many were added.
func (x *BadImageIndex) Rebuild(ctx context.Context, phashes []uint64) int {
	added := 0
	for _, phash := range phashes {
		if err := x.bloom.AddWithCtx(ctx, phashToBytes(phash)); err != nil {
			x.log.Warnf("Failed to add pHash %016x to Bloom: %v", phash, err)
			continue
		}
		added++
	}
	x.log.Infof("Rebuilt image Bloom filter with %d/%d pHashes", added, len(phashes))
	return added
}

func phashToBytes(phash uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, phash)
	return buf
}
