package bloom

import (
	"context"
	_ "embed"
	"errors"

	"postguard/internal/pkg/hash"
	"postguard/internal/pkg/redis"
)

var (
	// ErrTooLargeOffset indicates the offset is too large in bitset.
	ErrTooLargeOffset = errors.New("too large offset")

	//go:embed set_script.lua
	setLuaScript string
	setScript    = redis.NewScript(setLuaScript)

	//go:embed get_script.lua
	getLuaScript string
	getScript    = redis.NewScript(getLuaScript)
)

// Filter is a Bloom filter whose bits live in a Redis string.
type Filter struct {
	bitSet         bitSetProvider
	bits           uint
	kHashFunctions uint
}

// NewBloomFilter creates a new Bloom filter with the given parameters.
func NewBloomFilter(store redis.Cache, key string, bits uint, kHashFunctions uint) *Filter {
	return &Filter{
		bits:           bits,
		bitSet:         newRedisBitSet(store, key, bits),
		kHashFunctions: kHashFunctions,
	}
}

// getLocations computes the bit locations for the given data.
func (f *Filter) getLocations(data []byte) []uint {
	locations := make([]uint, f.kHashFunctions)
	buf := make([]byte, len(data)+1)
	copy(buf, data)
	for i := uint(0); i < f.kHashFunctions; i++ {
		buf[len(data)] = byte(i)
		locations[i] = uint(hash.Hash(buf) % uint64(f.bits))
	}
	return locations
}

// AddWithCtx adds the given data to the Bloom filter.
func (f *Filter) AddWithCtx(ctx context.Context, data []byte) error {
	return f.bitSet.set(ctx, f.getLocations(data))
}

// ExistsWithCtx checks if the given data may exist in the Bloom filter.
func (f *Filter) ExistsWithCtx(ctx context.Context, data []byte) (bool, error) {
	return f.bitSet.check(ctx, f.getLocations(data))
}

// Reset clears every bit.
func (f *Filter) Reset(ctx context.Context) error {
	return f.bitSet.del(ctx)
}
