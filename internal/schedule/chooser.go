package schedule

import (
	"errors"
	"fmt"
	"math/big"
	"math/rand/v2"
	"sync"

	"github.com/JakeFAU/review-crawler/internal/crawler"
)

// ErrEmptySet is returned when asked to choose from an empty set.
var ErrEmptySet = errors.New("work set is empty")

// Chooser picks the next key to drain from a non-empty set.
type Chooser interface {
	Next(set *WorkSet) (string, error)
}

// DigestChooser hashes the set's printed form, reads the hex digest as an
// unsigned integer and indexes the keys with it modulo the set size.
// Identical snapshots always yield the same key.
type DigestChooser struct {
	hasher crawler.Hasher
}

// NewDigestChooser returns a chooser backed by hasher. Production runs use MD5.
func NewDigestChooser(hasher crawler.Hasher) *DigestChooser {
	return &DigestChooser{hasher: hasher}
}

// Next implements Chooser.
func (c *DigestChooser) Next(set *WorkSet) (string, error) {
	if set.Len() == 0 {
		return "", ErrEmptySet
	}
	digest, err := c.hasher.Hash([]byte(set.String()))
	if err != nil {
		return "", fmt.Errorf("hash work set: %w", err)
	}
	n, ok := new(big.Int).SetString(digest, 16)
	if !ok {
		return "", fmt.Errorf("parse digest %q", digest)
	}
	idx := new(big.Int).Mod(n, big.NewInt(int64(set.Len())))
	return set.At(int(idx.Int64())), nil
}

// SeededChooser picks uniformly with a seeded PCG source, so a run is
// reproducible for a given seed and discovery result.
type SeededChooser struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededChooser returns a chooser seeded with seed.
func NewSeededChooser(seed uint64) *SeededChooser {
	return &SeededChooser{rng: rand.New(rand.NewPCG(seed, seed))}
}

// Next implements Chooser.
func (c *SeededChooser) Next(set *WorkSet) (string, error) {
	if set.Len() == 0 {
		return "", ErrEmptySet
	}
	c.mu.Lock()
	idx := c.rng.IntN(set.Len())
	c.mu.Unlock()
	return set.At(idx), nil
}
