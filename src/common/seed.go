package common

import (
	crand "crypto/rand"
	"encoding/binary"

	"github.com/pkg/errors"
)

// NewSeed draws a 64-bit seed from crypto/rand for seeding a math/rand source
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, errors.Wrap(err, "failed reading random seed")
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// MustSeed is NewSeed for startup paths where a broken entropy source is fatal
func MustSeed() int64 {
	seed, err := NewSeed()
	if err != nil {
		panic(err)
	}
	return seed
}
