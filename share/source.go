package share

import (
	"encoding/binary"
	"sync"

	"github.com/tuneinsight/lattigo/v6/utils/sampling"
)

// Source draws uniform uint64 masks from a lattigo keyed PRNG.
// Two sources built from the same key produce the same stream.
type Source struct {
	mu   sync.Mutex
	prng *sampling.KeyedPRNG
	buf  []byte
}

// A source seeded from the system randomness.
func NewSource() (*Source, error) {
	prng, err := sampling.NewPRNG()
	if err != nil {
		return nil, err
	}
	return &Source{prng: prng}, nil
}

func NewKeyedSource(key []byte) (*Source, error) {
	prng, err := sampling.NewKeyedPRNG(key)
	if err != nil {
		return nil, err
	}
	return &Source{prng: prng}, nil
}

// Fresh random key suitable for NewKeyedSource.
func (s *Source) Key(n int) []byte {
	k := make([]byte, n)
	s.mu.Lock()
	if _, err := s.prng.Read(k); err != nil {
		s.mu.Unlock()
		panic(err)
	}
	s.mu.Unlock()
	return k
}

func (s *Source) Uint64() uint64 {
	return s.Vec(1)[0]
}

func (s *Source) Vec(n int) Vec {
	v := make(Vec, n)
	if n == 0 {
		return v
	}
	s.mu.Lock()
	if cap(s.buf) < 8*n {
		s.buf = make([]byte, 8*n)
	}
	buf := s.buf[:8*n]
	if _, err := s.prng.Read(buf); err != nil {
		s.mu.Unlock()
		panic(err)
	}
	for i := range v {
		v[i] = binary.LittleEndian.Uint64(buf[8*i:])
	}
	s.mu.Unlock()
	return v
}

func (s *Source) VecVec(rows, cols int) VecVec {
	vv := make(VecVec, rows)
	for i := range vv {
		vv[i] = s.Vec(cols)
	}
	return vv
}

// Splits x into two additive shares: a + b = x, with b uniform.
func (s *Source) Split(x Vec) (a, b Vec) {
	b = s.Vec(len(x))
	return x.Sub(b), b
}

func (s *Source) SplitVecVec(x VecVec) (a, b VecVec) {
	a, b = make(VecVec, len(x)), make(VecVec, len(x))
	for i := range x {
		a[i], b[i] = s.Split(x[i])
	}
	return a, b
}

// Sharer of Vec values sent through a key value stream: the producer keeps val - r and ships r alongside.
type VecSharer struct {
	Src *Source
}

func (vs VecSharer) SplitShare(_, _ uint32, val *Vec) Vec {
	a, b := vs.Src.Split(*val)
	*val = a
	return b
}

func (VecSharer) MergeShare(_ uint32, val *Vec, sh Vec) {
	*val = val.Add(sh)
}
