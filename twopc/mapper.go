package twopc

import (
	"encoding/binary"

	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/share"
)

// Correlated masks agreed on during preprocessing: both parties draw the same stream,
// so BOB's output share of a mapping is generated locally instead of sent.
type maskStream struct {
	src    *share.Source
	budget uint64
	used   uint64
}

// A nil stream never supplies masks.
func (m *maskStream) take() bool {
	if m == nil || m.used >= m.budget {
		return false
	}
	m.used++
	return true
}

func (m *maskStream) matrix(shape share.PosVec) share.VecVec {
	vv := make(share.VecVec, len(shape))
	for i, n := range shape {
		vv[i] = m.src.Vec(int(n))
	}
	return vv
}

const seedWords = 4

// Sets up the mask stream of mapping id. ALICE picks the seed. Skipped entirely with NoPreprocess.
func (s *Session) PreprocessMap(id int) error {
	if s.party.NoPreprocess {
		return nil
	}
	if _, ok := s.mappers[id]; ok {
		return enforce.Errorf(enforce.ErrKeyInUse, "mapping %d already preprocessed", id)
	}
	var seed share.Vec
	if s.Role == ALICE {
		seed = s.party.Src.Vec(seedWords)
		if err := s.link.SendShareVecVec(share.VecVec{seed}); err != nil {
			return err
		}
	} else {
		vv, err := s.link.RecvShareVecVec()
		if err != nil {
			return err
		}
		if len(vv) != 1 || len(vv[0]) != seedWords {
			return enforce.Errorf(enforce.ErrMessage, "mapping %d: malformed seed", id)
		}
		seed = vv[0]
	}
	key := make([]byte, 8*seedWords)
	for i, w := range seed {
		binary.LittleEndian.PutUint64(key[8*i:], w)
	}
	src, err := share.NewKeyedSource(key)
	if err != nil {
		return err
	}
	s.mappers[id] = &maskStream{src: src, budget: s.party.MaxIters}
	return nil
}

// Index of the last entry carrying each label.
func lastIndex(labels share.PosVec) map[int64]int {
	idx := make(map[int64]int, len(labels))
	for i, l := range labels {
		if l >= 0 {
			idx[l] = i
		}
	}
	return idx
}

// Oblivious mapping: row k of the result is the input row whose source label equals dst[k]
// (the last such row), or zeros when none does. Only ALICE knows the labels; BOB passes nil.
// Rows are dim wide.
func (s *Session) Map(id int, in share.VecVec, dim int, src, dst share.PosVec) (share.VecVec, error) {
	if s.Role == ALICE && len(src) != len(in) {
		return nil, enforce.Errorf(enforce.ErrRange, "mapping %d: %d labels for %d rows", id, len(src), len(in))
	}
	return s.eval([]share.VecVec{in}, s.mappers[id], func(xs []share.VecVec) (share.VecVec, error) {
		from := lastIndex(src)
		out := make(share.VecVec, len(dst))
		for k, l := range dst {
			if m, ok := from[l]; ok && l >= 0 {
				out[k] = xs[0][m].Clone()
			} else {
				out[k] = make(share.Vec, dim)
			}
		}
		return out, nil
	})
}
