// Package share holds additive secret shares over uint64 and their fixed-point encoding.
package share

import (
	"math"
)

// Fractional bits of the fixed-point encoding.
const FracBits = 20

const scale = float64(1 << FracBits)

type Vec []uint64

// Rows of equal length, e.g. one per vertex.
type VecVec []Vec

// Per-layer intermediate values keyed by name ("h_t", "z", ...).
type TensorMap map[string]VecVec

func Encode(x float64) uint64 { return uint64(int64(math.Round(x * scale))) }
func Decode(u uint64) float64 { return float64(int64(u)) / scale }

func EncodeVec(xs []float64) Vec {
	v := make(Vec, len(xs))
	for i, x := range xs {
		v[i] = Encode(x)
	}
	return v
}

func (v Vec) Decode() []float64 {
	xs := make([]float64, len(v))
	for i, u := range v {
		xs[i] = Decode(u)
	}
	return xs
}

func (v Vec) Clone() Vec {
	c := make(Vec, len(v))
	copy(c, v)
	return c
}

// Element-wise sum into a new vector. Lengths must match.
func (v Vec) Add(o Vec) Vec {
	r := make(Vec, len(v))
	for i := range v {
		r[i] = v[i] + o[i]
	}
	return r
}

func (v Vec) Sub(o Vec) Vec {
	r := make(Vec, len(v))
	for i := range v {
		r[i] = v[i] - o[i]
	}
	return r
}

// In place v += o.
func (v Vec) AddInPlace(o Vec) {
	for i := range v {
		v[i] += o[i]
	}
}

func NewVecVec(rows, cols int) VecVec {
	vv := make(VecVec, rows)
	for i := range vv {
		vv[i] = make(Vec, cols)
	}
	return vv
}

func EncodeVecVec(xs [][]float64) VecVec {
	vv := make(VecVec, len(xs))
	for i := range xs {
		vv[i] = EncodeVec(xs[i])
	}
	return vv
}

func (vv VecVec) Decode() [][]float64 {
	xs := make([][]float64, len(vv))
	for i := range vv {
		xs[i] = vv[i].Decode()
	}
	return xs
}

func (vv VecVec) Clone() VecVec {
	c := make(VecVec, len(vv))
	for i := range vv {
		c[i] = vv[i].Clone()
	}
	return c
}

func (vv VecVec) Add(o VecVec) VecVec {
	r := make(VecVec, len(vv))
	for i := range vv {
		r[i] = vv[i].Add(o[i])
	}
	return r
}

func (vv VecVec) Sub(o VecVec) VecVec {
	r := make(VecVec, len(vv))
	for i := range vv {
		r[i] = vv[i].Sub(o[i])
	}
	return r
}

// Width of the rows; zero for an empty matrix.
func (vv VecVec) Cols() int {
	if len(vv) == 0 {
		return 0
	}
	return len(vv[0])
}

// Row lengths and the concatenated data, the wire form of a ragged matrix.
func (vv VecVec) Flatten() (lens []uint64, data []uint64) {
	lens = make([]uint64, len(vv))
	for i := range vv {
		lens[i] = uint64(len(vv[i]))
		data = append(data, vv[i]...)
	}
	return lens, data
}

// Inverse of Flatten. Returns false when the lengths do not cover the data exactly.
func Unflatten(lens []uint64, data []uint64) (VecVec, bool) {
	vv := make(VecVec, len(lens))
	off := uint64(0)
	for i, l := range lens {
		if off+l > uint64(len(data)) {
			return nil, false
		}
		vv[i] = make(Vec, l)
		copy(vv[i], data[off:off+l])
		off += l
	}
	return vv, off == uint64(len(data))
}

// Reconstructs the plaintext of two share matrices.
func Merge(a, b VecVec) VecVec { return a.Add(b) }

// Positions into a vertex ordering; -1 marks an entry that maps to nothing.
type PosVec []int64

// Divides a share by n without interaction. The two holders of a value pass opposite values of first.
// The results add up to the quotient within one unit, except with probability about |x|/2^64.
func TruncDiv(v Vec, n uint64, first bool) Vec {
	r := make(Vec, len(v))
	for i, u := range v {
		if first {
			r[i] = u / n
		} else {
			r[i] = -((-u) / n)
		}
	}
	return r
}

func TruncDivVecVec(vv VecVec, n uint64, first bool) VecVec {
	r := make(VecVec, len(vv))
	for i := range vv {
		r[i] = TruncDiv(vv[i], n, first)
	}
	return r
}
