package share

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedPoint(t *testing.T) {
	for _, x := range []float64{0, 1, -1, 0.5, -3.25, 1234.0625} {
		assert.Equal(t, x, Decode(Encode(x)))
	}
	assert.InDelta(t, 0.1, Decode(Encode(0.1)), 1.0/scale)
	v := EncodeVec([]float64{1.5, -2})
	assert.Equal(t, []float64{1.5, -2}, v.Decode())
	// Additive structure survives the wrap around.
	assert.Equal(t, -0.5, Decode(Encode(1.5)+Encode(-2)))
}

func TestSplitMerge(t *testing.T) {
	src, err := NewSource()
	require.NoError(t, err)
	x := EncodeVecVec([][]float64{{1, 2, 3}, {-4, 0.25, 6}})
	a, b := src.SplitVecVec(x)
	assert.Equal(t, x, Merge(a, b))
	assert.NotEqual(t, x, a)

	val := EncodeVec([]float64{0.1, 0.2})
	orig := val.Clone()
	vs := VecSharer{Src: src}
	sh := vs.SplitShare(0, 1, &val)
	vs.MergeShare(1, &val, sh)
	assert.Equal(t, orig, val)
}

func TestKeyedSourceDeterministic(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	s1, err := NewKeyedSource(key)
	require.NoError(t, err)
	s2, err := NewKeyedSource(key)
	require.NoError(t, err)
	assert.Equal(t, s1.Vec(16), s2.Vec(16))
	assert.Equal(t, s1.Uint64(), s2.Uint64())
	assert.Len(t, s1.Vec(0), 0)
}

func TestFlatten(t *testing.T) {
	vv := VecVec{{1, 2}, {}, {3}}
	lens, data := vv.Flatten()
	assert.Equal(t, []uint64{2, 0, 1}, lens)
	assert.Equal(t, []uint64{1, 2, 3}, data)
	back, ok := Unflatten(lens, data)
	require.True(t, ok)
	assert.Equal(t, VecVec{{1, 2}, {}, {3}}, back)
	_, ok = Unflatten([]uint64{4}, data)
	assert.False(t, ok)
	assert.Equal(t, 2, vv.Cols())
}

func TestTruncDiv(t *testing.T) {
	src, err := NewSource()
	require.NoError(t, err)
	x := EncodeVecVec([][]float64{{3, -3, 0.75}, {-100.5, 7, 0}})
	for round := 0; round < 50; round++ {
		a, b := src.SplitVecVec(x)
		q := Merge(TruncDivVecVec(a, 3, true), TruncDivVecVec(b, 3, false))
		for i, row := range q.Decode() {
			for j, v := range row {
				assert.InDelta(t, x[i].Decode()[j]/3, v, 2.0/scale)
			}
		}
	}
}
