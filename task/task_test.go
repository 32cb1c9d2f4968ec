package task

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/graph"
	"github.com/ScottSallinen/ssgas/share"
)

func TestKindNames(t *testing.T) {
	assert.Len(t, AllKinds(), 20)
	assert.Equal(t, "ADD_UINT", AddUint.String())
	assert.Equal(t, "GCN_BACKWARD_NN", GCNBackwardNN.String())
	assert.Equal(t, "UNKNOWN", Kind(200).String())
	_, err := NewPayload(Kind(200))
	assert.True(t, errors.Is(err, enforce.ErrInvalidArgument))
}

// Every payload: shares written to an operand read back, copies and unification preserve them,
// and operand storage is released exactly once.
func TestPayloadDiscipline(t *testing.T) {
	for _, k := range AllKinds() {
		t.Run(k.String(), func(t *testing.T) {
			p, err := NewPayload(k)
			require.NoError(t, err)
			assert.Equal(t, k, p.Kind())

			if k == GCNForwardNN || k == GCNForwardNNPrediction || k == GCNBackwardNNInit || k == GCNBackwardNN {
				seedMatrices(p)
			}

			require.NoError(t, p.WriteShareToOperand(0, 0, 41))
			got, err := p.OperandShare(0)
			require.NoError(t, err)
			assert.Equal(t, uint64(41), got[0])

			_, err = p.OperandShare(p.OperandNum())
			assert.True(t, errors.Is(err, enforce.ErrRange))

			q, _ := NewPayload(k)
			if k == GCNForwardNN || k == GCNForwardNNPrediction || k == GCNBackwardNNInit || k == GCNBackwardNN {
				seedMatrices(q)
			}
			require.NoError(t, q.CopyOperand(0, p, 0))
			got, err = q.OperandShare(0)
			require.NoError(t, err)
			assert.Equal(t, uint64(41), got[0])

			other := AddUint
			if k == AddUint {
				other = AddDouble
			}
			o, _ := NewPayload(other)
			assert.True(t, errors.Is(q.CopyOperand(0, o, 0), enforce.ErrInvalidArgument))

			first, err := p.OperandShare(0)
			require.NoError(t, err)
			p.UnifyOperand()
			if p.OperandNum() > 1 {
				got, err = p.OperandShare(1)
				require.NoError(t, err)
				assert.Equal(t, first, got, "operand 1 holds operand 0")
			}
			got, err = p.OperandShare(0)
			require.NoError(t, err)
			assert.Equal(t, first, got, "operand 0 untouched")

			assert.False(t, p.Released())
			require.NoError(t, p.Release())
			assert.True(t, p.Released())
			assert.True(t, errors.Is(p.Release(), enforce.ErrPermission))
		})
	}
}

func seedMatrices(p Payload) {
	switch x := p.(type) {
	case *ForwardNN:
		x.Weight = share.NewVecVec(2, 2)
	case *ForwardNNPrediction:
		x.Weight = share.NewVecVec(2, 2)
	case *BackwardNNInit:
		x.WeightT = share.NewVecVec(2, 2)
	case *BackwardNN:
		x.WeightT = share.NewVecVec(2, 2)
	}
}

func TestVectorPayloadsHaveNoCipher(t *testing.T) {
	p := &VectorAddition{}
	_, err := p.EncryptShare(0, 1, 7)
	assert.True(t, errors.Is(err, enforce.ErrInvalidArgument))
	assert.Equal(t, -1, p.EncTid(0))
	assert.Error(t, p.SetPlainNum(0, 1))
}

// Split under one key, re-encrypt under the other, merge: the value survives the swap of key owners.
func TestCipherShareRoundTrip(t *testing.T) {
	const keyA, keyB = uint64(0xA11CE), uint64(0xB0B)
	src, err := share.NewKeyedSource([]byte("cipher-test"))
	require.NoError(t, err)

	for _, k := range []Kind{AddUint, AddDouble, MinUintWithParent, AddPairDoubleUint, AddMixedPairDoubleUint, SwapCipherEntry} {
		t.Run(k.String(), func(t *testing.T) {
			held, _ := NewPayload(k)
			var slots []uint64
			switch k {
			case AddUint:
				slots = []uint64{12}
			case AddDouble, AddMixedPairDoubleUint:
				slots = []uint64{share.Encode(2.5)}
			case MinUintWithParent, AddPairDoubleUint:
				slots = []uint64{share.Encode(1.25), 9}
			case SwapCipherEntry:
				slots = []uint64{5, 6}
			}
			require.NoError(t, held.WriteEncryptedOperand(0, Encrypt(slots, 1, keyB)))
			assert.Equal(t, 1, held.EncTid(0))

			remainder, err := held.SplitShareFromEncryptedOperand(0, src)
			require.NoError(t, err)
			mine, err := held.OperandShare(0)
			require.NoError(t, err)

			// Key owner B decrypts its share and encrypts it for A.
			theirs := remainder.Decrypt(keyB)
			for i := range slots {
				assert.Equal(t, slots[i], theirs[i]+mine[i])
			}
			back := Encrypt(theirs, 0, keyA)

			require.NoError(t, held.MergeEncryptedShare(0, back))
			assert.Equal(t, 0, held.EncTid(0))
			_, err = held.OperandShare(0)
			assert.Error(t, err)

			again, _ := NewPayload(k)
			require.NoError(t, again.CopyOperand(0, held, 0))
			ce, err := again.SplitShareFromEncryptedOperand(0, src)
			require.NoError(t, err)
			s, _ := again.OperandShare(0)
			dec := ce.Decrypt(keyA)
			for i := range slots {
				assert.Equal(t, slots[i], dec[i]+s[i])
			}
		})
	}
}

func TestSetPlainNum(t *testing.T) {
	p := NewPair(AddMixedPairDoubleUint)
	assert.NoError(t, p.SetPlainNum(0, 1))
	assert.True(t, errors.Is(p.SetPlainNum(0, 2), enforce.ErrRange))
	s := NewScalar[uint32](MinUintWithParent)
	assert.NoError(t, s.SetPlainNum(1, 2))
	assert.True(t, errors.Is(s.SetPlainNum(2, 2), enforce.ErrRange))
}

func TestExecuteScalar(t *testing.T) {
	s := NewScalar[uint32](MinUintWithParent)
	s.Operands[0] = ScalarOperand[uint32]{Plain: 7, Parent: 1}
	s.Operands[1] = ScalarOperand[uint32]{Plain: 3, Parent: 2}
	tk := New(MinUintWithParent, 4, s)

	_, err := ScalarResult[uint32](tk)
	assert.True(t, errors.Is(err, enforce.ErrResultNotReady))

	require.NoError(t, Execute(tk))
	v, err := ScalarResult[uint32](tk)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), v)
	assert.Equal(t, uint64(2), s.Operands[0].Parent)
	assert.True(t, errors.Is(Execute(tk), enforce.ErrPermission))

	d := NewScalar[float64](DivDouble)
	d.Operands[0].Plain, d.Operands[1].Plain = 1, 0
	assert.True(t, errors.Is(Execute(New(DivDouble, 0, d)), enforce.ErrInvalidArgument))
}

func TestExecuteDecrypt(t *testing.T) {
	s := NewScalar[float64](DecDouble)
	require.NoError(t, s.WriteEncryptedOperand(0, Encrypt([]uint64{share.Encode(-3.5)}, 2, 99)))
	tk := New(DecDouble, 0, s)
	assert.True(t, errors.Is(Execute(tk), enforce.ErrPermission))

	require.NoError(t, Executor{Keys: map[uint32]uint64{2: 99}}.Execute(tk))
	v, err := ScalarResult[float64](tk)
	require.NoError(t, err)
	assert.InDelta(t, -3.5, v, 1e-6)
}

func TestExecuteGCN(t *testing.T) {
	fw := &ForwardNNPrediction{
		AH:     share.EncodeVec([]float64{1, 2}),
		Weight: share.EncodeVecVec([][]float64{{1, 0}, {0, -1}}),
		Y:      share.EncodeVec([]float64{1, 0}),
	}
	require.NoError(t, Execute(New(GCNForwardNNPrediction, 0, fw)))
	z := fw.Z.Decode()
	assert.InDelta(t, 1.0, z[0], 1e-5)
	assert.InDelta(t, -2.0, z[1], 1e-5)
	p := fw.P.Decode()
	assert.InDelta(t, 1.0, p[0]+p[1], 1e-5)
	assert.Greater(t, p[0], p[1])
	pmy := fw.PMinusY.Decode()
	assert.InDelta(t, p[0]-1, pmy[0], 1e-5)

	bw := &BackwardNN{
		ATG:     share.EncodeVec([]float64{1, 1}),
		AHT:     share.EncodeVec([]float64{2, 3}),
		Z:       share.EncodeVec([]float64{0.5, -0.5}),
		WeightT: share.EncodeVecVec([][]float64{{1, 2}, {3, 4}}),
	}
	require.NoError(t, Execute(New(GCNBackwardNN, 0, bw)))
	assert.Equal(t, [][]float64{{2, 0}, {3, 0}}, bw.D.Decode())
	assert.Equal(t, []float64{1, 2}, bw.G.Decode())

	sc := &VectorScale{Vec: share.EncodeVec([]float64{1, -2})}
	sc.Scaler[0] = share.Vec{share.Encode(0.25)}
	sc.Scaler[1] = share.Vec{share.Encode(0.25)}
	require.NoError(t, Execute(New(GCNVectorScale, 0, sc)))
	assert.Equal(t, []float64{0.5, -1}, sc.Result.Decode())
}

func TestReductionTasks(t *testing.T) {
	v := graph.Vertex[float64, float64]{}
	for i := 1; i <= 5; i++ {
		v.UpdateNew(float64(i))
	}
	rounds := 0
	for v.UpdateQueueLen() > 0 {
		pairs, err := v.UpdatePairs()
		require.NoError(t, err)
		tasks := ReductionTasks(AddDouble, 0, 0, pairs, true)
		assert.Zero(t, len(tasks)&(len(tasks)-1), "padded to a power of two")
		for _, tk := range tasks {
			require.NoError(t, Execute(tk))
			if tk.IsDummy {
				continue
			}
			r, err := ScalarResult[float64](tk)
			require.NoError(t, err)
			v.WriteUpdateResult(r, tk.IsFinal)
		}
		rounds++
	}
	assert.Equal(t, 15.0, v.AccUpdate)
	assert.Equal(t, 4, rounds)

	_, err := v.UpdatePairs()
	assert.True(t, errors.Is(err, enforce.ErrQueue))
}

func TestParseConfig(t *testing.T) {
	in := `# gcn
num_layers: 2
num_labels : 3
input_dim: 4
hidden_dim: 8
learning_rate: 0.1
train_ratio: 0.6
dropout: 0.5
garbage
`
	p, report, err := ParseConfig(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 2, p.NumLayers)
	assert.Equal(t, 3, p.NumLabels)
	assert.Equal(t, 8, p.HiddenDim)
	assert.InDelta(t, 0.1, p.LearningRate, 1e-12)
	assert.True(t, report.Partial())
	assert.Equal(t, []string{"dropout: 0.5", "garbage"}, report.Skipped)

	_, _, err = ParseConfig(strings.NewReader("num_layers: two\n"))
	assert.True(t, errors.Is(err, enforce.ErrFile))

	_, _, err = ReadConfig("testdata/missing.conf")
	assert.True(t, errors.Is(err, enforce.ErrFile))
}
