package task

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/share"
)

// Executor runs tasks on reconstructed operands. Keys holds the decryption key of each tile this party may decrypt for.
type Executor struct {
	Keys map[uint32]uint64
}

// Runs t without decryption keys.
func Execute(t *Task) error {
	return Executor{}.Execute(t)
}

// Runs the computation of t in place, leaving the result in operand 0 (or the result fields for the GCN kinds).
func (e Executor) Execute(t *Task) error {
	if t.Finished {
		return enforce.Errorf(enforce.ErrPermission, "%v task for vertex %v already executed", t.Kind, t.VertexIndex)
	}
	if t.Payload == nil {
		return enforce.Errorf(enforce.ErrNullPointer, "%v task for vertex %v has no payload", t.Kind, t.VertexIndex)
	}
	if t.Payload.Released() {
		return enforce.Errorf(enforce.ErrPermission, "%v task payload was released", t.Kind)
	}
	if !t.IsDummy {
		var err error
		switch p := t.Payload.(type) {
		case *Scalar[uint32]:
			err = execScalar(e, p)
		case *Scalar[uint64]:
			err = execScalar(e, p)
		case *Scalar[float64]:
			err = execScalar(e, p)
		case *Pair:
			err = e.execPair(p)
		case *Swap:
			p.Operands[0], p.Operands[1] = p.Operands[1], p.Operands[0]
		case *VectorScale:
			p.Result = scaleVec(p.Vec, share.Decode(p.Scaler[0].Add(p.Scaler[1])[0]))
		case *VectorAddition:
			p.Operands[0] = p.Operands[0].Add(p.Operands[1])
		case *ForwardNN:
			z := rowTimes(p.AH.Decode(), p.Weight.Decode())
			p.Z = share.EncodeVec(z)
			p.NewH = share.EncodeVec(ReLU(z))
		case *ForwardNNPrediction:
			z := rowTimes(p.AH.Decode(), p.Weight.Decode())
			pr := Softmax(z)
			p.Z = share.EncodeVec(z)
			p.P = share.EncodeVec(pr)
			floats.Sub(pr, p.Y.Decode())
			p.PMinusY = share.EncodeVec(pr)
		case *BackwardNNInit:
			delta := p.PMinusY.Decode()
			p.D = share.EncodeVecVec(Outer(p.AHT.Decode(), delta))
			p.G = share.EncodeVec(rowTimes(delta, p.WeightT.Decode()))
		case *BackwardNN:
			delta := p.ATG.Decode()
			floats.Mul(delta, ReLUGrad(p.Z.Decode()))
			p.D = share.EncodeVecVec(Outer(p.AHT.Decode(), delta))
			p.G = share.EncodeVec(rowTimes(delta, p.WeightT.Decode()))
		default:
			err = enforce.Errorf(enforce.ErrInvalidArgument, "no executor for %v", t.Kind)
		}
		if err != nil {
			return err
		}
	}
	t.Finished = true
	return nil
}

func (e Executor) key(tid uint32) (uint64, error) {
	k, ok := e.Keys[tid]
	if !ok {
		return 0, enforce.Errorf(enforce.ErrPermission, "no key for tile %d", tid)
	}
	return k, nil
}

// Replaces an encrypted operand by its plaintext when the key is held.
func decryptScalar[T Number](e Executor, op *ScalarOperand[T], withParent bool) error {
	if !op.Encrypted {
		return nil
	}
	k, err := e.key(op.Enc.Tid)
	if err != nil {
		return err
	}
	slots := op.Enc.Decrypt(k)
	op.Plain = fromSlot[T](slots[0])
	if withParent && len(slots) > 1 {
		op.Parent = slots[1]
	}
	op.Encrypted = false
	op.Enc = CipherEntry{}
	return nil
}

func execScalar[T Number](e Executor, s *Scalar[T]) error {
	for i := 0; i < s.OperandNum(); i++ {
		if err := decryptScalar(e, &s.Operands[i], s.withParent()); err != nil {
			return err
		}
	}
	a, b := &s.Operands[0], &s.Operands[1]
	switch s.kind {
	case AddUint, AddUlong, AddDouble:
		a.Plain += b.Plain
	case AddUintWithReplaceParent:
		a.Plain += b.Plain
		a.Parent = b.Parent
	case UintReplaceParent:
		a.Parent = b.Parent
	case MinUintWithParent:
		if b.Plain < a.Plain {
			a.Plain, a.Parent = b.Plain, b.Parent
		}
	case DivDouble:
		if b.Plain == 0 {
			return enforce.Errorf(enforce.ErrInvalidArgument, "division by zero")
		}
		a.Plain /= b.Plain
	case DecUint, DecUlong, DecDouble:
	}
	return nil
}

func (e Executor) execPair(p *Pair) error {
	for i := 0; i < p.OperandNum(); i++ {
		op := &p.Operands[i]
		if !op.Encrypted {
			continue
		}
		k, err := e.key(op.Enc.Tid)
		if err != nil {
			return err
		}
		slots := op.Enc.Decrypt(k)
		switch p.kind {
		case DecPairUintUlong:
			op.B, op.C = uint32(slots[0]), slots[1]
		case AddMixedPairDoubleUint:
			op.A = share.Decode(slots[0])
		default:
			op.A, op.B = share.Decode(slots[0]), uint32(slots[1])
		}
		op.Encrypted = false
		op.Enc = CipherEntry{}
	}
	if p.kind != DecPairUintUlong {
		p.Operands[0].A += p.Operands[1].A
		p.Operands[0].B += p.Operands[1].B
	}
	return nil
}

func scaleVec(v share.Vec, f float64) share.Vec {
	xs := v.Decode()
	floats.Scale(f, xs)
	return share.EncodeVec(xs)
}

func asDense(rows [][]float64) *mat.Dense {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil
	}
	d := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, r := range rows {
		d.SetRow(i, r)
	}
	return d
}

// x (as a row vector) times w.
func rowTimes(x []float64, w [][]float64) []float64 {
	wd := asDense(w)
	if wd == nil || len(x) == 0 {
		return make([]float64, len(w))
	}
	r, c := wd.Dims()
	if r != len(x) {
		enforce.ENFORCE(enforce.Errorf(enforce.ErrRange, "vector of %d times %dx%d", len(x), r, c))
	}
	var out mat.VecDense
	out.MulVec(wd.T(), mat.NewVecDense(len(x), x))
	return out.RawVector().Data
}

// The outer product a^T x b.
func Outer(a, b []float64) [][]float64 {
	out := make([][]float64, len(a))
	if len(a) == 0 || len(b) == 0 {
		for i := range out {
			out[i] = make([]float64, len(b))
		}
		return out
	}
	var d mat.Dense
	d.Outer(1, mat.NewVecDense(len(a), a), mat.NewVecDense(len(b), b))
	for i := range out {
		out[i] = d.RawRowView(i)
	}
	return out
}

func ReLU(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = math.Max(x, 0)
	}
	return out
}

func ReLUGrad(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		if x > 0 {
			out[i] = 1
		}
	}
	return out
}

func Softmax(xs []float64) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	m := floats.Max(xs)
	for i, x := range xs {
		out[i] = math.Exp(x - m)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}
