package task

import (
	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/share"
)

// The GCN kinds operate on shared fixed point vectors and never carry encrypted operands.
type vectorOnly struct {
	releaser
}

func (vectorOnly) SplitShareFromEncryptedOperand(int, *share.Source) (CipherEntry, error) {
	return CipherEntry{}, enforce.Errorf(enforce.ErrInvalidArgument, "vector payload has no encrypted operands")
}
func (vectorOnly) EncryptShare(int, uint32, uint64) (CipherEntry, error) {
	return CipherEntry{}, enforce.Errorf(enforce.ErrInvalidArgument, "vector payload has no encrypted operands")
}
func (vectorOnly) MergeEncryptedShare(int, CipherEntry) error {
	return enforce.Errorf(enforce.ErrInvalidArgument, "vector payload has no encrypted operands")
}
func (vectorOnly) WriteEncryptedOperand(int, CipherEntry) error {
	return enforce.Errorf(enforce.ErrInvalidArgument, "vector payload has no encrypted operands")
}
func (vectorOnly) EncTid(int) int { return -1 }
func (vectorOnly) SetPlainNum(int, int) error {
	return enforce.Errorf(enforce.ErrInvalidArgument, "vector payload has no plain slots")
}

// Operand access shared by the vector payloads; matrices are addressed row-major, flattened.
// UnifyOperand on a matrix operand leaves a single row holding operand 0.
type operandSet interface {
	Kind() Kind
	operand(i int) (*share.Vec, *share.VecVec)
	OperandNum() int
}

func vecOperand(p operandSet, i int) (*share.Vec, *share.VecVec, error) {
	if err := checkOperand(i, p.OperandNum()); err != nil {
		return nil, nil, err
	}
	v, m := p.operand(i)
	return v, m, nil
}

func writeVecShare(p operandSet, i, slot int, s uint64) error {
	v, m, err := vecOperand(p, i)
	if err != nil {
		return err
	}
	if v != nil {
		if slot < 0 {
			return enforce.Errorf(enforce.ErrRange, "slot %d", slot)
		}
		for len(*v) <= slot {
			*v = append(*v, 0)
		}
		(*v)[slot] = s
		return nil
	}
	cols := m.Cols()
	if cols == 0 || slot < 0 || slot >= cols*len(*m) {
		return enforce.Errorf(enforce.ErrRange, "slot %d of %dx%d", slot, len(*m), cols)
	}
	(*m)[slot/cols][slot%cols] = s
	return nil
}

func vecShare(p operandSet, i int) (share.Vec, error) {
	v, m, err := vecOperand(p, i)
	if err != nil {
		return nil, err
	}
	if v != nil {
		return v.Clone(), nil
	}
	_, data := m.Flatten()
	return share.Vec(data), nil
}

func copyVecOperand(p operandSet, dst int, src Payload, srcIdx int) error {
	o, ok := src.(operandSet)
	if !ok || o.Kind() != p.Kind() {
		return mismatch(p.Kind(), src.Kind())
	}
	dv, dm, err := vecOperand(p, dst)
	if err != nil {
		return err
	}
	sv, sm, err := vecOperand(o, srcIdx)
	if err != nil {
		return err
	}
	switch {
	case dv != nil && sv != nil:
		*dv = sv.Clone()
	case dm != nil && sm != nil:
		*dm = sm.Clone()
	default:
		return enforce.Errorf(enforce.ErrInvalidArgument, "operand %d and %d differ in shape", dst, srcIdx)
	}
	return nil
}

// VectorScale scales Vec by the shared factor Scaler[0] + Scaler[1].
type VectorScale struct {
	Vec    share.Vec
	Scaler [2]share.Vec
	Result share.Vec
	vectorOnly
}

func (p *VectorScale) Kind() Kind      { return GCNVectorScale }
func (p *VectorScale) OperandNum() int { return 3 }
func (p *VectorScale) operand(i int) (*share.Vec, *share.VecVec) {
	if i == 0 {
		return &p.Vec, nil
	}
	return &p.Scaler[i-1], nil
}
func (p *VectorScale) WriteShareToOperand(i, slot int, s uint64) error {
	return writeVecShare(p, i, slot, s)
}
func (p *VectorScale) OperandShare(i int) (share.Vec, error) { return vecShare(p, i) }
func (p *VectorScale) UnifyOperand()                         { p.Scaler[0] = p.Vec.Clone() }
func (p *VectorScale) CopyOperand(dst int, src Payload, srcIdx int) error {
	return copyVecOperand(p, dst, src, srcIdx)
}
func (p *VectorScale) Release() error {
	if err := p.release(); err != nil {
		return err
	}
	*p = VectorScale{vectorOnly: p.vectorOnly}
	return nil
}

type VectorAddition struct {
	Operands [2]share.Vec
	vectorOnly
}

func (p *VectorAddition) Kind() Kind      { return GCNVectorAddition }
func (p *VectorAddition) OperandNum() int { return 2 }
func (p *VectorAddition) operand(i int) (*share.Vec, *share.VecVec) {
	return &p.Operands[i], nil
}
func (p *VectorAddition) WriteShareToOperand(i, slot int, s uint64) error {
	return writeVecShare(p, i, slot, s)
}
func (p *VectorAddition) OperandShare(i int) (share.Vec, error) { return vecShare(p, i) }
func (p *VectorAddition) UnifyOperand()                         { p.Operands[1] = p.Operands[0].Clone() }
func (p *VectorAddition) CopyOperand(dst int, src Payload, srcIdx int) error {
	return copyVecOperand(p, dst, src, srcIdx)
}
func (p *VectorAddition) Release() error {
	if err := p.release(); err != nil {
		return err
	}
	p.Operands = [2]share.Vec{}
	return nil
}

// ForwardNN computes Z = AH x Weight and NewH = ReLU(Z) for one vertex.
type ForwardNN struct {
	AH     share.Vec
	Weight share.VecVec
	Z      share.Vec
	NewH   share.Vec
	vectorOnly
}

func (p *ForwardNN) Kind() Kind      { return GCNForwardNN }
func (p *ForwardNN) OperandNum() int { return 2 }
func (p *ForwardNN) operand(i int) (*share.Vec, *share.VecVec) {
	if i == 0 {
		return &p.AH, nil
	}
	return nil, &p.Weight
}
func (p *ForwardNN) WriteShareToOperand(i, slot int, s uint64) error {
	return writeVecShare(p, i, slot, s)
}
func (p *ForwardNN) OperandShare(i int) (share.Vec, error) { return vecShare(p, i) }
func (p *ForwardNN) UnifyOperand()                         { p.Weight = share.VecVec{p.AH.Clone()} }
func (p *ForwardNN) CopyOperand(dst int, src Payload, srcIdx int) error {
	return copyVecOperand(p, dst, src, srcIdx)
}
func (p *ForwardNN) Release() error {
	if err := p.release(); err != nil {
		return err
	}
	*p = ForwardNN{vectorOnly: p.vectorOnly}
	return nil
}

// ForwardNNPrediction is the last forward layer: Z = AH x Weight, P = softmax(Z), PMinusY = P - Y.
type ForwardNNPrediction struct {
	AH      share.Vec
	Weight  share.VecVec
	Y       share.Vec
	Z       share.Vec
	P       share.Vec
	PMinusY share.Vec
	vectorOnly
}

func (p *ForwardNNPrediction) Kind() Kind      { return GCNForwardNNPrediction }
func (p *ForwardNNPrediction) OperandNum() int { return 3 }
func (p *ForwardNNPrediction) operand(i int) (*share.Vec, *share.VecVec) {
	switch i {
	case 0:
		return &p.AH, nil
	case 1:
		return nil, &p.Weight
	}
	return &p.Y, nil
}
func (p *ForwardNNPrediction) WriteShareToOperand(i, slot int, s uint64) error {
	return writeVecShare(p, i, slot, s)
}
func (p *ForwardNNPrediction) OperandShare(i int) (share.Vec, error) { return vecShare(p, i) }
func (p *ForwardNNPrediction) UnifyOperand()                         { p.Weight = share.VecVec{p.AH.Clone()} }
func (p *ForwardNNPrediction) CopyOperand(dst int, src Payload, srcIdx int) error {
	return copyVecOperand(p, dst, src, srcIdx)
}
func (p *ForwardNNPrediction) Release() error {
	if err := p.release(); err != nil {
		return err
	}
	*p = ForwardNNPrediction{vectorOnly: p.vectorOnly}
	return nil
}

// BackwardNNInit starts back propagation from the prediction error:
// D = AHT^T x PMinusY is the weight gradient, G = PMinusY x WeightT is passed to the previous layer.
type BackwardNNInit struct {
	PMinusY share.Vec
	AHT     share.Vec
	WeightT share.VecVec
	D       share.VecVec
	G       share.Vec
	vectorOnly
}

func (p *BackwardNNInit) Kind() Kind      { return GCNBackwardNNInit }
func (p *BackwardNNInit) OperandNum() int { return 3 }
func (p *BackwardNNInit) operand(i int) (*share.Vec, *share.VecVec) {
	switch i {
	case 0:
		return &p.PMinusY, nil
	case 1:
		return &p.AHT, nil
	}
	return nil, &p.WeightT
}
func (p *BackwardNNInit) WriteShareToOperand(i, slot int, s uint64) error {
	return writeVecShare(p, i, slot, s)
}
func (p *BackwardNNInit) OperandShare(i int) (share.Vec, error) { return vecShare(p, i) }
func (p *BackwardNNInit) UnifyOperand()                         { p.AHT = p.PMinusY.Clone() }
func (p *BackwardNNInit) CopyOperand(dst int, src Payload, srcIdx int) error {
	return copyVecOperand(p, dst, src, srcIdx)
}
func (p *BackwardNNInit) Release() error {
	if err := p.release(); err != nil {
		return err
	}
	*p = BackwardNNInit{vectorOnly: p.vectorOnly}
	return nil
}

// BackwardNN is a hidden layer step: Delta = ATG * ReLU'(Z), D = AHT^T x Delta, G = Delta x WeightT.
type BackwardNN struct {
	ATG     share.Vec
	AHT     share.Vec
	Z       share.Vec
	WeightT share.VecVec
	D       share.VecVec
	G       share.Vec
	vectorOnly
}

func (p *BackwardNN) Kind() Kind      { return GCNBackwardNN }
func (p *BackwardNN) OperandNum() int { return 4 }
func (p *BackwardNN) operand(i int) (*share.Vec, *share.VecVec) {
	switch i {
	case 0:
		return &p.ATG, nil
	case 1:
		return &p.AHT, nil
	case 2:
		return &p.Z, nil
	}
	return nil, &p.WeightT
}
func (p *BackwardNN) WriteShareToOperand(i, slot int, s uint64) error {
	return writeVecShare(p, i, slot, s)
}
func (p *BackwardNN) OperandShare(i int) (share.Vec, error) { return vecShare(p, i) }
func (p *BackwardNN) UnifyOperand()                         { p.AHT = p.ATG.Clone() }
func (p *BackwardNN) CopyOperand(dst int, src Payload, srcIdx int) error {
	return copyVecOperand(p, dst, src, srcIdx)
}
func (p *BackwardNN) Release() error {
	if err := p.release(); err != nil {
		return err
	}
	*p = BackwardNN{vectorOnly: p.vectorOnly}
	return nil
}
