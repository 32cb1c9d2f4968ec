package task

import (
	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/share"
)

// Payload holds the operands of a task inline. Operand indices are zero based.
// The cipher capabilities only apply to kinds with encrypted operands; the others report ErrInvalidArgument.
type Payload interface {
	Kind() Kind
	OperandNum() int

	// Splits a random share out of encrypted operand i. The returned entry carries the remainder for the key owner.
	SplitShareFromEncryptedOperand(i int, src *share.Source) (CipherEntry, error)
	// Encrypts the shares held in operand i for tid.
	EncryptShare(i int, tid uint32, key uint64) (CipherEntry, error)
	// Adds the held share of operand i into ce, which then becomes the operand.
	MergeEncryptedShare(i int, ce CipherEntry) error
	WriteShareToOperand(i, slot int, s uint64) error
	OperandShare(i int) (share.Vec, error)
	WriteEncryptedOperand(i int, ce CipherEntry) error
	// Returns -1 when operand i is not encrypted.
	EncTid(i int) int
	SetPlainNum(i, n int) error

	// Copies operand 0 into operand 1.
	UnifyOperand()
	CopyOperand(dst int, src Payload, srcIdx int) error

	Release() error
	Released() bool
}

// Tracks the single allowed release of operand storage.
type releaser struct {
	released bool
}

func (r *releaser) release() error {
	if r.released {
		return enforce.Errorf(enforce.ErrPermission, "payload released twice")
	}
	r.released = true
	return nil
}

func (r *releaser) Released() bool { return r.released }

func checkOperand(i, n int) error {
	if i < 0 || i >= n {
		return enforce.Errorf(enforce.ErrRange, "operand %d of %d", i, n)
	}
	return nil
}

func noCipher(k Kind) error {
	return enforce.Errorf(enforce.ErrInvalidArgument, "%v has no encrypted operands", k)
}

func mismatch(dst, src Kind) error {
	return enforce.Errorf(enforce.ErrInvalidArgument, "copy operand from %v into %v", src, dst)
}

// Constructs an empty payload for kind.
func NewPayload(kind Kind) (Payload, error) {
	switch kind {
	case AddUint, DecUint:
		return NewScalar[uint32](kind), nil
	case AddUlong, DecUlong:
		return NewScalar[uint64](kind), nil
	case AddDouble, DivDouble, DecDouble:
		return NewScalar[float64](kind), nil
	case AddUintWithReplaceParent, UintReplaceParent, MinUintWithParent:
		return NewScalar[uint32](kind), nil
	case AddPairDoubleUint, AddMixedPairDoubleUint, DecPairUintUlong:
		return NewPair(kind), nil
	case SwapCipherEntry:
		return &Swap{}, nil
	case GCNVectorScale:
		return &VectorScale{}, nil
	case GCNVectorAddition:
		return &VectorAddition{}, nil
	case GCNForwardNN:
		return &ForwardNN{}, nil
	case GCNForwardNNPrediction:
		return &ForwardNNPrediction{}, nil
	case GCNBackwardNNInit:
		return &BackwardNNInit{}, nil
	case GCNBackwardNN:
		return &BackwardNN{}, nil
	}
	return nil, enforce.Errorf(enforce.ErrInvalidArgument, "unknown task kind %d", kind)
}
