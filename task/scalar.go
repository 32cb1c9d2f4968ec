package task

import (
	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/share"
)

type Number interface {
	~uint32 | ~uint64 | ~float64
}

func toSlot[T Number](v T) uint64 {
	switch x := any(v).(type) {
	case float64:
		return share.Encode(x)
	case uint32:
		return uint64(x)
	case uint64:
		return x
	}
	return uint64(v)
}

func fromSlot[T Number](u uint64) T {
	var zero T
	switch any(zero).(type) {
	case float64:
		return any(share.Decode(u)).(T)
	case uint32:
		return any(uint32(u)).(T)
	}
	return T(u)
}

// One scalar operand. Parent is only used by the parent-tracking kinds.
type ScalarOperand[T Number] struct {
	Plain     T
	Parent    uint64
	Enc       CipherEntry
	Encrypted bool
}

// Scalar covers the single-value kinds: the additions, the parent-tracking minimum and replacement,
// the division and the single-operand decryptions.
type Scalar[T Number] struct {
	kind     Kind
	Operands [2]ScalarOperand[T]
	releaser
}

func NewScalar[T Number](kind Kind) *Scalar[T] {
	return &Scalar[T]{kind: kind}
}

func (s *Scalar[T]) Kind() Kind { return s.kind }

func (s *Scalar[T]) OperandNum() int {
	switch s.kind {
	case DecUint, DecUlong, DecDouble:
		return 1
	}
	return 2
}

func (s *Scalar[T]) withParent() bool {
	switch s.kind {
	case AddUintWithReplaceParent, UintReplaceParent, MinUintWithParent:
		return true
	}
	return false
}

// Plain operand i as fixed point slots: the value, then the parent for the parent-tracking kinds.
func (s *Scalar[T]) slots(i int) []uint64 {
	op := &s.Operands[i]
	if s.withParent() {
		return []uint64{toSlot(op.Plain), op.Parent}
	}
	return []uint64{toSlot(op.Plain)}
}

func (s *Scalar[T]) SplitShareFromEncryptedOperand(i int, src *share.Source) (CipherEntry, error) {
	if err := checkOperand(i, s.OperandNum()); err != nil {
		return CipherEntry{}, err
	}
	op := &s.Operands[i]
	if !op.Encrypted {
		return CipherEntry{}, enforce.Errorf(enforce.ErrInvalidArgument, "operand %d is not encrypted", i)
	}
	if err := op.Enc.splitShare(src); err != nil {
		return CipherEntry{}, err
	}
	return op.Enc.clone(), nil
}

func (s *Scalar[T]) EncryptShare(i int, tid uint32, key uint64) (CipherEntry, error) {
	if err := checkOperand(i, s.OperandNum()); err != nil {
		return CipherEntry{}, err
	}
	op := &s.Operands[i]
	if op.Encrypted && op.Enc.IsShare {
		return Encrypt(op.Enc.Share[:op.Enc.PlainNum], tid, key), nil
	}
	return Encrypt(s.slots(i), tid, key), nil
}

func (s *Scalar[T]) MergeEncryptedShare(i int, ce CipherEntry) error {
	if err := checkOperand(i, s.OperandNum()); err != nil {
		return err
	}
	op := &s.Operands[i]
	if !op.Enc.IsShare {
		return enforce.Errorf(enforce.ErrInvalidArgument, "operand %d holds no share", i)
	}
	ce = ce.clone()
	ce.mergeShare(op.Enc.Share)
	op.Enc = ce
	op.Encrypted = true
	return nil
}

func (s *Scalar[T]) WriteShareToOperand(i, slot int, v uint64) error {
	if err := checkOperand(i, s.OperandNum()); err != nil {
		return err
	}
	if err := checkOperand(slot, 2); err != nil {
		return err
	}
	op := &s.Operands[i]
	op.Enc.Share[slot] = v
	op.Enc.IsShare = true
	if op.Enc.PlainNum < slot+1 {
		op.Enc.PlainNum = slot + 1
	}
	return nil
}

func (s *Scalar[T]) OperandShare(i int) (share.Vec, error) {
	if err := checkOperand(i, s.OperandNum()); err != nil {
		return nil, err
	}
	op := &s.Operands[i]
	if !op.Enc.IsShare {
		return nil, enforce.Errorf(enforce.ErrInvalidArgument, "operand %d holds no share", i)
	}
	return share.Vec(op.Enc.Share[:]).Clone(), nil
}

func (s *Scalar[T]) WriteEncryptedOperand(i int, ce CipherEntry) error {
	if err := checkOperand(i, s.OperandNum()); err != nil {
		return err
	}
	s.Operands[i].Enc = ce.clone()
	s.Operands[i].Encrypted = true
	return nil
}

func (s *Scalar[T]) EncTid(i int) int {
	if i < 0 || i >= s.OperandNum() || !s.Operands[i].Encrypted {
		return -1
	}
	return int(s.Operands[i].Enc.Tid)
}

func (s *Scalar[T]) SetPlainNum(i, n int) error {
	if err := checkOperand(i, s.OperandNum()); err != nil {
		return err
	}
	if n < 1 || n > 2 {
		return enforce.Errorf(enforce.ErrRange, "plain num %d", n)
	}
	s.Operands[i].Enc.PlainNum = n
	return nil
}

func (s *Scalar[T]) UnifyOperand() {
	for i := 1; i < s.OperandNum(); i++ {
		s.Operands[i] = s.Operands[0]
		s.Operands[i].Enc = s.Operands[0].Enc.clone()
	}
}

func (s *Scalar[T]) CopyOperand(dst int, src Payload, srcIdx int) error {
	o, ok := src.(*Scalar[T])
	if !ok || o.kind != s.kind {
		return mismatch(s.kind, src.Kind())
	}
	if err := checkOperand(dst, s.OperandNum()); err != nil {
		return err
	}
	if err := checkOperand(srcIdx, o.OperandNum()); err != nil {
		return err
	}
	s.Operands[dst] = o.Operands[srcIdx]
	s.Operands[dst].Enc = o.Operands[srcIdx].Enc.clone()
	return nil
}

func (s *Scalar[T]) Release() error {
	if err := s.release(); err != nil {
		return err
	}
	s.Operands = [2]ScalarOperand[T]{}
	return nil
}

// A (double, uint) pair operand. For the mixed kind only A is ever encrypted;
// DecPairUintUlong carries its values as (B, C).
type PairOperand struct {
	A         float64
	B         uint32
	C         uint64
	Enc       CipherEntry
	Encrypted bool
}

type Pair struct {
	kind     Kind
	Operands [2]PairOperand
	releaser
}

func NewPair(kind Kind) *Pair { return &Pair{kind: kind} }

func (p *Pair) Kind() Kind { return p.kind }

func (p *Pair) OperandNum() int {
	if p.kind == DecPairUintUlong {
		return 1
	}
	return 2
}

func (p *Pair) plainNum() int {
	if p.kind == AddMixedPairDoubleUint {
		return 1
	}
	return 2
}

func (p *Pair) slots(i int) []uint64 {
	op := &p.Operands[i]
	switch p.kind {
	case AddMixedPairDoubleUint:
		return []uint64{share.Encode(op.A)}
	case DecPairUintUlong:
		return []uint64{uint64(op.B), op.C}
	}
	return []uint64{share.Encode(op.A), uint64(op.B)}
}

func (p *Pair) SplitShareFromEncryptedOperand(i int, src *share.Source) (CipherEntry, error) {
	if err := checkOperand(i, p.OperandNum()); err != nil {
		return CipherEntry{}, err
	}
	op := &p.Operands[i]
	if !op.Encrypted {
		return CipherEntry{}, enforce.Errorf(enforce.ErrInvalidArgument, "operand %d is not encrypted", i)
	}
	if err := op.Enc.splitShare(src); err != nil {
		return CipherEntry{}, err
	}
	return op.Enc.clone(), nil
}

func (p *Pair) EncryptShare(i int, tid uint32, key uint64) (CipherEntry, error) {
	if err := checkOperand(i, p.OperandNum()); err != nil {
		return CipherEntry{}, err
	}
	op := &p.Operands[i]
	if op.Encrypted && op.Enc.IsShare {
		return Encrypt(op.Enc.Share[:op.Enc.PlainNum], tid, key), nil
	}
	return Encrypt(p.slots(i), tid, key), nil
}

func (p *Pair) MergeEncryptedShare(i int, ce CipherEntry) error {
	if err := checkOperand(i, p.OperandNum()); err != nil {
		return err
	}
	op := &p.Operands[i]
	if !op.Enc.IsShare {
		return enforce.Errorf(enforce.ErrInvalidArgument, "operand %d holds no share", i)
	}
	ce = ce.clone()
	ce.mergeShare(op.Enc.Share)
	op.Enc = ce
	op.Encrypted = true
	return nil
}

func (p *Pair) WriteShareToOperand(i, slot int, v uint64) error {
	if err := checkOperand(i, p.OperandNum()); err != nil {
		return err
	}
	if err := checkOperand(slot, p.plainNum()); err != nil {
		return err
	}
	op := &p.Operands[i]
	op.Enc.Share[slot] = v
	op.Enc.IsShare = true
	op.Enc.PlainNum = p.plainNum()
	return nil
}

func (p *Pair) OperandShare(i int) (share.Vec, error) {
	if err := checkOperand(i, p.OperandNum()); err != nil {
		return nil, err
	}
	op := &p.Operands[i]
	if !op.Enc.IsShare {
		return nil, enforce.Errorf(enforce.ErrInvalidArgument, "operand %d holds no share", i)
	}
	return share.Vec(op.Enc.Share[:p.plainNum()]).Clone(), nil
}

func (p *Pair) WriteEncryptedOperand(i int, ce CipherEntry) error {
	if err := checkOperand(i, p.OperandNum()); err != nil {
		return err
	}
	p.Operands[i].Enc = ce.clone()
	p.Operands[i].Encrypted = true
	return nil
}

func (p *Pair) EncTid(i int) int {
	if i < 0 || i >= p.OperandNum() || !p.Operands[i].Encrypted {
		return -1
	}
	return int(p.Operands[i].Enc.Tid)
}

func (p *Pair) SetPlainNum(i, n int) error {
	if err := checkOperand(i, p.OperandNum()); err != nil {
		return err
	}
	if n != p.plainNum() {
		return enforce.Errorf(enforce.ErrRange, "%v carries %d plain values, not %d", p.kind, p.plainNum(), n)
	}
	p.Operands[i].Enc.PlainNum = n
	return nil
}

func (p *Pair) UnifyOperand() {
	for i := 1; i < p.OperandNum(); i++ {
		p.Operands[i] = p.Operands[0]
		p.Operands[i].Enc = p.Operands[0].Enc.clone()
	}
}

func (p *Pair) CopyOperand(dst int, src Payload, srcIdx int) error {
	o, ok := src.(*Pair)
	if !ok || o.kind != p.kind {
		return mismatch(p.kind, src.Kind())
	}
	if err := checkOperand(dst, p.OperandNum()); err != nil {
		return err
	}
	if err := checkOperand(srcIdx, o.OperandNum()); err != nil {
		return err
	}
	p.Operands[dst] = o.Operands[srcIdx]
	p.Operands[dst].Enc = o.Operands[srcIdx].Enc.clone()
	return nil
}

func (p *Pair) Release() error {
	if err := p.release(); err != nil {
		return err
	}
	p.Operands = [2]PairOperand{}
	return nil
}

// Swap exchanges two cipher entries.
type Swap struct {
	Operands [2]CipherEntry
	releaser
}

func (s *Swap) Kind() Kind      { return SwapCipherEntry }
func (s *Swap) OperandNum() int { return 2 }

func (s *Swap) SplitShareFromEncryptedOperand(i int, src *share.Source) (CipherEntry, error) {
	if err := checkOperand(i, 2); err != nil {
		return CipherEntry{}, err
	}
	if err := s.Operands[i].splitShare(src); err != nil {
		return CipherEntry{}, err
	}
	return s.Operands[i].clone(), nil
}

func (s *Swap) EncryptShare(i int, tid uint32, key uint64) (CipherEntry, error) {
	if err := checkOperand(i, 2); err != nil {
		return CipherEntry{}, err
	}
	ce := &s.Operands[i]
	if !ce.IsShare {
		return CipherEntry{}, enforce.Errorf(enforce.ErrInvalidArgument, "operand %d holds no share", i)
	}
	return Encrypt(ce.Share[:ce.PlainNum], tid, key), nil
}

func (s *Swap) MergeEncryptedShare(i int, ce CipherEntry) error {
	if err := checkOperand(i, 2); err != nil {
		return err
	}
	held := s.Operands[i].Share
	ce = ce.clone()
	ce.mergeShare(held)
	s.Operands[i] = ce
	return nil
}

func (s *Swap) WriteShareToOperand(i, slot int, v uint64) error {
	if err := checkOperand(i, 2); err != nil {
		return err
	}
	if err := checkOperand(slot, 2); err != nil {
		return err
	}
	ce := &s.Operands[i]
	ce.Share[slot] = v
	ce.IsShare = true
	if ce.PlainNum < slot+1 {
		ce.PlainNum = slot + 1
	}
	return nil
}

func (s *Swap) OperandShare(i int) (share.Vec, error) {
	if err := checkOperand(i, 2); err != nil {
		return nil, err
	}
	if !s.Operands[i].IsShare {
		return nil, enforce.Errorf(enforce.ErrInvalidArgument, "operand %d holds no share", i)
	}
	return share.Vec(s.Operands[i].Share[:]).Clone(), nil
}

func (s *Swap) WriteEncryptedOperand(i int, ce CipherEntry) error {
	if err := checkOperand(i, 2); err != nil {
		return err
	}
	s.Operands[i] = ce.clone()
	return nil
}

func (s *Swap) EncTid(i int) int {
	if i < 0 || i >= 2 || len(s.Operands[i].Ct) == 0 {
		return -1
	}
	return int(s.Operands[i].Tid)
}

func (s *Swap) SetPlainNum(i, n int) error {
	if err := checkOperand(i, 2); err != nil {
		return err
	}
	if n < 1 || n > 2 {
		return enforce.Errorf(enforce.ErrRange, "plain num %d", n)
	}
	s.Operands[i].PlainNum = n
	return nil
}

func (s *Swap) UnifyOperand() { s.Operands[1] = s.Operands[0].clone() }

func (s *Swap) CopyOperand(dst int, src Payload, srcIdx int) error {
	o, ok := src.(*Swap)
	if !ok {
		return mismatch(SwapCipherEntry, src.Kind())
	}
	if err := checkOperand(dst, 2); err != nil {
		return err
	}
	if err := checkOperand(srcIdx, 2); err != nil {
		return err
	}
	s.Operands[dst] = o.Operands[srcIdx].clone()
	return nil
}

func (s *Swap) Release() error {
	if err := s.release(); err != nil {
		return err
	}
	s.Operands = [2]CipherEntry{}
	return nil
}
