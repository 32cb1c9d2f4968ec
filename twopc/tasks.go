package twopc

import (
	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/graph"
	"github.com/ScottSallinen/ssgas/share"
	"github.com/ScottSallinen/ssgas/task"
)

// Runs one task per row on ALICE's reconstructed operands. build returns the row's payload and whether it is a dummy;
// keep reads the result before the payload is released.
func runTasks[P task.Payload](kind task.Kind, rows int, build func(row int) (P, bool), keep func(row int, p P)) error {
	for i := 0; i < rows; i++ {
		p, dummy := build(i)
		t := task.New(kind, graph.VertexIdx(i), p)
		t.IsDummy = dummy
		if err := task.Execute(t); err != nil {
			return err
		}
		if _, err := t.Result(); err != nil {
			return err
		}
		keep(i, p)
		if err := p.Release(); err != nil {
			return err
		}
	}
	return nil
}

// acc + upd, keeping acc on the rows ALICE marks as skipped.
//
// Runs on cipher entries instead of opening the operands: BOB encrypts both candidate shares under its key,
// ALICE selects one with a swap task, adds her share, and splits a fresh share back out of the entry.
// BOB decrypts the remainder as his output share.
func (s *Session) CondAdd(acc, upd share.VecVec, skip func(row int) bool) (share.VecVec, error) {
	if !sameShape(acc, upd) {
		return nil, enforce.Errorf(enforce.ErrRange, "conditional add of %d and %d rows", len(acc), len(upd))
	}
	if s.Role == BOB {
		return s.condAddBob(acc, upd)
	}
	return s.condAddAlice(acc, upd, skip)
}

func (s *Session) condAddBob(acc, upd share.VecVec) (share.VecVec, error) {
	tid := uint32(s.party.Tid)
	stay, add := make(share.VecVec, len(acc)), make(share.VecVec, len(acc))
	for i := range acc {
		stay[i], add[i] = make(share.Vec, len(acc[i])), make(share.Vec, len(acc[i]))
		for j := range acc[i] {
			p := task.NewScalar[uint64](task.AddUlong)
			p.Operands[0].Plain = acc[i][j]
			p.Operands[1].Plain = acc[i][j] + upd[i][j]
			c0, err := p.EncryptShare(0, tid, s.key)
			if err != nil {
				return nil, err
			}
			c1, err := p.EncryptShare(1, tid, s.key)
			if err != nil {
				return nil, err
			}
			stay[i][j], add[i][j] = c0.Ct[0], c1.Ct[0]
			if err := p.Release(); err != nil {
				return nil, err
			}
		}
	}
	if err := s.link.SendShareVecVec(stay); err != nil {
		return nil, err
	}
	if err := s.link.SendShareVecVec(add); err != nil {
		return nil, err
	}
	s.Rounds++

	rest, err := s.link.RecvShareVecVec()
	if err != nil {
		return nil, err
	}
	if !sameShape(acc, rest) {
		return nil, enforce.Errorf(enforce.ErrMessage, "conditional add: %d rows back from tile %d for %d", len(rest), s.Peer, len(acc))
	}
	dec := task.Executor{Keys: map[uint32]uint64{tid: s.key}}
	out := make(share.VecVec, len(rest))
	for i := range rest {
		out[i] = make(share.Vec, len(rest[i]))
		for j := range rest[i] {
			p := task.NewScalar[uint64](task.DecUlong)
			if err := p.WriteEncryptedOperand(0, task.CipherEntry{Ct: []uint64{rest[i][j]}, Tid: tid, PlainNum: 1}); err != nil {
				return nil, err
			}
			t := task.New(task.DecUlong, graph.VertexIdx(i), p)
			if err := dec.Execute(t); err != nil {
				return nil, err
			}
			v, err := task.ScalarResult[uint64](t)
			if err != nil {
				return nil, err
			}
			out[i][j] = v
			if err := p.Release(); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (s *Session) condAddAlice(acc, upd share.VecVec, skip func(row int) bool) (share.VecVec, error) {
	stay, err := s.link.RecvShareVecVec()
	if err != nil {
		return nil, err
	}
	add, err := s.link.RecvShareVecVec()
	if err != nil {
		return nil, err
	}
	if !sameShape(acc, stay) || !sameShape(acc, add) {
		return nil, enforce.Errorf(enforce.ErrMessage, "conditional add: cipher rows from tile %d do not match %d rows", s.Peer, len(acc))
	}
	s.Rounds++

	bob := uint32(s.Peer)
	out, rest := make(share.VecVec, len(acc)), make(share.VecVec, len(acc))
	for i := range acc {
		skipped := skip != nil && skip(i)
		out[i], rest[i] = make(share.Vec, len(acc[i])), make(share.Vec, len(acc[i]))
		for j := range acc[i] {
			sw := &task.Swap{}
			if err := sw.WriteEncryptedOperand(0, task.CipherEntry{Ct: []uint64{stay[i][j]}, Tid: bob, PlainNum: 1}); err != nil {
				return nil, err
			}
			if err := sw.WriteEncryptedOperand(1, task.CipherEntry{Ct: []uint64{add[i][j]}, Tid: bob, PlainNum: 1}); err != nil {
				return nil, err
			}
			t := task.New(task.SwapCipherEntry, graph.VertexIdx(i), sw)
			t.IsDummy = skipped
			if err := task.Execute(t); err != nil {
				return nil, err
			}
			enforce.ENFORCE(sw.EncTid(0) == int(bob), "swap moved a foreign entry")

			mine := acc[i][j]
			if !skipped {
				mine += upd[i][j]
			}
			p := task.NewScalar[uint64](task.AddUlong)
			if err := p.WriteShareToOperand(0, 0, mine); err != nil {
				return nil, err
			}
			if err := p.MergeEncryptedShare(0, sw.Operands[0]); err != nil {
				return nil, err
			}
			ce, err := p.SplitShareFromEncryptedOperand(0, s.party.Src)
			if err != nil {
				return nil, err
			}
			r, err := p.OperandShare(0)
			if err != nil {
				return nil, err
			}
			out[i][j], rest[i][j] = r[0], ce.Ct[0]
			if err := p.Release(); err != nil {
				return nil, err
			}
			if err := sw.Release(); err != nil {
				return nil, err
			}
		}
	}
	if err := s.link.SendShareVecVec(rest); err != nil {
		return nil, err
	}
	return out, nil
}
