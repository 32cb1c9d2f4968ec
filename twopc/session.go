package twopc

import (
	"github.com/rs/zerolog/log"

	"github.com/ScottSallinen/ssgas/commsync"
	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/share"
	"github.com/ScottSallinen/ssgas/transport"
)

// Session is one ALICE/BOB pairing over a dedicated channel. Calls must be matched one to one by the peer.
type Session struct {
	Role  Role
	Peer  int
	party *Party
	link  commsync.Link

	mappers map[int]*maskStream
	key     uint64 // BOB only: masks the cipher entries of CondAdd.
	Rounds  uint64 // Completed joint evaluations.
}

func NewSession(party *Party, role Role, peer int, ch transport.Channel) *Session {
	s := &Session{
		Role:    role,
		Peer:    peer,
		party:   party,
		link:    commsync.NewLink(ch),
		mappers: make(map[int]*maskStream),
	}
	if role == BOB {
		s.key = party.Src.Uint64()
	}
	return s
}

func (s *Session) Party() *Party { return s.party }

// Both sides post and expect the finish tag.
func (s *Session) Close() error {
	if err := s.link.SendFinish(); err != nil {
		return err
	}
	return s.link.RecvFinish()
}

func sameShape(a, b share.VecVec) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
	}
	return true
}

// BOB's half of a joint evaluation: his input shares go to ALICE.
func (s *Session) sendInputs(ins []share.VecVec) error {
	for _, in := range ins {
		if err := s.link.SendShareVecVec(in); err != nil {
			return err
		}
	}
	s.Rounds++
	return nil
}

// ALICE reconstructs the inputs from her shares and BOB's.
func (s *Session) recvInputs(ins []share.VecVec) ([]share.VecVec, error) {
	xs := make([]share.VecVec, len(ins))
	for i, in := range ins {
		theirs, err := s.link.RecvShareVecVec()
		if err != nil {
			return nil, err
		}
		if !sameShape(in, theirs) {
			return nil, enforce.Errorf(enforce.ErrMessage, "operand %d: %d rows against %d from tile %d", i, len(in), len(theirs), s.Peer)
		}
		xs[i] = in.Add(theirs)
	}
	return xs, nil
}

// Joint evaluation of fn on the reconstructed inputs. ALICE runs fn; masks, when given, supply BOB's output share.
func (s *Session) eval(ins []share.VecVec, masks *maskStream, fn func(xs []share.VecVec) (share.VecVec, error)) (share.VecVec, error) {
	if s.Role == BOB {
		if err := s.sendInputs(ins); err != nil {
			return nil, err
		}
		if masks.take() {
			shape, err := s.link.RecvPosVec()
			if err != nil {
				return nil, err
			}
			return masks.matrix(shape), nil
		}
		return s.link.RecvShareVecVec()
	}

	xs, err := s.recvInputs(ins)
	if err != nil {
		return nil, err
	}
	y, err := fn(xs)
	if err != nil {
		return nil, err
	}
	s.Rounds++
	if masks.take() {
		shape := make(share.PosVec, len(y))
		for i := range y {
			shape[i] = int64(len(y[i]))
		}
		if err := s.link.SendPosVec(shape); err != nil {
			return nil, err
		}
		return y.Sub(masks.matrix(shape)), nil
	}
	a, b := s.party.Src.SplitVecVec(y)
	if err := s.link.SendShareVecVec(b); err != nil {
		return nil, err
	}
	return a, nil
}

// Like eval, for an fn with outCount outputs, each re-shared with fresh randomness.
func (s *Session) evalN(ins []share.VecVec, outCount int, fn func(xs []share.VecVec) ([]share.VecVec, error)) ([]share.VecVec, error) {
	ys := make([]share.VecVec, outCount)
	if s.Role == BOB {
		if err := s.sendInputs(ins); err != nil {
			return nil, err
		}
		for i := range ys {
			y, err := s.link.RecvShareVecVec()
			if err != nil {
				return nil, err
			}
			ys[i] = y
		}
		return ys, nil
	}

	xs, err := s.recvInputs(ins)
	if err != nil {
		return nil, err
	}
	plain, err := fn(xs)
	if err != nil {
		return nil, err
	}
	enforce.ENFORCE(len(plain) == outCount, "joint evaluation produced", len(plain), "outputs, want", outCount)
	s.Rounds++
	for i, y := range plain {
		a, b := s.party.Src.SplitVecVec(y)
		if err := s.link.SendShareVecVec(b); err != nil {
			return nil, err
		}
		ys[i] = a
	}
	return ys, nil
}

// Opens x to both parties.
func (s *Session) Reveal(x share.VecVec) (share.VecVec, error) {
	if s.Role == BOB {
		if err := s.link.SendShareVecVec(x); err != nil {
			return nil, err
		}
		return s.link.RecvShareVecVec()
	}
	theirs, err := s.link.RecvShareVecVec()
	if err != nil {
		return nil, err
	}
	if !sameShape(x, theirs) {
		return nil, enforce.Errorf(enforce.ErrMessage, "reveal of %d rows against %d from tile %d", len(x), len(theirs), s.Peer)
	}
	plain := x.Add(theirs)
	if err := s.link.SendShareVecVec(plain); err != nil {
		return nil, err
	}
	return plain, nil
}

// Opens x to ALICE only; BOB gets nil.
func (s *Session) Open(x share.VecVec) (share.VecVec, error) {
	if s.Role == BOB {
		return nil, s.link.SendShareVecVec(x)
	}
	theirs, err := s.link.RecvShareVecVec()
	if err != nil {
		return nil, err
	}
	if !sameShape(x, theirs) {
		return nil, enforce.Errorf(enforce.ErrMessage, "open of %d rows against %d from tile %d", len(x), len(theirs), s.Peer)
	}
	return x.Add(theirs), nil
}

// Hands BOB a share of a matrix only ALICE knows. BOB passes nil.
func (s *Session) Share(x share.VecVec) (share.VecVec, error) {
	if s.Role == BOB {
		return s.link.RecvShareVecVec()
	}
	a, b := s.party.Src.SplitVecVec(x)
	if err := s.link.SendShareVecVec(b); err != nil {
		return nil, err
	}
	return a, nil
}

// Ends the process on a failed protocol step: the peer cannot recover from a half-finished exchange.
func (s *Session) Must(x share.VecVec, err error) share.VecVec {
	if err != nil {
		log.Error().Str("role", s.Role.String()).Int("peer", s.Peer).Msg("Two party step failed")
		enforce.Fatal(err, "twopc")
	}
	return x
}
