// Package twopc evaluates functions on secret shared data between two parties, ALICE and BOB.
//
// The shipped backend is a reference: BOB reveals its shares to ALICE, who reconstructs,
// computes in the clear, and re-shares the result with fresh (or preprocessed) masks.
// The calling protocol is what a hiding backend would run unchanged. CondAdd instead runs on BOB's
// cipher entries and never opens its operands.
package twopc

import (
	"github.com/ScottSallinen/ssgas/share"
)

type Role uint8

const (
	ALICE Role = iota + 1 // Holds the public metadata of the computation (positions, flags, degrees).
	BOB
)

func (r Role) String() string {
	switch r {
	case ALICE:
		return "ALICE"
	case BOB:
		return "BOB"
	}
	return "NONE"
}

// Party is the per-process context shared by every session of a tile.
type Party struct {
	Tid          int
	TileCount    int
	Src          *share.Source
	NoPreprocess bool
	MaxIters     uint64 // Budget of preprocessed masks per mapping; later uses fall back to fresh masks.
}

func NewParty(tid, tileCount int, src *share.Source) *Party {
	return &Party{Tid: tid, TileCount: tileCount, Src: src, MaxIters: ^uint64(0)}
}

// The ring co-party of tile v: it holds the BOB share of v's vertex data.
func Coop(v, tileCount int) int {
	return (v + 1) % tileCount
}
