package task

import (
	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/share"
)

// CipherEntry is an operand encrypted for the party Tid: each plaintext slot is masked with that party's key.
// While IsShare is set, the holder has split Share out of it, and Ct carries the remainder.
type CipherEntry struct {
	Ct       []uint64
	Tid      uint32
	IsShare  bool
	Share    [2]uint64
	PlainNum int
}

// Encrypts the slots for tid.
func Encrypt(slots []uint64, tid uint32, key uint64) CipherEntry {
	ce := CipherEntry{Ct: make([]uint64, len(slots)), Tid: tid, PlainNum: len(slots)}
	for i, s := range slots {
		ce.Ct[i] = s + key
	}
	return ce
}

// Only meaningful for the key owner.
func (ce CipherEntry) Decrypt(key uint64) []uint64 {
	slots := make([]uint64, len(ce.Ct))
	for i, c := range ce.Ct {
		slots[i] = c - key
	}
	return slots
}

func (ce CipherEntry) clone() CipherEntry {
	ce.Ct = append([]uint64(nil), ce.Ct...)
	return ce
}

// Removes a random share from every slot; the share stays with the entry, the remainder in Ct.
func (ce *CipherEntry) splitShare(src *share.Source) error {
	if len(ce.Ct) == 0 || len(ce.Ct) > len(ce.Share) {
		return enforce.Errorf(enforce.ErrInvalidArgument, "cipher entry with %d slots", len(ce.Ct))
	}
	r := src.Vec(len(ce.Ct))
	for i := range ce.Ct {
		ce.Ct[i] -= r[i]
		ce.Share[i] = r[i]
	}
	ce.IsShare = true
	return nil
}

// Homomorphically adds the held share back into a received entry.
func (ce *CipherEntry) mergeShare(held [2]uint64) {
	for i := range ce.Ct {
		if i < len(held) {
			ce.Ct[i] += held[i]
		}
	}
	ce.IsShare = false
}
