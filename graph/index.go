package graph

import "strconv"

// Distinct index types; conversions between them are always explicit.
type (
	VertexIdx   uint64
	EdgeIdx     uint64
	TileIdx     uint32
	DegreeCount uint64
)

func (v VertexIdx) String() string { return strconv.FormatUint(uint64(v), 10) }
func (e EdgeIdx) String() string   { return strconv.FormatUint(uint64(e), 10) }
func (t TileIdx) String() string   { return strconv.FormatUint(uint64(t), 10) }

func (d DegreeCount) String() string { return strconv.FormatUint(uint64(d), 10) }

// Adds n (default 1) to the count.
func (d *DegreeCount) Inc(n ...DegreeCount) {
	if len(n) == 0 {
		*d++
		return
	}
	*d += n[0]
}

// Global placement of vertices onto tiles.
type TidMap map[VertexIdx]TileIdx

// Sorted vertex ids owned by tid, the order every tile agrees on for position vectors.
func (m TidMap) Owned(tid TileIdx) (vids []VertexIdx) {
	for vid, t := range m {
		if t == tid {
			vids = append(vids, vid)
		}
	}
	sortVids(vids)
	return vids
}

// Position of every vertex within its owner's sorted list.
func (m TidMap) Positions(tileCount int) map[VertexIdx]uint64 {
	pos := make(map[VertexIdx]uint64, len(m))
	for t := 0; t < tileCount; t++ {
		for i, vid := range m.Owned(TileIdx(t)) {
			pos[vid] = uint64(i)
		}
	}
	return pos
}
