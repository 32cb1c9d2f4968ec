package graph

import (
	"sort"

	"github.com/ScottSallinen/ssgas/enforce"
)

// Per-vertex scratch used while preprocessing a run: the ordered in-neighbours.
type WorkingSet struct {
	Srcs           []VertexIdx // Ordered source vertices (padded with dummies when enabled).
	InWeights      []float64   // Weight of the edge from Srcs[i].
	SrcDummy       []bool      // Marks padded entries.
	ReorderedIndex uint64      // Position of this vertex within its owner's sorted list.
	BorderVertex   bool        // Has an out edge to another tile.
}

func (w *WorkingSet) ResetWorkingSet() {
	w.Srcs = w.Srcs[:0]
	w.InWeights = w.InWeights[:0]
	w.SrcDummy = w.SrcDummy[:0]
}

func (w *WorkingSet) AddSrc(src VertexIdx, weight float64, dummy bool) {
	w.Srcs = append(w.Srcs, src)
	w.InWeights = append(w.InWeights, weight)
	w.SrcDummy = append(w.SrcDummy, dummy)
}

// Queued updates awaiting reduction, plus the running result.
type updateState[U any] struct {
	AccUpdate U
	HasUpdate bool
	queue     []U
}

// Two queued updates to combine. When Final, First is the accumulator and the result replaces it.
type UpdatePair[U any] struct {
	First  U
	Second U
	Final  bool
}

func (s *updateState[U]) UpdateNew(u U) {
	s.queue = append(s.queue, u)
	s.HasUpdate = true
}

func (s *updateState[U]) UpdateQueueLen() int { return len(s.queue) }

// Clears the queue and resets the accumulator to the zero update.
func (s *updateState[U]) UpdateDelAll() {
	var zero U
	s.AccUpdate = zero
	s.HasUpdate = false
	s.queue = s.queue[:0]
}

// One round of pairwise reduction. With a single queued update the pair is (acc, update) and final.
// Otherwise updates are popped two at a time; an odd one stays queued for the next round.
func (s *updateState[U]) UpdatePairs() ([]UpdatePair[U], error) {
	switch len(s.queue) {
	case 0:
		return nil, enforce.Errorf(enforce.ErrQueue, "empty update queue")
	case 1:
		p := UpdatePair[U]{First: s.AccUpdate, Second: s.queue[0], Final: true}
		s.queue = s.queue[:0]
		return []UpdatePair[U]{p}, nil
	}
	pairs := make([]UpdatePair[U], 0, len(s.queue)/2)
	i := 0
	for ; i+1 < len(s.queue); i += 2 {
		pairs = append(pairs, UpdatePair[U]{First: s.queue[i], Second: s.queue[i+1]})
	}
	s.queue = append(s.queue[:0], s.queue[i:]...)
	return pairs, nil
}

// Feeds a reduced pair back: final results become the accumulator, others are queued again.
func (s *updateState[U]) WriteUpdateResult(u U, final bool) {
	if final {
		s.AccUpdate = u
		return
	}
	s.queue = append(s.queue, u)
}

// Vertex owned by a tile (its master copy).
type Vertex[V any, U any] struct {
	vid    VertexIdx
	tid    TileIdx
	InDeg  DegreeCount
	OutDeg DegreeCount
	Data   V
	updateState[U]
	WorkingSet
}

func (v *Vertex[V, U]) Vid() VertexIdx { return v.vid }
func (v *Vertex[V, U]) Tid() TileIdx   { return v.tid }

func (v *Vertex[V, U]) InDegInc(n ...DegreeCount)  { v.InDeg.Inc(n...) }
func (v *Vertex[V, U]) OutDegInc(n ...DegreeCount) { v.OutDeg.Inc(n...) }

// Local stand-in for a vertex owned by another tile; collects in-degree until the master absorbs it.
type MirrorVertex[U any] struct {
	vid          VertexIdx
	masterTileId TileIdx
	curTileId    TileIdx
	AccDeg       DegreeCount
	updateState[U]
	WorkingSet
}

func (m *MirrorVertex[U]) Vid() VertexIdx             { return m.vid }
func (m *MirrorVertex[U]) MasterTileId() TileIdx      { return m.masterTileId }
func (m *MirrorVertex[U]) CurTileId() TileIdx         { return m.curTileId }
func (m *MirrorVertex[U]) AccDegInc(n ...DegreeCount) { m.AccDeg.Inc(n...) }
func (m *MirrorVertex[U]) AccDegDel()                 { m.AccDeg = 0 }

func sortVids(vids []VertexIdx) {
	sort.Slice(vids, func(i, j int) bool { return vids[i] < vids[j] })
}
