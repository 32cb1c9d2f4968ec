package kernel

import (
	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/graph"
	"github.com/ScottSallinen/ssgas/share"
	"github.com/ScottSallinen/ssgas/utils"
)

// Slots is the update stream of one tile towards one destination tile: a slot per (source, destination)
// pair, grouped by destination in position order, each group padded with dummy slots.
// Only the tile owning the sources knows it.
type Slots struct {
	SrcVids []graph.VertexIdx
	DstVids []graph.VertexIdx // A local vertex, or a mirror owned by the destination tile.
	SrcPos  share.PosVec      // Source position within the local vertex list.
	DstPos  share.PosVec      // Destination position within the destination tile's vertex list.
	Weights []float64
	Dummy   []bool
	DstRows int // Vertices owned by the destination tile.
}

func (s *Slots) Len() int { return len(s.SrcVids) }

func (s *Slots) add(ws *graph.WorkingSet, dst graph.VertexIdx, pos map[graph.VertexIdx]uint64) {
	for i, src := range ws.Srcs {
		s.SrcVids = append(s.SrcVids, src)
		s.DstVids = append(s.DstVids, dst)
		s.SrcPos = append(s.SrcPos, int64(pos[src]))
		s.DstPos = append(s.DstPos, int64(pos[dst]))
		s.Weights = append(s.Weights, ws.InWeights[i])
		s.Dummy = append(s.Dummy, ws.SrcDummy[i])
	}
}

// GraphSummary is the per run state of the secret shared kernel on one tile. Slices indexed by a peer tile
// are only touched by that peer's goroutines between barriers.
type GraphSummary[V any] struct {
	Tid   int
	Tiles int

	Local     []graph.VertexIdx // Owned vertices in position order.
	Data      []*V
	Border    []bool
	InDeg     []float64
	OutDeg    []float64
	Positions map[graph.VertexIdx]uint64
	Slots     []*Slots // By destination tile.

	LocalShares  share.VecVec   // ALICE share of the local vertex rows.
	LocalBackup  share.VecVec   // Rows at the start of an epoch.
	RemoteShares []share.VecVec // BOB share of every other tile's rows, by subject.
	RemoteBackup []share.VecVec

	GatherIn    []share.VecVec // This tile's share of the updates for its own vertices, by source tile.
	CoopIn      []share.VecVec // This tile's share of the updates for prev(Tid), by source tile.
	GatherDummy []utils.Bitmap // Rows no slot of the source tile refers to, by source tile.

	ModelA share.TensorMap // ALICE share of the model, used by this tile's ring client.
	ModelB share.TensorMap // BOB share of the model, used by this tile's ring server.

	initB share.VecVec // BOB share of the local rows until it is sent out.
}

// Builds the summary of a finalized tile: positions from the global placement, then the slots towards every tile.
// Local destinations take their sources from local in edges padded with the vertex itself; mirrors are padded with
// their first source. Dummy slots have weight -1.
func NewGraphSummary[V any, U any](tile *graph.GraphTile[V, U], tidMap graph.TidMap, tiles int, dummies bool) (*GraphSummary[V], error) {
	tid := int(tile.Tid())
	s := &GraphSummary[V]{
		Tid:          tid,
		Tiles:        tiles,
		Positions:    tidMap.Positions(tiles),
		Slots:        make([]*Slots, tiles),
		RemoteShares: make([]share.VecVec, tiles),
		RemoteBackup: make([]share.VecVec, tiles),
		GatherIn:     make([]share.VecVec, tiles),
		CoopIn:       make([]share.VecVec, tiles),
		GatherDummy:  make([]utils.Bitmap, tiles),
		ModelA:       make(share.TensorMap),
		ModelB:       make(share.TensorMap),
	}
	rows := make([]int, tiles)
	for t := range rows {
		rows[t] = len(tidMap.Owned(graph.TileIdx(t)))
	}

	vertices := tile.Vertices()
	if len(vertices) != rows[tid] {
		return nil, enforce.Errorf(enforce.ErrRange, "tile %d holds %d vertices, placement gives it %d", tid, len(vertices), rows[tid])
	}
	for _, v := range vertices {
		s.Local = append(s.Local, v.Vid())
		s.Data = append(s.Data, &v.Data)
		s.Border = append(s.Border, v.BorderVertex)
		s.InDeg = append(s.InDeg, float64(v.InDeg))
		s.OutDeg = append(s.OutDeg, float64(v.OutDeg))
	}

	// Edges are sorted by source, so each list comes out in source order.
	in := make(map[graph.VertexIdx][]graph.Edge)
	tile.ForEachEdge(func(e *graph.Edge) {
		in[e.Dst] = append(in[e.Dst], *e)
	})
	fill := func(ws *graph.WorkingSet, edges []graph.Edge, dummy graph.VertexIdx) {
		ws.ResetWorkingSet()
		for _, e := range edges {
			ws.AddSrc(e.Src, e.Weight, false)
		}
		for n := PaddedSize(len(edges), dummies); len(ws.Srcs) < n; {
			ws.AddSrc(dummy, -1, true)
		}
	}

	for t := range s.Slots {
		s.Slots[t] = &Slots{DstRows: rows[t]}
	}
	for _, v := range vertices {
		v.ReorderedIndex = s.Positions[v.Vid()]
		fill(&v.WorkingSet, in[v.Vid()], v.Vid())
		s.Slots[tid].add(&v.WorkingSet, v.Vid(), s.Positions)
	}
	for _, m := range tile.MirrorVertices() {
		edges := in[m.Vid()]
		if len(edges) == 0 {
			return nil, enforce.Errorf(enforce.ErrRange, "tile %d: mirror %v has no source", tid, m.Vid())
		}
		m.ReorderedIndex = s.Positions[m.Vid()]
		fill(&m.WorkingSet, edges, edges[0].Src)
		s.Slots[m.MasterTileId()].add(&m.WorkingSet, m.Vid(), s.Positions)
	}

	s.GatherDummy[tid] = GatherDummy(rows[tid], s.Slots[tid].DstPos)
	return s, nil
}

// Rows of an n row destination that no position refers to.
func GatherDummy(n int, dstPos share.PosVec) utils.Bitmap {
	bm := utils.NewBitmapSet(n)
	for _, p := range dstPos {
		if p >= 0 {
			bm.Clear(uint32(p))
		}
	}
	return bm
}

// Labels 0..n-1.
func Iota(n int) share.PosVec {
	pv := make(share.PosVec, n)
	for i := range pv {
		pv[i] = int64(i)
	}
	return pv
}
