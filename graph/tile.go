package graph

import (
	"sort"

	"github.com/ScottSallinen/ssgas/enforce"
)

// GraphTile holds one partition: the vertices it owns, mirrors of remote destinations, and the out edges of its vertices.
// Mutators are only valid before the tile is finalized.
type GraphTile[V any, U any] struct {
	tid        TileIdx
	vertices   map[VertexIdx]*Vertex[V, U]
	mirrors    map[VertexIdx]*MirrorVertex[U]
	edges      []Edge
	edgeSorted bool
	finalized  bool
	sortCount  int // Number of real sorts done, for tests of idempotence.
	order      []VertexIdx
}

func NewGraphTile[V any, U any](tid TileIdx) *GraphTile[V, U] {
	return &GraphTile[V, U]{
		tid:        tid,
		vertices:   make(map[VertexIdx]*Vertex[V, U]),
		mirrors:    make(map[VertexIdx]*MirrorVertex[U]),
		edgeSorted: true,
	}
}

func (g *GraphTile[V, U]) Tid() TileIdx           { return g.tid }
func (g *GraphTile[V, U]) Finalized() bool        { return g.finalized }
func (g *GraphTile[V, U]) EdgeSorted() bool       { return g.edgeSorted }
func (g *GraphTile[V, U]) SortCount() int         { return g.sortCount }
func (g *GraphTile[V, U]) VertexCount() int       { return len(g.vertices) }
func (g *GraphTile[V, U]) EdgeCount() int         { return len(g.edges) }
func (g *GraphTile[V, U]) MirrorVertexCount() int { return len(g.mirrors) }

// Nil when absent.
func (g *GraphTile[V, U]) Vertex(vid VertexIdx) *Vertex[V, U] { return g.vertices[vid] }

func (g *GraphTile[V, U]) HasVertex(vid VertexIdx) bool {
	_, ok := g.vertices[vid]
	return ok
}

// Nil when absent.
func (g *GraphTile[V, U]) MirrorVertex(vid VertexIdx) *MirrorVertex[U] { return g.mirrors[vid] }

// Owned vertices in ascending vid order.
func (g *GraphTile[V, U]) Vertices() []*Vertex[V, U] {
	if len(g.order) != len(g.vertices) {
		g.order = g.order[:0]
		for vid := range g.vertices {
			g.order = append(g.order, vid)
		}
		sortVids(g.order)
	}
	vs := make([]*Vertex[V, U], len(g.order))
	for i, vid := range g.order {
		vs[i] = g.vertices[vid]
	}
	return vs
}

// Mirrors in ascending vid order.
func (g *GraphTile[V, U]) MirrorVertices() []*MirrorVertex[U] {
	ms := make([]*MirrorVertex[U], 0, len(g.mirrors))
	for _, m := range g.mirrors {
		ms = append(ms, m)
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].vid < ms[j].vid })
	return ms
}

// Copy of the edge list, in the current (sorted once finalized) order.
func (g *GraphTile[V, U]) Edges() []Edge {
	es := make([]Edge, len(g.edges))
	copy(es, g.edges)
	return es
}

// Visits the edges in place without copying; fn must not retain the pointer.
func (g *GraphTile[V, U]) ForEachEdge(fn func(e *Edge)) {
	for i := range g.edges {
		fn(&g.edges[i])
	}
}

func (g *GraphTile[V, U]) VertexNew(vid VertexIdx, data V) (*Vertex[V, U], error) {
	if g.finalized {
		return nil, enforce.Errorf(enforce.ErrPermission, "tile %v: vertex %v on finalized tile", g.tid, vid)
	}
	if _, ok := g.vertices[vid]; ok {
		return nil, enforce.Errorf(enforce.ErrKeyInUse, "tile %v: vertex %v", g.tid, vid)
	}
	v := &Vertex[V, U]{vid: vid, tid: g.tid, Data: data}
	g.vertices[vid] = v
	return v, nil
}

// Adds src -> dst where src is local and dst lives on dstTile.
// A remote dst gets a mirror, created on first use, which accumulates the in-degree.
func (g *GraphTile[V, U]) EdgeNew(src, dst VertexIdx, dstTile TileIdx, weight float64) error {
	if g.finalized {
		return enforce.Errorf(enforce.ErrPermission, "tile %v: edge %v->%v on finalized tile", g.tid, src, dst)
	}
	srcV, ok := g.vertices[src]
	if !ok {
		return enforce.Errorf(enforce.ErrRange, "tile %v: source %v not local", g.tid, src)
	}
	var dstV *Vertex[V, U]
	if dstTile == g.tid {
		if dstV, ok = g.vertices[dst]; !ok {
			return enforce.Errorf(enforce.ErrRange, "tile %v: destination %v not local", g.tid, dst)
		}
	}

	e := Edge{Src: src, Dst: dst, Weight: weight}
	if n := len(g.edges); n > 0 {
		g.edgeSorted = g.edgeSorted && !EdgeLess(e, g.edges[n-1])
	}
	g.edges = append(g.edges, e)

	srcV.OutDegInc()
	if dstV != nil {
		dstV.InDegInc()
	} else {
		m, ok := g.mirrors[dst]
		if !ok {
			m = &MirrorVertex[U]{vid: dst, masterTileId: dstTile, curTileId: g.tid}
			g.mirrors[dst] = m
		}
		m.AccDegInc()
	}
	return nil
}

// True sorts the edge list (once); false only marks it unsorted.
func (g *GraphTile[V, U]) EdgeSortedIs(sorted bool) {
	if !sorted {
		g.edgeSorted = false
		return
	}
	if g.edgeSorted {
		return
	}
	sort.SliceStable(g.edges, func(i, j int) bool { return EdgeLess(g.edges[i], g.edges[j]) })
	g.sortCount++
	g.edgeSorted = true
}

// Finalizing requires every mirror's degree to have been folded into its master.
func (g *GraphTile[V, U]) FinalizedIs(finalized bool) error {
	if !finalized {
		g.finalized = false
		return nil
	}
	if g.finalized {
		return nil
	}
	for vid, m := range g.mirrors {
		if m.AccDeg != 0 {
			return enforce.Errorf(enforce.ErrPermission, "tile %v: mirror %v still holds degree %v", g.tid, vid, m.AccDeg)
		}
	}
	g.EdgeSortedIs(true)
	for _, m := range g.mirrors {
		m.UpdateDelAll()
	}
	g.finalized = true
	return nil
}

// Folds every mirror's accumulated degree into the in-degree of its master, on the tiles given (indexed by tid).
// Masters that are not present (another process owns them) are skipped but still cleared.
func SyncMirrorDegrees[V any, U any](tiles []*GraphTile[V, U]) {
	for _, t := range tiles {
		if t == nil {
			continue
		}
		for _, m := range t.mirrors {
			if int(m.masterTileId) < len(tiles) && tiles[m.masterTileId] != nil {
				if master := tiles[m.masterTileId].Vertex(m.vid); master != nil {
					master.InDegInc(m.AccDeg)
				}
			}
			m.AccDegDel()
		}
	}
}
