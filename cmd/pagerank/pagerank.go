package main

import (
	"math"

	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/graph"
	"github.com/ScottSallinen/ssgas/kernel"
	"github.com/ScottSallinen/ssgas/task"
	"github.com/ScottSallinen/ssgas/utils"
)

const DAMPINGFACTOR = float64(0.85)

var EPSILON = float64(1e-6)

type VertexProperty struct {
	Rank float64
}

// PageRank by power iteration: each vertex spreads its rank evenly over its out edges.
type PageRank struct {
	N int // Vertices in the whole graph.
}

func (pr PageRank) NewVertexData(graph.VertexIdx) VertexProperty {
	return VertexProperty{Rank: 1 / float64(pr.N)}
}

func (PageRank) Scatter(_ kernel.IterCount, src *graph.Vertex[VertexProperty, float64], _ float64) (float64, bool) {
	if src.OutDeg == 0 {
		return 0, false
	}
	return src.Data.Rank / float64(src.OutDeg), true
}

func (pr PageRank) Gather(_ kernel.IterCount, dst *graph.Vertex[VertexProperty, float64], acc float64, got bool) bool {
	next := (1 - DAMPINGFACTOR) / float64(pr.N)
	if got {
		next += DAMPINGFACTOR * acc
	}
	old := dst.Data.Rank
	dst.Data.Rank = next
	return math.Abs(next-old) < EPSILON
}

func (PageRank) ReduceKind() task.Kind { return task.AddDouble }

// OnCheckCorrectness: the ranks over the given tiles sum to their share of the mass. Dangling vertices leak
// mass, so the check only holds when every vertex has an out edge.
func OnCheckCorrectness(tiles []*graph.GraphTile[VertexProperty, float64], tids []int, n int) error {
	sum, count := 0.0, 0
	for _, tid := range tids {
		for _, v := range tiles[tid].Vertices() {
			if v.OutDeg == 0 {
				return nil
			}
			sum += v.Data.Rank
			count++
		}
	}
	if count == n && !utils.FloatEquals(sum, 1, 1e-3) {
		return enforce.Errorf(enforce.ErrRange, "rank mass %v over %d vertices", sum, n)
	}
	return nil
}
