package graph

import (
	"github.com/ScottSallinen/ssgas/utils"
)

const DEFAULT_WEIGHT = 1.0

// Edge is fixed at insertion; tiles only hand out copies.
type Edge struct {
	Src    VertexIdx
	Dst    VertexIdx
	Weight float64
}

func (e Edge) String() string {
	return "{Src: " + e.Src.String() + ", Dst: " + e.Dst.String() + ", Weight: " + utils.V(e.Weight) + "}"
}

// Lexicographic on (src, dst).
func EdgeLess(a, b Edge) bool {
	if a.Src != b.Src {
		return a.Src < b.Src
	}
	return a.Dst < b.Dst
}
