package main

import (
	"flag"

	"github.com/rs/zerolog/log"

	"github.com/ScottSallinen/ssgas/cmd/common"
	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/graph"
	"github.com/ScottSallinen/ssgas/kernel"
	"github.com/ScottSallinen/ssgas/utils"
)

func FormatVertex(v *graph.Vertex[VertexProperty, float64]) string {
	return utils.F("%.6f", v.Data.Rank)
}

func NewKernel(opts graph.GraphOptions, tidMap graph.TidMap) kernel.Kernel[VertexProperty, float64] {
	k := kernel.NewEdgeCentric[VertexProperty, float64]("pagerank", PageRank{N: len(tidMap)})
	common.ConfigureKernel(k, opts, tidMap)
	return k
}

// Launch point. Parses command line arguments, and launches the graph execution.
func main() {
	epsPtr := flag.Float64("e", EPSILON, "Rank change below which a vertex has converged.")
	opts := graph.FlagsToOptions()
	EPSILON = *epsPtr

	// The initial rank needs the vertex count, known once the partition is read.
	tiles, tidMap, err := common.LoadGraph[VertexProperty, float64](opts, nil, nil)
	enforce.ENFORCE(err, "loading the graph")
	pr := PageRank{N: len(tidMap)}
	tids := common.LocalTiles(opts)
	for _, tid := range tids {
		for _, v := range tiles[tid].Vertices() {
			v.Data = pr.NewVertexData(v.Vid())
		}
	}

	e, err := common.NewEngine(opts, tiles, NewKernel(opts, tidMap))
	enforce.ENFORCE(err, "building the engine")
	enforce.ENFORCE(common.Run(e), "running")
	if err := OnCheckCorrectness(tiles, tids, pr.N); err != nil {
		log.Warn().Err(err).Msg("Rank check failed")
	}
	enforce.ENFORCE(common.WriteOutput(opts, tiles, FormatVertex), "writing the output")
}
