package main

import (
	"flag"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/ScottSallinen/ssgas/cmd/common"
	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/graph"
	"github.com/ScottSallinen/ssgas/kernel"
	"github.com/ScottSallinen/ssgas/task"
	"github.com/ScottSallinen/ssgas/utils"
)

func FormatVertex(v *graph.Vertex[VertexData, float64]) string {
	return utils.V(v.Data.Prediction)
}

// Reads the training parameters. A missing sample count is taken from the graph.
func LoadParams(path string, tidMap graph.TidMap) (task.GNNParam, error) {
	if path == "" {
		return task.GNNParam{}, enforce.Errorf(enforce.ErrInvalidArgument, "gcn: no config file given")
	}
	p, report, err := task.ReadConfig(path)
	if err != nil {
		return p, err
	}
	if report.Partial() {
		log.Warn().Int("skipped", len(report.Skipped)).Msg("Config " + path + " partially applied")
	}
	if p.NumSamples == 0 {
		p.NumSamples = len(tidMap)
	}
	return p, nil
}

func NewKernel(opts graph.GraphOptions, tidMap graph.TidMap, g *GCN) kernel.Kernel[VertexData, float64] {
	k := kernel.NewSSEdgeCentric[VertexData, float64]("ss-gcn", g)
	common.ConfigureKernel(k, opts, tidMap)
	return k
}

func LogAccuracy(tiles []*graph.GraphTile[VertexData, float64], tids []int) {
	for _, split := range []Split{Train, Validate, Test} {
		correct, total := Accuracy(tiles, tids, split)
		if total == 0 {
			continue
		}
		log.Info().Msg(split.String() + " accuracy " + utils.F("%.4f", float64(correct)/float64(total)) +
			" (" + utils.V(correct) + "/" + utils.V(total) + ")")
	}
}

// Launch point. Parses command line arguments, and launches the graph execution.
func main() {
	epochsPtr := flag.Uint64("epochs", 1, "Training epochs, used when -iters is not given.")
	opts := graph.FlagsToOptions()

	// The split needs the sample count before the vertex data is read, so the graph is loaded in two steps.
	tiles, tidMap, err := common.LoadGraph[VertexData, float64](opts, nil, nil)
	enforce.ENFORCE(err, "loading the graph")
	p, err := LoadParams(opts.ConfigFile, tidMap)
	enforce.ENFORCE(err, "reading the config")
	g, err := NewGCN(p)
	enforce.ENFORCE(err, "building the model")
	tids := common.LocalTiles(opts)
	for _, tid := range tids {
		for _, v := range tiles[tid].Vertices() {
			v.Data = g.NewVertexData(v.Vid())
		}
		enforce.ENFORCE(graph.LoadVertexData(opts.VertexFile, tiles[tid], g.ReadRow), "loading the vertex data")
	}

	if opts.MaxIters == math.MaxUint64 {
		opts.MaxIters = *epochsPtr * uint64(g.EpochLength())
	}
	log.Info().Msg("Training " + utils.V(p.NumLayers) + " layers over " + utils.V(p.NumSamples) + " samples for " +
		utils.V(opts.MaxIters) + " iterations, epoch length " + g.EpochLength().String())

	e, err := common.NewEngine(opts, tiles, NewKernel(opts, tidMap, g))
	enforce.ENFORCE(err, "building the engine")
	enforce.ENFORCE(common.Run(e), "running")
	LogAccuracy(tiles, tids)
	enforce.ENFORCE(common.WriteOutput(opts, tiles, FormatVertex), "writing the output")
}
