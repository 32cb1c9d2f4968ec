package main

import (
	"flag"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ScottSallinen/ssgas/cmd/common"
	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/graph"
	"github.com/ScottSallinen/ssgas/kernel"
	"github.com/ScottSallinen/ssgas/utils"
)

func FormatVertex(v *graph.Vertex[VertexData, float64]) string {
	if v.Data.Sum == nil {
		return utils.F("%.6f", v.Data.Value)
	}
	parts := make([]string, len(v.Data.Sum))
	for i, x := range v.Data.Sum {
		parts[i] = utils.F("%.6f", x)
	}
	return strings.Join(parts, " ")
}

// The kernel for the mode asked for, configured from the options.
func NewKernel(opts graph.GraphOptions, tidMap graph.TidMap, plain bool, epoch uint64) kernel.Kernel[VertexData, float64] {
	if plain {
		k := kernel.NewEdgeCentric[VertexData, float64]("sum", PlainSum{})
		common.ConfigureKernel(k, opts, tidMap)
		return k
	}
	k := kernel.NewSSEdgeCentric[VertexData, float64]("ss-sum", &Sum{Epoch: kernel.IterCount(epoch)})
	common.ConfigureKernel(k, opts, tidMap)
	return k
}

// Launch point. Parses command line arguments, and launches the graph execution.
func main() {
	plainPtr := flag.Bool("plain", false, "Sum the first feature in the clear instead of secret sharing the rows.")
	epochPtr := flag.Uint64("epoch", 0, "Restart from the input rows every epoch iterations. 0 never restarts.")
	opts := graph.FlagsToOptions()
	if !*plainPtr && opts.MaxIters == math.MaxUint64 {
		log.Panic().Msg("The secret shared sum needs an iteration cap (-iters).")
	}

	tiles, tidMap, err := common.LoadGraph(opts, NewVertexData, ReadRow)
	enforce.ENFORCE(err, "loading the graph")

	e, err := common.NewEngine(opts, tiles, NewKernel(opts, tidMap, *plainPtr, *epochPtr))
	enforce.ENFORCE(err, "building the engine")
	enforce.ENFORCE(common.Run(e), "running")
	enforce.ENFORCE(common.WriteOutput(opts, tiles, FormatVertex), "writing the output")
}
