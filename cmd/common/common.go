package common

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/engine"
	"github.com/ScottSallinen/ssgas/graph"
	"github.com/ScottSallinen/ssgas/kernel"
	"github.com/ScottSallinen/ssgas/transport"
	"github.com/ScottSallinen/ssgas/utils"
)

// The kernel setters driven by the command line.
type Configurable interface {
	Name() string
	Tag() kernel.Tag
	MaxItersIs(n kernel.IterCount)
	NumPartsIs(n int)
	TidMapIs(m graph.TidMap)
	CurTidIs(tid graph.TileIdx)
	NoPreprocessIs(v bool)
	NoDummyIs(v bool)
	VerboseIs(v bool)
}

func ExtractGraphName(graphFilename string) (graphName string) {
	gNameMainT := strings.Split(graphFilename, "/")
	gNameMain := gNameMainT[len(gNameMainT)-1]
	gNameMainTD := strings.Split(gNameMain, ".")
	if len(gNameMainTD) > 1 {
		return gNameMainTD[len(gNameMainTD)-2]
	} else {
		return gNameMainTD[0]
	}
}

// The tiles this process runs: its own, or every tile when it holds them all.
func LocalTiles(opts graph.GraphOptions) []int {
	if opts.TileIndex != graph.AllTiles {
		return []int{opts.TileIndex}
	}
	tids := make([]int, opts.TileCount)
	for i := range tids {
		tids[i] = i
	}
	return tids
}

// Loads the tiles named in opts, then hands each vertex data row of a local tile to apply.
func LoadGraph[V any, U any](opts graph.GraphOptions, newData func(graph.VertexIdx) V, apply func(v *graph.Vertex[V, U], row graph.VertexRow)) ([]*graph.GraphTile[V, U], graph.TidMap, error) {
	watch := utils.Watch{}
	watch.Start()
	tiles, tidMap, err := graph.TilesFromEdgeList[V, U](opts, newData)
	if err != nil {
		return nil, nil, err
	}
	if opts.VertexFile != "" && apply != nil {
		for _, tid := range LocalTiles(opts) {
			if err := graph.LoadVertexData(opts.VertexFile, tiles[tid], apply); err != nil {
				return nil, nil, err
			}
		}
	}
	direction := "directed"
	if opts.Undirected {
		direction = "undirected"
	}
	log.Info().Msg("Graph loaded from " + opts.EdgeFile + " with " + utils.V(opts.TileCount*opts.MergeFactor) + " graph tiles into " +
		utils.V(opts.TileCount) + " tiles, treated as " + direction + ", in " + utils.V(watch.Elapsed().Milliseconds()) + " ms")
	for _, tid := range LocalTiles(opts) {
		log.Debug().Msg("Tile " + utils.V(tid) + ": " + utils.V(tiles[tid].VertexCount()) + " vertices, " +
			utils.V(tiles[tid].EdgeCount()) + " edges, " + utils.V(tiles[tid].MirrorVertexCount()) + " mirrors")
	}
	return tiles, tidMap, nil
}

func ConfigureKernel(k Configurable, opts graph.GraphOptions, tidMap graph.TidMap) {
	k.VerboseIs(opts.DebugLevel > 0)
	k.MaxItersIs(kernel.IterCount(opts.MaxIters))
	k.NumPartsIs(opts.NumParts)
	k.TidMapIs(tidMap)
	if opts.TileIndex != graph.AllTiles {
		k.CurTidIs(graph.TileIdx(opts.TileIndex))
	}
	k.NoPreprocessIs(opts.NoPreprocess)
	k.NoDummyIs(opts.NoDummy)
	log.Info().Msg("Algorithm kernel named " + k.Name() + " is " + kernel.TagName(k.Tag()) + ", with max iterations " +
		kernel.IterCount(opts.MaxIters).String() + " and number of partitions " + utils.V(opts.NumParts))
}

// Loopback or cluster addressing, overlaid with the optional TOML file.
func MeshConfig(opts graph.GraphOptions) (transport.MeshConfig, error) {
	cfg := transport.DefaultMeshConfig()
	cfg.Cluster = opts.Cluster
	if opts.MeshFile != "" {
		if err := transport.LoadMeshConfig(opts.MeshFile, &cfg); err != nil {
			return cfg, enforce.Errorf(enforce.ErrFile, "mesh config %q (%v)", opts.MeshFile, err)
		}
	}
	return cfg, nil
}

func NewEngine[V any, U any](opts graph.GraphOptions, tiles []*graph.GraphTile[V, U], kernels ...kernel.Kernel[V, U]) (*engine.Engine[V, U], error) {
	cfg, err := MeshConfig(opts)
	if err != nil {
		return nil, err
	}
	e := engine.New[V, U]()
	if err := e.GraphTilesIs(tiles); err != nil {
		return nil, err
	}
	e.TileIndexIs(opts.TileIndex)
	e.MeshConfigIs(cfg)
	e.NoPreprocessIs(opts.NoPreprocess)
	e.MaxItersIs(opts.MaxIters)
	for _, k := range kernels {
		if err := e.KernelNew(k); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Runs the engine until done or interrupted while connecting.
func Run[V any, U any](e *engine.Engine[V, U]) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return e.Run(ctx)
}

// Writes "vid\tdata" for the local tiles to the output file of opts, if any.
func WriteOutput[V any, U any](opts graph.GraphOptions, tiles []*graph.GraphTile[V, U], format func(v *graph.Vertex[V, U]) string) error {
	if opts.OutputFile == "" {
		return nil
	}
	f, err := os.Create(opts.OutputFile)
	if err != nil {
		return enforce.Errorf(enforce.ErrFile, "create output %q (%v)", opts.OutputFile, err)
	}
	defer f.Close()
	for _, tid := range LocalTiles(opts) {
		if err := graph.WriteVertexData(f, tiles[tid], format); err != nil {
			return err
		}
	}
	log.Info().Msg("Output to " + opts.OutputFile)
	return nil
}
