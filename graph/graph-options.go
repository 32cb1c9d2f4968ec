package graph

import (
	"flag"
	"math"
	"os"
	"runtime"

	"github.com/rs/zerolog/log"

	"github.com/ScottSallinen/ssgas/utils"
)

// TileIndex value that loads the edges of every tile (single process runs and tests).
const AllTiles = -1

type GraphOptions struct {
	EdgeFile      string  // Edge list: "src dst [weight]".
	VertexFile    string  // Vertex data: "vid f_0 ... f_{D-1} label".
	PartitionFile string  // Partition: "vid tid".
	OutputFile    string  // Where "vid\tdata" lines are written at the end. Empty to skip.
	ConfigFile    string  // Application configuration (e.g. GNN parameters).
	MeshFile      string  // Optional TOML transport configuration.
	TileCount     int     // Number of parties, one tile per party.
	TileIndex     int     // The tile this process runs as; AllTiles to hold all edges locally.
	MergeFactor   int     // Partition tile ids are divided by this (total graph tiles / parties).
	DefaultWeight float64 // Weight given to edges without one.
	Undirected    bool    // Add the reverse of each edge.
	Finalize      bool    // Fold mirror degrees and finalize tiles after loading.
	MaxIters      uint64  // Iteration cap for the kernels.
	NumParts      int     // Partitions per thread for the plain kernel streams.
	NoPreprocess  bool    // Skip the mapping preprocessing; online masks are drawn every call.
	NoDummy       bool    // Disable power-of-two dummy padding of source lists.
	Cluster       bool    // Address peers as 10.0.0.{idx+1} instead of loopback.
	DebugLevel    int     // 0 info, 1 debug, 2 trace.
}

func DefaultOptions() GraphOptions {
	return GraphOptions{
		TileCount:     1,
		TileIndex:     AllTiles,
		MergeFactor:   1,
		DefaultWeight: DEFAULT_WEIGHT,
		Finalize:      true,
		MaxIters:      math.MaxUint64,
		NumParts:      1,
	}
}

// Declare your own flags before you call this function.
// Positional arguments: edge list, vertex data, partition file, output file, [config file].
func FlagsToOptions() (graphOptions GraphOptions) {
	threadPtr := flag.Int("t", 2, "Number of parties (threads). One tile per party.")
	tilesPtr := flag.Int("n", 0, "Total graph tile count in the partition file. Defaults to the party count. Must be a multiple of it.")
	indexPtr := flag.Int("i", 0, "Tile index this process runs as.")
	itersPtr := flag.Uint64("iters", 0, "Maximum iterations. 0 runs until the kernel stops on its own.")
	partsPtr := flag.Int("parts", 1, "Partitions per thread for local update streams.")
	undirectedPtr := flag.Bool("u", false, "Interpret the input graph as undirected (add transpose edges).")
	noPrePtr := flag.Bool("np", false, "No preprocessing for the oblivious mapping.")
	clusterPtr := flag.Bool("cluster", false, "Peers are at 10.0.0.{idx+1} instead of 127.0.0.1.")
	noDummyPtr := flag.Bool("nd", false, "No dummy edges (do not pad source lists to a power of two).")
	meshPtr := flag.String("conf", "", "Optional TOML file with transport settings.")
	weightPtr := flag.Float64("w", DEFAULT_WEIGHT, "Default weight for edges without one.")
	debugPtr := flag.Int("debug", 0, "Level 0 for info, 1 for debug, 2 for trace.")
	colourPtr := flag.Bool("nc", false, "Removes the colouring from the log output.")
	flag.Parse()

	if *colourPtr {
		utils.SetLoggerConsole(true)
	}
	utils.SetLevel(*debugPtr)

	args := flag.Args()
	if len(args) < 4 {
		log.Info().Msg("Usage: [flags] <edge list> <vertex data> <partition> <output> [config]")
		flag.Usage()
		os.Exit(1)
	}

	threads := *threadPtr
	if threads <= 0 {
		log.Panic().Msg("Invalid thread count.")
	} else if threads > runtime.NumCPU() {
		log.Warn().Msg("Party count is greater than CPU count?")
	}
	total := *tilesPtr
	if total == 0 {
		total = threads
	}
	if total%threads != 0 {
		log.Panic().Msg("Graph tile count " + utils.V(total) + " is not a multiple of party count " + utils.V(threads))
	}
	if *indexPtr < 0 || *indexPtr >= threads {
		log.Panic().Msg("Tile index out of range: " + utils.V(*indexPtr))
	}
	if *partsPtr <= 0 {
		log.Panic().Msg("Invalid partition count.")
	}
	maxIters := *itersPtr
	if maxIters == 0 {
		maxIters = math.MaxUint64
	}

	graphOptions = DefaultOptions()
	graphOptions.EdgeFile = args[0]
	graphOptions.VertexFile = args[1]
	graphOptions.PartitionFile = args[2]
	graphOptions.OutputFile = args[3]
	if len(args) > 4 {
		graphOptions.ConfigFile = args[4]
	}
	graphOptions.MeshFile = *meshPtr
	graphOptions.TileCount = threads
	graphOptions.TileIndex = *indexPtr
	graphOptions.MergeFactor = total / threads
	graphOptions.DefaultWeight = *weightPtr
	graphOptions.Undirected = *undirectedPtr
	graphOptions.MaxIters = maxIters
	graphOptions.NumParts = *partsPtr
	graphOptions.NoPreprocess = *noPrePtr
	graphOptions.NoDummy = *noDummyPtr
	graphOptions.Cluster = *clusterPtr
	graphOptions.DebugLevel = *debugPtr

	utils.SetTile(uint32(graphOptions.TileIndex))
	return graphOptions
}
