package graph

import (
	"bufio"
	"io"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/utils"
)

// Loads every tile of the graph from the files named in the options. See TilesFromReaders.
func TilesFromEdgeList[V any, U any](opts GraphOptions, newData func(VertexIdx) V) ([]*GraphTile[V, U], TidMap, error) {
	edgeFile, err := os.Open(opts.EdgeFile)
	if err != nil {
		return nil, nil, enforce.Errorf(enforce.ErrFile, "open edge list %q (%v)", opts.EdgeFile, err)
	}
	defer edgeFile.Close()

	var partition io.Reader
	if opts.TileCount > 1 {
		if opts.PartitionFile == "" {
			return nil, nil, enforce.Errorf(enforce.ErrFile, "partition file required for %d tiles", opts.TileCount)
		}
		partFile, err := os.Open(opts.PartitionFile)
		if err != nil {
			return nil, nil, enforce.Errorf(enforce.ErrFile, "open partition %q (%v)", opts.PartitionFile, err)
		}
		defer partFile.Close()
		partition = partFile
	}
	return TilesFromReaders[V, U](opts, edgeFile, partition, newData)
}

type rawEdge struct {
	src, dst       VertexIdx
	weight         float64
	srcTid, dstTid TileIdx
}

// Builds all tiles. The partition input ("vid tid" lines, tid divided by the merge factor) is required
// when there is more than one tile; otherwise vertices are created on demand on tile 0.
// Only edges whose source is on opts.TileIndex are inserted (all tiles when TileIndex is AllTiles);
// a remote source with a local destination bumps the local in-degree instead.
func TilesFromReaders[V any, U any](opts GraphOptions, edges io.Reader, partition io.Reader, newData func(VertexIdx) V) ([]*GraphTile[V, U], TidMap, error) {
	if opts.TileCount <= 0 {
		return nil, nil, enforce.Errorf(enforce.ErrInvalidArgument, "tile count %d", opts.TileCount)
	}
	mergeFactor := utils.Max(opts.MergeFactor, 1)
	if newData == nil {
		newData = func(VertexIdx) (zero V) { return zero }
	}

	tiles := make([]*GraphTile[V, U], opts.TileCount)
	for tid := range tiles {
		tiles[tid] = NewGraphTile[V, U](TileIdx(tid))
	}
	tidMap := make(TidMap)
	partitioned := opts.TileCount != 1

	if partitioned {
		if partition == nil {
			return nil, nil, enforce.Errorf(enforce.ErrFile, "missing partition input")
		}
		err := utils.EachFieldLine(partition, func(lineNo int, fields []string) error {
			if len(fields) < 2 {
				return enforce.Errorf(enforce.ErrFile, "partition line %d", lineNo)
			}
			vid, err1 := strconv.ParseUint(fields[0], 10, 64)
			tid, err2 := strconv.ParseUint(fields[1], 10, 32)
			if err1 != nil || err2 != nil {
				return enforce.Errorf(enforce.ErrFile, "partition line %d", lineNo)
			}
			tid /= uint64(mergeFactor)
			if tid >= uint64(opts.TileCount) {
				return enforce.Errorf(enforce.ErrRange, "partition line %d: tile %d", lineNo, tid)
			}
			if _, ok := tidMap[VertexIdx(vid)]; ok {
				return enforce.Errorf(enforce.ErrKeyInUse, "partition line %d: vertex %d", lineNo, vid)
			}
			tidMap[VertexIdx(vid)] = TileIdx(tid)
			_, err := tiles[tid].VertexNew(VertexIdx(vid), newData(VertexIdx(vid)))
			return err
		})
		if err != nil {
			return nil, nil, err
		}
	}

	tileOf := func(vid VertexIdx) (TileIdx, error) {
		if !partitioned {
			return 0, nil
		}
		tid, ok := tidMap[vid]
		if !ok {
			return 0, enforce.Errorf(enforce.ErrRange, "vertex %v has no partition", vid)
		}
		return tid, nil
	}

	var raw []rawEdge
	err := utils.EachFieldLine(edges, func(lineNo int, fields []string) error {
		if len(fields) < 2 {
			return enforce.Errorf(enforce.ErrFile, "edge line %d", lineNo)
		}
		src, err1 := strconv.ParseUint(fields[0], 10, 64)
		dst, err2 := strconv.ParseUint(fields[1], 10, 64)
		if err1 != nil || err2 != nil {
			return enforce.Errorf(enforce.ErrFile, "edge line %d", lineNo)
		}
		weight := opts.DefaultWeight
		if len(fields) > 2 {
			w, err := strconv.ParseFloat(fields[2], 64)
			if err != nil {
				return enforce.Errorf(enforce.ErrFile, "edge line %d weight", lineNo)
			}
			weight = w
		}
		srcTid, err := tileOf(VertexIdx(src))
		if err != nil {
			return err
		}
		dstTid, err := tileOf(VertexIdx(dst))
		if err != nil {
			return err
		}
		if !partitioned {
			for _, vid := range [2]VertexIdx{VertexIdx(src), VertexIdx(dst)} {
				if !tiles[0].HasVertex(vid) {
					tidMap[vid] = 0
					if _, err := tiles[0].VertexNew(vid, newData(vid)); err != nil {
						return err
					}
				}
			}
		}
		raw = append(raw, rawEdge{VertexIdx(src), VertexIdx(dst), weight, srcTid, dstTid})
		if opts.Undirected {
			raw = append(raw, rawEdge{VertexIdx(dst), VertexIdx(src), weight, dstTid, srcTid})
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	for _, e := range raw {
		if opts.TileIndex == AllTiles || int(e.srcTid) == opts.TileIndex {
			if err := tiles[e.srcTid].EdgeNew(e.src, e.dst, e.dstTid, e.weight); err != nil {
				return nil, nil, err
			}
			if e.srcTid != e.dstTid {
				tiles[e.srcTid].Vertex(e.src).BorderVertex = true
			}
		} else if int(e.dstTid) == opts.TileIndex {
			tiles[e.dstTid].Vertex(e.dst).InDegInc()
		}
	}

	if opts.Finalize {
		SyncMirrorDegrees(tiles)
		for _, t := range tiles {
			if err := t.FinalizedIs(true); err != nil {
				return nil, nil, err
			}
		}
	} else {
		for _, t := range tiles {
			t.EdgeSortedIs(true)
		}
	}
	log.Debug().Msg("Loaded " + utils.V(len(raw)) + " edges over " + utils.V(opts.TileCount) + " tiles, " + utils.V(len(tidMap)) + " vertices")
	return tiles, tidMap, nil
}

// One line of a vertex data input: "vid f_0 ... f_{D-1} label".
type VertexRow struct {
	Vid      VertexIdx
	Features []float64
	Label    int
}

// Calls fn for each vertex row. Rows must carry at least a vid and a label.
func ForEachVertexRow(r io.Reader, fn func(row VertexRow) error) error {
	return utils.EachFieldLine(r, func(lineNo int, fields []string) error {
		if len(fields) < 2 {
			return enforce.Errorf(enforce.ErrFile, "vertex line %d", lineNo)
		}
		vid, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return enforce.Errorf(enforce.ErrFile, "vertex line %d id", lineNo)
		}
		label, err := strconv.Atoi(fields[len(fields)-1])
		if err != nil {
			return enforce.Errorf(enforce.ErrFile, "vertex line %d label", lineNo)
		}
		row := VertexRow{Vid: VertexIdx(vid), Label: label, Features: make([]float64, len(fields)-2)}
		for i := range row.Features {
			if row.Features[i], err = strconv.ParseFloat(fields[i+1], 64); err != nil {
				return enforce.Errorf(enforce.ErrFile, "vertex line %d feature %d", lineNo, i)
			}
		}
		return fn(row)
	})
}

// Applies the rows of the vertex data file to the vertices of the tile; rows of other tiles are ignored.
func LoadVertexData[V any, U any](path string, tile *GraphTile[V, U], apply func(v *Vertex[V, U], row VertexRow)) error {
	file, err := os.Open(path)
	if err != nil {
		return enforce.Errorf(enforce.ErrFile, "open vertex data %q (%v)", path, err)
	}
	defer file.Close()
	return ForEachVertexRow(file, func(row VertexRow) error {
		if v := tile.Vertex(row.Vid); v != nil {
			apply(v, row)
		}
		return nil
	})
}

// Writes "vid\tdata" for each local vertex in vid order.
func WriteVertexData[V any, U any](w io.Writer, tile *GraphTile[V, U], format func(v *Vertex[V, U]) string) error {
	bw := bufio.NewWriter(w)
	for _, v := range tile.Vertices() {
		if _, err := bw.WriteString(v.Vid().String() + "\t" + format(v) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
