package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ScottSallinen/ssgas/cmd/common"
	"github.com/ScottSallinen/ssgas/graph"
	"github.com/ScottSallinen/ssgas/utils"
)

// Two tiles of two vertices. Vertex 0 has a self loop and in neighbours on both tiles.
const (
	testEdges     = "0 1 0.5\n1 2 2\n1 3 1\n2 0 1.5\n2 3 0.25\n3 0 1\n0 0 2\n"
	testPartition = "0 0\n1 0\n2 1\n3 1\n"
	testVertices  = "0 1.0 0.5 0\n1 0.0 1.0 1\n2 0.5 -0.5 1\n3 1.0 1.0 0\n"
)

func writeInputs(t *testing.T) graph.GraphOptions {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}
	opts := graph.DefaultOptions()
	opts.TileCount = 2
	opts.EdgeFile = write("g.dat", testEdges)
	opts.PartitionFile = write("g.part", testPartition)
	opts.VertexFile = write("g.vdata", testVertices)
	opts.OutputFile = filepath.Join(dir, "out.txt")
	return opts
}

// Plain adjacency list computation of iters weighted sums, restarting every epoch iterations.
func reference(t *testing.T, iters, epoch int) map[graph.VertexIdx][]float64 {
	input := make(map[graph.VertexIdx][]float64)
	require.NoError(t, graph.ForEachVertexRow(strings.NewReader(testVertices), func(row graph.VertexRow) error {
		input[row.Vid] = row.Features
		return nil
	}))
	type edge struct {
		src, dst graph.VertexIdx
		w        float64
	}
	var edges []edge
	for _, line := range strings.Split(strings.TrimSpace(testEdges), "\n") {
		var e edge
		var src, dst uint64
		_, err := fmt.Sscan(line, &src, &dst, &e.w)
		require.NoError(t, err)
		e.src, e.dst = graph.VertexIdx(src), graph.VertexIdx(dst)
		edges = append(edges, e)
	}
	x := input
	for it := 0; it < iters; it++ {
		if epoch > 0 && it > 0 && it%epoch == 0 {
			x = input
		}
		next := make(map[graph.VertexIdx][]float64)
		for vid := range x {
			next[vid] = make([]float64, 2)
		}
		for _, e := range edges {
			for j := range next[e.dst] {
				next[e.dst][j] += e.w * x[e.src][j]
			}
		}
		x = next
	}
	return x
}

func run(t *testing.T, opts graph.GraphOptions, plain bool, epoch uint64) []*graph.GraphTile[VertexData, float64] {
	tiles, tidMap, err := common.LoadGraph(opts, NewVertexData, ReadRow)
	require.NoError(t, err)
	e, err := common.NewEngine(opts, tiles, NewKernel(opts, tidMap, plain, epoch))
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))
	return tiles
}

func TestSumOneIteration(t *testing.T) {
	for _, noDummy := range []bool{false, true} {
		opts := writeInputs(t)
		opts.MaxIters = 1
		opts.NoDummy = noDummy
		tiles := run(t, opts, false, 0)
		want := reference(t, 1, 0)
		for _, tile := range tiles {
			for _, v := range tile.Vertices() {
				assert.InDeltaSlice(t, want[v.Vid()], v.Data.Sum, 1e-4, "vertex %v", v.Vid())
			}
		}
	}
}

func TestSumEpochs(t *testing.T) {
	opts := writeInputs(t)
	opts.MaxIters = 5
	opts.NoPreprocess = true
	tiles := run(t, opts, false, 2)
	want := reference(t, 5, 2)
	for _, tile := range tiles {
		for _, v := range tile.Vertices() {
			assert.InDeltaSlice(t, want[v.Vid()], v.Data.Sum, 1e-3, "vertex %v", v.Vid())
		}
	}

	require.NoError(t, common.WriteOutput(opts, tiles, FormatVertex))
	out, err := os.ReadFile(opts.OutputFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[2], "2\t"))
	assert.Len(t, strings.Fields(lines[2]), 3)
}

func TestPlainSum(t *testing.T) {
	opts := writeInputs(t)
	opts.MaxIters = 3
	tiles := run(t, opts, true, 0)
	want := reference(t, 3, 0)
	for _, tile := range tiles {
		for _, v := range tile.Vertices() {
			assert.InDelta(t, want[v.Vid()][0], v.Data.Value, 1e-9, "vertex %v", v.Vid())
			assert.Equal(t, utils.F("%.6f", v.Data.Value), FormatVertex(v))
		}
	}
}
