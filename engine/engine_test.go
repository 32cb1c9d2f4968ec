package engine

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/graph"
	"github.com/ScottSallinen/ssgas/kernel"
	"github.com/ScottSallinen/ssgas/share"
	"github.com/ScottSallinen/ssgas/task"
	"github.com/ScottSallinen/ssgas/transport"
)

const (
	edges     = "0 1 0.5\n1 2 1\n1 3 2\n2 0 1\n2 3 0.25\n3 0 1.5\n"
	partition = "0 0\n1 0\n2 1\n3 1\n"
	iters     = 2
)

type row struct {
	in  []float64
	out []float64
	val float64
}

func newRow(vid graph.VertexIdx) row {
	return row{in: []float64{float64(vid) + 1, -0.5 * float64(vid)}, val: float64(vid) + 1}
}

// Weighted sum of the in neighbours over shares.
type sumApp struct{}

func (sumApp) VertexRow(d *row) []float64         { return d.in }
func (sumApp) WriteVertexRow(d *row, r []float64) { d.out = r }
func (sumApp) InitModel() share.TensorMap         { return share.TensorMap{} }
func (sumApp) EpochLength() kernel.IterCount      { return 0 }
func (sumApp) ApplyOnly(kernel.IterCount) bool    { return false }
func (sumApp) SyncWeights(kernel.IterCount) bool  { return false }

func (sumApp) PreScatter(_ *kernel.Step[row], x share.VecVec) (share.VecVec, error) { return x, nil }

func (sumApp) Scatter(st *kernel.Step[row], in share.VecVec, slots *kernel.Slots) (share.VecVec, error) {
	var f []float64
	if st.Alice() {
		f = make([]float64, slots.Len())
		for i := range f {
			if !slots.Dummy[i] {
				f[i] = slots.Weights[i]
			}
		}
	}
	return st.Sess.ScaleRows(in, f)
}

func (sumApp) GatherSeed(_ *kernel.Step[row], x share.VecVec) (share.VecVec, error) {
	return share.NewVecVec(len(x), x.Cols()), nil
}

func (sumApp) Gather(st *kernel.Step[row], acc, upd share.VecVec, skip func(int) bool, _ bool) (share.VecVec, error) {
	return st.Sess.CondAdd(acc, upd, skip)
}

func (sumApp) Apply(_ *kernel.Step[row], _, acc share.VecVec) (share.VecVec, error) { return acc, nil }

// The same sum in the clear, on the first column.
type plainApp struct{}

func (plainApp) Scatter(_ kernel.IterCount, src *graph.Vertex[row, float64], w float64) (float64, bool) {
	return src.Data.val * w, true
}

func (plainApp) Gather(_ kernel.IterCount, dst *graph.Vertex[row, float64], acc float64, _ bool) bool {
	dst.Data.val = acc
	return false
}

func (plainApp) ReduceKind() task.Kind { return task.AddDouble }

func reference(t *testing.T) map[graph.VertexIdx][]float64 {
	tiles, _, err := graph.TilesFromReaders[struct{}, float64](graph.DefaultOptions(), strings.NewReader(edges), nil, nil)
	require.NoError(t, err)
	x := make(map[graph.VertexIdx][]float64)
	for vid := graph.VertexIdx(0); vid < 4; vid++ {
		x[vid] = newRow(vid).in
	}
	for it := 0; it < iters; it++ {
		next := make(map[graph.VertexIdx][]float64)
		for vid := range x {
			next[vid] = make([]float64, 2)
		}
		for _, e := range tiles[0].Edges() {
			for j := range next[e.Dst] {
				next[e.Dst][j] += e.Weight * x[e.Src][j]
			}
		}
		x = next
	}
	return x
}

func loadTiles(t *testing.T, tileIndex int) ([]*graph.GraphTile[row, float64], graph.TidMap) {
	opts := graph.DefaultOptions()
	opts.TileCount = 2
	opts.TileIndex = tileIndex
	tiles, tidMap, err := graph.TilesFromReaders[row, float64](opts, strings.NewReader(edges), strings.NewReader(partition), newRow)
	require.NoError(t, err)
	return tiles, tidMap
}

func TestSetters(t *testing.T) {
	tiles, _ := loadTiles(t, graph.AllTiles)
	e := New[row, float64]()
	assert.Equal(t, graph.AllTiles, e.GraphTileIndex())
	assert.ErrorIs(t, e.Run(context.Background()), enforce.ErrInvalidArgument)

	assert.ErrorIs(t, e.GraphTileNew(nil), enforce.ErrNullPointer)
	assert.ErrorIs(t, e.GraphTileNew(tiles[1]), enforce.ErrInvalidArgument)
	require.NoError(t, e.GraphTileNew(tiles[0]))
	require.NoError(t, e.GraphTileNew(tiles[1]))
	assert.Equal(t, 2, e.GraphTileCount())
	assert.Same(t, tiles[1], e.GraphTile(1))
	assert.Nil(t, e.GraphTile(2))

	assert.ErrorIs(t, e.GraphTilesIs([]*graph.GraphTile[row, float64]{tiles[1], tiles[0]}), enforce.ErrInvalidArgument)
	assert.ErrorIs(t, e.GraphTilesIs([]*graph.GraphTile[row, float64]{tiles[0], nil}), enforce.ErrNullPointer)
	assert.Equal(t, 2, e.GraphTileCount())

	assert.ErrorIs(t, e.KernelNew(nil), enforce.ErrNullPointer)
	require.NoError(t, e.KernelNew(kernel.NewEdgeCentric[row, float64]("a", plainApp{})))
	require.NoError(t, e.KernelNew(kernel.NewEdgeCentric[row, float64]("b", plainApp{})))
	assert.ErrorIs(t, e.KernelDel(2), enforce.ErrRange)
	require.NoError(t, e.KernelDel(0))
	require.Equal(t, 1, e.KernelCount())
	assert.Equal(t, "b", e.Kernels()[0].Name())

	e.TileIndexIs(5)
	assert.ErrorIs(t, e.Run(context.Background()), enforce.ErrInvalidArgument)
}

func checkOut(t *testing.T, tiles []*graph.GraphTile[row, float64], tids ...int) {
	want := reference(t)
	for _, tid := range tids {
		for _, v := range tiles[tid].Vertices() {
			assert.InDeltaSlice(t, want[v.Vid()], v.Data.out, 1e-3, "vertex %v", v.Vid())
			assert.InDelta(t, want[v.Vid()][0], v.Data.val, 1e-9, "vertex %v", v.Vid())
		}
	}
}

func newKernels(tidMap graph.TidMap) (*kernel.SSEdgeCentric[row, float64], *kernel.EdgeCentric[row, float64]) {
	ss := kernel.NewSSEdgeCentric[row, float64]("ss-sum", sumApp{})
	ss.MaxItersIs(iters)
	ss.TidMapIs(tidMap)
	plain := kernel.NewEdgeCentric[row, float64]("sum", plainApp{})
	plain.MaxItersIs(iters)
	plain.TidMapIs(tidMap)
	return ss, plain
}

func TestRunLocal(t *testing.T) {
	tiles, tidMap := loadTiles(t, graph.AllTiles)
	e := New[row, float64]()
	require.NoError(t, e.GraphTilesIs(tiles))
	e.MaxItersIs(iters)
	ss, plain := newKernels(tidMap)
	require.NoError(t, e.KernelNew(ss))
	require.NoError(t, e.KernelNew(plain))
	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, kernel.Ended, ss.State())
	assert.Equal(t, kernel.Ended, plain.State())
	checkOut(t, tiles, 0, 1)
}

// Two engines, one per tile, over loopback websockets.
func TestRunWebsocket(t *testing.T) {
	cfg := transport.DefaultMeshConfig()
	cfg.BasePort = 20000 + rand.Intn(20000)
	cfg.DialRetryMs = 10
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	loaded := make([][]*graph.GraphTile[row, float64], 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for idx := 0; idx < 2; idx++ {
		tiles, tidMap := loadTiles(t, idx)
		loaded[idx] = tiles
		e := New[row, float64]()
		require.NoError(t, e.GraphTilesIs(tiles))
		e.TileIndexIs(idx)
		e.MeshConfigIs(cfg)
		e.MaxItersIs(iters)
		ss, plain := newKernels(tidMap)
		require.NoError(t, e.KernelNew(ss))
		require.NoError(t, e.KernelNew(plain))
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			errs[idx] = e.Run(ctx)
		}(idx)
	}
	wg.Wait()
	for idx, err := range errs {
		require.NoError(t, err, "tile %d", idx)
	}
	checkOut(t, loaded[0], 0)
	checkOut(t, loaded[1], 1)
}
