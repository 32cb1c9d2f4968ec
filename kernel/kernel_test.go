package kernel

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/graph"
	"github.com/ScottSallinen/ssgas/share"
)

func TestPaddedSize(t *testing.T) {
	cases := []struct {
		n, dummies, plain int
	}{{0, 1, 1}, {1, 1, 1}, {2, 2, 2}, {3, 4, 3}, {5, 8, 5}, {8, 8, 8}, {9, 16, 9}}
	for _, c := range cases {
		assert.Equal(t, c.dummies, PaddedSize(c.n, true), "n=%d", c.n)
		assert.Equal(t, c.plain, PaddedSize(c.n, false), "n=%d", c.n)
	}
}

func TestNames(t *testing.T) {
	assert.Equal(t, "edge-centric", TagName(TagEdgeCentric))
	assert.Equal(t, "vertex-centric", TagName(TagVertexCentric))
	assert.Equal(t, "invalid", TagName(Tag(7)))
	assert.Equal(t, "iterating", Iterating.String())
	assert.Equal(t, "18446744073709551615", InfiniteIters.String())

	b := NewBase("k")
	assert.Equal(t, "k", b.Name())
	assert.Equal(t, InfiniteIters, b.MaxIters())
	assert.Equal(t, Created, b.State())
	b.NumPartsIs(0)
	assert.Equal(t, 1, b.Options().NumParts)
	b.MaxItersIs(4)
	b.NoDummyIs(true)
	assert.Equal(t, IterCount(4), b.Options().MaxIters)
	assert.True(t, b.Options().NoDummy)
}

type fakeLifecycle struct {
	calls      []string
	convergeAt IterCount
	failAt     IterCount
}

func (f *fakeLifecycle) StartServers() error { f.calls = append(f.calls, "start"); return nil }
func (f *fakeLifecycle) CloseServers() error { f.calls = append(f.calls, "close"); return nil }
func (f *fakeLifecycle) OnStart() error      { f.calls = append(f.calls, "onstart"); return nil }
func (f *fakeLifecycle) OnEnd() error        { f.calls = append(f.calls, "onend"); return nil }

func (f *fakeLifecycle) OnIteration(iter IterCount) (bool, error) {
	f.calls = append(f.calls, "iter")
	if iter == f.failAt {
		return false, enforce.Errorf(enforce.ErrQueue, "iteration %v", iter)
	}
	return iter >= f.convergeAt, nil
}

func (f *fakeLifecycle) Vote(converged bool) bool {
	f.calls = append(f.calls, "vote")
	return converged
}

func TestDriveStopsOnVote(t *testing.T) {
	b := NewBase("drive")
	f := &fakeLifecycle{convergeAt: 2, failAt: InfiniteIters}
	iters, err := b.Drive(f)
	require.NoError(t, err)
	assert.Equal(t, IterCount(3), iters)
	assert.Equal(t, []string{"start", "onstart", "iter", "vote", "iter", "vote", "iter", "vote", "onend", "close"}, f.calls)
	assert.Equal(t, Ended, b.State())
}

func TestDriveMaxIters(t *testing.T) {
	b := NewBase("drive")
	b.MaxItersIs(2)
	f := &fakeLifecycle{convergeAt: InfiniteIters, failAt: InfiniteIters}
	iters, err := b.Drive(f)
	require.NoError(t, err)
	assert.Equal(t, IterCount(2), iters)
}

func TestDriveError(t *testing.T) {
	b := NewBase("drive")
	f := &fakeLifecycle{convergeAt: InfiniteIters, failAt: 1}
	iters, err := b.Drive(f)
	require.True(t, errors.Is(err, enforce.ErrQueue))
	assert.Equal(t, IterCount(1), iters)
	// Servers are closed even on failure, and OnEnd is skipped.
	assert.Equal(t, "close", f.calls[len(f.calls)-1])
	assert.NotContains(t, f.calls, "onend")
}

func smallTiles[V any](t *testing.T, newData func(graph.VertexIdx) V) ([]*graph.GraphTile[V, float64], graph.TidMap) {
	t.Helper()
	edges, err := os.Open("../graph/testdata/small.dat")
	require.NoError(t, err)
	defer edges.Close()
	part, err := os.Open("../graph/testdata/small.part")
	require.NoError(t, err)
	defer part.Close()
	opts := graph.DefaultOptions()
	opts.TileCount = 2
	tiles, tidMap, err := graph.TilesFromReaders[V, float64](opts, edges, part, newData)
	require.NoError(t, err)
	return tiles, tidMap
}

func TestGraphSummary(t *testing.T) {
	tiles, tidMap := smallTiles[struct{}](t, nil)

	s0, err := NewGraphSummary(tiles[0], tidMap, 2, true)
	require.NoError(t, err)
	assert.Equal(t, []graph.VertexIdx{0, 1}, s0.Local)
	assert.Equal(t, []float64{2, 1}, s0.InDeg)
	assert.Equal(t, []float64{1, 2}, s0.OutDeg)

	local := s0.Slots[0]
	assert.Equal(t, []graph.VertexIdx{0, 0}, local.SrcVids)
	assert.Equal(t, []graph.VertexIdx{0, 1}, local.DstVids)
	assert.Equal(t, []bool{true, false}, local.Dummy)
	assert.Equal(t, []float64{-1, 1}, local.Weights)
	assert.Equal(t, share.PosVec{0, 1}, local.DstPos)
	assert.Equal(t, 0, s0.GatherDummy[0].Count())

	remote := s0.Slots[1]
	assert.Equal(t, []graph.VertexIdx{2, 3}, remote.DstVids)
	assert.Equal(t, share.PosVec{1, 1}, remote.SrcPos)
	assert.Equal(t, share.PosVec{0, 1}, remote.DstPos)
	assert.Equal(t, 2, remote.DstRows)
	assert.Equal(t, uint64(1), tiles[0].Vertex(1).ReorderedIndex)

	s1, err := NewGraphSummary(tiles[1], tidMap, 2, true)
	require.NoError(t, err)
	toZero := s1.Slots[0]
	assert.Equal(t, []graph.VertexIdx{2, 3}, toZero.SrcVids)
	assert.Equal(t, share.PosVec{0, 0}, toZero.DstPos)
	assert.Equal(t, []graph.VertexIdx{2, 3}, tiles[1].MirrorVertex(0).Srcs)

	// Only vertex 1 of tile 0 is reached from tile 0 itself; vertex 0 only from tile 1.
	assert.True(t, GatherDummy(2, share.PosVec{1, 1}).Get(0))
	assert.False(t, GatherDummy(2, share.PosVec{1, 1}).Get(1))
}

func TestGraphSummaryPadding(t *testing.T) {
	tiles, tidMap := smallTiles[struct{}](t, nil)
	// Vertex 0 has in-degree two, both remote; its mirror on tile 1 pads three sources to four with dummies.
	require.NoError(t, tiles[1].FinalizedIs(false))
	_, err := tiles[1].VertexNew(9, struct{}{})
	require.NoError(t, err)
	tidMap[9] = 1
	require.NoError(t, tiles[1].EdgeNew(9, 0, 0, 2))
	graph.SyncMirrorDegrees(tiles)
	require.NoError(t, tiles[1].FinalizedIs(true))

	s1, err := NewGraphSummary(tiles[1], tidMap, 2, true)
	require.NoError(t, err)
	m := tiles[1].MirrorVertex(0)
	assert.Equal(t, []graph.VertexIdx{2, 3, 9, 2}, m.Srcs)
	assert.Equal(t, []bool{false, false, false, true}, m.SrcDummy)
	assert.Equal(t, 4, s1.Slots[0].Len())

	s1, err = NewGraphSummary(tiles[1], tidMap, 2, false)
	require.NoError(t, err)
	assert.Equal(t, 3, s1.Slots[0].Len())
}

func TestIota(t *testing.T) {
	assert.Equal(t, share.PosVec{0, 1, 2}, Iota(3))
	assert.Empty(t, Iota(0))
}
