package commsync

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/share"
	"github.com/ScottSallinen/ssgas/transport"
)

const threadCount = 8

func runThreads(n int, fn func(tid int)) {
	var wg sync.WaitGroup
	for tid := 0; tid < n; tid++ {
		wg.Add(1)
		go func(tid int) {
			defer wg.Done()
			fn(tid)
		}(tid)
	}
	wg.Wait()
}

func TestBarrier(t *testing.T) {
	cs := New[uint64, float64](threadCount)
	var arrived atomic.Int32
	runThreads(threadCount, func(tid int) {
		for round := 1; round <= 3; round++ {
			time.Sleep(time.Duration(tid) * time.Millisecond)
			arrived.Add(1)
			cs.Barrier(tid)
			assert.GreaterOrEqual(t, int(arrived.Load()), round*threadCount)
			cs.Barrier(tid)
		}
	})
}

func TestBarrierAND(t *testing.T) {
	cs := New[uint64, float64](threadCount)
	results := make([][]bool, threadCount)
	runThreads(threadCount, func(tid int) {
		inputs := [][]bool{
			{true, true, true, true, true, true, true, true},
			{true, true, false, true, true, true, true, true},
			{true, true, true, true, true, false, true, true},
			{true, true, true, true, true, true, true, true},
		}
		for _, in := range inputs {
			// Staggered arrival.
			time.Sleep(time.Duration((tid*7)%5) * time.Millisecond)
			results[tid] = append(results[tid], cs.BarrierAND(tid, in[tid]))
		}
	})
	for tid := range results {
		assert.Equal(t, []bool{true, false, false, true}, results[tid], "thread %d", tid)
	}
}

func TestKeyValPartitions(t *testing.T) {
	cs := New[uint64, float64](threadCount)
	for round := 0; round < 3; round++ {
		runThreads(threadCount, func(tid int) {
			// tid sends tid*dst pairs to every dst: key tid, value 0.1*i.
			for dst := 0; dst < threadCount; dst++ {
				for i := 0; i < tid*dst; i++ {
					cs.KeyValNew(tid, dst, uint64(tid), 0.1*float64(i))
				}
				cs.EndTagNew(tid, dst)
			}

			kvCount := make([]int, threadCount)
			kvSum := make([]float64, threadCount)
			const parts = 3
			prtns, status := cs.KeyValPartitions(tid, parts, func(k uint64) int { return int(k) })
			assert.Equal(t, RecvFinished, status)
			for pid, prtn := range prtns {
				for _, kv := range prtn {
					assert.Equal(t, pid, int(kv.Key)%parts)
					kvCount[kv.Key]++
					kvSum[kv.Key] += kv.Val
				}
			}
			for src := 0; src < threadCount; src++ {
				num := src * tid
				assert.Equal(t, num, kvCount[src], "from %d to %d", src, tid)
				want := 0.1 * float64((num-1)*num) / 2
				assert.InDelta(t, want, kvSum[src], 1e-6)
			}

			cs.Barrier(tid)
			cs.KeyValConsDelAll(tid)
			cs.Barrier(tid)
		})
	}
}

// Hash-style partition functions may return negative ints.
func TestKeyValPartitionsNegativeKeys(t *testing.T) {
	cs := New[uint64, float64](2)
	const parts = 3
	hash := func(k uint64) int { return -int(k) - 1 }
	counts := make([]int, 2)
	runThreads(2, func(tid int) {
		for k := uint64(0); k < 10; k++ {
			cs.KeyValNew(tid, 1-tid, k, float64(k))
		}
		cs.EndTagNew(tid, 0)
		cs.EndTagNew(tid, 1)
		var prtns [][]KeyValue[uint64, float64]
		var status RecvStatus
		assert.NotPanics(t, func() { prtns, status = cs.KeyValPartitions(tid, parts, hash) })
		assert.Equal(t, RecvFinished, status)
		for pid, prtn := range prtns {
			for _, kv := range prtn {
				assert.Equal(t, pid, int(uint64(hash(kv.Key))%parts))
				counts[tid]++
			}
		}
	})
	assert.Equal(t, []int{10, 10}, counts)
}

func TestKeyValPartitionsSingle(t *testing.T) {
	cs := New[uint64, float64](2)
	var statuses [2]RecvStatus
	var counts [2]int
	runThreads(2, func(tid int) {
		cs.KeyValNew(tid, tid, 1, 1)
		cs.KeyValNew(tid, 1-tid, 2, 2)
		if tid == 0 {
			cs.EndTagNew(0, 0)
			cs.EndTagNew(0, 1)
		}
		prtns, status := cs.KeyValPartitions(tid, 1, nil)
		statuses[tid] = status
		counts[tid] = len(prtns[0])
	})
	// Thread 1 never ended its streams.
	assert.Equal(t, [2]RecvStatus{RecvContinued, RecvContinued}, statuses)
	assert.Equal(t, [2]int{2, 2}, counts)

	tiles := cs.KeyValTiles(0)
	assert.Len(t, tiles[1], 1)
	assert.Len(t, tiles[0], 0, "local stream was handed over")

	cs.KeyValProdDelAll(1)
	cs.KeyValConsDelAll(0)
	cs.KeyValConsDelAll(1)
	runThreads(2, func(tid int) {
		_, statuses[tid] = cs.KeyValPartitions(tid, 1, nil)
	})
	assert.Equal(t, [2]RecvStatus{RecvNone, RecvNone}, statuses)
	assert.LessOrEqual(t, ReservedStreamSize[uint64, float64](), 256)
	assert.Equal(t, 256, ReservedStreamSize[uint64, struct{}]())
}

type floatSharer struct{}

func (floatSharer) SplitShare(_, _ uint32, v *float64) float64 {
	r := math.Floor(*v*3) + 0.5
	*v -= r
	return r
}

func (floatSharer) MergeShare(_ uint32, v *float64, s float64) { *v += s }

func TestRemoteKeyVal(t *testing.T) {
	meshes := transport.NewLocalMeshes(2)
	defer meshes[0].Close()
	defer meshes[1].Close()
	prod := New[uint64, float64](2)
	prod.SetMesh(0, meshes[0], floatSharer{})
	cons := New[uint64, float64](2)
	cons.SetMesh(1, meshes[1], floatSharer{})

	const num = 20
	done := make(chan error, 1)
	go func() {
		for i := 0; i < num; i++ {
			if err := prod.RemoteKeyValNew(0, 1, uint64(i), 0.25*float64(i)); err != nil {
				done <- err
				return
			}
		}
		if err := prod.EndRemoteKeyValNew(0, 1); err != nil {
			done <- err
			return
		}
		done <- prod.EnsureEndGetKeyValNew(0, 1)
	}()

	n, err := cons.GetAllKeyValNew(0, 1)
	require.NoError(t, err)
	assert.Equal(t, num, n)
	require.NoError(t, cons.EndGetKeyValNew(0, 1))
	require.NoError(t, <-done)

	got := cons.KeyValTiles(1)[0]
	require.Len(t, got, num)
	for i, kv := range got {
		assert.Equal(t, uint64(i), kv.Key)
		assert.InDelta(t, 0.25*float64(i), kv.Val, 1e-9)
	}
}

func TestRemoteVectorsAndTags(t *testing.T) {
	meshes := transport.NewLocalMeshes(2)
	defer meshes[0].Close()
	defer meshes[1].Close()
	a := New[uint64, share.Vec](2)
	a.SetMesh(0, meshes[0], nil)
	b := New[uint64, share.Vec](2)
	b.SetMesh(1, meshes[1], nil)

	pos := share.PosVec{3, -1, 0, 7}
	vv := share.VecVec{{1, 2, 3}, {4, 5, 6}}
	require.NoError(t, a.SendPosVec(1, pos))
	require.NoError(t, a.SendShareVecVec(1, vv))
	require.NoError(t, a.SendShareVecVec(1, share.VecVec{}))
	require.NoError(t, a.SendPosVec(1, pos))

	gotPos, err := b.RecvPosVec(0)
	require.NoError(t, err)
	assert.Equal(t, pos, gotPos)
	gotVV, err := b.RecvShareVecVec(0)
	require.NoError(t, err)
	assert.Equal(t, vv, gotVV)
	gotVV, err = b.RecvShareVecVec(0)
	require.NoError(t, err)
	assert.Len(t, gotVV, 0)

	// A position vector where a matrix is expected is a message error.
	_, err = b.RecvShareVecVec(0)
	assert.True(t, errors.Is(err, enforce.ErrMessage))

	la, lb := a.Link(1, "x"), b.Link(0, "x")
	require.NoError(t, la.SendFinish())
	require.NoError(t, lb.RecvFinish())
	require.NoError(t, la.SendPosVec(nil))
	p, err := lb.RecvPosVec()
	require.NoError(t, err)
	assert.Len(t, p, 0)
}
