package kernel

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ScottSallinen/ssgas/commsync"
	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/graph"
	"github.com/ScottSallinen/ssgas/share"
	"github.com/ScottSallinen/ssgas/twopc"
	"github.com/ScottSallinen/ssgas/utils"
)

// Mapping ids of a session: the cross pipeline towards the peer, and the ring pair's local pipeline.
const (
	mapScatter = iota
	mapMerge
	mapLocalScatter
	mapLocalMerge
)

// SSEdgeCentric runs an App over secret shared vertex rows. Every pair of tiles (T, i) has a session in
// which T's client is ALICE and i's server is BOB; the ring pair (T, coop(T)) also gathers and applies for T.
type SSEdgeCentric[V any, U any] struct {
	Base
	App App[V]
}

func NewSSEdgeCentric[V any, U any](name string, app App[V]) *SSEdgeCentric[V, U] {
	return &SSEdgeCentric[V, U]{Base: NewBase(name), App: app}
}

func (k *SSEdgeCentric[V, U]) Tag() Tag { return TagEdgeCentric }

func (k *SSEdgeCentric[V, U]) Run(ctx context.Context, tile *graph.GraphTile[V, U], env Env[U]) error {
	if tile == nil || env.Mesh == nil || env.Party == nil || k.App == nil {
		return enforce.Errorf(enforce.ErrNullPointer, "%s: tile, mesh, party and app are required", k.Name())
	}
	if k.MaxIters() == InfiniteIters {
		return enforce.Errorf(enforce.ErrInvalidArgument, "%s: needs a finite iteration count", k.Name())
	}
	if env.Tiles < 2 {
		return enforce.Errorf(enforce.ErrInvalidArgument, "%s: needs at least two tiles, got %d", k.Name(), env.Tiles)
	}
	if !tile.Finalized() {
		return enforce.Errorf(enforce.ErrPermission, "%s: tile %v is not finalized", k.Name(), tile.Tid())
	}
	for t := 0; t < env.Tiles; t++ {
		if len(k.Options().TidMap.Owned(graph.TileIdx(t))) == 0 {
			return enforce.Errorf(enforce.ErrInvalidArgument, "%s: tile %d owns no vertex", k.Name(), t)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sum, err := NewGraphSummary(tile, k.Options().TidMap, env.Tiles, !k.Options().NoDummy)
	if err != nil {
		return err
	}
	r := &ssRun[V, U]{
		k:    k,
		env:  env,
		sum:  sum,
		tid:  int(tile.Tid()),
		done: make(chan struct{}, 2*(env.Tiles-1)),
		bar:  commsync.NewBarrier(2 * (env.Tiles - 1)),
	}
	iters, err := k.Drive(r)
	if err != nil {
		return err
	}
	log.Info().Msg(k.Name() + ": tile " + utils.V(r.tid) + " done after " + iters.String() + " iterations")
	return nil
}

type phaseKind uint8

const (
	phasePrepare phaseKind = iota
	phaseIterate
	phaseFinish
)

type phase struct {
	kind phaseKind
	iter IterCount
}

// One tile's run of an SSEdgeCentric kernel. The main goroutine hands phases to the role goroutines and waits.
type ssRun[V any, U any] struct {
	k       *SSEdgeCentric[V, U]
	env     Env[U]
	sum     *GraphSummary[V]
	tid     int
	workers []*worker[V, U]
	wg      sync.WaitGroup
	done    chan struct{}
	bar     *commsync.Barrier
	watch   utils.Watch
}

func (r *ssRun[V, U]) coop(t int) int { return twopc.Coop(t, r.env.Tiles) }

// The tile whose co-party this tile is.
func (r *ssRun[V, U]) prev() int { return (r.tid + r.env.Tiles - 1) % r.env.Tiles }

func (r *ssRun[V, U]) reset(iter IterCount) bool {
	e := r.k.App.EpochLength()
	return e > 0 && iter > 0 && iter%e == 0
}

// A client and a server for every peer.
func (r *ssRun[V, U]) StartServers() error {
	for i := 0; i < r.env.Tiles; i++ {
		if i == r.tid {
			continue
		}
		r.workers = append(r.workers, r.newWorker(twopc.ALICE, i), r.newWorker(twopc.BOB, i))
	}
	for _, w := range r.workers {
		r.wg.Add(1)
		go w.serve(&r.wg)
	}
	return nil
}

func (r *ssRun[V, U]) CloseServers() error {
	for _, w := range r.workers {
		close(w.cmds)
	}
	r.wg.Wait()
	return nil
}

func (r *ssRun[V, U]) runPhase(ph phase) {
	for _, w := range r.workers {
		w.cmds <- ph
	}
	for range r.workers {
		<-r.done
	}
}

// Splits the local rows: ALICE keeps one share, the other goes to every peer during prepare.
func (r *ssRun[V, U]) OnStart() error {
	r.watch.Start()
	rows := make([][]float64, len(r.sum.Data))
	for i, d := range r.sum.Data {
		rows[i] = r.k.App.VertexRow(d)
	}
	r.sum.LocalShares, r.sum.initB = r.env.Party.Src.SplitVecVec(share.EncodeVecVec(rows))
	r.sum.LocalBackup = r.sum.LocalShares.Clone()
	r.runPhase(phase{kind: phasePrepare})
	r.sum.initB = nil
	if r.k.Verbose() {
		r.watch.Lap(r.k.Name() + " prepare")
	}
	return nil
}

func (r *ssRun[V, U]) OnIteration(iter IterCount) (bool, error) {
	if r.reset(iter) {
		r.sum.LocalShares = r.sum.LocalBackup.Clone()
		for s, b := range r.sum.RemoteBackup {
			if b != nil {
				r.sum.RemoteShares[s] = b.Clone()
			}
		}
	}
	r.runPhase(phase{kind: phaseIterate, iter: iter})
	if r.k.Verbose() {
		r.watch.Lap(r.k.Name() + " iteration " + iter.String())
	}
	return false, nil
}

func (r *ssRun[V, U]) OnEnd() error {
	r.runPhase(phase{kind: phaseFinish})
	log.Debug().Msg(r.k.Name() + ": tile " + utils.V(r.tid) + " ran for " + utils.V(r.watch.Elapsed().Milliseconds()) + " ms")
	return nil
}
