package kernel

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ScottSallinen/ssgas/commsync"
	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/graph"
	"github.com/ScottSallinen/ssgas/share"
	"github.com/ScottSallinen/ssgas/task"
	"github.com/ScottSallinen/ssgas/utils"
)

// EdgeApp is the plaintext algorithm run by the EdgeCentric kernel.
type EdgeApp[V any, U task.Number] interface {
	// The update sent along an out edge of src. False sends nothing.
	Scatter(iter IterCount, src *graph.Vertex[V, U], weight float64) (U, bool)
	// Consumes the reduced updates of dst (got is false when none arrived). Returns true if dst did not change.
	Gather(iter IterCount, dst *graph.Vertex[V, U], acc U, got bool) (converged bool)
	// Task kind used to reduce queued updates pairwise.
	ReduceKind() task.Kind
}

// EdgeCentric runs an EdgeApp in the clear: scatter along local edges, route updates to the owner tile,
// reduce them with tasks, gather. Stops at MaxIters or once every tile reports no change.
type EdgeCentric[V any, U task.Number] struct {
	Base
	App EdgeApp[V, U]
}

func NewEdgeCentric[V any, U task.Number](name string, app EdgeApp[V, U]) *EdgeCentric[V, U] {
	return &EdgeCentric[V, U]{Base: NewBase(name), App: app}
}

func (k *EdgeCentric[V, U]) Tag() Tag { return TagEdgeCentric }

func (k *EdgeCentric[V, U]) Run(ctx context.Context, tile *graph.GraphTile[V, U], env Env[U]) error {
	if tile == nil || env.CS == nil || k.App == nil {
		return enforce.Errorf(enforce.ErrNullPointer, "%s: tile, commsync and app are required", k.Name())
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r := &edgeRun[V, U]{k: k, tile: tile, env: env, tid: int(tile.Tid())}
	iters, err := k.Drive(r)
	if err != nil {
		return err
	}
	log.Info().Msg(k.Name() + ": tile " + utils.V(r.tid) + " done after " + iters.String() + " iterations")
	return nil
}

// One tile's run of an EdgeCentric kernel.
type edgeRun[V any, U task.Number] struct {
	k     *EdgeCentric[V, U]
	tile  *graph.GraphTile[V, U]
	env   Env[U]
	tid   int
	watch utils.Watch
}

func (r *edgeRun[V, U]) OnStart() error {
	if !r.tile.Finalized() {
		return enforce.Errorf(enforce.ErrPermission, "%s: tile %d is not finalized", r.k.Name(), r.tid)
	}
	r.watch.Start()
	return nil
}

func (r *edgeRun[V, U]) OnIteration(iter IterCount) (bool, error) {
	if err := r.scatter(iter); err != nil {
		return false, err
	}
	var err error
	if r.env.Distributed {
		err = r.exchangeRemote()
	} else {
		err = r.exchangeLocal()
	}
	if err != nil {
		return false, err
	}
	return r.gather(iter)
}

func (r *edgeRun[V, U]) OnEnd() error {
	if r.k.Verbose() {
		log.Debug().Msg(r.k.Name() + ": tile " + utils.V(r.tid) + " ran for " + utils.V(r.watch.Elapsed().Milliseconds()) + " ms")
	}
	return nil
}

// Local destinations queue the update directly; remote ones go to their master's tile.
func (r *edgeRun[V, U]) scatter(iter IterCount) (err error) {
	cs := r.env.CS
	r.tile.ForEachEdge(func(e *graph.Edge) {
		if err != nil {
			return
		}
		u, ok := r.k.App.Scatter(iter, r.tile.Vertex(e.Src), e.Weight)
		if !ok {
			return
		}
		if dst := r.tile.Vertex(e.Dst); dst != nil {
			dst.UpdateNew(u)
			return
		}
		master := int(r.tile.MirrorVertex(e.Dst).MasterTileId())
		if r.env.Distributed {
			err = cs.RemoteKeyValNew(r.tid, master, e.Dst, u)
		} else {
			cs.KeyValNew(r.tid, master, e.Dst, u)
		}
	})
	return err
}

func (r *edgeRun[V, U]) deliver(key graph.VertexIdx, u U) {
	v := r.tile.Vertex(key)
	if v == nil {
		enforce.Fatal(enforce.Errorf(enforce.ErrRange, "tile %d: update for vertex %v it does not own", r.tid, key), r.k.Name())
	}
	v.UpdateNew(u)
}

// Every tile shares the CommSync: end tags, then the partitions of this tile's streams, drained in parallel.
func (r *edgeRun[V, U]) exchangeLocal() error {
	cs := r.env.CS
	for cons := 0; cons < r.env.Tiles; cons++ {
		cs.EndTagNew(r.tid, cons)
	}
	prtns, status := cs.KeyValPartitions(r.tid, r.k.Options().NumParts, func(k graph.VertexIdx) int { return int(k) })
	if status != commsync.RecvFinished {
		return enforce.Errorf(enforce.ErrQueue, "tile %d: receive ended as %v", r.tid, status)
	}
	var wg sync.WaitGroup
	for _, kvs := range prtns {
		if len(kvs) == 0 {
			continue
		}
		wg.Add(1)
		go func(kvs []commsync.KeyValue[graph.VertexIdx, U]) {
			defer wg.Done()
			for _, kv := range kvs {
				r.deliver(kv.Key, kv.Val)
			}
		}(kvs)
	}
	wg.Wait()
	cs.KeyValConsDelAll(r.tid)
	return nil
}

// Each process holds one tile: end our streams, drain every peer, then confirm both directions.
func (r *edgeRun[V, U]) exchangeRemote() error {
	cs := r.env.CS
	for p := 0; p < r.env.Tiles; p++ {
		if p != r.tid {
			if err := cs.EndRemoteKeyValNew(r.tid, p); err != nil {
				return err
			}
		}
	}
	for p := 0; p < r.env.Tiles; p++ {
		if p == r.tid {
			continue
		}
		n, err := cs.GetAllKeyValNew(p, r.tid)
		if err != nil {
			return err
		}
		if err := cs.EndGetKeyValNew(p, r.tid); err != nil {
			return err
		}
		log.Trace().Msg("Tile " + utils.V(r.tid) + " received " + utils.V(n) + " updates from " + utils.V(p))
	}
	for p := 0; p < r.env.Tiles; p++ {
		if p != r.tid {
			if err := cs.EnsureEndGetKeyValNew(r.tid, p); err != nil {
				return err
			}
		}
	}
	for _, kvs := range cs.KeyValTiles(r.tid) {
		for _, kv := range kvs {
			r.deliver(kv.Key, kv.Val)
		}
	}
	cs.KeyValConsDelAll(r.tid)
	return nil
}

// Pairwise reduction of each vertex's queue, padded to a power of two with dummy tasks unless disabled.
func (r *edgeRun[V, U]) gather(iter IterCount) (bool, error) {
	kind := r.k.App.ReduceKind()
	dummies := !r.k.Options().NoDummy
	converged := true
	for _, v := range r.tile.Vertices() {
		got := v.HasUpdate
		for v.UpdateQueueLen() > 0 {
			pairs, err := v.UpdatePairs()
			if err != nil {
				return false, err
			}
			for _, t := range task.ReductionTasks(kind, v.Vid(), r.tile.Tid(), pairs, dummies) {
				if err := task.Execute(t); err != nil {
					return false, err
				}
				if t.IsDummy {
					continue
				}
				res, err := task.ScalarResult[U](t)
				if err != nil {
					return false, err
				}
				v.WriteUpdateResult(res, t.IsFinal)
			}
		}
		if !r.k.App.Gather(iter, v, v.AccUpdate, got) {
			converged = false
		}
		v.UpdateDelAll()
	}
	return converged, nil
}

// AND of every tile's flag: the shared barrier in process, one flag exchanged with each peer otherwise.
func (r *edgeRun[V, U]) Vote(converged bool) bool {
	if !r.env.Distributed {
		return r.env.CS.BarrierAND(r.tid, converged)
	}
	flag := share.PosVec{0}
	if converged {
		flag[0] = 1
	}
	all := converged
	for p := 0; p < r.env.Tiles; p++ {
		if p != r.tid {
			if err := r.env.CS.SendPosVec(p, flag); err != nil {
				enforce.Fatal(err, r.k.Name()+": vote")
			}
		}
	}
	for p := 0; p < r.env.Tiles; p++ {
		if p == r.tid {
			continue
		}
		theirs, err := r.env.CS.RecvPosVec(p)
		if err != nil || len(theirs) != 1 {
			enforce.Fatal(enforce.Errorf(enforce.ErrMessage, "vote from tile %d (%v)", p, err), r.k.Name())
		}
		all = all && theirs[0] == 1
	}
	return all
}
