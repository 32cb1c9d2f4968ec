// Package engine holds the graph tiles and kernels of a run, connects the tiles and runs every kernel on them.
package engine

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ScottSallinen/ssgas/commsync"
	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/graph"
	"github.com/ScottSallinen/ssgas/kernel"
	"github.com/ScottSallinen/ssgas/share"
	"github.com/ScottSallinen/ssgas/transport"
	"github.com/ScottSallinen/ssgas/twopc"
	"github.com/ScottSallinen/ssgas/utils"
)

// Engine runs its kernels, in order, on its tiles. With a tile index it is one party of a distributed run
// and reaches the other tiles over websockets; with graph.AllTiles every tile runs in this process.
type Engine[V any, U any] struct {
	tiles        []*graph.GraphTile[V, U]
	kernels      []kernel.Kernel[V, U]
	tileIndex    int
	meshConfig   transport.MeshConfig
	sharer       commsync.Sharer[U]
	noPreprocess bool
	maxIters     uint64
}

func New[V any, U any]() *Engine[V, U] {
	return &Engine[V, U]{tileIndex: graph.AllTiles, meshConfig: transport.DefaultMeshConfig(), maxIters: ^uint64(0)}
}

func (e *Engine[V, U]) GraphTile(tid graph.TileIdx) *graph.GraphTile[V, U] {
	if int(tid) >= len(e.tiles) {
		return nil
	}
	return e.tiles[tid]
}

func (e *Engine[V, U]) GraphTileCount() int                   { return len(e.tiles) }
func (e *Engine[V, U]) GraphTileIndex() int                   { return e.tileIndex }
func (e *Engine[V, U]) TileIndexIs(idx int)                   { e.tileIndex = idx }
func (e *Engine[V, U]) MeshConfigIs(cfg transport.MeshConfig) { e.meshConfig = cfg }
func (e *Engine[V, U]) NoPreprocessIs(v bool)                 { e.noPreprocess = v }
func (e *Engine[V, U]) SharerIs(s commsync.Sharer[U])         { e.sharer = s }

// Mask budget of each mapping; it should match the iteration cap of the kernels.
func (e *Engine[V, U]) MaxItersIs(n uint64) { e.maxIters = n }

// Appends a tile. Tiles must arrive in tile index order.
func (e *Engine[V, U]) GraphTileNew(tile *graph.GraphTile[V, U]) error {
	if tile == nil {
		return enforce.Errorf(enforce.ErrNullPointer, "graph tile")
	}
	if int(tile.Tid()) != len(e.tiles) {
		return enforce.Errorf(enforce.ErrInvalidArgument, "graph tile %v appended at %d", tile.Tid(), len(e.tiles))
	}
	e.tiles = append(e.tiles, tile)
	return nil
}

// Replaces every tile. Tile i must have index i.
func (e *Engine[V, U]) GraphTilesIs(tiles []*graph.GraphTile[V, U]) error {
	for i, tile := range tiles {
		if tile == nil {
			return enforce.Errorf(enforce.ErrNullPointer, "graph tile %d", i)
		}
		if int(tile.Tid()) != i {
			return enforce.Errorf(enforce.ErrInvalidArgument, "graph tile %v at position %d", tile.Tid(), i)
		}
	}
	e.tiles = tiles
	return nil
}

func (e *Engine[V, U]) KernelCount() int               { return len(e.kernels) }
func (e *Engine[V, U]) Kernels() []kernel.Kernel[V, U] { return e.kernels }

func (e *Engine[V, U]) KernelNew(k kernel.Kernel[V, U]) error {
	if k == nil {
		return enforce.Errorf(enforce.ErrNullPointer, "kernel")
	}
	e.kernels = append(e.kernels, k)
	return nil
}

// Removes the kernel at position i.
func (e *Engine[V, U]) KernelDel(i int) error {
	if i < 0 || i >= len(e.kernels) {
		return enforce.Errorf(enforce.ErrRange, "kernel %d of %d", i, len(e.kernels))
	}
	e.kernels = append(e.kernels[:i], e.kernels[i+1:]...)
	return nil
}

// Run connects the tiles, runs every kernel to completion and tears the connections down.
func (e *Engine[V, U]) Run(ctx context.Context) error {
	n := len(e.tiles)
	if n == 0 {
		return enforce.Errorf(enforce.ErrInvalidArgument, "no graph tiles")
	}
	src, err := share.NewSource()
	if err != nil {
		return err
	}
	watch := utils.Watch{}
	watch.Start()
	if e.tileIndex == graph.AllTiles {
		err = e.runLocal(ctx, src)
	} else {
		err = e.runRemote(ctx, src)
	}
	if err != nil {
		return err
	}
	log.Info().Msg("Engine: " + utils.V(len(e.kernels)) + " kernels on " + utils.V(n) + " tiles in " + utils.V(watch.Elapsed().Milliseconds()) + " ms")
	utils.MemoryStats()
	return nil
}

func (e *Engine[V, U]) party(tid, n int, src *share.Source) *twopc.Party {
	p := twopc.NewParty(tid, n, src)
	p.NoPreprocess = e.noPreprocess
	p.MaxIters = e.maxIters
	return p
}

func (e *Engine[V, U]) runKernels(ctx context.Context, tile *graph.GraphTile[V, U], env kernel.Env[U]) error {
	for _, k := range e.kernels {
		log.Debug().Msg("Engine: tile " + tile.Tid().String() + " runs " + k.Name())
		if err := k.Run(ctx, tile, env); err != nil {
			return err
		}
	}
	return nil
}

// Every tile in its own goroutine, over an in-memory mesh and a shared CommSync.
func (e *Engine[V, U]) runLocal(ctx context.Context, src *share.Source) error {
	n := len(e.tiles)
	meshes := transport.NewLocalMeshes(n)
	cs := commsync.New[graph.VertexIdx, U](n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for tid := range e.tiles {
		wg.Add(1)
		go func(tid int) {
			defer wg.Done()
			env := kernel.Env[U]{Tiles: n, CS: cs, Mesh: meshes[tid], Party: e.party(tid, n, src)}
			errs[tid] = e.runKernels(ctx, e.tiles[tid], env)
		}(tid)
	}
	wg.Wait()
	for _, m := range meshes {
		if err := m.Close(); err != nil {
			log.Warn().Err(err).Msg("Engine: closing local mesh")
		}
	}
	for tid, err := range errs {
		if err != nil {
			return enforce.Errorf(err, "tile %d", tid)
		}
	}
	return nil
}

// This process is tile e.tileIndex; the peers are other processes reached through the websocket mesh.
func (e *Engine[V, U]) runRemote(ctx context.Context, src *share.Source) error {
	n := len(e.tiles)
	if e.tileIndex < 0 || e.tileIndex >= n {
		return enforce.Errorf(enforce.ErrInvalidArgument, "tile index %d of %d tiles", e.tileIndex, n)
	}
	log.Info().Msg("Engine: setting up channels for tile " + utils.V(e.tileIndex) + " of " + utils.V(n))
	mesh, err := transport.Establish(ctx, e.meshConfig, e.tileIndex, n)
	if err != nil {
		return err
	}
	defer func() {
		sent, recv := mesh.Traffic()
		log.Debug().Uint64("sent", sent).Uint64("recv", recv).Msg("Engine: closing channels")
		if err := mesh.Close(); err != nil {
			log.Warn().Err(err).Msg("Engine: closing mesh")
		}
	}()

	cs := commsync.New[graph.VertexIdx, U](n)
	cs.SetMesh(e.tileIndex, mesh, e.sharer)
	env := kernel.Env[U]{Tiles: n, Distributed: true, CS: cs, Mesh: mesh, Party: e.party(e.tileIndex, n, src)}
	return e.runKernels(ctx, e.tiles[e.tileIndex], env)
}
