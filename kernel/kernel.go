// Package kernel drives algorithm kernels over a graph tile: the base lifecycle, a plain edge-centric
// kernel, and the secret shared edge-centric orchestrator.
package kernel

import (
	"context"
	"math"
	"strconv"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/ScottSallinen/ssgas/commsync"
	"github.com/ScottSallinen/ssgas/graph"
	"github.com/ScottSallinen/ssgas/transport"
	"github.com/ScottSallinen/ssgas/twopc"
	"github.com/ScottSallinen/ssgas/utils"
)

type IterCount uint64

func (i IterCount) String() string { return strconv.FormatUint(uint64(i), 10) }

const InfiniteIters = IterCount(math.MaxUint64)

type State uint32

const (
	Created State = iota
	Started
	Iterating
	Ended
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Started:
		return "started"
	case Iterating:
		return "iterating"
	case Ended:
		return "ended"
	}
	return "unknown"
}

type Tag uint8

const (
	TagEdgeCentric Tag = iota
	TagVertexCentric
)

func TagName(t Tag) string {
	switch t {
	case TagEdgeCentric:
		return "edge-centric"
	case TagVertexCentric:
		return "vertex-centric"
	}
	return "invalid"
}

type Options struct {
	Name         string
	Verbose      bool
	MaxIters     IterCount
	NumParts     int          // Partitions of the incoming update streams.
	TidMap       graph.TidMap // Owner tile of every vertex.
	CurTid       graph.TileIdx
	NoPreprocess bool // Draw fresh masks for every mapping instead of preprocessed ones.
	NoDummy      bool // Pad source lists to at least one entry only, not to a power of two.
}

func DefaultOptions(name string) Options {
	return Options{Name: name, MaxIters: InfiniteIters, NumParts: 1}
}

// Env is what the engine hands a kernel for one tile.
type Env[U any] struct {
	Tiles       int
	Distributed bool // Each tile runs in its own process; the CommSync is not shared.
	CS          *commsync.CommSync[graph.VertexIdx, U]
	Mesh        transport.Mesh
	Party       *twopc.Party
}

// Kernel is an algorithm the engine runs on each of its tiles, concurrently when they share a process.
type Kernel[V any, U any] interface {
	Name() string
	Tag() Tag
	State() State
	Options() Options
	Run(ctx context.Context, tile *graph.GraphTile[V, U], env Env[U]) error
}

// Lifecycle is one tile's run, driven by Base.Drive.
type Lifecycle interface {
	OnStart() error
	OnIteration(iter IterCount) (converged bool, err error)
}

type KernelOnIterationEnd interface {
	OnIterationEnd(iter IterCount) error
}

type KernelOnEnd interface {
	OnEnd() error
}

// Background goroutines that live for the whole run, started before OnStart and closed after OnEnd.
type KernelServers interface {
	StartServers() error
	CloseServers() error
}

// Kernels that stop on convergence AND-reduce the local flag over every tile. Others run to MaxIters.
type KernelVote interface {
	Vote(converged bool) (all bool)
}

// Base carries the options and state shared by every kernel.
type Base struct {
	opts    Options
	state   atomic.Uint32
	running atomic.Int32
}

func NewBase(name string) Base {
	return Base{opts: DefaultOptions(name)}
}

func (b *Base) Name() string        { return b.opts.Name }
func (b *Base) Options() Options    { return b.opts }
func (b *Base) State() State        { return State(b.state.Load()) }
func (b *Base) Verbose() bool       { return b.opts.Verbose }
func (b *Base) MaxIters() IterCount { return b.opts.MaxIters }

func (b *Base) VerboseIs(v bool)           { b.opts.Verbose = v }
func (b *Base) MaxItersIs(n IterCount)     { b.opts.MaxIters = n }
func (b *Base) TidMapIs(m graph.TidMap)    { b.opts.TidMap = m }
func (b *Base) CurTidIs(tid graph.TileIdx) { b.opts.CurTid = tid }
func (b *Base) NoPreprocessIs(v bool)      { b.opts.NoPreprocess = v }
func (b *Base) NoDummyIs(v bool)           { b.opts.NoDummy = v }

func (b *Base) NumPartsIs(n int) {
	b.opts.NumParts = utils.Max(n, 1)
}

func (b *Base) begin() {
	b.running.Add(1)
	b.state.Store(uint32(Started))
}

func (b *Base) finish() {
	if b.running.Add(-1) == 0 {
		b.state.Store(uint32(Ended))
	}
}

// Drive runs one tile through the lifecycle: servers, OnStart, iterations until MaxIters (or until every
// tile votes converged), OnEnd, then closing the servers. Returns the number of iterations run.
func (b *Base) Drive(lc Lifecycle) (iters IterCount, err error) {
	b.begin()
	defer b.finish()

	if srv, ok := lc.(KernelServers); ok {
		if err := srv.StartServers(); err != nil {
			return 0, err
		}
		defer func() {
			if cerr := srv.CloseServers(); cerr != nil && err == nil {
				err = cerr
			}
		}()
	}
	if err := lc.OnStart(); err != nil {
		return 0, err
	}
	b.state.Store(uint32(Iterating))

	voter, votes := lc.(KernelVote)
	ender, ends := lc.(KernelOnIterationEnd)
	for iters < b.opts.MaxIters {
		converged, err := lc.OnIteration(iters)
		if err != nil {
			return iters, err
		}
		if ends {
			if err := ender.OnIterationEnd(iters); err != nil {
				return iters, err
			}
		}
		iters++
		if b.opts.Verbose {
			log.Debug().Msg(b.opts.Name + ": iteration " + iters.String() + " done, converged " + utils.V(converged))
		}
		if votes && voter.Vote(converged) {
			break
		}
	}

	if e, ok := lc.(KernelOnEnd); ok {
		if err := e.OnEnd(); err != nil {
			return iters, err
		}
	}
	return iters, nil
}

// Padded length of a source list of n entries: the next power of two with dummies, otherwise at least one.
func PaddedSize(n int, dummies bool) int {
	if dummies {
		return utils.Max(int(utils.RoundUpPow(uint64(n))), 1)
	}
	return utils.Max(n, 1)
}
