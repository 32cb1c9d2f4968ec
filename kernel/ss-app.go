package kernel

import (
	"github.com/ScottSallinen/ssgas/share"
	"github.com/ScottSallinen/ssgas/twopc"
)

// Step is what an App hook sees of the session it runs in. The subject is the tile whose vertex rows are
// processed; ALICE sits on the subject and alone gets its plaintext metadata.
type Step[V any] struct {
	Sess    *twopc.Session
	Iter    IterCount
	Subject int
	Tiles   int

	// Ring sessions only: the model share of this side, and scratch kept across iterations.
	Model   share.TensorMap
	Scratch share.TensorMap

	// ALICE only, indexed by position.
	Data   []*V
	InDeg  []float64
	OutDeg []float64
}

func (st *Step[V]) Alice() bool { return st.Sess.Role == twopc.ALICE }

// App is the algorithm run by the secret shared edge-centric kernel. Every hook that takes shares is called
// by both parties of a session with their own shares, and must issue the same session calls on both sides.
// Metadata arguments (slots, skip) are nil on BOB.
type App[V any] interface {
	// Plaintext row of a vertex, and the inverse applied to the opened result.
	VertexRow(data *V) []float64
	WriteVertexRow(data *V, row []float64)
	// Initial model, identical on every tile. Keys name the tensors.
	InitModel() share.TensorMap

	// Vertex rows return to their initial values every EpochLength iterations; 0 never.
	EpochLength() IterCount
	// No scatter or gather this iteration: Apply gets the rows themselves as accumulator.
	ApplyOnly(iter IterCount) bool
	// Average the model over every tile after this iteration.
	SyncWeights(iter IterCount) bool

	PreScatter(st *Step[V], x share.VecVec) (share.VecVec, error)
	// One row per slot in, one out, of the same width.
	Scatter(st *Step[V], in share.VecVec, slots *Slots) (share.VecVec, error)
	GatherSeed(st *Step[V], x share.VecVec) (share.VecVec, error)
	// Folds the updates from one source tile in. Called for every tile in order; last marks the final one.
	Gather(st *Step[V], acc, upd share.VecVec, skip func(row int) bool, last bool) (share.VecVec, error)
	Apply(st *Step[V], x, acc share.VecVec) (share.VecVec, error)
}

// Replaces the default merge of scattered rows by destination: a segmented sum keyed by destination position.
type PreMerger[V any] interface {
	PreMerge(st *Step[V], upd share.VecVec, dstPos share.PosVec) (share.VecVec, error)
}
