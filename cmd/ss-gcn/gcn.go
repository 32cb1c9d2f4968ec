package main

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/graph"
	"github.com/ScottSallinen/ssgas/kernel"
	"github.com/ScottSallinen/ssgas/share"
	"github.com/ScottSallinen/ssgas/task"
	"github.com/ScottSallinen/ssgas/utils"
)

type Split uint8

const (
	Train Split = iota
	Validate
	Test
)

func (s Split) String() string {
	switch s {
	case Train:
		return "train"
	case Validate:
		return "validate"
	}
	return "test"
}

type VertexData struct {
	Features   []float64
	Label      int
	Split      Split
	Prediction int // Class of the highest score in the latest forward pass; -1 before any.
}

// Seed of the weight initialization, shared by every tile so all start from the same model.
var initKey = []byte("ss-gcn glorot init")

// GCN trains a graph convolutional network with full batch gradient descent. One epoch is a forward pass
// through every layer, then two iterations per layer backwards: a weight update, and the propagation of
// the error to the layer below.
type GCN struct {
	P    task.GNNParam
	dims []int // Width of the rows entering each layer, then the label count.
}

func NewGCN(p task.GNNParam) (*GCN, error) {
	if p.NumLayers < 1 || p.NumLabels < 1 || p.InputDim < 1 || (p.NumLayers > 1 && p.HiddenDim < 1) {
		return nil, enforce.Errorf(enforce.ErrInvalidArgument, "gcn: %d layers, %d labels, input %d, hidden %d", p.NumLayers, p.NumLabels, p.InputDim, p.HiddenDim)
	}
	if p.LearningRate <= 0 || p.TrainRatio <= 0 || p.TrainRatio+p.ValRatio+p.TestRatio > 1+1e-9 {
		return nil, enforce.Errorf(enforce.ErrInvalidArgument, "gcn: learning rate %v, ratios %v/%v/%v", p.LearningRate, p.TrainRatio, p.ValRatio, p.TestRatio)
	}
	g := &GCN{P: p, dims: []int{p.InputDim}}
	for l := 1; l < p.NumLayers; l++ {
		g.dims = append(g.dims, p.HiddenDim)
	}
	g.dims = append(g.dims, p.NumLabels)
	return g, nil
}

func (g *GCN) layers() int                     { return g.P.NumLayers }
func (g *GCN) phase(iter kernel.IterCount) int { return int(iter % g.EpochLength()) }

// The first samples by vertex id train, the next validate, the rest test.
func (g *GCN) SplitOf(vid graph.VertexIdx) Split {
	n := float64(g.P.NumSamples)
	switch {
	case float64(vid) < math.Floor(n*g.P.TrainRatio):
		return Train
	case float64(vid) < math.Floor(n*(g.P.TrainRatio+g.P.ValRatio)):
		return Validate
	}
	return Test
}

func (g *GCN) trainCount() float64 {
	return math.Max(1, math.Floor(float64(g.P.NumSamples)*g.P.TrainRatio))
}

func (g *GCN) NewVertexData(graph.VertexIdx) VertexData { return VertexData{Prediction: -1} }

func (g *GCN) ReadRow(v *graph.Vertex[VertexData, float64], row graph.VertexRow) {
	v.Data.Features, v.Data.Label = row.Features, row.Label
	v.Data.Split = g.SplitOf(v.Vid())
}

// Features cut or zero padded to the input width.
func (g *GCN) VertexRow(d *VertexData) []float64 {
	row := make([]float64, g.P.InputDim)
	copy(row, d.Features)
	return row
}

func (*GCN) WriteVertexRow(*VertexData, []float64) {}

func wKey(l int) string  { return "w" + utils.V(l) }
func ahKey(l int) string { return "ah" + utils.V(l) }
func zKey(l int) string  { return "z" + utils.V(l) }

// Glorot uniform weights from a fixed key.
func (g *GCN) InitModel() share.TensorMap {
	src, err := share.NewKeyedSource(initKey)
	enforce.ENFORCE(err, "gcn init source")
	model := make(share.TensorMap)
	for l := 0; l < g.layers(); l++ {
		in, out := g.dims[l], g.dims[l+1]
		limit := math.Sqrt(6 / float64(in+out))
		w := make([][]float64, in)
		for i := range w {
			w[i] = make([]float64, out)
			for j := range w[i] {
				u := float64(src.Uint64()>>11) / (1 << 53)
				w[i][j] = (2*u - 1) * limit
			}
		}
		model[wKey(l)] = share.EncodeVecVec(w)
	}
	return model
}

func (g *GCN) EpochLength() kernel.IterCount { return kernel.IterCount(3 * g.layers()) }

func (g *GCN) ApplyOnly(iter kernel.IterCount) bool {
	k := g.phase(iter)
	return k >= g.layers() && (k-g.layers())%2 == 0
}

func (g *GCN) SyncWeights(iter kernel.IterCount) bool { return g.ApplyOnly(iter) }

// Degree normalization shared by the forward pass and the error propagation: x_u / sqrt(out_u + 1) leaves
// every source, x_v / sqrt(in_v + 1) seeds every destination, and the sum is scaled once more by the latter.
func invSqrt(deg []float64) []float64 {
	f := make([]float64, len(deg))
	for i, d := range deg {
		f[i] = 1 / math.Sqrt(d+1)
	}
	return f
}

func (*GCN) PreScatter(st *kernel.Step[VertexData], x share.VecVec) (share.VecVec, error) {
	var f []float64
	if st.Alice() {
		f = invSqrt(st.OutDeg)
	}
	return st.Sess.ScaleRows(x, f)
}

func (*GCN) Scatter(st *kernel.Step[VertexData], in share.VecVec, slots *kernel.Slots) (share.VecVec, error) {
	var f []float64
	if st.Alice() {
		f = make([]float64, slots.Len())
		for i := range f {
			if !slots.Dummy[i] {
				f[i] = 1
			}
		}
	}
	return st.Sess.ScaleRows(in, f)
}

func (*GCN) GatherSeed(st *kernel.Step[VertexData], x share.VecVec) (share.VecVec, error) {
	var f []float64
	if st.Alice() {
		f = invSqrt(st.InDeg)
	}
	return st.Sess.ScaleRows(x, f)
}

func (*GCN) Gather(st *kernel.Step[VertexData], acc, upd share.VecVec, skip func(int) bool, last bool) (share.VecVec, error) {
	acc, err := st.Sess.CondAdd(acc, upd, skip)
	if err != nil || !last {
		return acc, err
	}
	var f []float64
	if st.Alice() {
		f = invSqrt(st.InDeg)
	}
	return st.Sess.ScaleRows(acc, f)
}

func (g *GCN) Apply(st *kernel.Step[VertexData], x, acc share.VecVec) (share.VecVec, error) {
	k := g.phase(st.Iter)
	if k < g.layers() {
		return g.forward(st, k, acc)
	}
	j := k - g.layers()
	if j%2 == 1 {
		// The error aggregated for the layer below; its ReLU mask is applied by that layer's update.
		return acc, nil
	}
	return g.update(st, g.layers()-1-j/2, x)
}

// Layer l on the aggregated rows. The last layer turns its scores into the output error.
func (g *GCN) forward(st *kernel.Step[VertexData], l int, ah share.VecVec) (share.VecVec, error) {
	st.Scratch[ahKey(l)] = ah
	if l == g.layers()-1 {
		return g.outputError(st, ah)
	}
	z, h, err := st.Sess.Forward(ah, st.Model[wKey(l)])
	if err != nil {
		return nil, err
	}
	st.Scratch[zKey(l)] = z
	return h, nil
}

// (softmax(ah * w) - y) / trainCount over the training rows, zero elsewhere. ALICE also records the predictions.
func (g *GCN) outputError(st *kernel.Step[VertexData], ah share.VecVec) (share.VecVec, error) {
	var y share.VecVec
	var skip func(int) bool
	if st.Alice() {
		onehot := make([][]float64, len(st.Data))
		for i, d := range st.Data {
			onehot[i] = make([]float64, g.P.NumLabels)
			if d.Label >= 0 && d.Label < g.P.NumLabels {
				onehot[i][d.Label] = 1
			}
		}
		y = share.EncodeVecVec(onehot)
		data := st.Data
		skip = func(row int) bool {
			return data[row].Split != Train || data[row].Label < 0 || data[row].Label >= g.P.NumLabels
		}
	}
	y, err := st.Sess.Share(y)
	if err != nil {
		return nil, err
	}
	z, e, err := st.Sess.Predict(ah, st.Model[wKey(g.layers()-1)], y, skip)
	if err != nil {
		return nil, err
	}

	scores, err := st.Sess.Open(z)
	if err != nil {
		return nil, err
	}
	if st.Alice() {
		for i, row := range scores {
			if len(row) > 0 {
				st.Data[i].Prediction = floats.MaxIdx(row.Decode())
			}
		}
	}

	return st.Sess.Scale(e, 1/g.trainCount())
}

// Weight gradient of layer l from its aggregated input and the error e, the error carried below it, and the
// step. Every tile steps by its own gradient times the tile count; the average over tiles is the full batch step.
// Hidden layers first mask e by the derivative of their ReLU.
func (g *GCN) update(st *kernel.Step[VertexData], l int, e share.VecVec) (share.VecVec, error) {
	w := st.Model[wKey(l)]
	var dw, below share.VecVec
	var err error
	if l == g.layers()-1 {
		dw, below, err = st.Sess.BackwardInit(e, st.Scratch[ahKey(l)], w)
	} else {
		dw, below, err = st.Sess.Backward(e, st.Scratch[ahKey(l)], st.Scratch[zKey(l)], w)
	}
	if err != nil {
		return nil, err
	}
	step, err := st.Sess.Scale(dw, g.P.LearningRate*float64(st.Tiles))
	if err != nil {
		return nil, err
	}
	if len(step) == len(w) && step.Cols() == w.Cols() {
		st.Model[wKey(l)] = w.Sub(step)
	}
	return below, nil
}

// Correct predictions and labelled vertices of one split over the given tiles.
func Accuracy(tiles []*graph.GraphTile[VertexData, float64], tids []int, split Split) (correct, total int) {
	for _, tid := range tids {
		for _, v := range tiles[tid].Vertices() {
			if v.Data.Split != split || v.Data.Label < 0 {
				continue
			}
			total++
			if v.Data.Prediction == v.Data.Label {
				correct++
			}
		}
	}
	return correct, total
}
