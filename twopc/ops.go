package twopc

import (
	"gonum.org/v1/gonum/floats"

	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/share"
	"github.com/ScottSallinen/ssgas/task"
)

// Segmented prefix sum over runs of equal labels: each row becomes the sum of its run up to and including itself,
// so the last row of a run carries the run total. Only ALICE knows the labels.
func (s *Session) SegmentedSum(in share.VecVec, labels share.PosVec) (share.VecVec, error) {
	if s.Role == ALICE && len(labels) != len(in) {
		return nil, enforce.Errorf(enforce.ErrRange, "segmented sum: %d labels for %d rows", len(labels), len(in))
	}
	return s.eval([]share.VecVec{in}, nil, func(xs []share.VecVec) (share.VecVec, error) {
		out := xs[0].Clone()
		err := runTasks(task.GCNVectorAddition, len(out), func(i int) (*task.VectorAddition, bool) {
			if i == 0 {
				return &task.VectorAddition{Operands: [2]share.Vec{out[0]}}, true
			}
			return &task.VectorAddition{Operands: [2]share.Vec{out[i], out[i-1]}}, labels[i] != labels[i-1]
		}, func(i int, p *task.VectorAddition) {
			out[i] = p.Operands[0].Clone()
		})
		return out, err
	})
}

// Row i scaled by ALICE's public factor f[i].
func (s *Session) ScaleRows(in share.VecVec, f []float64) (share.VecVec, error) {
	if s.Role == ALICE && len(f) != len(in) {
		return nil, enforce.Errorf(enforce.ErrRange, "scale rows: %d factors for %d rows", len(f), len(in))
	}
	return s.eval([]share.VecVec{in}, nil, func(xs []share.VecVec) (share.VecVec, error) {
		return scaleRows(xs[0], func(i int) float64 { return f[i] })
	})
}

// Every entry scaled by c.
func (s *Session) Scale(in share.VecVec, c float64) (share.VecVec, error) {
	return s.eval([]share.VecVec{in}, nil, func(xs []share.VecVec) (share.VecVec, error) {
		return scaleRows(xs[0], func(int) float64 { return c })
	})
}

// One GCN layer: z = ah * w and h = ReLU(z), row by row.
func (s *Session) Forward(ah, w share.VecVec) (z, h share.VecVec, err error) {
	ys, err := s.evalN([]share.VecVec{ah, w}, 2, func(xs []share.VecVec) ([]share.VecVec, error) {
		ah, w := xs[0], xs[1]
		if err := checkProduct(ah, w, "forward"); err != nil {
			return nil, err
		}
		z, h := make(share.VecVec, len(ah)), make(share.VecVec, len(ah))
		err := runTasks(task.GCNForwardNN, len(ah), func(i int) (*task.ForwardNN, bool) {
			return &task.ForwardNN{AH: ah[i], Weight: w}, false
		}, func(i int, p *task.ForwardNN) {
			z[i], h[i] = p.Z.Clone(), p.NewH.Clone()
		})
		return []share.VecVec{z, h}, err
	})
	if err != nil {
		return nil, nil, err
	}
	return ys[0], ys[1], nil
}

// The output layer: z = ah * w and e = softmax(z) - y. Rows ALICE marks get a zero error (unlabelled or held out).
func (s *Session) Predict(ah, w, y share.VecVec, skip func(row int) bool) (z, e share.VecVec, err error) {
	ys, err := s.evalN([]share.VecVec{ah, w, y}, 2, func(xs []share.VecVec) ([]share.VecVec, error) {
		ah, w, y := xs[0], xs[1], xs[2]
		if err := checkProduct(ah, w, "prediction"); err != nil {
			return nil, err
		}
		if len(y) != len(ah) {
			return nil, enforce.Errorf(enforce.ErrRange, "prediction of %d rows against %d labels", len(ah), len(y))
		}
		for i := range y {
			if len(y[i]) != w.Cols() {
				return nil, enforce.Errorf(enforce.ErrRange, "label row %d has %d classes, weights %d", i, len(y[i]), w.Cols())
			}
		}
		z, e := make(share.VecVec, len(ah)), make(share.VecVec, len(ah))
		err := runTasks(task.GCNForwardNNPrediction, len(ah), func(i int) (*task.ForwardNNPrediction, bool) {
			return &task.ForwardNNPrediction{AH: ah[i], Weight: w, Y: y[i]}, false
		}, func(i int, p *task.ForwardNNPrediction) {
			z[i] = p.Z.Clone()
			if skip != nil && skip(i) {
				e[i] = make(share.Vec, len(p.PMinusY))
			} else {
				e[i] = p.PMinusY.Clone()
			}
		})
		return []share.VecVec{z, e}, err
	})
	if err != nil {
		return nil, nil, err
	}
	return ys[0], ys[1], nil
}

// Back propagation from the output error e: dw = ah^T * e, and below = e * w^T for the layer underneath.
func (s *Session) BackwardInit(e, ah, w share.VecVec) (dw, below share.VecVec, err error) {
	ys, err := s.evalN([]share.VecVec{e, ah, w}, 2, func(xs []share.VecVec) ([]share.VecVec, error) {
		e, ah, w := xs[0], xs[1], xs[2]
		if err := checkBackward(e, ah, w); err != nil {
			return nil, err
		}
		wt := Transpose(w)
		dw, below := share.NewVecVec(len(w), w.Cols()), make(share.VecVec, len(e))
		err := runTasks(task.GCNBackwardNNInit, len(e), func(i int) (*task.BackwardNNInit, bool) {
			return &task.BackwardNNInit{PMinusY: e[i], AHT: ah[i], WeightT: wt}, false
		}, func(i int, p *task.BackwardNNInit) {
			addRows(dw, p.D)
			below[i] = p.G.Clone()
		})
		return []share.VecVec{dw, below}, err
	})
	if err != nil {
		return nil, nil, err
	}
	return ys[0], ys[1], nil
}

// A hidden layer step: the error g from above is masked by ReLU'(z), then dw = ah^T * delta and below = delta * w^T.
func (s *Session) Backward(g, ah, z, w share.VecVec) (dw, below share.VecVec, err error) {
	ys, err := s.evalN([]share.VecVec{g, ah, z, w}, 2, func(xs []share.VecVec) ([]share.VecVec, error) {
		g, ah, z, w := xs[0], xs[1], xs[2], xs[3]
		if err := checkBackward(g, ah, w); err != nil {
			return nil, err
		}
		if !sameShape(g, z) {
			return nil, enforce.Errorf(enforce.ErrRange, "backward: error and pre-activation shapes differ")
		}
		wt := Transpose(w)
		dw, below := share.NewVecVec(len(w), w.Cols()), make(share.VecVec, len(g))
		err := runTasks(task.GCNBackwardNN, len(g), func(i int) (*task.BackwardNN, bool) {
			return &task.BackwardNN{ATG: g[i], AHT: ah[i], Z: z[i], WeightT: wt}, false
		}, func(i int, p *task.BackwardNN) {
			addRows(dw, p.D)
			below[i] = p.G.Clone()
		})
		return []share.VecVec{dw, below}, err
	})
	if err != nil {
		return nil, nil, err
	}
	return ys[0], ys[1], nil
}

// Row-wise argmax of the reconstructed scores, revealed to both parties.
func (s *Session) ArgMax(z share.VecVec) ([]int, error) {
	plain, err := s.Reveal(z)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(plain))
	for i, row := range plain {
		if len(row) > 0 {
			out[i] = floats.MaxIdx(row.Decode())
		}
	}
	return out, nil
}

// Local transpose of a share matrix.
func Transpose(x share.VecVec) share.VecVec {
	cols := x.Cols()
	out := share.NewVecVec(cols, len(x))
	for i := range x {
		for j := 0; j < cols; j++ {
			out[j][i] = x[i][j]
		}
	}
	return out
}

func scaleRows(x share.VecVec, factor func(row int) float64) (share.VecVec, error) {
	out := make(share.VecVec, len(x))
	err := runTasks(task.GCNVectorScale, len(x), func(i int) (*task.VectorScale, bool) {
		p := &task.VectorScale{Vec: x[i]}
		p.Scaler[0] = share.Vec{share.Encode(factor(i))}
		p.Scaler[1] = share.Vec{0}
		return p, false
	}, func(i int, p *task.VectorScale) {
		out[i] = p.Result.Clone()
	})
	return out, err
}

func rect(x share.VecVec) bool {
	for _, r := range x {
		if len(r) != len(x[0]) {
			return false
		}
	}
	return true
}

// Every row of x must match the rows of a rectangular w.
func checkProduct(x, w share.VecVec, what string) error {
	if !rect(w) {
		return enforce.Errorf(enforce.ErrRange, "%s: ragged weights", what)
	}
	for i := range x {
		if len(x[i]) != len(w) {
			return enforce.Errorf(enforce.ErrRange, "%s: row %d has %d entries against %dx%d weights", what, i, len(x[i]), len(w), w.Cols())
		}
	}
	return nil
}

func checkBackward(e, ah, w share.VecVec) error {
	if len(e) != len(ah) {
		return enforce.Errorf(enforce.ErrRange, "backward: %d error rows for %d activations", len(e), len(ah))
	}
	if err := checkProduct(ah, w, "backward"); err != nil {
		return err
	}
	for i := range e {
		if len(e[i]) != w.Cols() {
			return enforce.Errorf(enforce.ErrRange, "backward: error row %d has %d entries, weights %d", i, len(e[i]), w.Cols())
		}
	}
	return nil
}

func addRows(acc, x share.VecVec) {
	for i := range acc {
		acc[i].AddInPlace(x[i])
	}
}
