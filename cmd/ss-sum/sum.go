package main

import (
	"math"

	"github.com/ScottSallinen/ssgas/graph"
	"github.com/ScottSallinen/ssgas/kernel"
	"github.com/ScottSallinen/ssgas/share"
	"github.com/ScottSallinen/ssgas/task"
)

// Sum replaces every vertex row by the weighted sum of its in neighbours' rows.
type Sum struct {
	Epoch kernel.IterCount // Rows restart from the input every Epoch iterations; 0 never.
}

const EPSILON = 1e-9

type VertexData struct {
	Features []float64 // Input row.
	Label    int
	Sum      []float64 // Opened result of the shared run.
	Value    float64   // Plain run: the first feature, summed in the clear.
}

func NewVertexData(graph.VertexIdx) VertexData { return VertexData{} }

func ReadRow(v *graph.Vertex[VertexData, float64], row graph.VertexRow) {
	v.Data.Features, v.Data.Label = row.Features, row.Label
	if len(row.Features) > 0 {
		v.Data.Value = row.Features[0]
	}
}

func (*Sum) VertexRow(d *VertexData) []float64           { return d.Features }
func (*Sum) WriteVertexRow(d *VertexData, row []float64) { d.Sum = row }
func (*Sum) InitModel() share.TensorMap                  { return share.TensorMap{} }
func (s *Sum) EpochLength() kernel.IterCount             { return s.Epoch }
func (*Sum) ApplyOnly(kernel.IterCount) bool             { return false }
func (*Sum) SyncWeights(kernel.IterCount) bool           { return false }

func (*Sum) PreScatter(_ *kernel.Step[VertexData], x share.VecVec) (share.VecVec, error) {
	return x, nil
}

// Each slot carries its source row times the edge weight; dummy slots carry zero.
func (*Sum) Scatter(st *kernel.Step[VertexData], in share.VecVec, slots *kernel.Slots) (share.VecVec, error) {
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

func (*Sum) GatherSeed(_ *kernel.Step[VertexData], x share.VecVec) (share.VecVec, error) {
	return share.NewVecVec(len(x), x.Cols()), nil
}

func (*Sum) Gather(st *kernel.Step[VertexData], acc, upd share.VecVec, skip func(int) bool, _ bool) (share.VecVec, error) {
	return st.Sess.CondAdd(acc, upd, skip)
}

func (*Sum) Apply(_ *kernel.Step[VertexData], _, acc share.VecVec) (share.VecVec, error) {
	return acc, nil
}

// PlainSum is the same sum on the first feature, without sharing.
type PlainSum struct{}

func (PlainSum) Scatter(_ kernel.IterCount, src *graph.Vertex[VertexData, float64], weight float64) (float64, bool) {
	return src.Data.Value * weight, true
}

func (PlainSum) Gather(_ kernel.IterCount, dst *graph.Vertex[VertexData, float64], acc float64, _ bool) bool {
	old := dst.Data.Value
	dst.Data.Value = acc
	return math.Abs(acc-old) < EPSILON
}

func (PlainSum) ReduceKind() task.Kind { return task.AddDouble }
