package task

import (
	"sync/atomic"

	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/graph"
	"github.com/ScottSallinen/ssgas/utils"
)

// Task is one deferred computation on behalf of a vertex.
type Task struct {
	Kind            Kind
	VertexIndex     graph.VertexIdx
	Finished        bool
	Payload         Payload
	SrcIndex        graph.VertexIdx
	DstTid          graph.TileIdx
	SrcTid          graph.TileIdx
	ReadyOperandNum atomic.Uint32
	IsFinal         bool // The result replaces the vertex accumulator.
	IsDummy         bool // Padding; executes without effect.
}

func New(kind Kind, vid graph.VertexIdx, payload Payload) *Task {
	return &Task{Kind: kind, VertexIndex: vid, Payload: payload}
}

// Records one more ready operand; true once all are ready.
func (t *Task) OperandReady() bool {
	return t.ReadyOperandNum.Add(1) >= uint32(t.Payload.OperandNum())
}

func (t *Task) Result() (Payload, error) {
	if !t.Finished {
		return nil, enforce.Errorf(enforce.ErrResultNotReady, "%v task for vertex %v", t.Kind, t.VertexIndex)
	}
	return t.Payload, nil
}

// The reduced plain value of a finished scalar task.
func ScalarResult[T Number](t *Task) (T, error) {
	var zero T
	p, err := t.Result()
	if err != nil {
		return zero, err
	}
	s, ok := p.(*Scalar[T])
	if !ok {
		return zero, enforce.Errorf(enforce.ErrInvalidArgument, "%v task has no scalar result", t.Kind)
	}
	return s.Operands[0].Plain, nil
}

// Builds one round of reduction tasks from update pairs, padded with dummy tasks to a power of two.
func ReductionTasks[T Number](kind Kind, vid graph.VertexIdx, tid graph.TileIdx, pairs []graph.UpdatePair[T], dummies bool) []*Task {
	n := len(pairs)
	if dummies {
		n = int(utils.RoundUpPow(uint64(n)))
	}
	tasks := make([]*Task, 0, n)
	for _, p := range pairs {
		s := NewScalar[T](kind)
		s.Operands[0].Plain = p.First
		s.Operands[1].Plain = p.Second
		t := New(kind, vid, s)
		t.DstTid, t.SrcTid = tid, tid
		t.IsFinal = p.Final
		tasks = append(tasks, t)
	}
	for len(tasks) < n {
		t := New(kind, vid, NewScalar[T](kind))
		t.DstTid, t.SrcTid = tid, tid
		t.IsDummy = true
		tasks = append(tasks, t)
	}
	return tasks
}
