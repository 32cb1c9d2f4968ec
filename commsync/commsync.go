// Package commsync synchronizes the worker threads of a tile and moves key value updates between them,
// locally through per producer/consumer streams and remotely over transport channels.
package commsync

import (
	"sync"
	"unsafe"

	"github.com/ScottSallinen/ssgas/utils"
)

type RecvStatus int

const (
	RecvNone      RecvStatus = iota // Nothing received, and not every producer has finished.
	RecvContinued                   // Data received, but some producer has not finished.
	RecvFinished                    // Every producer has posted its end tag.
)

func (s RecvStatus) String() string {
	switch s {
	case RecvNone:
		return "none"
	case RecvContinued:
		return "continued"
	case RecvFinished:
		return "finished"
	}
	return "unknown"
}

type KeyValue[K ~uint64, V any] struct {
	Key K
	Val V
}

type stream[K ~uint64, V any] struct {
	mu    sync.Mutex
	kvs   []KeyValue[K, V]
	ended bool
}

// Capacity a stream keeps across resets: a page worth of pairs, capped at 256.
func ReservedStreamSize[K ~uint64, V any]() int {
	sz := int(unsafe.Sizeof(KeyValue[K, V]{}))
	if sz == 0 {
		return 256
	}
	return utils.Min(4096/sz, 256)
}

// CommSync is shared by threadCount threads. Streams are indexed [producer][consumer].
type CommSync[K ~uint64, V any] struct {
	threadCount int
	bar         *Barrier
	andCur      bool
	andLast     bool
	streams     [][]*stream[K, V]
	reserved    int

	remote
	sharer Sharer[V]
}

func New[K ~uint64, V any](threadCount int) *CommSync[K, V] {
	cs := &CommSync[K, V]{
		threadCount: threadCount,
		bar:         NewBarrier(threadCount),
		andCur:      true,
		reserved:    ReservedStreamSize[K, V](),
	}
	cs.streams = make([][]*stream[K, V], threadCount)
	for p := range cs.streams {
		cs.streams[p] = make([]*stream[K, V], threadCount)
		for c := range cs.streams[p] {
			cs.streams[p][c] = &stream[K, V]{kvs: make([]KeyValue[K, V], 0, cs.reserved)}
		}
	}
	return cs
}

func (cs *CommSync[K, V]) ThreadCount() int { return cs.threadCount }

func (cs *CommSync[K, V]) Barrier(threadId int) {
	cs.bar.Wait()
}

// Every thread contributes a vote; all of them get the AND of the generation's votes.
func (cs *CommSync[K, V]) BarrierAND(threadId int, vote bool) (result bool) {
	cs.bar.Arrive(
		func() { cs.andCur = cs.andCur && vote },
		func() {
			cs.andLast = cs.andCur
			cs.andCur = true
		})
	cs.bar.locked(func() { result = cs.andLast })
	return result
}

func (cs *CommSync[K, V]) KeyValNew(prodId, consId int, key K, val V) {
	s := cs.streams[prodId][consId]
	s.mu.Lock()
	s.kvs = append(s.kvs, KeyValue[K, V]{Key: key, Val: val})
	s.mu.Unlock()
}

// Marks the end of what prodId sends to consId this round.
func (cs *CommSync[K, V]) EndTagNew(prodId, consId int) {
	s := cs.streams[prodId][consId]
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
}

// Collects everything sent to consId, bucketed by partitionFunc(key) mod partitionCount (taken unsigned).
// Takes the barrier first, so every thread must call it. With a single partition the local stream is handed over whole.
func (cs *CommSync[K, V]) KeyValPartitions(consId int, partitionCount int, partitionFunc func(K) int) ([][]KeyValue[K, V], RecvStatus) {
	cs.Barrier(consId)

	prtns := make([][]KeyValue[K, V], partitionCount)
	bucket := func(k K) int {
		if partitionCount == 1 {
			return 0
		}
		return int(uint64(partitionFunc(k)) % uint64(partitionCount))
	}
	got := false
	ended := true

	local := cs.streams[consId][consId]
	local.mu.Lock()
	if partitionCount == 1 {
		prtns[0] = local.kvs
		local.kvs = make([]KeyValue[K, V], 0, cs.reserved)
	} else {
		for _, kv := range local.kvs {
			pid := bucket(kv.Key)
			prtns[pid] = append(prtns[pid], kv)
		}
	}
	got = got || len(prtns[0]) > 0 || len(local.kvs) > 0
	ended = ended && local.ended
	local.mu.Unlock()

	for prodId := 0; prodId < cs.threadCount; prodId++ {
		if prodId == consId {
			continue
		}
		s := cs.streams[prodId][consId]
		s.mu.Lock()
		for _, kv := range s.kvs {
			pid := bucket(kv.Key)
			prtns[pid] = append(prtns[pid], kv)
		}
		got = got || len(s.kvs) > 0
		ended = ended && s.ended
		s.mu.Unlock()
	}

	switch {
	case ended:
		return prtns, RecvFinished
	case got:
		return prtns, RecvContinued
	}
	return prtns, RecvNone
}

// Whatever each producer has sent to consId so far, indexed by producer. No barrier.
func (cs *CommSync[K, V]) KeyValTiles(consId int) [][]KeyValue[K, V] {
	prtns := make([][]KeyValue[K, V], cs.threadCount)
	for prodId := 0; prodId < cs.threadCount; prodId++ {
		s := cs.streams[prodId][consId]
		s.mu.Lock()
		prtns[prodId] = append([]KeyValue[K, V](nil), s.kvs...)
		s.mu.Unlock()
	}
	return prtns
}

func (s *stream[K, V]) reset(reserved int) {
	s.mu.Lock()
	s.kvs = make([]KeyValue[K, V], 0, utils.Max(len(s.kvs), reserved))
	s.ended = false
	s.mu.Unlock()
}

// Resets every stream produced by prodId.
func (cs *CommSync[K, V]) KeyValProdDelAll(prodId int) {
	for consId := 0; consId < cs.threadCount; consId++ {
		cs.streams[prodId][consId].reset(cs.reserved)
	}
}

// Resets every stream consumed by consId.
func (cs *CommSync[K, V]) KeyValConsDelAll(consId int) {
	for prodId := 0; prodId < cs.threadCount; prodId++ {
		cs.streams[prodId][consId].reset(cs.reserved)
	}
}
