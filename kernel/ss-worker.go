package kernel

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/ScottSallinen/ssgas/commsync"
	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/share"
	"github.com/ScottSallinen/ssgas/transport"
	"github.com/ScottSallinen/ssgas/twopc"
	"github.com/ScottSallinen/ssgas/utils"
)

// worker is one role goroutine of a tile. The client towards peer i is ALICE for this tile's rows with
// destination i; the server for peer i is BOB for i's rows with destination this tile.
type worker[V any, U any] struct {
	r       *ssRun[V, U]
	role    twopc.Role
	peer    int
	subject int
	dst     int
	ring    bool // The session of the subject with its co-party: gathers and applies.
	sess    *twopc.Session
	link    commsync.Link
	cmds    chan phase
	scratch share.TensorMap
	log     zerolog.Logger
}

func (r *ssRun[V, U]) newWorker(role twopc.Role, peer int) *worker[V, U] {
	w := &worker[V, U]{r: r, role: role, peer: peer, cmds: make(chan phase, 1), scratch: make(share.TensorMap)}
	client := r.tid
	if role == twopc.ALICE {
		w.subject, w.dst = r.tid, peer
		w.ring = peer == r.coop(r.tid)
	} else {
		w.subject, w.dst = peer, r.tid
		w.ring = r.tid == r.coop(peer)
		client = peer
	}
	ch := r.env.Mesh.Channel(peer, transport.LaneSession(client))
	w.sess = twopc.NewSession(r.env.Party, role, peer, ch)
	w.link = commsync.NewLink(ch)
	w.log = utils.RoleLogger(role.String(), uint32(r.tid), uint32(peer))
	return w
}

func (w *worker[V, U]) alice() bool { return w.role == twopc.ALICE }

func (w *worker[V, U]) serve(wg *sync.WaitGroup) {
	defer wg.Done()
	for ph := range w.cmds {
		switch ph.kind {
		case phasePrepare:
			w.prepare()
		case phaseIterate:
			w.iterate(ph.iter)
		case phaseFinish:
			w.finish()
		}
		w.r.done <- struct{}{}
	}
}

func (w *worker[V, U]) must(err error, what string) {
	if err != nil {
		w.log.Error().Err(err).Int("subject", w.subject).Msg(what)
		enforce.Fatal(err, w.r.k.Name()+": "+what)
	}
}

// Initial shares, destination positions, mask preprocessing and, on the ring, the model.
func (w *worker[V, U]) prepare() {
	s := w.r.sum
	if w.alice() {
		w.must(w.link.SendShareVecVec(s.initB), "send rows")
		w.must(w.link.SendPosVec(s.Slots[w.dst].DstPos), "send positions")
	} else {
		rows, err := w.link.RecvShareVecVec()
		w.must(err, "receive rows")
		s.RemoteShares[w.subject] = rows
		s.RemoteBackup[w.subject] = rows.Clone()
		pos, err := w.link.RecvPosVec()
		w.must(err, "receive positions")
		n := len(s.Local)
		for _, p := range pos {
			if p >= int64(n) {
				w.must(enforce.Errorf(enforce.ErrRange, "position %d of %d rows from tile %d", p, n, w.peer), "receive positions")
			}
		}
		s.GatherDummy[w.subject] = GatherDummy(n, pos)
	}

	ids := []int{mapScatter, mapMerge}
	if w.ring {
		ids = append(ids, mapLocalScatter, mapLocalMerge)
	}
	for _, id := range ids {
		w.must(w.sess.PreprocessMap(id), "preprocess mapping")
	}

	if w.ring {
		model := w.r.k.App.InitModel()
		for _, key := range utils.SortedKeys(model) {
			if w.alice() {
				s.ModelA[key] = w.sess.Must(w.sess.Share(model[key]))
			} else {
				s.ModelB[key] = w.sess.Must(w.sess.Share(nil))
			}
		}
	}
	w.log.Trace().Int("slots", s.Slots[w.dst].Len()).Msg("Prepared")
}

func (w *worker[V, U]) step(iter IterCount) *Step[V] {
	s := w.r.sum
	st := &Step[V]{Sess: w.sess, Iter: iter, Subject: w.subject, Tiles: w.r.env.Tiles}
	if w.ring {
		st.Scratch = w.scratch
		if w.alice() {
			st.Model = s.ModelA
		} else {
			st.Model = s.ModelB
		}
	}
	if w.alice() {
		st.Data, st.InDeg, st.OutDeg = s.Data, s.InDeg, s.OutDeg
	}
	return st
}

// Rows of the subject into slot order, scattered, merged by destination and mapped into destination order.
func (w *worker[V, U]) pipeline(st *Step[V], xs share.VecVec, slots *Slots, scatterId, mergeId int) share.VecVec {
	app := w.r.k.App
	var labels, srcPos, dstPos, dstRows share.PosVec
	if w.alice() {
		labels, srcPos, dstPos, dstRows = Iota(len(xs)), slots.SrcPos, slots.DstPos, Iota(slots.DstRows)
	}
	dim := xs.Cols()
	in := w.sess.Must(w.sess.Map(scatterId, xs, dim, labels, srcPos))

	upd, err := app.Scatter(st, in, slots)
	w.must(err, "scatter")

	if pm, ok := app.(PreMerger[V]); ok {
		upd, err = pm.PreMerge(st, upd, dstPos)
		w.must(err, "pre-merge")
	} else {
		upd = w.sess.Must(w.sess.SegmentedSum(upd, dstPos))
	}
	return w.sess.Must(w.sess.Map(mergeId, upd, dim, dstPos, dstRows))
}

func (w *worker[V, U]) iterate(iter IterCount) {
	r, s, app := w.r, w.r.sum, w.r.k.App
	last := iter+1 >= r.k.MaxIters()

	// The subject's new BOB share comes from its co-party unless this server is that co-party.
	if !w.alice() && !w.ring && iter > 0 && !r.reset(iter) {
		rows, err := commsync.NewLink(r.env.Mesh.Channel(r.coop(w.subject), transport.LaneSubject(w.subject))).RecvShareVecVec()
		w.must(err, "receive subject rows")
		s.RemoteShares[w.subject] = rows
	}

	var x share.VecVec
	if w.alice() {
		x = s.LocalShares
	} else {
		x = s.RemoteShares[w.subject]
	}
	st := w.step(iter)

	if !app.ApplyOnly(iter) {
		xs, err := app.PreScatter(st, x)
		w.must(err, "pre-scatter")
		var slots, local *Slots
		if w.alice() {
			slots, local = s.Slots[w.dst], s.Slots[w.subject]
		}
		out := w.pipeline(st, xs, slots, mapScatter, mapMerge)
		var own share.VecVec
		if w.ring {
			own = w.pipeline(st, xs, local, mapLocalScatter, mapLocalMerge)
		}

		if w.alice() {
			if w.ring {
				s.GatherIn[r.tid] = own
			}
			if r.tid == r.coop(w.dst) {
				s.CoopIn[r.tid] = out
			} else {
				w.must(commsync.NewLink(r.env.Mesh.Channel(r.coop(w.dst), transport.LaneUpdate(w.dst))).SendShareVecVec(out), "forward update")
			}
		} else {
			if w.ring {
				s.CoopIn[w.peer] = own
			}
			s.GatherIn[w.peer] = out
			if w.peer != r.prev() {
				fwd, err := commsync.NewLink(r.env.Mesh.Channel(w.peer, transport.LaneUpdate(r.prev()))).RecvShareVecVec()
				w.must(err, "receive forwarded update")
				s.CoopIn[w.peer] = fwd
			}
		}
	}
	r.bar.Wait()

	if w.ring {
		acc := x
		if !app.ApplyOnly(iter) {
			acc = w.gather(st, x)
		}
		nx, err := app.Apply(st, x, acc)
		w.must(err, "apply")
		if w.alice() {
			s.LocalShares = nx
		} else {
			s.RemoteShares[w.subject] = nx
			if !last && !r.reset(iter+1) {
				for j := 0; j < r.env.Tiles; j++ {
					if j != w.subject && j != r.tid {
						w.must(commsync.NewLink(r.env.Mesh.Channel(j, transport.LaneSubject(w.subject))).SendShareVecVec(nx), "send subject rows")
					}
				}
			}
		}
	}
	r.bar.Wait()

	if app.SyncWeights(iter) {
		if w.ring && w.alice() {
			r.syncWeights()
		}
		r.bar.Wait()
	}
}

// Folds the update shares from every source tile into the seeded accumulator. ALICE skips rows a source never touches.
func (w *worker[V, U]) gather(st *Step[V], x share.VecVec) share.VecVec {
	s, app := w.r.sum, w.r.k.App
	acc, err := app.GatherSeed(st, x)
	w.must(err, "gather seed")
	in := s.CoopIn
	if w.alice() {
		in = s.GatherIn
	}
	for src := 0; src < s.Tiles; src++ {
		var skip func(int) bool
		if w.alice() {
			dummy := s.GatherDummy[src]
			skip = func(row int) bool { return dummy.Get(uint32(row)) }
		}
		acc, err = app.Gather(st, acc, in[src], skip, src == s.Tiles-1)
		w.must(err, "gather")
	}
	return acc
}

// The ring pair opens the final rows to ALICE, who writes them back into the vertices.
func (w *worker[V, U]) finish() {
	s := w.r.sum
	if w.ring {
		if w.alice() {
			rows := w.sess.Must(w.sess.Open(s.LocalShares))
			for i, row := range rows {
				w.r.k.App.WriteVertexRow(s.Data[i], row.Decode())
			}
		} else {
			w.sess.Must(w.sess.Open(s.RemoteShares[w.subject]))
		}
	}
	w.must(w.sess.Close(), "close session")
	w.log.Trace().Uint64("rounds", w.sess.Rounds).Msg("Session closed")
}
