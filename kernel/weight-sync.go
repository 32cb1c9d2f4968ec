package kernel

import (
	"github.com/rs/zerolog/log"

	"github.com/ScottSallinen/ssgas/commsync"
	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/share"
	"github.com/ScottSallinen/ssgas/transport"
	"github.com/ScottSallinen/ssgas/utils"
)

// Tile that averages the model shares.
const WeightCoordinator = 0

// Replaces both model shares of every tile by their average over all tiles. Each tile sends its ALICE and BOB
// shares to the coordinator, which sums each side and divides it locally, so the averages stay shared.
func (r *ssRun[V, U]) syncWeights() {
	s := r.sum
	keys := utils.SortedKeys(s.ModelA)
	fail := func(err error, what string) {
		if err != nil {
			enforce.Fatal(err, r.k.Name()+": weight sync: "+what)
		}
	}
	send := func(l commsync.Link, m share.TensorMap) {
		for _, key := range keys {
			fail(l.SendShareVecVec(m[key]), "send "+key)
		}
	}
	recv := func(l commsync.Link, like share.TensorMap) share.TensorMap {
		m := make(share.TensorMap, len(keys))
		for _, key := range keys {
			vv, err := l.RecvShareVecVec()
			fail(err, "receive "+key)
			if !sameShape(vv, like[key]) {
				fail(enforce.Errorf(enforce.ErrMessage, "model tensor %s has the wrong shape", key), "receive "+key)
			}
			m[key] = vv
		}
		return m
	}

	if r.tid != WeightCoordinator {
		l := commsync.NewLink(r.env.Mesh.Channel(WeightCoordinator, transport.LaneWeightSync))
		send(l, s.ModelA)
		send(l, s.ModelB)
		s.ModelA = recv(l, s.ModelA)
		s.ModelB = recv(l, s.ModelB)
		return
	}

	sumA, sumB := cloneTensors(s.ModelA), cloneTensors(s.ModelB)
	links := make([]commsync.Link, r.env.Tiles)
	for p := 0; p < r.env.Tiles; p++ {
		if p == r.tid {
			continue
		}
		links[p] = commsync.NewLink(r.env.Mesh.Channel(p, transport.LaneWeightSync))
		a, b := recv(links[p], sumA), recv(links[p], sumB)
		for _, key := range keys {
			sumA[key] = sumA[key].Add(a[key])
			sumB[key] = sumB[key].Add(b[key])
		}
	}
	n := uint64(r.env.Tiles)
	for _, key := range keys {
		sumA[key] = share.TruncDivVecVec(sumA[key], n, true)
		sumB[key] = share.TruncDivVecVec(sumB[key], n, false)
	}
	for p := 0; p < r.env.Tiles; p++ {
		if p != r.tid {
			send(links[p], sumA)
			send(links[p], sumB)
		}
	}
	s.ModelA, s.ModelB = sumA, sumB
	log.Trace().Int("tensors", len(keys)).Msg("Model averaged over " + utils.V(r.env.Tiles) + " tiles")
}

func cloneTensors(m share.TensorMap) share.TensorMap {
	c := make(share.TensorMap, len(m))
	for k, v := range m {
		c[k] = v.Clone()
	}
	return c
}

func sameShape(a, b share.VecVec) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
	}
	return true
}
