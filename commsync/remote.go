package commsync

import (
	"go.dedis.ch/protobuf"

	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/share"
	"github.com/ScottSallinen/ssgas/transport"
)

// Message tags on the wire.
const (
	TagKeyVal      = "KV"
	TagFinSend     = "FIN_SEND"
	TagFinRecv     = "FIN_RECV"
	TagPosVec      = "POS_VEC"
	TagShareVecVec = "SHARE_VEC_VEC"
	TagFinish      = "FINISH"
)

// Sharer splits a value before it leaves the producer and rebuilds it at the consumer.
type Sharer[V any] interface {
	SplitShare(prodId, consId uint32, val *V) (share V)
	MergeShare(consId uint32, val *V, share V)
}

type envelope struct {
	Tag  string
	Body []byte
}

type keyValBody[V any] struct {
	ProdId uint32
	ConsId uint32
	Key    uint64
	Val    V
	Share  V
}

type posVecBody struct {
	Pos []int64
}

type vecVecBody struct {
	Lens []uint64
	Data []uint64
}

type remote struct {
	threadId int
	mesh     transport.Mesh
}

// Binds the remote path: this process acts as threadId and reaches its peers through mesh.
func (cs *CommSync[K, V]) SetMesh(threadId int, mesh transport.Mesh, sharer Sharer[V]) {
	cs.threadId = threadId
	cs.mesh = mesh
	cs.sharer = sharer
}

func (cs *CommSync[K, V]) ThreadIdIs(threadId int) { cs.threadId = threadId }
func (cs *CommSync[K, V]) ThreadId() int           { return cs.threadId }

// The commsync lane to the peer of a producer/consumer pair (whichever of the two is not us).
func (cs *CommSync[K, V]) Link(peer int, lane string) Link {
	return Link{ch: cs.mesh.Channel(peer, lane)}
}

func (cs *CommSync[K, V]) pairLink(prodId, consId int) Link {
	peer := consId
	if prodId != cs.threadId {
		peer = prodId
	}
	return cs.Link(peer, transport.LaneCommSync)
}

// Sends key/val to a remote consumer. With a sharer the value travels as two shares, otherwise in the clear.
func (cs *CommSync[K, V]) RemoteKeyValNew(prodId, consId int, key K, val V) error {
	body := keyValBody[V]{ProdId: uint32(prodId), ConsId: uint32(consId), Key: uint64(key), Val: val}
	if cs.sharer != nil {
		body.Share = cs.sharer.SplitShare(uint32(prodId), uint32(consId), &body.Val)
	}
	b, err := protobuf.Encode(&body)
	if err != nil {
		return err
	}
	return cs.pairLink(prodId, consId).send(TagKeyVal, b)
}

func (cs *CommSync[K, V]) EndRemoteKeyValNew(prodId, consId int) error {
	return cs.pairLink(prodId, consId).send(TagFinSend, nil)
}

// Receives one pair from prodId into the local stream. False once the producer has ended.
func (cs *CommSync[K, V]) GetKeyValNew(prodId, consId int) (bool, error) {
	tag, b, err := cs.pairLink(prodId, consId).recv()
	if err != nil {
		return false, err
	}
	switch tag {
	case TagFinSend:
		return false, nil
	case TagKeyVal:
	default:
		return false, enforce.Errorf(enforce.ErrMessage, "expected %s, got %s", TagKeyVal, tag)
	}
	var body keyValBody[V]
	if err := protobuf.Decode(b, &body); err != nil {
		return false, enforce.Errorf(enforce.ErrMessage, "decode key value (%v)", err)
	}
	if int(body.ProdId) != prodId || int(body.ConsId) != consId {
		return false, enforce.Errorf(enforce.ErrMessage, "unexpected pair %d->%d in recv of %d->%d", body.ProdId, body.ConsId, prodId, consId)
	}
	if cs.sharer != nil {
		cs.sharer.MergeShare(uint32(consId), &body.Val, body.Share)
	}
	cs.KeyValNew(prodId, consId, K(body.Key), body.Val)
	return true, nil
}

// Receives until the producer ends; returns the number of pairs.
func (cs *CommSync[K, V]) GetAllKeyValNew(prodId, consId int) (n int, err error) {
	for {
		more, err := cs.GetKeyValNew(prodId, consId)
		if err != nil || !more {
			return n, err
		}
		n++
	}
}

func (cs *CommSync[K, V]) EndGetKeyValNew(prodId, consId int) error {
	return cs.pairLink(prodId, consId).send(TagFinRecv, nil)
}

// The producer's confirmation that the consumer has drained its pairs.
func (cs *CommSync[K, V]) EnsureEndGetKeyValNew(prodId, consId int) error {
	return cs.pairLink(prodId, consId).expect(TagFinRecv)
}

func (cs *CommSync[K, V]) SendPosVec(peer int, pos share.PosVec) error {
	return cs.Link(peer, transport.LaneCommSync).SendPosVec(pos)
}

func (cs *CommSync[K, V]) RecvPosVec(peer int) (share.PosVec, error) {
	return cs.Link(peer, transport.LaneCommSync).RecvPosVec()
}

func (cs *CommSync[K, V]) SendShareVecVec(peer int, vv share.VecVec) error {
	return cs.Link(peer, transport.LaneCommSync).SendShareVecVec(vv)
}

func (cs *CommSync[K, V]) RecvShareVecVec(peer int) (share.VecVec, error) {
	return cs.Link(peer, transport.LaneCommSync).RecvShareVecVec()
}

// Link carries tagged messages on one lane to one peer. A tag other than the expected one is ErrMessage.
type Link struct {
	ch transport.Channel
}

func NewLink(ch transport.Channel) Link { return Link{ch: ch} }

func (l Link) send(tag string, body []byte) error {
	b, err := protobuf.Encode(&envelope{Tag: tag, Body: body})
	if err != nil {
		return err
	}
	return l.ch.Send(b)
}

func (l Link) recv() (string, []byte, error) {
	b, err := l.ch.Recv()
	if err != nil {
		return "", nil, err
	}
	var env envelope
	if err := protobuf.Decode(b, &env); err != nil {
		return "", nil, enforce.Errorf(enforce.ErrMessage, "decode envelope (%v)", err)
	}
	return env.Tag, env.Body, nil
}

func (l Link) expect(tag string) error {
	got, _, err := l.recv()
	if err != nil {
		return err
	}
	if got != tag {
		return enforce.Errorf(enforce.ErrMessage, "expected %s, got %s", tag, got)
	}
	return nil
}

func (l Link) recvBody(tag string, body interface{}) error {
	got, b, err := l.recv()
	if err != nil {
		return err
	}
	if got != tag {
		return enforce.Errorf(enforce.ErrMessage, "expected %s, got %s", tag, got)
	}
	if err := protobuf.Decode(b, body); err != nil {
		return enforce.Errorf(enforce.ErrMessage, "decode %s (%v)", tag, err)
	}
	return nil
}

func (l Link) SendPosVec(pos share.PosVec) error {
	b, err := protobuf.Encode(&posVecBody{Pos: pos})
	if err != nil {
		return err
	}
	return l.send(TagPosVec, b)
}

func (l Link) RecvPosVec() (share.PosVec, error) {
	var body posVecBody
	if err := l.recvBody(TagPosVec, &body); err != nil {
		return nil, err
	}
	if body.Pos == nil {
		return share.PosVec{}, nil
	}
	return body.Pos, nil
}

func (l Link) SendShareVecVec(vv share.VecVec) error {
	lens, data := vv.Flatten()
	b, err := protobuf.Encode(&vecVecBody{Lens: lens, Data: data})
	if err != nil {
		return err
	}
	return l.send(TagShareVecVec, b)
}

func (l Link) RecvShareVecVec() (share.VecVec, error) {
	var body vecVecBody
	if err := l.recvBody(TagShareVecVec, &body); err != nil {
		return nil, err
	}
	vv, ok := share.Unflatten(body.Lens, body.Data)
	if !ok {
		return nil, enforce.Errorf(enforce.ErrMessage, "share matrix lengths do not cover %d entries", len(body.Data))
	}
	return vv, nil
}

func (l Link) SendFinish() error { return l.send(TagFinish, nil) }
func (l Link) RecvFinish() error { return l.expect(TagFinish) }
