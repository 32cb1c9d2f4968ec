package transport

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/ScottSallinen/ssgas/utils"
)

// link multiplexes lanes over the connection to one peer. A reader goroutine sorts incoming frames into lane queues.
type link struct {
	peer  int
	conn  frameConn
	wmu   sync.Mutex
	mu    sync.Mutex
	lanes map[string]*queue
	err   error

	bytesSent atomic.Uint64
	bytesRecv atomic.Uint64
}

func newLink(peer int, conn frameConn) *link {
	l := &link{peer: peer, conn: conn, lanes: make(map[string]*queue)}
	go l.readLoop()
	return l
}

func (l *link) lane(name string) *queue {
	l.mu.Lock()
	defer l.mu.Unlock()
	q, ok := l.lanes[name]
	if !ok {
		q = newQueue()
		if l.err != nil {
			q.close(l.err)
		}
		l.lanes[name] = q
	}
	return q
}

func (l *link) readLoop() {
	for {
		b, err := l.conn.ReadFrame()
		if err != nil {
			l.shutdown(err)
			return
		}
		l.bytesRecv.Add(uint64(len(b)))
		f, err := decodeFrame(b)
		if err != nil {
			log.Error().Err(err).Msg("Dropping undecodable frame from peer " + utils.V(l.peer))
			continue
		}
		l.lane(f.Lane).push(f.Payload)
	}
}

func (l *link) shutdown(err error) {
	l.mu.Lock()
	if l.err == nil {
		l.err = ErrClosed
		log.Trace().Err(err).Msg("Link to " + utils.V(l.peer) + " closed")
	}
	for _, q := range l.lanes {
		q.close(l.err)
	}
	l.mu.Unlock()
}

func (l *link) send(lane string, payload []byte) error {
	b, err := encodeFrame(lane, payload)
	if err != nil {
		return err
	}
	l.wmu.Lock()
	err = l.conn.WriteFrame(b)
	l.wmu.Unlock()
	if err == nil {
		l.bytesSent.Add(uint64(len(b)))
	}
	return err
}

type laneChannel struct {
	l *link
	q *queue
	n string
}

func (c *laneChannel) Send(msg []byte) error { return c.l.send(c.n, msg) }
func (c *laneChannel) Recv() ([]byte, error) { return c.q.pop() }

// MuxMesh is a Mesh built from one frame connection per peer.
type MuxMesh struct {
	self  int
	links []*link
	once  sync.Once
}

func newMuxMesh(self int, conns []frameConn) *MuxMesh {
	m := &MuxMesh{self: self, links: make([]*link, len(conns))}
	for p, c := range conns {
		if c != nil {
			m.links[p] = newLink(p, c)
		}
	}
	return m
}

func (m *MuxMesh) Self() int { return m.self }
func (m *MuxMesh) Size() int { return len(m.links) }

func (m *MuxMesh) Channel(peer int, lane string) Channel {
	if peer == m.self || peer < 0 || peer >= len(m.links) || m.links[peer] == nil {
		log.Panic().Msg("No link from " + utils.V(m.self) + " to " + utils.V(peer))
	}
	l := m.links[peer]
	return &laneChannel{l: l, q: l.lane(lane), n: lane}
}

// Bytes sent and received over every link.
func (m *MuxMesh) Traffic() (sent, recv uint64) {
	for _, l := range m.links {
		if l != nil {
			sent += l.bytesSent.Load()
			recv += l.bytesRecv.Load()
		}
	}
	return sent, recv
}

func (m *MuxMesh) Close() (err error) {
	m.once.Do(func() {
		sent, recv := m.Traffic()
		log.Debug().Msg("Mesh closing. Sent " + utils.V(sent) + " bytes, received " + utils.V(recv) + " bytes")
		for _, l := range m.links {
			if l == nil {
				continue
			}
			if cerr := l.conn.Close(); cerr != nil && err == nil {
				err = cerr
			}
			l.shutdown(ErrClosed)
		}
	})
	return err
}
