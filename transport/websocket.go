package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.dedis.ch/protobuf"

	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/utils"
)

const meshPath = "/mesh"

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) WriteFrame(b []byte) error { return w.c.WriteMessage(websocket.BinaryMessage, b) }

func (w *wsConn) ReadFrame() ([]byte, error) {
	_, b, err := w.c.ReadMessage()
	return b, err
}

func (w *wsConn) Close() error { return w.c.Close() }

func writeHello(c *websocket.Conn, h hello) error {
	b, err := protobuf.Encode(&h)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.BinaryMessage, b)
}

func readHello(c *websocket.Conn) (h hello, err error) {
	_, b, err := c.ReadMessage()
	if err != nil {
		return h, err
	}
	err = protobuf.Decode(b, &h)
	return h, err
}

type accepted struct {
	peer int
	conn *websocket.Conn
}

// Establish connects tile self to every other tile of a run of the given size.
// Of each pair, the higher index hosts and the lower dials. Blocks until all links are up or ctx ends.
func Establish(ctx context.Context, cfg MeshConfig, self, size int) (*MuxMesh, error) {
	if self < 0 || self >= size {
		return nil, enforce.Errorf(enforce.ErrInvalidArgument, "tile %d of %d", self, size)
	}
	session := uuid.New().String()
	conns := make([]frameConn, size)
	watch := utils.Watch{}
	watch.Start()

	closeAll := func() {
		for _, c := range conns {
			if c != nil {
				c.Close()
			}
		}
	}

	acceptDone := make(chan error, 1)
	if self > 0 {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port(self)))
		if err != nil {
			return nil, err
		}
		incoming := make(chan accepted, self)
		upgrader := websocket.Upgrader{ReadBufferSize: 1 << 16, WriteBufferSize: 1 << 16}
		mux := http.NewServeMux()
		mux.HandleFunc(meshPath, func(w http.ResponseWriter, r *http.Request) {
			c, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				log.Warn().Err(err).Msg("Upgrade failed")
				return
			}
			h, err := readHello(c)
			if err != nil || int(h.Tile) >= self || int(h.Size) != size {
				log.Warn().Msg("Rejecting peer hello " + utils.V(h))
				c.Close()
				return
			}
			if err := writeHello(c, hello{Tile: uint32(self), Size: uint32(size), Session: session}); err != nil {
				c.Close()
				return
			}
			incoming <- accepted{peer: int(h.Tile), conn: c}
		})
		srv := &http.Server{Handler: mux}
		go srv.Serve(ln)

		go func() {
			defer srv.Close() // Upgraded connections are hijacked, so they outlive the server.
			for got := 0; got < self; {
				select {
				case a := <-incoming:
					if conns[a.peer] != nil {
						a.conn.Close()
						continue
					}
					applyLimit(a.conn, cfg)
					conns[a.peer] = &wsConn{c: a.conn}
					got++
				case <-ctx.Done():
					acceptDone <- ctx.Err()
					return
				}
			}
			acceptDone <- nil
		}()
	} else {
		acceptDone <- nil
	}

	var dialErr error
	for j := self + 1; j < size && dialErr == nil; j++ {
		var c *websocket.Conn
		c, dialErr = dialPeer(ctx, cfg, self, j, size, session)
		if dialErr == nil {
			applyLimit(c, cfg)
			conns[j] = &wsConn{c: c}
		}
	}
	acceptErr := <-acceptDone
	if dialErr != nil || acceptErr != nil {
		closeAll()
		if dialErr != nil {
			return nil, dialErr
		}
		return nil, acceptErr
	}
	log.Debug().Msg("Mesh of " + utils.V(size) + " tiles established in " + utils.V(watch.Elapsed().Milliseconds()) + " ms, session " + session)
	return newMuxMesh(self, conns), nil
}

func applyLimit(c *websocket.Conn, cfg MeshConfig) {
	if cfg.ReadLimit > 0 {
		c.SetReadLimit(cfg.ReadLimit)
	}
}

// Dials the host tile until it answers or ctx ends.
func dialPeer(ctx context.Context, cfg MeshConfig, self, host, size int, session string) (*websocket.Conn, error) {
	url := fmt.Sprintf("ws://%s:%d%s", cfg.Address(host), cfg.Port(host), meshPath)
	retry := time.Duration(utils.Max(cfg.DialRetryMs, 1)) * time.Millisecond
	for attempt := 0; ; attempt++ {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err == nil {
			if err = writeHello(c, hello{Tile: uint32(self), Size: uint32(size), Session: session}); err == nil {
				var h hello
				if h, err = readHello(c); err == nil && int(h.Tile) != host {
					err = enforce.Errorf(enforce.ErrMessage, "dialed %d but %d answered", host, h.Tile)
				}
			}
			if err == nil {
				return c, nil
			}
			c.Close()
		}
		if attempt%50 == 49 {
			log.Info().Msg("Still waiting for tile " + utils.V(host) + " at " + url)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retry):
		}
	}
}
