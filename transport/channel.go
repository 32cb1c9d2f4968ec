// Package transport connects the tiles of a run: one connection per pair of tiles, carrying named lanes.
package transport

import (
	"errors"
	"strconv"
)

var ErrClosed = errors.New("transport: closed")

// Channel is one ordered, reliable lane to a single peer.
type Channel interface {
	Send(msg []byte) error
	Recv() ([]byte, error)
}

// Mesh gives a tile its lanes to every other tile.
type Mesh interface {
	Self() int
	Size() int
	Channel(peer int, lane string) Channel
	Close() error
}

// Lane names used by a run.
const (
	LaneMain       = "main" // Initial share distribution.
	LaneCommSync   = "cs"   // Key value streams and tagged vectors.
	LaneClient     = "cli"  // Client to client position vectors.
	LaneWeightSync = "wavg" // Weight averaging with the coordinator.
)

// Session lane between the client of tile c and the server of its peer.
func LaneSession(c int) string { return "mpc:" + strconv.Itoa(c) }

// Broadcast lane of the secret shares owned by tile subject.
func LaneSubject(subject int) string { return "srv:" + strconv.Itoa(subject) }

// Lane carrying update shares of tile dst to the co-party of dst.
func LaneUpdate(dst int) string { return "upd:" + strconv.Itoa(dst) }
