package transport

import (
	"go.dedis.ch/protobuf"
)

type frame struct {
	Lane    string
	Payload []byte
}

type hello struct {
	Tile    uint32
	Size    uint32
	Session string
}

func encodeFrame(lane string, payload []byte) ([]byte, error) {
	return protobuf.Encode(&frame{Lane: lane, Payload: payload})
}

func decodeFrame(b []byte) (f frame, err error) {
	err = protobuf.Decode(b, &f)
	return f, err
}

// The underlying connection to a peer, moving whole frames.
type frameConn interface {
	WriteFrame(b []byte) error
	ReadFrame() ([]byte, error)
	Close() error
}
