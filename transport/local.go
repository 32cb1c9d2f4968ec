package transport

// In-process frame connection: each end reads what the other writes.
type pipeEnd struct {
	in, out *queue
}

func (p *pipeEnd) WriteFrame(b []byte) error {
	c := make([]byte, len(b))
	copy(c, b)
	p.out.mu.Lock()
	closed := p.out.err != nil
	p.out.mu.Unlock()
	if closed {
		return ErrClosed
	}
	p.out.push(c)
	return nil
}

func (p *pipeEnd) ReadFrame() ([]byte, error) { return p.in.pop() }

func (p *pipeEnd) Close() error {
	p.in.close(ErrClosed)
	p.out.close(ErrClosed)
	return nil
}

// A fully connected set of meshes living in one process, one per tile.
func NewLocalMeshes(size int) []*MuxMesh {
	conns := make([][]frameConn, size)
	for i := range conns {
		conns[i] = make([]frameConn, size)
	}
	for i := 0; i < size; i++ {
		for j := i + 1; j < size; j++ {
			a, b := newQueue(), newQueue()
			conns[i][j] = &pipeEnd{in: a, out: b}
			conns[j][i] = &pipeEnd{in: b, out: a}
		}
	}
	meshes := make([]*MuxMesh, size)
	for i := range meshes {
		meshes[i] = newMuxMesh(i, conns[i])
	}
	return meshes
}
