package transport

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Every tile sends a numbered message to every other tile on two lanes; order within a lane must hold.
func exchange(t *testing.T, meshes []Mesh, perLane int) {
	var wg sync.WaitGroup
	for _, m := range meshes {
		for peer := 0; peer < m.Size(); peer++ {
			if peer == m.Self() {
				continue
			}
			for _, lane := range []string{LaneMain, LaneSession(m.Self())} {
				wg.Add(1)
				go func(m Mesh, peer int, lane string) {
					defer wg.Done()
					ch := m.Channel(peer, lane)
					for i := 0; i < perLane; i++ {
						if !assert.NoError(t, ch.Send([]byte(lane+"/"+strconv.Itoa(m.Self())+"/"+strconv.Itoa(i)))) {
							return
						}
					}
				}(m, peer, lane)
				wg.Add(1)
				go func(m Mesh, peer int, lane string) {
					defer wg.Done()
					// The peer sends its session lane under its own index.
					if lane != LaneMain {
						lane = LaneSession(peer)
					}
					ch := m.Channel(peer, lane)
					for i := 0; i < perLane; i++ {
						b, err := ch.Recv()
						if !assert.NoError(t, err) {
							return
						}
						assert.Equal(t, lane+"/"+strconv.Itoa(peer)+"/"+strconv.Itoa(i), string(b))
					}
				}(m, peer, lane)
			}
		}
	}
	wg.Wait()
}

func TestLocalMesh(t *testing.T) {
	local := NewLocalMeshes(3)
	meshes := make([]Mesh, len(local))
	for i := range local {
		meshes[i] = local[i]
		assert.Equal(t, i, local[i].Self())
		assert.Equal(t, 3, local[i].Size())
	}
	exchange(t, meshes, 50)

	sent, recv := local[0].Traffic()
	assert.Greater(t, sent, uint64(0))
	assert.Greater(t, recv, uint64(0))

	// Queued data survives the close of the sender; afterwards receives fail.
	require.NoError(t, local[1].Channel(0, "late").Send([]byte("x")))
	require.NoError(t, local[1].Close())
	b, err := local[0].Channel(1, "late").Recv()
	require.NoError(t, err)
	assert.Equal(t, "x", string(b))
	_, err = local[0].Channel(1, "late").Recv()
	assert.ErrorIs(t, err, ErrClosed)
	for _, m := range local {
		m.Close()
	}
}

func TestMeshConfig(t *testing.T) {
	cfg := DefaultMeshConfig()
	assert.Equal(t, "127.0.0.1", cfg.Address(3))
	assert.Equal(t, DefaultBasePort+3, cfg.Port(3))
	cfg.Cluster = true
	assert.Equal(t, "10.0.0.4", cfg.Address(3))

	path := filepath.Join(t.TempDir(), "mesh.toml")
	require.NoError(t, os.WriteFile(path, []byte("base_port = 4000\nhosts = [\"a\", \"\"]\ndial_retry_ms = 5\n"), 0o644))
	require.NoError(t, LoadMeshConfig(path, &cfg))
	assert.Equal(t, 4000, cfg.BasePort)
	assert.Equal(t, 5, cfg.DialRetryMs)
	assert.Equal(t, "a", cfg.Address(0))
	assert.Equal(t, "10.0.0.2", cfg.Address(1))
}

func TestWebsocketMesh(t *testing.T) {
	const size = 3
	cfg := DefaultMeshConfig()
	cfg.BasePort = 20000 + rand.Intn(20000)
	cfg.DialRetryMs = 10

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	meshes := make([]Mesh, size)
	errs := make([]error, size)
	var wg sync.WaitGroup
	for i := 0; i < size; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := Establish(ctx, cfg, i, size)
			meshes[i], errs[i] = m, err
		}(i)
	}
	wg.Wait()
	for i := range errs {
		require.NoError(t, errs[i], "tile %d", i)
	}
	exchange(t, meshes, 20)
	for _, m := range meshes {
		assert.NoError(t, m.Close())
	}
}

func TestEstablishRejectsBadIndex(t *testing.T) {
	_, err := Establish(context.Background(), DefaultMeshConfig(), 3, 3)
	assert.Error(t, err)
}
