package transport

import (
	"strconv"

	"github.com/BurntSushi/toml"
)

const DefaultBasePort = 1712

type MeshConfig struct {
	BasePort    int      `toml:"base_port"`     // Tile i hosts on BasePort + i.
	Cluster     bool     `toml:"cluster"`       // Tile i is at 10.0.0.{i+1}.
	Hosts       []string `toml:"hosts"`         // Explicit address per tile; overrides the two above.
	DialRetryMs int      `toml:"dial_retry_ms"` // Pause between dial attempts while a host is not up yet.
	ReadLimit   int64    `toml:"read_limit"`    // Largest accepted frame in bytes; 0 for no limit.
}

func DefaultMeshConfig() MeshConfig {
	return MeshConfig{BasePort: DefaultBasePort, DialRetryMs: 100}
}

// Overlays the TOML file at path onto cfg.
func LoadMeshConfig(path string, cfg *MeshConfig) error {
	_, err := toml.DecodeFile(path, cfg)
	return err
}

func (c MeshConfig) Address(tile int) string {
	if tile < len(c.Hosts) && c.Hosts[tile] != "" {
		return c.Hosts[tile]
	}
	if c.Cluster {
		return "10.0.0." + strconv.Itoa(tile+1)
	}
	return "127.0.0.1"
}

func (c MeshConfig) Port(tile int) int { return c.BasePort + tile }
