// ============================================================================
// METADATA
// ============================================================================
// Settings - Layered TOML configuration overlay
//
// Purpose: Load optional operator-level defaults (coordinator capacity,
// slot pool key, fail-fast default) from <userConfigDir>/han/config.toml.
// There is no absolute-timeout setting here; that value comes only from
// envconfig. Missing file or missing keys fall back
// to hard-coded defaults (the teacher's "graceful degradation" philosophy
// in system/lib/config). Uses github.com/BurntSushi/toml, the teacher's
// universal configuration library.

package settings

// ============================================================================
// SETUP
// ============================================================================
import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Settings carries operator-configurable defaults that the environment
// variables in envconfig.Resolved can still override per invocation.
type Settings struct {
	Coordinator CoordinatorSettings `toml:"coordinator"`
	FailFast    bool                `toml:"fail_fast_default"`
}

// CoordinatorSettings configures the slot pool.
type CoordinatorSettings struct {
	Capacity int    `toml:"capacity"`
	PoolKey  string `toml:"pool_key"` // "global" or "hook"
}

func defaults() Settings {
	return Settings{
		Coordinator: CoordinatorSettings{
			Capacity: 1,
			PoolKey:  "global",
		},
		FailFast: true,
	}
}

// ============================================================================
// BODY
// ============================================================================

// Load reads <configDir>/han/config.toml if present, merging discovered
// values over the hard-coded defaults. A missing file is not an error.
func Load(configDir string) (Settings, error) {
	s := defaults()
	if configDir == "" {
		return s, nil
	}
	path := filepath.Join(configDir, "han", "config.toml")
	if _, err := os.Stat(path); err != nil {
		return s, nil
	}
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return s, err
	}
	if s.Coordinator.Capacity <= 0 {
		s.Coordinator.Capacity = 1
	}
	if s.Coordinator.PoolKey == "" {
		s.Coordinator.PoolKey = "global"
	}
	return s, nil
}

// ============================================================================
// CLOSING
// ============================================================================
// Struct-based library - no execution needed
