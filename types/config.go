package types

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Cache backends understood by CacheOptions.Backend.
const (
	BackendMemDB     = "memdb"
	BackendGoLevelDB = "goleveldb"
)

// JITConfig defines the configuration of the JIT.
type JITConfig struct {
	Target TargetOptions `toml:"target" json:"target"`
	Cache  CacheOptions  `toml:"cache" json:"cache"`
	Log    LogOptions    `toml:"log" json:"log"`
}

// TargetOptions describes the machine compiled code runs on.
type TargetOptions struct {
	// PointerSize is the native pointer width in bytes, 4 or 8.
	PointerSize uint32 `toml:"pointer_size" json:"pointer_size"`
	// MainFunction is the name of the single top-level entry function.
	MainFunction string `toml:"main_function" json:"main_function"`
	// Triple is copied into emitted modules, e.g. "x86_64-unknown-linux-gnu".
	Triple string `toml:"triple" json:"triple,omitempty"`
}

// CacheOptions configures the store of published ABI descriptors.
type CacheOptions struct {
	BaseDir string `toml:"base_dir" json:"base_dir"`
	// Backend is BackendMemDB or BackendGoLevelDB.
	Backend string `toml:"backend" json:"backend"`
}

type LogOptions struct {
	// Level is a zerolog level name: "debug", "info", "warn", ...
	Level string `toml:"level" json:"level"`
}

// DefaultJITConfig returns a config for a 64-bit target with an in-memory store.
func DefaultJITConfig() JITConfig {
	return JITConfig{
		Target: TargetOptions{
			PointerSize:  8,
			MainFunction: "main",
		},
		Cache: CacheOptions{
			Backend: BackendMemDB,
		},
		Log: LogOptions{
			Level: "info",
		},
	}
}

// LoadJITConfig reads a TOML config file. Keys missing from the file keep
// their DefaultJITConfig values.
func LoadJITConfig(path string) (JITConfig, error) {
	config := DefaultJITConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return JITConfig{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &config); err != nil {
		return JITConfig{}, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return JITConfig{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// Validate checks the config for values the JIT cannot work with.
func (c JITConfig) Validate() error {
	if c.Target.PointerSize != 4 && c.Target.PointerSize != 8 {
		return fmt.Errorf("target pointer size must be 4 or 8, got %d", c.Target.PointerSize)
	}
	if c.Target.MainFunction == "" {
		return errors.New("target main function name is empty")
	}
	switch c.Cache.Backend {
	case BackendMemDB:
	case BackendGoLevelDB:
		if c.Cache.BaseDir == "" {
			return errors.New("cache base_dir is required for the goleveldb backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	return nil
}
