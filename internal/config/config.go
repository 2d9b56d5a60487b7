// Package config loads default ALFS geometry parameters from a TOML file,
// with flag > file > built-in-default precedence, grounded on
// dsmmcken-dh-cli/src/internal/config/config.go's Load/Save shape. The
// ALFS_CONFIG environment variable (DH_HOME-style) only selects which file
// is read.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Defaults mirrors the constants mkfs/f2fs_format.c:182-195 falls back to
// when the CLI does not override them (spec §6.4's geometry flags).
type Defaults struct {
	BlksPerSeg    uint32  `toml:"blks_per_seg,omitempty"`
	SegsPerSec    uint32  `toml:"segs_per_sec,omitempty"`
	SecsPerZone   uint32  `toml:"secs_per_zone,omitempty"`
	Overprovision float64 `toml:"overprovision,omitempty"`
	Heap          bool    `toml:"heap,omitempty"`
	Trim          bool    `toml:"trim,omitempty"`
}

// fileDefaults mirrors Defaults for unmarshaling only: Heap/Trim are
// pointers so a config file can tell "unset" apart from "explicitly
// false," which a plain bool (defaulting to the zero value) cannot.
type fileDefaults struct {
	BlksPerSeg    uint32  `toml:"blks_per_seg,omitempty"`
	SegsPerSec    uint32  `toml:"segs_per_sec,omitempty"`
	SecsPerZone   uint32  `toml:"secs_per_zone,omitempty"`
	Overprovision float64 `toml:"overprovision,omitempty"`
	Heap          *bool   `toml:"heap,omitempty"`
	Trim          *bool   `toml:"trim,omitempty"`
}

// builtin is used when no config file, env var, or flag supplies a value.
// Values mirror the original's DEFAULT_* constants.
var builtin = Defaults{
	BlksPerSeg:    512,
	SegsPerSec:    1,
	SecsPerZone:   1,
	Overprovision: 5.0,
	Heap:          true,
	Trim:          false,
}

// pathOverride is set by --config; ALFS_CONFIG is the env fallback.
var pathOverride string

// SetPath allows the CLI to pass in the --config flag's value.
func SetPath(p string) { pathOverride = p }

// Path returns the config file path. Precedence: --config flag / SetPath >
// ALFS_CONFIG env > $HOME/.config/alfs.toml.
func Path() string {
	if pathOverride != "" {
		return pathOverride
	}
	if v := os.Getenv("ALFS_CONFIG"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "alfs.toml")
	}
	return filepath.Join(home, ".config", "alfs.toml")
}

// Load reads the config file, falling back to builtin defaults for any
// field it doesn't set and for the file not existing at all.
func Load() (Defaults, error) {
	d := builtin
	data, err := os.ReadFile(Path())
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return d, fmt.Errorf("reading config: %w", err)
	}

	var fromFile fileDefaults
	if err := toml.Unmarshal(data, &fromFile); err != nil {
		return d, fmt.Errorf("parsing %s: %w", Path(), err)
	}
	if fromFile.BlksPerSeg != 0 {
		d.BlksPerSeg = fromFile.BlksPerSeg
	}
	if fromFile.SegsPerSec != 0 {
		d.SegsPerSec = fromFile.SegsPerSec
	}
	if fromFile.SecsPerZone != 0 {
		d.SecsPerZone = fromFile.SecsPerZone
	}
	if fromFile.Overprovision != 0 {
		d.Overprovision = fromFile.Overprovision
	}
	if fromFile.Heap != nil {
		d.Heap = *fromFile.Heap
	}
	if fromFile.Trim != nil {
		d.Trim = *fromFile.Trim
	}
	return d, nil
}

// Save writes d to Path(), creating its parent directory if needed.
func Save(d Defaults) error {
	if err := os.MkdirAll(filepath.Dir(Path()), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := toml.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(Path(), data, 0o644)
}
