package cli

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Profile is a saved set of run flags, e.g.
//
//	db: ~/wod.db
//	tick: 250ms
//	max_depth: 16
//	cache: true
//
// Flags given on the command line override the profile.
type Profile struct {
	Database string        `yaml:"db,omitempty"`
	Tick     time.Duration `yaml:"tick,omitempty"`
	MaxDepth int           `yaml:"max_depth,omitempty"`
	Cache    *bool         `yaml:"cache,omitempty"`
}

// LoadProfile reads a YAML profile, rejecting unknown keys.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	if p.Tick < 0 {
		return nil, fmt.Errorf("profile %s: tick must be non-negative", path)
	}
	if p.MaxDepth < 0 {
		return nil, fmt.Errorf("profile %s: max_depth must be non-negative", path)
	}
	return &p, nil
}

// apply copies profile values into opts for every flag the user did not set.
func (p *Profile) apply(opts *RunOptions, cmd *cobra.Command) {
	changed := cmd.Flags().Changed
	if p.Database != "" && !changed("db") {
		opts.Database = p.Database
	}
	if p.Tick != 0 && !changed("tick") {
		opts.Tick = p.Tick
	}
	if p.MaxDepth != 0 && !changed("max-depth") {
		opts.MaxDepth = p.MaxDepth
	}
	if p.Cache != nil && !changed("cache") {
		opts.Cache = *p.Cache
	}
}
