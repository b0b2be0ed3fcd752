// Copyright 2026 The allog Authors
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

// Package config reads the tracer's declarative TOML document: which
// allocator family to trace, and which exported symbol backs each
// logical target.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
)

// Family is the allocator family named by the config's top-level
// `allocator` key. The set is closed: Validate, and so Load, rejects any
// other non-empty value. allocator.New builds a Noop binding for every
// family other than FamilyMalloc.
type Family string

const (
	FamilyMalloc Family = "malloc"
	FamilyNoop   Family = "noop"
)

// Default env var and file names.
const (
	EnvConfigPath = "ALLOG_CONFIG"
	EnvOutputPath = "ALLOC_TRACE_OUTPUT"

	DefaultConfigPath = "allog.toml"
	DefaultOutputPath = "allog.json"
)

// Targets maps the five malloc-family logical names to the symbol that
// should be hooked for each. A nil entry falls back to the logical name;
// a non-nil empty string explicitly disables that target.
type Targets struct {
	Malloc   *string `toml:"malloc"`
	Calloc   *string `toml:"calloc"`
	Memalign *string `toml:"memalign"`
	Realloc  *string `toml:"realloc"`
	Free     *string `toml:"free"`
}

// Config is the parsed document.
type Config struct {
	Allocator Family  `toml:"allocator"`
	Targets   Targets `toml:"targets"`
}

// GetTarget resolves the symbol configured for a logical target name. An
// entry missing from the document falls back to logical unchanged; an
// entry explicitly set to "" means the target is disabled and must be
// skipped without error.
func (c *Config) GetTarget(logical string) string {
	var p *string
	switch logical {
	case "malloc":
		p = c.Targets.Malloc
	case "calloc":
		p = c.Targets.Calloc
	case "memalign":
		p = c.Targets.Memalign
	case "realloc":
		p = c.Targets.Realloc
	case "free":
		p = c.Targets.Free
	default:
		return logical
	}
	if p == nil {
		return logical
	}
	return *p
}

// Disabled reports whether logical has been explicitly disabled via an
// empty-string entry.
func (c *Config) Disabled(logical string) bool {
	switch logical {
	case "malloc":
		return c.Targets.Malloc != nil && *c.Targets.Malloc == ""
	case "calloc":
		return c.Targets.Calloc != nil && *c.Targets.Calloc == ""
	case "memalign":
		return c.Targets.Memalign != nil && *c.Targets.Memalign == ""
	case "realloc":
		return c.Targets.Realloc != nil && *c.Targets.Realloc == ""
	case "free":
		return c.Targets.Free != nil && *c.Targets.Free == ""
	default:
		return false
	}
}

// Load reads and parses the TOML document at path. Unknown keys are
// ignored (go-toml/v2's default, non-strict decode).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return &cfg, nil
}

// Validate collects every structural problem with the config, rather
// than stopping at the first, and joins them with multierr so a single
// log line surfaces everything wrong at once.
func (c *Config) Validate() error {
	var errs error
	switch c.Allocator {
	case FamilyMalloc, FamilyNoop, "":
		// "" defaults to noop at construction time (allocator.New), not
		// an error here.
	default:
		errs = multierr.Append(errs, fmt.Errorf("unsupported allocator family %q", c.Allocator))
	}
	return errs
}

// PathFromEnv returns the configured path from env, or def if unset.
func PathFromEnv(env string, def string) string {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		return v
	}
	return def
}
