// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package modconfig

import (
	"fmt"
	"regexp"

	"github.com/vrtlmod/vrtlmod/pkg/config"
	"github.com/vrtlmod/vrtlmod/pkg/descriptor"
	"github.com/vrtlmod/vrtlmod/pkg/dictionary"
	"github.com/vrtlmod/vrtlmod/pkg/inject"
	"github.com/vrtlmod/vrtlmod/pkg/osutil"
)

const (
	DefaultProcs = 4
	MaxProcs     = 64
)

func LoadData(data []byte) (*Config, error) {
	cfg, err := LoadPartialData(data)
	if err != nil {
		return nil, err
	}
	if err := Complete(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadFile(filename string) (*Config, error) {
	cfg, err := LoadPartialFile(filename)
	if err != nil {
		return nil, err
	}
	if err := Complete(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadPartialData loads the config without completing it,
// command line flags may fill in the rest.
func LoadPartialData(data []byte) (*Config, error) {
	cfg := Default()
	if err := config.LoadData(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadPartialFile(filename string) (*Config, error) {
	cfg := Default()
	if err := config.LoadFile(filename, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Context: inject.DefaultContext,
		Root:    dictionary.DefaultRoot,
		Procs:   DefaultProcs,
	}
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func Complete(cfg *Config) error {
	if cfg.Descriptors == "" {
		return fmt.Errorf("config param descriptors is empty")
	}
	if _, err := descriptor.FormatOf(cfg.Descriptors); err != nil {
		return fmt.Errorf("bad config param descriptors: %w", err)
	}
	if cfg.Outdir == "" {
		return fmt.Errorf("config param outdir is empty")
	}
	if cfg.Top != "" && !identRe.MatchString(cfg.Top) {
		return fmt.Errorf("bad config param top: %q is not an identifier", cfg.Top)
	}
	if cfg.Context == "" {
		cfg.Context = inject.DefaultContext
	}
	if cfg.Procs == 0 {
		cfg.Procs = DefaultProcs
	}
	if cfg.Procs < 1 || cfg.Procs > MaxProcs {
		return fmt.Errorf("bad config param procs: '%v', want [1, %v]", cfg.Procs, MaxProcs)
	}
	if cfg.Verbosity < 0 {
		return fmt.Errorf("bad config param verbosity: '%v'", cfg.Verbosity)
	}
	if cfg.Overwrite && cfg.Diff {
		return fmt.Errorf("overwrite and diff are mutually exclusive")
	}
	cfg.Descriptors = osutil.Abs(cfg.Descriptors)
	cfg.Outdir = osutil.Abs(cfg.Outdir)
	cfg.Skeletons = osutil.Abs(cfg.Skeletons)
	cfg.Report = osutil.Abs(cfg.Report)
	cfg.Metrics = osutil.Abs(cfg.Metrics)
	for i, src := range cfg.Sources {
		if src == "" {
			return fmt.Errorf("config param sources contains an empty path")
		}
		cfg.Sources[i] = osutil.Abs(src)
	}
	if cfg.Skeletons != "" && !osutil.IsExist(cfg.Skeletons) {
		return fmt.Errorf("bad config param skeletons: %v does not exist", cfg.Skeletons)
	}
	return nil
}
