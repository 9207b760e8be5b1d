// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// vrtlmod instruments a Verilated model for fault injection.
// It inserts injection calls after the writes of the target signals and
// generates a target dictionary and API for the model.
//
// Usage:
//
//	vrtlmod -config vrtlmod.yml
//	vrtlmod -descriptors targets.xml -outdir out obj_dir/Vtop*.cpp
//
// Flags override the values of the config file.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/vrtlmod/vrtlmod/pkg/instrument"
	"github.com/vrtlmod/vrtlmod/pkg/log"
	"github.com/vrtlmod/vrtlmod/pkg/modconfig"
	"github.com/vrtlmod/vrtlmod/pkg/tool"
)

var (
	flagConfig      = flag.String("config", "", "config file (.json, .yaml or .yml)")
	flagDescriptors = flag.String("descriptors", "", "target descriptor file")
	flagOutdir      = flag.String("outdir", "", "output directory")
	flagTop         = flag.String("top", "", "type of the Verilated top model (e.g. Vtop)")
	flagOverwrite   = flag.Bool("overwrite", false, "instrument sources in place")
	flagContext     = flag.String("context", "", "expression the injections access the dictionary through")
	flagRoot        = flag.String("root", "", "member access prefix of signals in the model")
	flagSkeletons   = flag.String("skeletons", "", "directory with custom skeletons")
	flagProcs       = flag.Int("procs", 0, "number of sources parsed in parallel")
	flagReport      = flag.String("report", "", "write JSON coverage report to this file")
	flagMetrics     = flag.String("metrics", "", "write Prometheus metrics to this file")
	flagDiff        = flag.Bool("diff", false, "print patches instead of writing sources")
	flagSources     tool.ListFlag
)

func main() {
	flag.Var(&flagSources, "sources", "comma-separated list of sources (can also be passed as arguments)")
	defer tool.Init()()
	log.EnableLogCaching(1000, 1<<20)
	cfg, err := loadConfig()
	if err != nil {
		tool.Fail(err)
	}
	if cfg.Verbosity != 0 && !flagGiven("vv") {
		log.SetVerbosity(cfg.Verbosity)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	res, err := instrument.Run(ctx, cfg, os.Stdout)
	if err != nil {
		tool.Fail(err)
	}
	if res.Errors != nil {
		log.Logf(0, "%v of %v sources failed", len(cfg.Sources)-len(res.Sources), len(cfg.Sources))
	}
	log.Logf(0, "done, %v warnings", log.Warnings())
}

func flagGiven(name string) bool {
	given := false
	flag.Visit(func(f *flag.Flag) {
		given = given || f.Name == name
	})
	return given
}

func loadConfig() (*modconfig.Config, error) {
	cfg := modconfig.Default()
	if *flagConfig != "" {
		var err error
		if cfg, err = modconfig.LoadPartialFile(*flagConfig); err != nil {
			return nil, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "descriptors":
			cfg.Descriptors = *flagDescriptors
		case "outdir":
			cfg.Outdir = *flagOutdir
		case "top":
			cfg.Top = *flagTop
		case "overwrite":
			cfg.Overwrite = *flagOverwrite
		case "context":
			cfg.Context = *flagContext
		case "root":
			cfg.Root = *flagRoot
		case "skeletons":
			cfg.Skeletons = *flagSkeletons
		case "procs":
			cfg.Procs = *flagProcs
		case "report":
			cfg.Report = *flagReport
		case "metrics":
			cfg.Metrics = *flagMetrics
		case "diff":
			cfg.Diff = *flagDiff
		}
	})
	if len(flagSources) != 0 || flag.NArg() != 0 {
		cfg.Sources = append(append([]string{}, flagSources...), flag.Args()...)
	}
	if err := modconfig.Complete(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
