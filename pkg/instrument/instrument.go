// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package instrument runs a complete instrumentation of a Verilated model:
// it loads the target descriptors, injects the macro calls into the model sources,
// generates the target dictionary and API, and reports injection coverage.
package instrument

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/vrtlmod/vrtlmod/pkg/assemble"
	"github.com/vrtlmod/vrtlmod/pkg/coverage"
	"github.com/vrtlmod/vrtlmod/pkg/descriptor"
	"github.com/vrtlmod/vrtlmod/pkg/dictionary"
	"github.com/vrtlmod/vrtlmod/pkg/inject"
	"github.com/vrtlmod/vrtlmod/pkg/log"
	"github.com/vrtlmod/vrtlmod/pkg/modconfig"
	"github.com/vrtlmod/vrtlmod/pkg/osutil"
	"github.com/vrtlmod/vrtlmod/pkg/resolver"
	"github.com/vrtlmod/vrtlmod/pkg/stat"
	"github.com/vrtlmod/vrtlmod/pkg/target"
	"github.com/vrtlmod/vrtlmod/pkg/walker"
	"golang.org/x/sync/errgroup"
)

const (
	// APIDir is the subdirectory of the output directory with the generated files.
	APIDir = "vrtlmodapi"
	// SourceSuffix is appended to the base name of instrumented copies of the sources.
	SourceSuffix = "_vrtlmod.cpp"
)

// Result describes a finished run.
type Result struct {
	Top      string
	Registry *target.Registry
	Report   *coverage.Report
	// Sources are the instrumented files (copies unless overwrite is set).
	Sources []string
	// Outputs are the generated API and dictionary files.
	Outputs []string
	// Errors are per file problems that did not stop the run.
	Errors error
}

type source struct {
	orig    string
	path    string
	data    []byte
	sites   []inject.Site
	patched []byte
	// verbatim is set if the patched data is identical to the original file.
	verbatim bool
	err      error
}

type run struct {
	cfg     *modconfig.Config
	out     io.Writer
	top     string
	reg     *target.Registry
	stats   *stat.Set
	files   *stat.Val
	sites   *stat.Val
	emitted *stat.Val
	skipped *stat.Val
}

// Run instruments the model described by cfg. The coverage summary and,
// in diff mode, the patches of the sources are written to out.
// Errors that affect the whole run are returned, problems with individual
// sources are logged and collected in Result.Errors.
// No source is written unless the dictionary and the API were generated.
func Run(ctx context.Context, cfg *modconfig.Config, out io.Writer) (*Result, error) {
	desc, err := descriptor.Load(cfg.Descriptors)
	if err != nil {
		return nil, err
	}
	top := cfg.Top
	if top == "" {
		top = desc.Top
	}
	if top == "" {
		return nil, fmt.Errorf("top model type is specified neither in the config nor in %v", cfg.Descriptors)
	}
	reg, err := target.Populate(desc.Descriptors())
	if err != nil {
		return nil, err
	}
	log.Logf(0, "loaded %v targets of %v from %v", reg.Len(), top, cfg.Descriptors)
	r := newRun(cfg, out, top, reg)
	frags, err := r.fragments()
	if err != nil {
		return nil, err
	}
	if err := osutil.MkdirAll(filepath.Join(cfg.Outdir, APIDir, "TD")); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	res := &Result{Top: top, Registry: reg}
	sources := r.prepare()
	if err := r.walk(ctx, sources); err != nil {
		return nil, err
	}
	for _, src := range sources {
		if src.err == nil {
			r.instrument(src)
		}
	}
	outputs, err := r.generate(ctx, frags)
	if err != nil {
		return nil, err
	}
	res.Outputs = outputs
	var errs []error
	for _, src := range sources {
		if src.err == nil {
			src.err = r.write(src)
		}
		if src.err != nil {
			errs = append(errs, src.err)
			continue
		}
		res.Sources = append(res.Sources, src.path)
	}
	res.Report = coverage.Analyze(reg.All())
	fmt.Fprint(out, res.Report.Summary())
	if err := r.report(res.Report); err != nil {
		return nil, err
	}
	res.Errors = errors.Join(errs...)
	return res, nil
}

func newRun(cfg *modconfig.Config, out io.Writer, top string, reg *target.Registry) *run {
	r := &run{
		cfg:   cfg,
		out:   out,
		top:   top,
		reg:   reg,
		stats: stat.NewSet(),
	}
	r.files = r.stats.New("sources", "Instrumented sources", stat.Console,
		stat.Prometheus("vrtlmod_sources"))
	r.sites = r.stats.New("sites per source", "Candidate write sites per source",
		stat.Distribution{}, stat.Prometheus("vrtlmod_sites_per_source"))
	r.emitted = r.stats.New("emitted injections", "Injection calls inserted into the sources",
		stat.Console, stat.Prometheus("vrtlmod_emitted_injections"))
	r.skipped = r.stats.New("skipped sites", "Sites that resolved to a target but could not be instrumented",
		stat.Prometheus("vrtlmod_skipped_sites"))
	return r
}

// prepare drops unusable sources and picks the files the instrumented
// sources are written to.
func (r *run) prepare() []*source {
	var sources []*source
	copies := make(map[string]string)
	for _, file := range r.cfg.Sources {
		if !osutil.IsRegularFile(file) {
			log.Warnf("dropping source %v: not a regular file", file)
			continue
		}
		src := &source{orig: file, path: file}
		if !r.cfg.Overwrite {
			base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
			src.path = filepath.Join(r.cfg.Outdir, base+SourceSuffix)
			if prev := copies[src.path]; prev != "" {
				log.Warnf("dropping source %v: copy %v is already used for %v", file, src.path, prev)
				continue
			}
			copies[src.path] = file
		}
		sources = append(sources, src)
	}
	return sources
}

// walk finds the write sites of all sources in parallel.
func (r *run) walk(ctx context.Context, sources []*source) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Procs)
	for _, src := range sources {
		g.Go(func() error {
			data, err := os.ReadFile(src.orig)
			if err != nil {
				src.err = fmt.Errorf("failed to read %v: %w", src.orig, err)
				log.Warnf("%v", src.err)
				return nil
			}
			if src.data, err = walker.CleanMarkers(data); err != nil {
				src.err = fmt.Errorf("%v: %w", src.orig, err)
				log.Warnf("%v", src.err)
				return nil
			}
			// Markers are only ever removed.
			src.verbatim = len(src.data) == len(data)
			if src.sites, err = walker.Walk(ctx, src.path, src.data); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				src.err = err
				log.Warnf("%v", src.err)
			}
			return nil
		})
	}
	return g.Wait()
}

// instrument emits the injections of one source and patches them in.
// Emission is sequential as it updates the target counters.
func (r *run) instrument(src *source) {
	em := inject.NewEmitter(inject.Config{Context: r.cfg.Context, Guard: r.guard()}, resolver.New(r.reg))
	var ins []walker.Insertion
	for _, site := range src.sites {
		e, ok, err := em.Emit(site)
		if err != nil {
			log.Warnf("skipping site: %v", err)
			r.skipped.Add(1)
			continue
		}
		if !ok {
			continue
		}
		log.Logf(2, "%v: %v", site, e.Text)
		ins = append(ins, walker.Insertion{Site: site, Text: e.Text})
	}
	r.files.Add(1)
	r.sites.Add(len(src.sites))
	r.emitted.Add(len(ins))
	log.Logf(1, "%v: %v of %v sites instrumented", src.orig, len(ins), len(src.sites))
	var header string
	if len(ins) != 0 {
		header = fmt.Sprintf("#include \"%v\"\n", r.includePath(src.path))
	}
	src.patched = walker.Patch(src.data, header, ins)
	src.verbatim = src.verbatim && len(ins) == 0
}

// write stores the instrumented source, or prints its patch in diff mode.
func (r *run) write(src *source) error {
	if r.cfg.Diff {
		dmp := diffmatchpatch.New()
		patches := dmp.PatchMake(string(src.data), string(src.patched))
		fmt.Fprintf(r.out, "--- %v\n+++ %v\n%v", src.orig, src.path, dmp.PatchToText(patches))
		return nil
	}
	var err error
	switch {
	case src.verbatim && r.cfg.Overwrite:
		return nil
	case src.verbatim:
		err = osutil.CopyFile(src.orig, src.path)
	default:
		err = osutil.WriteFile(src.path, src.patched)
	}
	if err != nil {
		err = fmt.Errorf("failed to write %v: %w", src.path, err)
		log.Warnf("%v", err)
	}
	return err
}

func (r *run) apiHeader() string {
	return filepath.Join(r.cfg.Outdir, APIDir, r.top+"VRTLmodAPI.hpp")
}

// includePath returns the API header path relative to the instrumented file.
func (r *run) includePath(file string) string {
	rel, err := filepath.Rel(filepath.Dir(file), r.apiHeader())
	if err != nil {
		return filepath.ToSlash(r.apiHeader())
	}
	return filepath.ToSlash(rel)
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// dictionaryPointer is the global the generated API publishes its dictionary through.
const dictionaryPointer = "vrtlmod_td_"

// guard returns the condition injections are executed under. An identifier
// context is defined over the API global, which is null while no API exists.
func (r *run) guard() string {
	if identRe.MatchString(r.cfg.Context) {
		return dictionaryPointer
	}
	return ""
}

func (r *run) fragments() (assemble.Fragments, error) {
	b := dictionary.NewBuilder(dictionary.Config{Root: r.cfg.Root})
	targets := r.reg.All()
	entryTypes, err := b.EntryTypes(targets)
	if err != nil {
		return nil, err
	}
	dictType, err := b.DictionaryType(targets)
	if err != nil {
		return nil, err
	}
	members, err := b.APIMembers(targets)
	if err != nil {
		return nil, err
	}
	bindings, err := b.APIBindings(targets)
	if err != nil {
		return nil, err
	}
	includes := fmt.Sprintf("#include \"%v.h\"\n", r.top)
	if r.cfg.Root == dictionary.DefaultRoot {
		includes += fmt.Sprintf("#include \"%v___024root.h\"\n", r.top)
	}
	macros := inject.Macros()
	if r.guard() != "" {
		macros += fmt.Sprintf("\n#define %v (*%v)\n", r.cfg.Context, dictionaryPointer)
	}
	return assemble.Fragments{
		assemble.MarkerHeaderComment: fmt.Sprintf("// Generated by vrtlmod for %v with %v targets. Do not edit.",
			r.top, len(targets)),
		assemble.MarkerIncludes:        includes,
		assemble.MarkerInjectionMacros: macros,
		assemble.MarkerEntryTypes:      entryTypes,
		assemble.MarkerDictionaryType:  dictType,
		assemble.MarkerAPIEntries:      members,
		assemble.MarkerAPIBindings:     bindings,
		assemble.MarkerTopType:         r.top,
	}, nil
}

var skeletonNames = []string{assemble.SkeletonAPIHeader, assemble.SkeletonAPISource, assemble.SkeletonDictionary}

// generate writes the API header and source and the target dictionary.
func (r *run) generate(ctx context.Context, frags assemble.Fragments) ([]string, error) {
	dir := filepath.Join(r.cfg.Outdir, APIDir)
	outputs := map[string]string{
		assemble.SkeletonAPIHeader:  r.apiHeader(),
		assemble.SkeletonAPISource:  filepath.Join(dir, r.top+"VRTLmodAPI.cpp"),
		assemble.SkeletonDictionary: filepath.Join(dir, "TD", "targetdictionary.hpp"),
	}
	skeletons := assemble.Skeletons{Dir: r.cfg.Skeletons}
	g, _ := errgroup.WithContext(ctx)
	var files []string
	for _, name := range skeletonNames {
		dst := outputs[name]
		files = append(files, dst)
		g.Go(func() error {
			if err := skeletons.AssembleTo(name, dst, frags); err != nil {
				return fmt.Errorf("%v: %w", name, err)
			}
			log.Logf(1, "generated %v", dst)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

func (r *run) report(rep *coverage.Report) error {
	for _, ui := range r.stats.Collect(stat.Console) {
		log.Logf(0, "%-24v: %v", ui.Name, ui.Value)
	}
	rep.Stats(r.stats)
	if r.cfg.Metrics != "" {
		if err := r.stats.WriteTextfile(r.cfg.Metrics); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	if r.cfg.Report != "" {
		rep.Warnings = log.Warnings()
		rep.Log = log.CachedLogOutput()
		if err := rep.Save(r.cfg.Report); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	return nil
}
