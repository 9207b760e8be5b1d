// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package coverage reports how well the instrumentation reached the targets.
package coverage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vrtlmod/vrtlmod/pkg/osutil"
	"github.com/vrtlmod/vrtlmod/pkg/stat"
	"github.com/vrtlmod/vrtlmod/pkg/target"
)

// MaxInjectionsPerWord is the number of sequential injections per word above
// which a target is considered over-instrumented.
const MaxInjectionsPerWord = 2

type TargetInfo struct {
	Hierarchy  string `json:"hierarchy"`
	Words      int    `json:"words"`
	Injections int    `json:"sequential_injections"`
}

type Report struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Targets int       `json:"targets"`
	// Uninjected targets have no sequential injection, a campaign can't flip them.
	Uninjected []TargetInfo `json:"uninjected"`
	// OverInjected targets have more sequential injections per word than expected,
	// this may indicate double counting of a write path.
	OverInjected []TargetInfo `json:"over_injected"`
	Injections   int          `json:"sequential_injections"`
	Warnings     int          `json:"warnings"`
	Log          string       `json:"log,omitempty"`
}

// Analyze builds the report from the final injection counters.
func Analyze(targets []*target.Target) *Report {
	rep := &Report{
		ID:      uuid.New().String(),
		Time:    time.Now(),
		Targets: len(targets),
	}
	for _, t := range targets {
		info := TargetInfo{
			Hierarchy:  t.Hierarchy,
			Words:      t.Words,
			Injections: t.SequentialInjections,
		}
		rep.Injections += t.SequentialInjections
		if t.SequentialInjections == 0 {
			rep.Uninjected = append(rep.Uninjected, info)
		}
		if t.SequentialInjections/t.Words > MaxInjectionsPerWord {
			rep.OverInjected = append(rep.OverInjected, info)
		}
	}
	return rep
}

// UninjectedPercent returns the share of uninjected targets.
func (rep *Report) UninjectedPercent() float64 {
	if rep.Targets == 0 {
		return 0
	}
	return float64(len(rep.Uninjected)) * 100 / float64(rep.Targets)
}

// Summary returns the text summary for the operator.
func (rep *Report) Summary() string {
	buf := new(strings.Builder)
	fmt.Fprintf(buf, "Analysis vrtlmod run\n")
	fmt.Fprintf(buf, "Uninjected Targets: %v of %v (%.2f %%)\n",
		len(rep.Uninjected), rep.Targets, rep.UninjectedPercent())
	if len(rep.Uninjected) != 0 {
		fmt.Fprintf(buf, "Remaining Targets:\n")
		for _, info := range rep.Uninjected {
			fmt.Fprintf(buf, "\t- %v\n", info.Hierarchy)
		}
	}
	if len(rep.OverInjected) != 0 {
		fmt.Fprintf(buf, "Over-instrumented Targets: %v\n", len(rep.OverInjected))
		for _, info := range rep.OverInjected {
			fmt.Fprintf(buf, "\t- %v: %v injections in %v words\n",
				info.Hierarchy, info.Injections, info.Words)
		}
	}
	return buf.String()
}

// Save writes the report as JSON.
func (rep *Report) Save(filename string) error {
	data, err := json.MarshalIndent(rep, "", "\t")
	if err != nil {
		return err
	}
	return osutil.WriteFile(filename, append(data, '\n'))
}

// Stats registers the report values in the set, they are exported to Prometheus.
func (rep *Report) Stats(set *stat.Set) {
	set.New("targets", "Number of targets", stat.Console,
		func() int { return rep.Targets }, stat.Prometheus("vrtlmod_targets"))
	set.New("uninjected targets", "Targets without sequential injections", stat.Console,
		func() int { return len(rep.Uninjected) }, stat.Prometheus("vrtlmod_uninjected_targets"))
	set.New("over-instrumented targets", "Targets with too many sequential injections per word", stat.Console,
		func() int { return len(rep.OverInjected) }, stat.Prometheus("vrtlmod_over_injected_targets"))
	set.New("sequential injections", "Emitted sequential injection calls", stat.Console,
		func() int { return rep.Injections }, stat.Prometheus("vrtlmod_sequential_injections"))
	set.New("uninjected percent", "Share of uninjected targets",
		func() int { return int(rep.UninjectedPercent()) }, stat.FormatPercent,
		stat.Prometheus("vrtlmod_uninjected_percent"))
}
