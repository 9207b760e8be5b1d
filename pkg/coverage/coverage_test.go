// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package coverage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrtlmod/vrtlmod/pkg/stat"
	"github.com/vrtlmod/vrtlmod/pkg/target"
)

func testRegistry(t *testing.T) *target.Registry {
	reg, err := target.Populate([]target.Descriptor{
		{Hierarchy: "cpu.pc", Bits: 32, CxxType: "U32"},
		{Hierarchy: "mem.bank", Bits: 8, CxxType: "U8[4]"},
		{Hierarchy: "cpu.sp", Bits: 32, CxxType: "IData"},
		{Hierarchy: "cpu.flags", Bits: 4, CxxType: "CData"},
	})
	require.NoError(t, err)
	return reg
}

func TestAnalyze(t *testing.T) {
	reg := testRegistry(t)
	counts := map[string]int{
		"cpu.pc":    0,
		"mem.bank":  9, // 2 per word is fine, 9/4 is not above the limit
		"cpu.sp":    3,
		"cpu.flags": 2,
	}
	for _, tgt := range reg.All() {
		tgt.SequentialInjections = counts[tgt.Hierarchy]
	}
	rep := Analyze(reg.All())
	assert.Equal(t, 4, rep.Targets)
	assert.Equal(t, 14, rep.Injections)
	assert.Equal(t, []TargetInfo{{Hierarchy: "cpu.pc", Words: 1, Injections: 0}}, rep.Uninjected)
	assert.Equal(t, []TargetInfo{{Hierarchy: "cpu.sp", Words: 1, Injections: 3}}, rep.OverInjected)
	assert.Equal(t, 25.0, rep.UninjectedPercent())
	_, err := uuid.Parse(rep.ID)
	assert.NoError(t, err)

	want := `Analysis vrtlmod run
Uninjected Targets: 1 of 4 (25.00 %)
Remaining Targets:
	- cpu.pc
Over-instrumented Targets: 1
	- cpu.sp: 3 injections in 1 words
`
	assert.Equal(t, want, rep.Summary())
}

func TestEmptyReport(t *testing.T) {
	rep := Analyze(nil)
	assert.Zero(t, rep.UninjectedPercent())
	assert.Equal(t, "Analysis vrtlmod run\nUninjected Targets: 0 of 0 (0.00 %)\n", rep.Summary())
}

func TestSave(t *testing.T) {
	rep := Analyze(testRegistry(t).All())
	rep.Log = "cached log"
	file := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, rep.Save(file))
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	var loaded Report
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, rep.ID, loaded.ID)
	assert.Len(t, loaded.Uninjected, 4)
	assert.Equal(t, "cached log", loaded.Log)
}

func TestStats(t *testing.T) {
	rep := Analyze(testRegistry(t).All())
	set := stat.NewSet()
	rep.Stats(set)
	var names []string
	for _, ui := range set.Collect(stat.Console) {
		names = append(names, ui.Name)
	}
	assert.Equal(t, []string{"targets", "uninjected targets", "over-instrumented targets",
		"sequential injections"}, names)
	file := filepath.Join(t.TempDir(), "vrtlmod.prom")
	require.NoError(t, set.WriteTextfile(file))
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "vrtlmod_uninjected_targets 4")
	assert.Contains(t, string(data), "vrtlmod_uninjected_percent 100")
}
