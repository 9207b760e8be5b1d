// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package resolver

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrtlmod/vrtlmod/pkg/target"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want Access
	}{
		{"vlSymsp->sym.foo.bar", SymbolAccess{Object: "sym", Name: "foo.bar", Index: NoWord}},
		{"vlSymsp->TOP__cpu.pc", SymbolAccess{Object: "TOP__cpu", Name: "pc", Index: NoWord}},
		{" vlSymsp -> mem . bank [ 2U ] ", SymbolAccess{Object: "mem", Name: "bank", Index: 2}},
		{"((vlSymsp->mem.bank))[3]", SymbolAccess{Object: "mem", Name: "bank", Index: 3}},
		{"(vlSymsp->mem.bank[1])", SymbolAccess{Object: "mem", Name: "bank", Index: 1}},
		{"vlTOPp->clk", TopAccess{Name: "clk", Index: NoWord}},
		{"vlTOPp->cpu__DOT__regs[0]", TopAccess{Name: "cpu__DOT__regs", Index: 0}},
		{"vlSymsp->nodot", Unrecognized{Text: "vlSymsp->nodot"}},
		{"vlTOPp->mem[i]", Unrecognized{Text: "vlTOPp->mem[i]"}},
		{"vlSelf->clk", Unrecognized{Text: "vlSelf->clk"}},
		{"(vlTOPp->a)+(vlTOPp->b)", Unrecognized{Text: "(vlTOPp->a)+(vlTOPp->b)"}},
		{"", Unrecognized{Text: ""}},
	}
	for _, test := range tests {
		t.Run(test.text, func(t *testing.T) {
			if diff := cmp.Diff(test.want, Classify(test.text)); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestCandidatePath(t *testing.T) {
	path, ok := CandidatePath(SymbolAccess{Object: "sym", Name: "foo.bar", Index: NoWord})
	assert.True(t, ok)
	assert.Equal(t, "sym.foo.bar", path)

	path, ok = CandidatePath(TopAccess{Name: "clk", Index: NoWord})
	assert.True(t, ok)
	assert.Equal(t, "TOP.clk", path)

	path, ok = CandidatePath(Unrecognized{Text: "x = y"})
	assert.False(t, ok)
	assert.Empty(t, path)
}

func TestResolve(t *testing.T) {
	reg, err := target.Populate([]target.Descriptor{
		{Hierarchy: "cpu.pc", Bits: 32, CxxType: "IData"},
		{Hierarchy: "TOP.clk", Bits: 1, CxxType: "CData"},
		{Hierarchy: "cpu.alu.flags", Bits: 4, CxxType: "CData"},
		{Hierarchy: "mem.bank", Bits: 8, CxxType: "U8[4]"},
	})
	require.NoError(t, err)
	r := New(reg)
	tests := []struct {
		text string
		want string
		word int
	}{
		{"vlSymsp->cpu.pc", "cpu.pc", NoWord},
		{"vlTOPp->clk", "TOP.clk", NoWord},
		{"vlSymsp->mem.bank[2]", "mem.bank", 2},
		// De-dotted name through the symbol table.
		{"vlSymsp->cpu__DOT__alu.flags", "cpu.alu.flags", NoWord},
		// Flattened into the top module.
		{"vlTOPp->cpu__DOT__alu__DOT__flags", "cpu.alu.flags", NoWord},
		{"vlSymsp->TOP.cpu__DOT__pc", "cpu.pc", NoWord},
		{"vlSymsp->cpu.sp", "", NoWord},
		{"vlTOPp->rst", "", NoWord},
		{"vlSelf->cpu__DOT__pc", "", NoWord},
	}
	for _, test := range tests {
		t.Run(test.text, func(t *testing.T) {
			tgt, access, ok := r.ResolveText(test.text)
			assert.Equal(t, test.word, access.Word())
			if test.want == "" {
				assert.False(t, ok)
				assert.Nil(t, tgt)
				return
			}
			require.True(t, ok)
			assert.Equal(t, test.want, tgt.Hierarchy)
		})
	}
}

func TestResolveBothForms(t *testing.T) {
	reg, err := target.Populate([]target.Descriptor{
		{Hierarchy: "sym.foo.bar", Bits: 16, CxxType: "SData"},
	})
	require.NoError(t, err)
	r := New(reg)
	dotted, ok := r.Resolve(SymbolAccess{Object: "sym", Name: "foo.bar", Index: NoWord})
	require.True(t, ok)
	dedotted, ok := r.Resolve(SymbolAccess{Object: "sym", Name: "foo__DOT__bar", Index: NoWord})
	require.True(t, ok)
	assert.Same(t, dotted, dedotted)
}

func TestResolveDedottedHierarchy(t *testing.T) {
	// The hierarchy itself is partially de-dotted, only the de-dotted forms compare equal.
	reg, err := target.Populate([]target.Descriptor{
		{Hierarchy: "cpu__DOT__core.pc", Bits: 32, CxxType: "IData"},
	})
	require.NoError(t, err)
	r := New(reg)
	tgt, ok := r.Resolve(SymbolAccess{Object: "cpu", Name: "core.pc", Index: NoWord})
	require.True(t, ok)
	assert.Equal(t, "cpu__DOT__core.pc", tgt.Hierarchy)
	tgt, ok = r.Resolve(SymbolAccess{Object: "cpu", Name: "core__DOT__pc", Index: NoWord})
	require.True(t, ok)
	assert.Equal(t, "cpu__DOT__core.pc", tgt.Hierarchy)
}
