// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package walker

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrtlmod/vrtlmod/pkg/inject"
)

const testSource = `void eval(Vtop__Syms* vlSymsp, Vtop* vlTOPp) {
	vlSymsp->TOP__cpu.pc = vlTOPp->next_pc;
	vlSymsp->TOP__mem.bank[2U] = 5U;
	if (vlTOPp->reset) vlTOPp->counter = 0U;
	vlTOPp->counter = vlTOPp->__Vdly__counter;
	VL_ASSIGN_W(96, vlSymsp->TOP__cpu.wide, vlTOPp->in);
	local = 3;
	vlTOPp->count++;
	vlTOPp->a = 1, vlTOPp->b = 2;
	if ((vlTOPp->x = 1)) {
	}
}
`

func TestWalk(t *testing.T) {
	sites, err := Walk(context.Background(), "Vtop.cpp", []byte(testSource))
	require.NoError(t, err)
	type site struct {
		expr string
		kind inject.Kind
		word int
		wrap bool
		stmt string
	}
	want := []site{
		{"vlSymsp->TOP__cpu.pc", inject.Sequential, inject.AllWords, false,
			"vlSymsp->TOP__cpu.pc = vlTOPp->next_pc;"},
		{"vlSymsp->TOP__mem.bank[2U]", inject.Sequential, 2, false,
			"vlSymsp->TOP__mem.bank[2U] = 5U;"},
		{"vlTOPp->counter", inject.Sequential, inject.AllWords, true,
			"vlTOPp->counter = 0U;"},
		{"vlTOPp->counter", inject.Intermittent, inject.AllWords, false,
			"vlTOPp->counter = vlTOPp->__Vdly__counter;"},
		{"vlSymsp->TOP__cpu.wide", inject.Sequential, inject.AllWords, false,
			"VL_ASSIGN_W(96, vlSymsp->TOP__cpu.wide, vlTOPp->in);"},
		{"vlTOPp->count", inject.Sequential, inject.AllWords, false,
			"vlTOPp->count++;"},
		{"vlTOPp->a", inject.Sequential, inject.AllWords, false,
			"vlTOPp->a = 1, vlTOPp->b = 2;"},
		{"vlTOPp->b", inject.Sequential, inject.AllWords, false,
			"vlTOPp->a = 1, vlTOPp->b = 2;"},
	}
	require.Len(t, sites, len(want))
	for i, w := range want {
		got := sites[i]
		assert.Equal(t, "Vtop.cpp", got.File, i)
		assert.Equal(t, w.expr, got.Expr, i)
		assert.Equal(t, w.kind, got.Kind, i)
		assert.Equal(t, w.word, got.Word, i)
		assert.Equal(t, w.wrap, got.Wrap, i)
		assert.Equal(t, w.stmt, testSource[got.Start:got.Offset], i)
	}
}

func TestPatch(t *testing.T) {
	sites, err := Walk(context.Background(), "Vtop.cpp", []byte(testSource))
	require.NoError(t, err)
	var ins []Insertion
	for i, site := range sites {
		ins = append(ins, Insertion{Site: site, Text: "S" + string(rune('1'+i)) + ";"})
	}
	got := Patch([]byte(testSource), "#include \"VtopVRTLmodAPI.hpp\"\n", ins)
	want := `#include "VtopVRTLmodAPI.hpp"
void eval(Vtop__Syms* vlSymsp, Vtop* vlTOPp) {
	vlSymsp->TOP__cpu.pc = vlTOPp->next_pc; S1;
	vlSymsp->TOP__mem.bank[2U] = 5U; S2;
	if (vlTOPp->reset) { vlTOPp->counter = 0U; S3; }
	vlTOPp->counter = vlTOPp->__Vdly__counter; S4;
	VL_ASSIGN_W(96, vlSymsp->TOP__cpu.wide, vlTOPp->in); S5;
	local = 3;
	vlTOPp->count++; S6;
	vlTOPp->a = 1, vlTOPp->b = 2; S7; S8;
	if ((vlTOPp->x = 1)) {
	}
}
`
	assert.Equal(t, want, string(got))
}

func TestWalkChained(t *testing.T) {
	src := "void f(Vtop* vlTOPp) {\n\tvlTOPp->a = vlTOPp->b = 0U;\n}\n"
	sites, err := Walk(context.Background(), "Vtop.cpp", []byte(src))
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "vlTOPp->a", sites[0].Expr)
	assert.Equal(t, "vlTOPp->b", sites[1].Expr)
	for _, site := range sites {
		assert.Equal(t, "vlTOPp->a = vlTOPp->b = 0U;", src[site.Start:site.Offset])
		assert.False(t, site.Wrap)
	}
	got := Patch([]byte(src), "", []Insertion{{sites[0], "S1;"}, {sites[1], "S2;"}})
	assert.Equal(t, "void f(Vtop* vlTOPp) {\n\tvlTOPp->a = vlTOPp->b = 0U; S1; S2;\n}\n", string(got))
}

func TestPatchNothing(t *testing.T) {
	src := []byte("int x;\n")
	assert.Equal(t, "int x;\n", string(Patch(src, "", nil)))
	assert.Equal(t, "// h\nint x;\n", string(Patch(src, "// h\n", nil)))
}

func TestCleanMarkers(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		err   bool
	}{
		{"none", "int x;\n", "int x;\n", false},
		{"one", "a /*FTCVDL hidden FTCVDL*/b\n", "a b\n", false},
		{"several", "/*FTCVDL 1 FTCVDL*/a/*FTCVDL\n2\nFTCVDL*/b/*FTCVDLFTCVDL*/", "ab", false},
		{"unterminated", "a /*FTCVDL b", "", true},
		{"unterminated after", "/*FTCVDL a FTCVDL*/ /*FTCVDL", "", true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := CleanMarkers([]byte(test.input))
			if test.err {
				assert.ErrorIs(t, err, ErrUnterminatedMarker)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.want, string(got))
		})
	}
}

func TestWalkCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := strings.Repeat("void f() { vlTOPp->x = 1; }\n", 1000)
	// Cancellation is only checked periodically, a small input may still finish.
	sites, err := Walk(ctx, "big.cpp", []byte(src))
	if err == nil {
		assert.Len(t, sites, 1000)
	}
}
