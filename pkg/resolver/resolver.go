// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package resolver maps write expressions found in Verilated model sources back to targets.
//
// Verilated models access signal storage in one of two ways:
//
//	vlSymsp->TOP__cpu.pc     // through the symbol table object
//	vlTOPp->clk              // through the top module pointer
//
// optionally followed by a constant word subscript for multi-word signals.
// Classify turns expression text into one of the Access variants,
// Resolver matches the candidate hierarchy of an access against the registry.
package resolver

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/vrtlmod/vrtlmod/pkg/log"
	"github.com/vrtlmod/vrtlmod/pkg/target"
)

const (
	SymbolPrefix = "vlSymsp->"
	TopPrefix    = "vlTOPp->"
)

// NoWord denotes an access without a word subscript.
const NoWord = -1

type Access interface {
	// Word returns the subscripted word or NoWord.
	Word() int
	String() string
	isAccess()
}

// SymbolAccess is the indirect form vlSymsp->Object.Name.
type SymbolAccess struct {
	Object string
	Name   string
	Index  int
}

// TopAccess is the direct form vlTOPp->Name.
type TopAccess struct {
	Name  string
	Index int
}

// Unrecognized is any other expression, it never resolves.
type Unrecognized struct {
	Text string
}

func (a SymbolAccess) Word() int { return a.Index }
func (a TopAccess) Word() int    { return a.Index }
func (a Unrecognized) Word() int { return NoWord }

func (a SymbolAccess) String() string { return SymbolPrefix + a.Object + "." + a.Name + subscript(a.Index) }
func (a TopAccess) String() string    { return TopPrefix + a.Name + subscript(a.Index) }
func (a Unrecognized) String() string { return a.Text }

func (SymbolAccess) isAccess() {}
func (TopAccess) isAccess()    {}
func (Unrecognized) isAccess() {}

func subscript(word int) string {
	if word == NoWord {
		return ""
	}
	return "[" + strconv.Itoa(word) + "]"
}

var (
	subscriptRe = regexp.MustCompile(`^(.*)\[([0-9]+)[uU]?\]$`)
	identRe     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	pathRe      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
)

// Classify parses raw write expression text.
// Whitespace and redundant parentheses are ignored, a trailing constant
// subscript is captured as the word index.
func Classify(text string) Access {
	expr := stripParens(strings.Join(strings.Fields(text), ""))
	word := NoWord
	if m := subscriptRe.FindStringSubmatch(expr); m != nil {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return Unrecognized{Text: text}
		}
		expr, word = stripParens(m[1]), n
	}
	switch {
	case strings.HasPrefix(expr, SymbolPrefix):
		rest := expr[len(SymbolPrefix):]
		dot := strings.IndexByte(rest, '.')
		if dot == -1 {
			break
		}
		obj, name := rest[:dot], rest[dot+1:]
		if identRe.MatchString(obj) && pathRe.MatchString(name) {
			return SymbolAccess{Object: obj, Name: name, Index: word}
		}
	case strings.HasPrefix(expr, TopPrefix):
		name := expr[len(TopPrefix):]
		if pathRe.MatchString(name) {
			return TopAccess{Name: name, Index: word}
		}
	}
	return Unrecognized{Text: text}
}

// stripParens removes parentheses enclosing the whole expression.
func stripParens(s string) string {
	for len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' {
		depth := 0
		enclosing := true
		for i := 0; i < len(s)-1; i++ {
			switch s[i] {
			case '(':
				depth++
			case ')':
				depth--
			}
			if depth == 0 {
				// Closed before the end: "(a)+(b)".
				enclosing = false
				break
			}
		}
		if !enclosing {
			break
		}
		s = s[1 : len(s)-1]
	}
	return s
}

// CandidatePath returns the hierarchy an access refers to.
func CandidatePath(a Access) (string, bool) {
	switch a := a.(type) {
	case SymbolAccess:
		return a.Object + "." + a.Name, true
	case TopAccess:
		return target.TopPrefix + a.Name, true
	default:
		return "", false
	}
}

type Resolver struct {
	reg *target.Registry
}

func New(reg *target.Registry) *Resolver {
	return &Resolver{reg: reg}
}

// Resolve matches the candidate path of the access against the registry:
// first as a dotted hierarchy, then de-dotted against the de-dotted
// hierarchies, then with the separator tokens turned back into dots. Paths under TOP additionally match
// generated member names.
func (r *Resolver) Resolve(a Access) (*target.Target, bool) {
	path, ok := CandidatePath(a)
	if !ok {
		log.Logf(2, "unrecognized write expression %q", a.String())
		return nil, false
	}
	if t, ok := r.reg.Lookup(path); ok {
		return t, true
	}
	if t, ok := r.reg.LookupDedotted(target.Dedot(path)); ok {
		return t, true
	}
	if redotted := target.Redot(path); redotted != path {
		if t, ok := r.reg.Lookup(redotted); ok {
			return t, true
		}
	}
	// Signals of the top module are flattened into its members with dots de-dotted.
	if member, ok := strings.CutPrefix(path, target.TopPrefix); ok {
		if t, ok := r.reg.LookupMember(target.Dedot(member)); ok {
			return t, true
		}
	}
	log.Logf(2, "no target for %v (candidate %v)", a, path)
	return nil, false
}

// ResolveText classifies and resolves expression text, the access is returned even on failure.
func (r *Resolver) ResolveText(text string) (*target.Target, Access, bool) {
	a := Classify(text)
	t, ok := r.Resolve(a)
	return t, a, ok
}
