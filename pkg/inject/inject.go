// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package inject emits the injection macro calls spliced into write sites of a Verilated model.
//
// A sequential site is an explicit assignment in the model update logic and gets
// a guarded call per written word. An intermittent site commits a whole value once
// per evaluation (delayed assignments) and gets one call that covers all words.
package inject

import (
	"errors"
	"fmt"

	"github.com/vrtlmod/vrtlmod/pkg/resolver"
	"github.com/vrtlmod/vrtlmod/pkg/target"
)

// AllWords requests the looped form for writes of unknown word.
const AllWords = resolver.NoWord

// DefaultContext is the C++ expression naming the target dictionary in instrumented sources.
const DefaultContext = "VRTLMOD_TD"

var ErrWordRange = errors.New("word index out of range")

type Kind int

const (
	Sequential Kind = iota
	Intermittent
)

func (k Kind) String() string {
	if k == Intermittent {
		return "intermittent"
	}
	return "sequential"
}

// Site is a candidate write site as found by the source walker.
type Site struct {
	File string
	// Start and Offset delimit the enclosing statement, the injection is inserted at Offset.
	Start  int
	Offset int
	// Wrap is set for statements that are unbraced bodies of if/for/while,
	// they are wrapped in braces together with the injection.
	Wrap bool
	// Expr is the text of the written expression.
	Expr string
	Kind Kind
	// Word is the written word if known, otherwise AllWords.
	// The subscript of Expr is used when Word is AllWords.
	Word int
}

func (s Site) String() string {
	return fmt.Sprintf("%v:%v: %v %v", s.File, s.Offset, s.Kind, s.Expr)
}

type Emission struct {
	Site   Site
	Target *target.Target
	Text   string
}

type Config struct {
	// Context is the expression the dictionary entries are accessed through.
	Context string
	// Guard is an optional condition that must hold for the dictionary to be accessible,
	// e.g. the pointer the context dereferences. The model may be evaluated while no API exists.
	Guard string
}

type Emitter struct {
	cfg      Config
	resolver *resolver.Resolver
}

func NewEmitter(cfg Config, r *resolver.Resolver) *Emitter {
	if cfg.Context == "" {
		cfg.Context = DefaultContext
	}
	return &Emitter{cfg: cfg, resolver: r}
}

func (e *Emitter) entry(t *target.Target) string {
	return e.cfg.Context + "." + t.Member()
}

func (e *Emitter) guard(text string) string {
	if e.cfg.Guard == "" {
		return text
	}
	return "if (" + e.cfg.Guard + ") " + text
}

// Sequential emits the injection for an explicit write of the given word of t
// and counts it in t.SequentialInjections.
func (e *Emitter) Sequential(t *target.Target, word int) (string, error) {
	var text string
	switch {
	case word != AllWords && (word < 0 || word >= t.Words):
		return "", fmt.Errorf("%w: %v has %v words, got word %v", ErrWordRange, t.Hierarchy, t.Words, word)
	case !t.MultiWord():
		text = fmt.Sprintf("SEQ_TARGET_INJECT(%v);", e.entry(t))
	case word == AllWords:
		text = fmt.Sprintf("for (unsigned vrtlmod_w = 0; vrtlmod_w < %v; ++vrtlmod_w) "+
			"SEQ_TARGET_INJECT_W(%v, vrtlmod_w);", t.Words, e.entry(t))
	default:
		text = fmt.Sprintf("SEQ_TARGET_INJECT_W(%v, %v);", e.entry(t), word)
	}
	t.SequentialInjections++
	return e.guard(text), nil
}

// Intermittent emits the injection for a once per evaluation commit of t.
func (e *Emitter) Intermittent(t *target.Target) string {
	if t.MultiWord() {
		return e.guard(fmt.Sprintf("INT_TARGET_INJECT_W(%v, %v);", e.entry(t), t.Words))
	}
	return e.guard(fmt.Sprintf("INT_TARGET_INJECT(%v);", e.entry(t)))
}

// Emit resolves the site and emits its injection.
// Sites that do not resolve to a target are not an error and return false.
func (e *Emitter) Emit(site Site) (*Emission, bool, error) {
	t, access, ok := e.resolver.ResolveText(site.Expr)
	if !ok {
		return nil, false, nil
	}
	em := &Emission{Site: site, Target: t}
	if site.Kind == Intermittent {
		em.Text = e.Intermittent(t)
		return em, true, nil
	}
	word := site.Word
	if word == AllWords {
		word = access.Word()
	}
	text, err := e.Sequential(t, word)
	if err != nil {
		return nil, false, fmt.Errorf("%v: %w", site, err)
	}
	em.Text = text
	return em, true, nil
}
