// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package walker finds candidate write sites in Verilated C++ sources and patches
// the emitted injections back into them.
package walker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/vrtlmod/vrtlmod/pkg/inject"
	"github.com/vrtlmod/vrtlmod/pkg/log"
	"github.com/vrtlmod/vrtlmod/pkg/resolver"
)

// DelayedMarker is the infix of Verilator delayed assignment shadow variables.
const DelayedMarker = "__Vdly__"

var ErrUnterminatedMarker = errors.New("unterminated FTCVDL region")

const (
	markerOpen  = "/*FTCVDL"
	markerClose = "FTCVDL*/"
)

// Walk parses src and returns the candidate write sites in source order.
// Sites are not resolved against the registry, every write through the model
// symbol table or the top instance is returned.
func Walk(ctx context.Context, file string, src []byte) ([]inject.Site, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(cpp.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %v: %w", file, err)
	}
	defer tree.Close()
	w := &walker{file: file, src: src}
	w.walk(tree.RootNode())
	log.Logf(1, "%v: %v candidate sites", file, len(w.sites))
	if log.V(3) {
		for _, site := range w.sites {
			log.Logf(3, "%v: %v", site, src[site.Start:site.Offset])
		}
	}
	return w.sites, nil
}

type walker struct {
	file  string
	src   []byte
	sites []inject.Site
}

func (w *walker) walk(node *sitter.Node) {
	switch node.Type() {
	case "assignment_expression":
		left := node.ChildByFieldName("left")
		right := node.ChildByFieldName("right")
		if left != nil {
			kind := inject.Sequential
			if right != nil && strings.Contains(right.Content(w.src), DelayedMarker) {
				kind = inject.Intermittent
			}
			w.candidate(node, left, kind)
		}
	case "update_expression":
		if arg := node.ChildByFieldName("argument"); arg != nil {
			w.candidate(node, arg, inject.Sequential)
		}
	case "call_expression":
		w.call(node)
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		w.walk(node.NamedChild(i))
	}
}

// call handles VL_ASSIGN_W(bits, dst, src) bulk writes of wide signals.
func (w *walker) call(node *sitter.Node) {
	fn := node.ChildByFieldName("function")
	args := node.ChildByFieldName("arguments")
	if fn == nil || args == nil || fn.Content(w.src) != "VL_ASSIGN_W" || args.NamedChildCount() < 3 {
		return
	}
	kind := inject.Sequential
	if strings.Contains(args.NamedChild(2).Content(w.src), DelayedMarker) {
		kind = inject.Intermittent
	}
	site, ok := w.site(node, args.NamedChild(1), kind)
	if ok {
		// The subscript of the destination is a pointer offset, not a written word.
		site.Word = inject.AllWords
		site.Expr = stripSubscript(site.Expr)
		w.sites = append(w.sites, site)
	}
}

func (w *walker) candidate(node, dst *sitter.Node, kind inject.Kind) {
	if site, ok := w.site(node, dst, kind); ok {
		w.sites = append(w.sites, site)
	}
}

func (w *walker) site(node, dst *sitter.Node, kind inject.Kind) (inject.Site, bool) {
	expr := dst.Content(w.src)
	access := resolver.Classify(expr)
	if _, ok := access.(resolver.Unrecognized); ok {
		return inject.Site{}, false
	}
	stmt := statement(node)
	if stmt == nil {
		log.Logf(2, "%v:%v: write %v is not a statement", w.file, node.StartPoint().Row+1, expr)
		return inject.Site{}, false
	}
	parent := stmt.Parent()
	return inject.Site{
		File:   w.file,
		Start:  int(stmt.StartByte()),
		Offset: int(stmt.EndByte()),
		Wrap:   parent == nil || parent.Type() != "compound_statement" && parent.Type() != "translation_unit",
		Expr:   expr,
		Kind:   kind,
		Word:   access.Word(),
	}, true
}

// statement returns the expression statement that node is part of.
// Writes nested in conditions or other expressions have no insertion point.
func statement(node *sitter.Node) *sitter.Node {
	for n := node.Parent(); n != nil; n = n.Parent() {
		switch n.Type() {
		case "expression_statement":
			return n
		case "parenthesized_expression", "comma_expression", "assignment_expression":
		default:
			return nil
		}
	}
	return nil
}

func stripSubscript(expr string) string {
	if pos := strings.LastIndexByte(expr, '['); pos > 0 && strings.HasSuffix(expr, "]") {
		return expr[:pos]
	}
	return expr
}

// Insertion is the emitted injection text for a site.
type Insertion struct {
	Site inject.Site
	Text string
}

// Patch inserts the injections after their statements and prepends header.
// Several injections after the same statement keep their order.
func Patch(src []byte, header string, ins []Insertion) []byte {
	type stmt struct {
		start, end int
		wrap       bool
		texts      []string
	}
	var stmts []*stmt
	index := make(map[[2]int]*stmt)
	for _, in := range ins {
		key := [2]int{in.Site.Start, in.Site.Offset}
		s := index[key]
		if s == nil {
			s = &stmt{start: in.Site.Start, end: in.Site.Offset, wrap: in.Site.Wrap}
			index[key] = s
			stmts = append(stmts, s)
		}
		s.texts = append(s.texts, in.Text)
	}
	type edit struct {
		pos  int
		seq  int
		text string
	}
	var edits []edit
	for _, s := range stmts {
		text := " " + strings.Join(s.texts, " ")
		if s.wrap {
			edits = append(edits, edit{s.start, len(edits), "{ "})
			text += " }"
		}
		edits = append(edits, edit{s.end, len(edits), text})
	}
	sort.SliceStable(edits, func(i, j int) bool {
		if edits[i].pos != edits[j].pos {
			return edits[i].pos > edits[j].pos
		}
		return edits[i].seq > edits[j].seq
	})
	out := append([]byte{}, src...)
	for _, e := range edits {
		out = append(out[:e.pos], append([]byte(e.text), out[e.pos:]...)...)
	}
	if header != "" {
		out = append([]byte(header), out...)
	}
	return out
}

// CleanMarkers removes /*FTCVDL ... FTCVDL*/ regions from src.
func CleanMarkers(src []byte) ([]byte, error) {
	var out []byte
	for {
		pos := bytes.Index(src, []byte(markerOpen))
		if pos == -1 {
			break
		}
		end := bytes.Index(src[pos:], []byte(markerClose))
		if end == -1 {
			return nil, fmt.Errorf("%w at offset %v", ErrUnterminatedMarker, len(out)+pos)
		}
		out = append(out, src[:pos]...)
		src = src[pos+end+len(markerClose):]
	}
	if out == nil {
		return src, nil
	}
	return append(out, src...), nil
}
