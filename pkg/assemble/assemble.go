// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package assemble expands marker lines of source skeletons with generated fragments.
package assemble

import (
	"bufio"
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vrtlmod/vrtlmod/pkg/osutil"
)

// Whole-line markers, the line is replaced by the fragment.
const (
	MarkerHeaderComment   = "//<INSERT_HEADER_COMMENT>"
	MarkerIncludes        = "//<INSERT_INCLUDES>"
	MarkerInjectionMacros = "//<INSERT_INJECTION_MACROS>"
	MarkerEntryTypes      = "//<INSERT_TD_ENTRY_TYPES>"
	MarkerDictionaryType  = "//<INSERT_TD_API_TYPE>"
	MarkerAPIEntries      = "//<INSERT_API_ENTRIES>"
	MarkerAPIBindings     = "//<INSERT_API_BINDINGS>"
)

// MarkerTopType is replaced inline wherever it occurs.
const MarkerTopType = "<INSERT_VTOPTYPE>"

var lineMarkers = map[string]bool{
	MarkerHeaderComment:   true,
	MarkerIncludes:        true,
	MarkerInjectionMacros: true,
	MarkerEntryTypes:      true,
	MarkerDictionaryType:  true,
	MarkerAPIEntries:      true,
	MarkerAPIBindings:     true,
}

var (
	ErrMissingSkeleton = errors.New("missing skeleton")
	ErrWriteFailed     = errors.New("write failed")
	ErrMissingFragment = errors.New("missing fragment")
)

type FragmentProvider interface {
	// Fragment returns the text for the marker.
	Fragment(marker string) (string, bool)
}

// Fragments is a FragmentProvider backed by a map.
type Fragments map[string]string

func (f Fragments) Fragment(marker string) (string, bool) {
	text, ok := f[marker]
	return text, ok
}

// Assemble scans skeleton once and substitutes all markers.
// Lines without markers are copied unchanged.
func Assemble(skeleton []byte, p FragmentProvider) ([]byte, error) {
	out := new(bytes.Buffer)
	s := bufio.NewScanner(bytes.NewReader(skeleton))
	s.Buffer(nil, 64<<20)
	for lineNo := 1; s.Scan(); lineNo++ {
		line := s.Text()
		if marker := strings.TrimSpace(line); lineMarkers[marker] {
			text, ok := p.Fragment(marker)
			if !ok {
				return nil, fmt.Errorf("line %v: %w for %v", lineNo, ErrMissingFragment, marker)
			}
			out.WriteString(text)
			if text != "" && !strings.HasSuffix(text, "\n") {
				out.WriteByte('\n')
			}
			continue
		}
		if strings.Contains(line, MarkerTopType) {
			top, ok := p.Fragment(MarkerTopType)
			if !ok {
				return nil, fmt.Errorf("line %v: %w for %v", lineNo, ErrMissingFragment, MarkerTopType)
			}
			line = strings.ReplaceAll(line, MarkerTopType, top)
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// AssembleFile assembles the skeleton file into dst.
// dst is replaced atomically, a failed run never leaves a partial file behind.
func AssembleFile(skeletonPath, dst string, p FragmentProvider) error {
	skeleton, err := os.ReadFile(skeletonPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMissingSkeleton, err)
	}
	return assembleTo(skeleton, dst, p)
}

func assembleTo(skeleton []byte, dst string, p FragmentProvider) error {
	data, err := Assemble(skeleton, p)
	if err != nil {
		return fmt.Errorf("%v: %w", dst, err)
	}
	if err := osutil.WriteFile(dst, data); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

// Names of the skeletons.
const (
	SkeletonAPIHeader  = "api.hpp"
	SkeletonAPISource  = "api.cpp"
	SkeletonDictionary = "targetdictionary.hpp"
)

//go:embed skeletons
var skeletons embed.FS

// Skeletons locates skeleton files. Dir overrides the built-in skeletons.
type Skeletons struct {
	Dir string
}

func (s Skeletons) Load(name string) ([]byte, error) {
	if s.Dir == "" {
		data, err := skeletons.ReadFile("skeletons/" + name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMissingSkeleton, err)
		}
		return data, nil
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, name))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingSkeleton, err)
	}
	return data, nil
}

// AssembleTo assembles the named skeleton into dst.
func (s Skeletons) AssembleTo(name, dst string, p FragmentProvider) error {
	if s.Dir != "" {
		return AssembleFile(filepath.Join(s.Dir, name), dst, p)
	}
	skeleton, err := s.Load(name)
	if err != nil {
		return err
	}
	return assembleTo(skeleton, dst, p)
}
