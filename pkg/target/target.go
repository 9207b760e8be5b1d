// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package target holds the model of injectable signals (targets) and the registry
// that assigns them stable indices.
package target

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DotSeparator is what Verilator puts in place of hierarchy dots in C++ identifiers.
const DotSeparator = "__DOT__"

// TopPrefix is the hierarchy prefix of signals owned by the top module.
const TopPrefix = "TOP."

type SignalClass int

const (
	ClassUndefined SignalClass = iota
	ClassRegister
	ClassWire
	ClassConstant
)

var classNames = [...]string{
	ClassUndefined: "undefined",
	ClassRegister:  "register",
	ClassWire:      "wire",
	ClassConstant:  "constant",
}

// ParseClass maps descriptor class strings to classes, unknown strings are ClassUndefined.
func ParseClass(s string) SignalClass {
	for c, name := range classNames {
		if name == s {
			return SignalClass(c)
		}
	}
	return ClassUndefined
}

func (c SignalClass) String() string {
	if c < 0 || int(c) >= len(classNames) {
		return classNames[ClassUndefined]
	}
	return classNames[c]
}

// Descriptor is one signal record as produced by descriptor parsing.
type Descriptor struct {
	Name      string
	Hierarchy string
	Class     string
	Bits      int
	// Type is the signal type in the hardware description (informational).
	Type string
	// CxxType is the C++ storage type of the signal in the Verilated model, e.g. IData or WData[4].
	CxxType string
}

type Target struct {
	Index     int
	Hierarchy string
	Name      string
	Class     SignalClass
	Type      string
	// Bits is the total width, see newTarget for normalization of multi-word signals.
	Bits int
	// WordBits is the number of signal bits carried by one storage word,
	// it is also the stride of bit indices across words.
	WordBits    int
	StorageType string
	BaseType    string
	Words       int

	SequentialInjections int
}

var (
	ErrDuplicateHierarchy = errors.New("duplicate hierarchy")
	ErrBadStorageType     = errors.New("bad storage type")
	ErrBadHierarchy       = errors.New("bad hierarchy")
)

var (
	storageTypeRe = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_:]*)\s*(?:\[\s*([^\]]*)\s*\])?\s*$`)
	hierarchyRe   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
)

// ParseStorageType splits "T" or "T[N]" into the base type and word count.
func ParseStorageType(s string) (base string, words int, err error) {
	m := storageTypeRe.FindStringSubmatch(s)
	if m == nil {
		return "", 0, fmt.Errorf("%w: %q", ErrBadStorageType, s)
	}
	base, words = m[1], 1
	if strings.Contains(s, "[") {
		n, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimSpace(m[2]), "U"), 10, 31)
		if err != nil || n == 0 {
			return "", 0, fmt.Errorf("%w: %q: bad word count", ErrBadStorageType, s)
		}
		words = int(n)
	}
	return base, words, nil
}

func newTarget(index int, desc Descriptor) (*Target, error) {
	if !hierarchyRe.MatchString(desc.Hierarchy) {
		return nil, fmt.Errorf("%w: %q", ErrBadHierarchy, desc.Hierarchy)
	}
	if desc.Bits <= 0 {
		return nil, fmt.Errorf("%v: bad bit width %v", desc.Hierarchy, desc.Bits)
	}
	base, words, err := ParseStorageType(desc.CxxType)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", desc.Hierarchy, err)
	}
	t := &Target{
		Index:       index,
		Hierarchy:   desc.Hierarchy,
		Name:        desc.Name,
		Class:       ParseClass(desc.Class),
		Type:        desc.Type,
		Bits:        desc.Bits,
		WordBits:    desc.Bits,
		StorageType: strings.TrimSpace(desc.CxxType),
		BaseType:    base,
		Words:       words,
	}
	if t.Name == "" {
		t.Name = desc.Hierarchy[strings.LastIndexByte(desc.Hierarchy, '.')+1:]
	}
	if words > 1 {
		// Arrays of narrow words are widened to the full backing storage.
		if desc.Bits <= 32 {
			t.Bits = words * desc.Bits
		} else {
			// Wide signals keep their width, every storage word but the last is fully used.
			t.WordBits = t.StorageWordBits()
		}
	}
	if t.WordBits > 64 || t.WordBits > t.StorageWordBits() || t.Bits > t.Words*t.StorageWordBits() {
		return nil, fmt.Errorf("%v: %w: %v bits do not fit into %v", desc.Hierarchy,
			ErrBadStorageType, desc.Bits, desc.CxxType)
	}
	return t, nil
}

// Dedotted returns the hierarchy with dots replaced by the Verilator separator.
func (t *Target) Dedotted() string {
	return Dedot(t.Hierarchy)
}

// Member returns the C++ identifier used for the target in generated code and
// in the Verilated model root: the de-dotted hierarchy without the TOP prefix.
func (t *Target) Member() string {
	return Dedot(strings.TrimPrefix(t.Hierarchy, TopPrefix))
}

func (t *Target) MultiWord() bool {
	return t.Words > 1
}

var wordWidths = map[string]int{
	"CData": 8, "U8": 8, "uint8_t": 8, "char": 8, "bool": 8,
	"SData": 16, "U16": 16, "uint16_t": 16,
	"IData": 32, "U32": 32, "uint32_t": 32, "EData": 32, "WData": 32,
	"QData": 64, "U64": 64, "uint64_t": 64,
}

// StorageWordBits returns the width of one storage word of the target.
// Unknown base types are sized from the per-word signal width.
func (t *Target) StorageWordBits() int {
	if w, ok := wordWidths[t.BaseType]; ok {
		return w
	}
	for _, w := range []int{8, 16, 32} {
		if t.WordBits <= w {
			return w
		}
	}
	return 64
}

func Dedot(s string) string {
	return strings.ReplaceAll(s, ".", DotSeparator)
}

func Redot(s string) string {
	return strings.ReplaceAll(s, DotSeparator, ".")
}
