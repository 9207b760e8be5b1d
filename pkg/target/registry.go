// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package target

import (
	"fmt"
)

// Registry owns all targets of a run. Targets are created once by Populate and
// are never removed or re-indexed, generated code refers to them by index.
// Registry is not safe for concurrent use.
type Registry struct {
	targets     []*Target
	byHierarchy map[string]*Target
	byDedotted  map[string]*Target
	byMember    map[string]*Target
}

// Populate creates one target per descriptor with indices assigned in input order.
func Populate(descs []Descriptor) (*Registry, error) {
	reg := &Registry{
		byHierarchy: make(map[string]*Target),
		byDedotted:  make(map[string]*Target),
		byMember:    make(map[string]*Target),
	}
	for i, desc := range descs {
		t, err := newTarget(i, desc)
		if err != nil {
			return nil, fmt.Errorf("descriptor #%v: %w", i, err)
		}
		if prev := reg.byHierarchy[t.Hierarchy]; prev != nil {
			return nil, fmt.Errorf("%w: %v (descriptors #%v and #%v)",
				ErrDuplicateHierarchy, t.Hierarchy, prev.Index, i)
		}
		if prev := reg.byDedotted[t.Dedotted()]; prev != nil {
			return nil, fmt.Errorf("%w: %v and %v have the same C++ name",
				ErrDuplicateHierarchy, prev.Hierarchy, t.Hierarchy)
		}
		if prev := reg.byMember[t.Member()]; prev != nil {
			return nil, fmt.Errorf("%w: %v and %v have the same member name %v",
				ErrDuplicateHierarchy, prev.Hierarchy, t.Hierarchy, t.Member())
		}
		reg.targets = append(reg.targets, t)
		reg.byHierarchy[t.Hierarchy] = t
		reg.byDedotted[t.Dedotted()] = t
		reg.byMember[t.Member()] = t
	}
	return reg, nil
}

// Lookup returns the target with exactly the given dotted hierarchy.
func (reg *Registry) Lookup(hierarchy string) (*Target, bool) {
	t, ok := reg.byHierarchy[hierarchy]
	return t, ok
}

// LookupDedotted returns the target whose de-dotted hierarchy is exactly name.
func (reg *Registry) LookupDedotted(name string) (*Target, bool) {
	t, ok := reg.byDedotted[name]
	return t, ok
}

// LookupMember returns the target with the given generated member name, see Target.Member.
func (reg *Registry) LookupMember(name string) (*Target, bool) {
	t, ok := reg.byMember[name]
	return t, ok
}

// All returns targets in construction order. The slice must not be modified.
func (reg *Registry) All() []*Target {
	return reg.targets
}

func (reg *Registry) Len() int {
	return len(reg.targets)
}
