// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package descriptor reads signal descriptor files.
//
// Descriptors come as XML (as written by the register picker), JSON or YAML:
//
//	<targets top="Vtop">
//		<target name="pc" hierarchy="cpu.pc" class="register" bits="32" type="logic" cxx_type="IData"/>
//	</targets>
//
//	{"top": "Vtop", "targets": [{"hierarchy": "cpu.pc", "bits": 32, "cxx_type": "IData"}]}
//
// Every file is checked against an embedded CUE schema before use.
package descriptor

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/vrtlmod/vrtlmod/pkg/target"
	"gopkg.in/yaml.v3"
)

type Record struct {
	Name      string `json:"name,omitempty" yaml:"name" xml:"name,attr"`
	Hierarchy string `json:"hierarchy" yaml:"hierarchy" xml:"hierarchy,attr"`
	Class     string `json:"class,omitempty" yaml:"class" xml:"class,attr"`
	Bits      int    `json:"bits" yaml:"bits" xml:"bits,attr"`
	Type      string `json:"type,omitempty" yaml:"type" xml:"type,attr"`
	CxxType   string `json:"cxx_type" yaml:"cxx_type" xml:"cxx_type,attr"`
}

type File struct {
	// Top is the C++ type of the Verilated top module, e.g. Vtop.
	Top     string   `json:"top,omitempty" yaml:"top" xml:"top,attr"`
	Targets []Record `json:"targets" yaml:"targets" xml:"target"`
}

var ErrSchema = errors.New("descriptor schema violation")

type Format int

const (
	FormatXML Format = iota
	FormatJSON
	FormatYAML
)

// FormatOf returns the descriptor format implied by the file extension.
func FormatOf(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xml":
		return FormatXML, nil
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return 0, fmt.Errorf("%v: unknown descriptor format", filename)
}

func Load(filename string) (*File, error) {
	format, err := FormatOf(filename)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor file: %w", err)
	}
	f, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", filename, err)
	}
	return f, nil
}

func Parse(data []byte, format Format) (*File, error) {
	f := new(File)
	switch format {
	case FormatXML:
		if err := xml.Unmarshal(data, f); err != nil {
			return nil, fmt.Errorf("failed to parse XML: %w", err)
		}
	case FormatJSON:
		// Raw input is validated first to report unknown fields by name.
		if err := validate(data); err != nil {
			return nil, err
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(f); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(f); err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown descriptor format %v", format)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

//go:embed schema.cue
var schema []byte

// Validate checks the file against the descriptor schema.
func (f *File) Validate() error {
	if f.Targets == nil {
		f.Targets = []Record{}
	}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return validate(data)
}

func validate(data []byte) error {
	ctx := cuecontext.New()
	sch := ctx.CompileBytes(schema)
	if err := sch.Err(); err != nil {
		return fmt.Errorf("compiling descriptor schema: %w", err)
	}
	val := ctx.CompileBytes(data)
	if err := val.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	def := sch.LookupPath(cue.ParsePath("#Descriptors"))
	if err := def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	return nil
}

// Descriptors converts the records for registry population, in file order.
func (f *File) Descriptors() []target.Descriptor {
	var res []target.Descriptor
	for _, r := range f.Targets {
		res = append(res, target.Descriptor{
			Name:      r.Name,
			Hierarchy: r.Hierarchy,
			Class:     r.Class,
			Bits:      r.Bits,
			Type:      r.Type,
			CxxType:   r.CxxType,
		})
	}
	return res
}
