// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package modconfig

type Config struct {
	// Target descriptor file (.xml, .json, .yaml or .yml).
	Descriptors string `json:"descriptors"`
	// Location of the output directory. Outputs here include:
	// - <outdir>/vrtlmodapi/<top>VRTLmodAPI.hpp/.cpp: the generated API
	// - <outdir>/vrtlmodapi/TD/targetdictionary.hpp: the target dictionary
	// - <outdir>/<name>_vrtlmod.cpp: instrumented copies of the sources (unless overwrite is set)
	Outdir string `json:"outdir"`
	// Type name of the Verilated top model, e.g. "Vtop".
	// Optional if the descriptor file names it.
	Top string `json:"top,omitempty"`
	// Verilated C++ sources to instrument.
	Sources []string `json:"sources"`
	// Instrument the sources in place instead of copies in outdir.
	Overwrite bool `json:"overwrite,omitempty"`
	// C++ expression the instrumented sources access the target dictionary through
	// ("VRTLMOD_TD" by default).
	Context string `json:"context,omitempty"`
	// Member access prefix of signals in the model instance ("rootp->" by default).
	// An explicit empty value binds signals as direct members of the model.
	Root string `json:"root,omitempty"`
	// Directory with custom skeletons for the generated files (optional).
	// It must contain all of the skeletons, the builtin set is used only without it.
	Skeletons string `json:"skeletons,omitempty"`
	// Number of sources parsed in parallel (4 by default, [1, 64]).
	Procs int `json:"procs,omitempty"`
	// JSON coverage report file (optional).
	Report string `json:"report,omitempty"`
	// Prometheus textfile with coverage metrics (optional).
	Metrics string `json:"metrics,omitempty"`
	// Print patches of the instrumented sources instead of writing them.
	Diff bool `json:"diff,omitempty"`
	// Log verbosity, the -vv flag takes precedence.
	Verbosity int `json:"verbosity,omitempty"`
}

