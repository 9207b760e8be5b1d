// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nested struct {
	Aaa int
	Bbb string
}

type testConfig struct {
	Foo int
	Bar string
	Baz string `json:"-"`
	Qux []string
	Box nested
	Boq *nested
	Arr []nested
}

func TestLoad(t *testing.T) {
	tests := []struct {
		input  string
		output testConfig
		err    string
	}{
		{
			`{"foo": 42}`,
			testConfig{Foo: 42},
			"",
		},
		{
			`{"BAR": "Baz", "foo": 42}`,
			testConfig{Foo: 42, Bar: "Baz"},
			"",
		},
		{
			"# top model\n{\n\t# answer\n\t\"foo\": 42\n}",
			testConfig{Foo: 42},
			"",
		},
		{
			`{"foobar": 42}`,
			testConfig{},
			`unknown field "foobar"`,
		},
		{
			`{"foo": 1, "baz": "baz"}`,
			testConfig{},
			`unknown field "baz"`,
		},
		{
			`{"box": {"aaa": 12, "ccc": "bbb"}}`,
			testConfig{},
			`unknown field "ccc"`,
		},
		{
			`{"foo": 1, "boq": {"aaa": 12, "bbb": "bbb"}}`,
			testConfig{Foo: 1, Boq: &nested{Aaa: 12, Bbb: "bbb"}},
			"",
		},
		{
			`{"foo": 1, "arr": [{"aaa": 12, "bbb": "bbb"}, {"aaa": 13, "bbb": "ccc"}]}`,
			testConfig{Foo: 1, Arr: []nested{{12, "bbb"}, {13, "ccc"}}},
			"",
		},
		{
			`{"foo": null, "qux": null}`,
			testConfig{},
			"",
		},
		{
			`{"foo": "bar"}`,
			testConfig{},
			"cannot unmarshal string",
		},
	}
	for i, test := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			var cfg testConfig
			err := LoadData([]byte(test.input), &cfg)
			if test.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), test.err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(test.output, cfg); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestLoadYAML(t *testing.T) {
	var cfg testConfig
	err := LoadYAMLData([]byte("foo: 7\nqux:\n  - a.cpp\n  - b.cpp\nbox:\n  aaa: 1\n"), &cfg)
	require.NoError(t, err)
	assert.Equal(t, testConfig{Foo: 7, Qux: []string{"a.cpp", "b.cpp"}, Box: nested{Aaa: 1}}, cfg)

	err = LoadYAMLData([]byte("foo: 7\nextra: true\n"), &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown field "extra"`)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	jsonFile := filepath.Join(dir, "cfg.json")
	yamlFile := filepath.Join(dir, "cfg.yml")
	require.NoError(t, os.WriteFile(jsonFile, []byte(`{"bar": "json"}`), 0644))
	require.NoError(t, os.WriteFile(yamlFile, []byte(`bar: yaml`), 0644))

	var cfg testConfig
	require.NoError(t, LoadFile(jsonFile, &cfg))
	assert.Equal(t, "json", cfg.Bar)
	require.NoError(t, LoadFile(yamlFile, &cfg))
	assert.Equal(t, "yaml", cfg.Bar)

	assert.Error(t, LoadFile("", &cfg))
	assert.Error(t, LoadFile(filepath.Join(dir, "missing.json"), &cfg))
}

func TestLoadBadType(t *testing.T) {
	want := "config type is not pointer to struct"
	if err := LoadData([]byte("{}"), 1); err == nil || err.Error() != want {
		t.Fatalf("got '%v', want '%v'", err, want)
	}
	i := 0
	if err := LoadData([]byte("{}"), &i); err == nil || err.Error() != want {
		t.Fatalf("got '%v', want '%v'", err, want)
	}
	s := struct{}{}
	if err := LoadData([]byte("{}"), s); err == nil || err.Error() != want {
		t.Fatalf("got '%v', want '%v'", err, want)
	}
}
