// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package dictionary generates the C++ target dictionary: one entry type per target
// holding a pointer to the live signal storage and an injection mask of the same shape,
// and the TD_API aggregate that exposes all entries in registry order.
package dictionary

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/vrtlmod/vrtlmod/pkg/target"
)

// DefaultRoot is how members of the model root are reached from the model instance.
const DefaultRoot = "rootp->"

type Config struct {
	// Member access prefix of signals in the model instance.
	// Empty means the signals are direct members of the model.
	Root string
}

type Builder struct {
	cfg Config
}

func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg}
}

// entry is the template slot set of one target.
type entry struct {
	Index     int
	Hierarchy string
	Class     string
	Bits      int
	Words     int
	WordBits  int
	Multi     bool
	BaseType  string
	TypeName  string
	Member    string
	SetBit    string
	Storage   string
}

var (
	identRe    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	typeNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(::[A-Za-z_][A-Za-z0-9_]*)*$`)
	rootRe     = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*(->|\.))*$`)
)

// reserved are names of TD_API members that targets must not shadow.
var reserved = map[string]bool{
	"kTargets": true,
	"entries_": true,
	"size":     true,
	"find":     true,
	"TD_API":   true,
}

func (b *Builder) entry(t *target.Target) (*entry, error) {
	e := &entry{
		Index:     t.Index,
		Hierarchy: t.Hierarchy,
		Class:     t.Class.String(),
		Bits:      t.Bits,
		Words:     t.Words,
		WordBits:  t.WordBits,
		Multi:     t.MultiWord(),
		BaseType:  t.BaseType,
		TypeName:  "TDentry_" + t.Member(),
		Member:    t.Member(),
	}
	if !identRe.MatchString(e.Member) || reserved[e.Member] {
		return nil, fmt.Errorf("%v: bad member name %q", t.Hierarchy, e.Member)
	}
	if !typeNameRe.MatchString(e.BaseType) {
		return nil, fmt.Errorf("%v: bad storage type %q", t.Hierarchy, e.BaseType)
	}
	if !rootRe.MatchString(b.cfg.Root) {
		return nil, fmt.Errorf("bad model root access %q", b.cfg.Root)
	}
	storage := "model." + b.cfg.Root + e.Member
	if e.Multi {
		e.Storage = storage
	} else {
		e.Storage = "&" + storage
	}
	e.SetBit = setBit(t)
	return e, nil
}

// setBit returns the statement setting mask bit "bit" of t.
// Verilator bit primitives are used where the mask layout matches theirs.
func setBit(t *target.Target) string {
	wordBits := t.StorageWordBits()
	switch {
	case !t.MultiWord() && wordBits <= 32:
		return "VL_ASSIGNBIT_IO(bit, mask);"
	case !t.MultiWord():
		return "VL_ASSIGNBIT_QO(bit, mask);"
	case wordBits == 32 && t.WordBits == 32:
		return "VL_ASSIGNBIT_WO(bit, mask);"
	default:
		return fmt.Sprintf("mask[bit / %[1]v] |= static_cast<%[2]v>(static_cast<%[2]v>(1) << (bit %% %[1]v));",
			t.WordBits, t.BaseType)
	}
}

func (b *Builder) entries(targets []*target.Target) ([]*entry, error) {
	var res []*entry
	for _, t := range targets {
		e, err := b.entry(t)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}

// EntryType returns the declaration of the dictionary entry type of t.
func (b *Builder) EntryType(t *target.Target) (string, error) {
	e, err := b.entry(t)
	if err != nil {
		return "", err
	}
	return execute(entryTemplate, e)
}

// EntryTypes returns entry type declarations of all targets.
func (b *Builder) EntryTypes(targets []*target.Target) (string, error) {
	buf := new(strings.Builder)
	for i, t := range targets {
		text, err := b.EntryType(t)
		if err != nil {
			return "", err
		}
		if i != 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(text)
	}
	return buf.String(), nil
}

// DictionaryType returns the declaration of the TD_API aggregate.
// The output depends only on the targets and their order.
func (b *Builder) DictionaryType(targets []*target.Target) (string, error) {
	entries, err := b.entries(targets)
	if err != nil {
		return "", err
	}
	return execute(dictionaryTemplate, entries)
}

// APIMembers returns the entry instance members of the API class.
func (b *Builder) APIMembers(targets []*target.Target) (string, error) {
	entries, err := b.entries(targets)
	if err != nil {
		return "", err
	}
	return execute(membersTemplate, entries)
}

// APIBindings returns the API constructor initializers binding every entry
// instance to the model storage and the dictionary to the entries.
func (b *Builder) APIBindings(targets []*target.Target) (string, error) {
	entries, err := b.entries(targets)
	if err != nil {
		return "", err
	}
	return execute(bindingsTemplate, entries)
}

func execute(tmpl *template.Template, data any) (string, error) {
	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, data); err != nil {
		return "", fmt.Errorf("failed to generate %v: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// cstring returns s as a C string literal.
func cstring(s string) string {
	buf := new(strings.Builder)
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '"' || c == '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case c == '\n':
			buf.WriteString(`\n`)
		case c == '\t':
			buf.WriteString(`\t`)
		case c < 0x20 || c >= 0x7f || c == '?':
			// Octal escapes also keep "??" trigraphs out.
			fmt.Fprintf(buf, "\\%03o", c)
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte('"')
	return buf.String()
}

var funcs = template.FuncMap{
	"cstring": cstring,
}

func parse(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(funcs).Parse(text))
}

var entryTemplate = parse("entry type", `// {{.Hierarchy}}: {{.Class}}, {{.Bits}} bits{{if .Multi}} in {{.Words}} words{{end}}
struct {{.TypeName}} : public TDentryBase {
	{{.BaseType}}* const data;
	{{.BaseType}} mask{{if .Multi}}[{{.Words}}]{{end}};

	explicit {{.TypeName}}({{.BaseType}}* storage)
		: TDentryBase({{.Index}}, {{cstring .Hierarchy}}, {{.Bits}}, {{.Words}}), data(storage) {
		reset_mask();
	}
	void reset_mask() override {
{{- if .Multi}}
		for (unsigned w = 0; w < {{.Words}}; ++w)
			mask[w] = 0;
{{- else}}
		mask = 0;
{{- end}}
	}
	void set_maskBit(unsigned bit) override {
		if (bit >= {{.Bits}})
			return;
		{{.SetBit}}
	}
	void read_data(uint8_t* buf) const override {
		std::memcpy(buf, data, sizeof(mask));
	}
};
`)

var dictionaryTemplate = parse("dictionary type", `class TD_API {
public:
	static constexpr unsigned kTargets = {{len .}};

{{range .}}	{{.TypeName}}& {{.Member}};
{{end}}
	TD_API(
{{- range $i, $e := .}}{{if $i}},{{end}}
		{{.TypeName}}& {{.Member}}_
{{- end}})
		:
{{- range .}} {{.Member}}({{.Member}}_),
{{- end}}
		entries_{ {{- range $i, $e := .}}{{if $i}}, {{end}}&{{.Member}}_{{end}}{{if not .}}nullptr{{end}}} {
	}

	TDentryBase& operator[](unsigned index) { return *entries_[index]; }
	unsigned size() const { return kTargets; }
	TDentryBase* find(const char* hierarchy) {
		for (unsigned i = 0; i < kTargets; ++i) {
			if (std::strcmp(entries_[i]->name, hierarchy) == 0)
				return entries_[i];
		}
		return nullptr;
	}

private:
	TDentryBase* const entries_[kTargets ? kTargets : 1];

	TD_API(const TD_API&) = delete;
	TD_API& operator=(const TD_API&) = delete;
};
`)

var membersTemplate = parse("api members", `{{range .}}	{{.TypeName}} {{.Member}}_;
{{end}}`)

var bindingsTemplate = parse("api bindings", `{{range .}}	, {{.Member}}_({{.Storage}})
{{end}}	, td_(
{{- range $i, $e := .}}{{if $i}}, {{end}}{{.Member}}_{{end}})
`)
