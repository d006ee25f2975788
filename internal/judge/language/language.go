// Package language defines how each supported language is compiled and run inside the sandbox.
package language

import (
	"sort"
	"strings"

	"github.com/google/shlex"

	appErr "judgecore/pkg/errors"
)

// Profile defines how to compile and run a language.
type Profile struct {
	ID               string   `yaml:"id"`
	Name             string   `yaml:"name"`
	SourceFile       string   `yaml:"sourceFile"`
	BinaryFile       string   `yaml:"binaryFile"`
	CompileCmdTpl    string   `yaml:"compile"`
	RunCmdTpl        string   `yaml:"run"`
	Env              []string `yaml:"env"`
	TimeMultiplier   float64  `yaml:"timeMultiplier"`
	MemoryMultiplier float64  `yaml:"memoryMultiplier"`
}

// Compiled reports whether the language has a compile step.
func (p Profile) Compiled() bool {
	return strings.TrimSpace(p.CompileCmdTpl) != ""
}

// CompileCmd expands the compile template into argv.
func (p Profile) CompileCmd() ([]string, error) {
	if !p.Compiled() {
		return nil, appErr.Newf(appErr.InvalidParams, "language %s has no compile step", p.ID)
	}
	return p.expand(p.CompileCmdTpl)
}

// RunCmd expands the run template into argv.
func (p Profile) RunCmd() ([]string, error) {
	return p.expand(p.RunCmdTpl)
}

func (p Profile) expand(tpl string) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command template is required")
	}
	expanded := strings.ReplaceAll(tpl, "{src}", p.SourceFile)
	expanded = strings.ReplaceAll(expanded, "{bin}", p.BinaryFile)
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
	}
	return fields, nil
}

func (p Profile) validate() error {
	if p.ID == "" {
		return appErr.New(appErr.RequiredFieldEmpty).WithMessage("language id is required")
	}
	if p.SourceFile == "" {
		return appErr.Newf(appErr.RequiredFieldEmpty, "language %s: sourceFile is required", p.ID)
	}
	if p.Compiled() && p.BinaryFile == "" {
		return appErr.Newf(appErr.RequiredFieldEmpty, "language %s: binaryFile is required for compiled languages", p.ID)
	}
	if p.TimeMultiplier < 0 || p.MemoryMultiplier < 0 {
		return appErr.Newf(appErr.InvalidValue, "language %s: multipliers must not be negative", p.ID)
	}
	if _, err := p.RunCmd(); err != nil {
		return err
	}
	if p.Compiled() {
		if _, err := p.CompileCmd(); err != nil {
			return err
		}
	}
	return nil
}

func (p Profile) withDefaults() Profile {
	if p.TimeMultiplier == 0 {
		p.TimeMultiplier = 1
	}
	if p.MemoryMultiplier == 0 {
		p.MemoryMultiplier = 1
	}
	if p.Name == "" {
		p.Name = p.ID
	}
	return p
}

// Table is an immutable language lookup.
type Table struct {
	profiles map[string]Profile
}

// NewTable builds a table from the built-in profiles, replaced or extended by overrides.
func NewTable(overrides []Profile) (*Table, error) {
	profiles := make(map[string]Profile, len(defaultProfiles)+len(overrides))
	for _, p := range defaultProfiles {
		profiles[p.ID] = p.withDefaults()
	}
	for _, p := range overrides {
		if err := p.validate(); err != nil {
			return nil, err
		}
		profiles[p.ID] = p.withDefaults()
	}
	return &Table{profiles: profiles}, nil
}

// Default returns a table holding only the built-in profiles.
func Default() *Table {
	t, _ := NewTable(nil)
	return t
}

// Get returns the profile for a language id.
func (t *Table) Get(id string) (Profile, error) {
	p, ok := t.profiles[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Profile{}, appErr.Newf(appErr.LanguageNotSupported, "language %q is not supported", id)
	}
	return p, nil
}

// IDs lists the supported language ids in sorted order.
func (t *Table) IDs() []string {
	ids := make([]string, 0, len(t.profiles))
	for id := range t.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
