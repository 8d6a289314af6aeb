package acs

import (
	_ "embed"
	"fmt"
	"slices"

	"github.com/goccy/go-yaml"
)

//go:embed aliases.yaml
var aliasesYAML []byte

type aliasEntry struct {
	Code  string `yaml:"code"`
	Alias string `yaml:"alias"`
}

type aliasDoc struct {
	Fields []aliasEntry `yaml:"fields"`
}

// ReferenceFields holds the positional code -> alias mapping.
type ReferenceFields struct {
	Codes   []string
	Aliases []string
}

// LoadReferenceFields parses a reference document.
func LoadReferenceFields(data []byte) (ReferenceFields, error) {
	var doc aliasDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return ReferenceFields{}, fmt.Errorf("parse reference fields: %w", err)
	}
	var rf ReferenceFields
	for _, e := range doc.Fields {
		rf.Codes = append(rf.Codes, e.Code)
		rf.Aliases = append(rf.Aliases, e.Alias)
	}
	return rf, nil
}

// DefaultReferenceFields returns the embedded language-ability reference list.
func DefaultReferenceFields() ReferenceFields {
	rf, err := LoadReferenceFields(aliasesYAML)
	if err != nil {
		panic(err)
	}
	return rf
}

// AliasesFor returns the aliases for fields, position for position, only when
// fields equals the reference list exactly. Otherwise it returns nil and the
// raw codes stay as they are.
func (rf ReferenceFields) AliasesFor(fields []string) []string {
	if len(rf.Codes) == 0 || !slices.Equal(fields, rf.Codes) {
		return nil
	}
	return slices.Clone(rf.Aliases)
}
