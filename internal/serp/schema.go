package serp

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/andybalholm/cascadia"

	"serpetl/internal/selector"
)

// Reserved FieldMap keys. "container" selects the candidate nodes for a
// variant; "result_container" optionally narrows it (descendant combinator).
// Every other key is an extraction field.
const (
	KeyContainer       = "container"
	KeyResultContainer = "result_container"
)

// The search types the built-in engines declare. Schemas may introduce
// others; these two are the ones the engines ship tables for.
const (
	SearchTypeNormal = "normal"
	SearchTypeImage  = "image"
)

// FieldMap maps field names to selector strings for one layout variant.
type FieldMap map[string]string

// VariantMap maps variant ids (e.g. "0", "de_ip") to their FieldMaps. A
// result type carries one FieldMap per known page layout; variants are
// alternatives, so their relative order carries no meaning and the parser
// visits them in sorted order for deterministic output.
type VariantMap map[string]FieldMap

// TypeMap maps result types (organic, ads_top, ...) to their variants.
type TypeMap map[string]VariantMap

// Schema is the declarative selector table for one search engine: which
// search types it supports, the per-search-type extraction tables, and the
// ordered page-level selector lists scanned with first-match semantics.
//
// A search type may be listed in SupportedTypes without a Selectors entry;
// requesting it is a runtime configuration error, not a schema defect (the
// table for it simply was never written).
type Schema struct {
	Engine         string             `json:"engine"`
	SupportedTypes []string           `json:"supported_types"`
	Selectors      map[string]TypeMap `json:"selectors"`

	NumResults     []string `json:"num_results,omitempty"`
	NoResults      []string `json:"no_results,omitempty"`
	EffectiveQuery []string `json:"effective_query,omitempty"`
	PageNumber     []string `json:"page_number,omitempty"`
}

// candidateCSS builds the combined candidate-node selector for a variant.
func candidateCSS(fm FieldMap) string {
	css := strings.TrimSpace(fm[KeyContainer])
	if rc := strings.TrimSpace(fm[KeyResultContainer]); rc != "" {
		css = css + " " + rc
	}
	return css
}

// Validate checks the schema is usable: every selector table entry has at
// least one non-empty variant, every variant names a container, and every
// selector string compiles. Schemas fail here, at load, never mid-parse.
func (s *Schema) Validate() error {
	if s.Engine == "" {
		return fmt.Errorf("schema: missing engine name")
	}
	if len(s.SupportedTypes) == 0 {
		return fmt.Errorf("schema %s: no supported search types", s.Engine)
	}

	for _, searchType := range slices.Sorted(maps.Keys(s.Selectors)) {
		if !slices.Contains(s.SupportedTypes, searchType) {
			return fmt.Errorf("schema %s: selectors for undeclared search type %q", s.Engine, searchType)
		}
		types := s.Selectors[searchType]
		if len(types) == 0 {
			return fmt.Errorf("schema %s/%s: empty selector table", s.Engine, searchType)
		}
		for _, resultType := range slices.Sorted(maps.Keys(types)) {
			variants := types[resultType]
			if len(variants) == 0 {
				return fmt.Errorf("schema %s/%s: result type %q has no variants", s.Engine, searchType, resultType)
			}
			for _, id := range slices.Sorted(maps.Keys(variants)) {
				fm := variants[id]
				if len(fm) == 0 {
					return fmt.Errorf("schema %s/%s: %s[%s]: empty field map", s.Engine, searchType, resultType, id)
				}
				css := candidateCSS(fm)
				if strings.TrimSpace(fm[KeyContainer]) == "" {
					return fmt.Errorf("schema %s/%s: %s[%s]: missing container", s.Engine, searchType, resultType, id)
				}
				if _, err := cascadia.Compile(css); err != nil {
					return fmt.Errorf("schema %s/%s: %s[%s]: container: %w", s.Engine, searchType, resultType, id, err)
				}
				for field, sel := range fm {
					if field == KeyContainer || field == KeyResultContainer {
						continue
					}
					if _, err := selector.Compile(sel); err != nil {
						return fmt.Errorf("schema %s/%s: %s[%s].%s: %w", s.Engine, searchType, resultType, id, field, err)
					}
				}
			}
		}
	}

	for name, list := range map[string][]string{
		"num_results":     s.NumResults,
		"no_results":      s.NoResults,
		"effective_query": s.EffectiveQuery,
		"page_number":     s.PageNumber,
	} {
		if _, err := selector.CompileList(list); err != nil {
			return fmt.Errorf("schema %s: %s: %w", s.Engine, name, err)
		}
	}
	return nil
}

// LoadSchema decodes and validates a JSON schema document. It backs the
// -schema override of the parse CLI so a page layout can be fixed in the
// field without a rebuild.
func LoadSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadSchemaFile reads a JSON schema document from disk.
func LoadSchemaFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	s, err := LoadSchema(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}
