// Package serp turns raw search-engine result pages into structured
// outcomes. The extraction is fully schema-driven: a Schema says where the
// records of each result type live and which fields to pull out of them,
// and the Parser walks it with first-match/dedup semantics that are the
// same for every engine. Everything engine-specific beyond selectors
// (link unwrapping, no-results heuristics) lives in the engines package.
package serp

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"serpetl/internal/selector"
)

// ErrSearchType marks a parse request for a search type the schema cannot
// serve. It is raised before any node is visited; callers match it with
// errors.Is.
var ErrSearchType = errors.New("unsupported search type")

// Logger is the single-method logging seam. *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

type compiledVariant struct {
	id         string
	candidates cascadia.Selector
	fields     map[string]selector.Plan
}

type compiledType struct {
	name     string
	variants []compiledVariant
}

type compiledTable []compiledType

// Parser evaluates one schema against result pages. Construction compiles
// every selector, so a Parser is immutable afterwards and safe for
// concurrent use; one Parse call works on one document at a time.
type Parser struct {
	// Logger receives degradation warnings (unparseable documents). Set it
	// before first use; nil discards.
	Logger Logger

	schema *Schema
	tables map[string]compiledTable

	numResults     []selector.Plan
	noResults      []selector.Plan
	effectiveQuery []selector.Plan
	pageNumber     []selector.Plan
}

// NewParser validates and compiles schema.
func NewParser(schema *Schema) (*Parser, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	p := &Parser{
		schema: schema,
		tables: make(map[string]compiledTable, len(schema.Selectors)),
	}

	var err error
	if p.numResults, err = selector.CompileList(schema.NumResults); err != nil {
		return nil, err
	}
	if p.noResults, err = selector.CompileList(schema.NoResults); err != nil {
		return nil, err
	}
	if p.effectiveQuery, err = selector.CompileList(schema.EffectiveQuery); err != nil {
		return nil, err
	}
	if p.pageNumber, err = selector.CompileList(schema.PageNumber); err != nil {
		return nil, err
	}

	for searchType, types := range schema.Selectors {
		table := make(compiledTable, 0, len(types))
		for _, resultType := range slices.Sorted(maps.Keys(types)) {
			variants := types[resultType]
			ct := compiledType{name: resultType}
			for _, id := range slices.Sorted(maps.Keys(variants)) {
				fm := variants[id]
				cv := compiledVariant{
					id:     id,
					fields: make(map[string]selector.Plan, len(fm)),
				}
				cv.candidates, err = cascadia.Compile(candidateCSS(fm))
				if err != nil {
					return nil, fmt.Errorf("schema %s: %s[%s]: %w", schema.Engine, resultType, id, err)
				}
				for field, sel := range fm {
					if field == KeyContainer || field == KeyResultContainer {
						continue
					}
					plan, err := selector.Compile(sel)
					if err != nil {
						return nil, fmt.Errorf("schema %s: %s[%s].%s: %w", schema.Engine, resultType, id, field, err)
					}
					cv.fields[field] = plan
				}
				ct.variants = append(ct.variants, cv)
			}
			table = append(table, ct)
		}
		p.tables[searchType] = table
	}
	return p, nil
}

// Schema returns the schema the parser was built from.
func (p *Parser) Schema() *Schema { return p.schema }

func (p *Parser) logf(format string, v ...any) {
	if p.Logger != nil {
		p.Logger.Printf(format, v...)
	}
}

// table resolves the selector table for a search type, or the configuration
// error when the schema cannot serve it. Both failure modes (type never
// declared, type declared but no table written) wrap ErrSearchType.
func (p *Parser) table(searchType string) (compiledTable, error) {
	if !slices.Contains(p.schema.SupportedTypes, searchType) {
		return nil, fmt.Errorf("engine %s: %w: %q (supported: %s)",
			p.schema.Engine, ErrSearchType, searchType, strings.Join(p.schema.SupportedTypes, ", "))
	}
	table, ok := p.tables[searchType]
	if !ok || len(table) == 0 {
		return nil, fmt.Errorf("engine %s: %w: no selectors for %q", p.schema.Engine, ErrSearchType, searchType)
	}
	return table, nil
}

// Parse extracts an outcome from one raw result page. A document that
// cannot be parsed at all is not an error; it degrades to an outcome with
// defaults and a logged warning.
func (p *Parser) Parse(htmlSrc, query, searchType string) (*Outcome, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlSrc))
	if err != nil {
		p.logf("engine %s: unusable document: %v", p.schema.Engine, err)
		doc = nil
	}
	return p.ParseDocument(doc, query, searchType)
}

// ParseDocument extracts an outcome from an already parsed document, which
// lets callers share the document with post-parse steps. A nil doc yields
// the degraded default outcome.
//
// The only error is the ErrSearchType configuration error, raised before
// any node is visited. Dedup semantics per result type:
//
//   - a record with an empty link is discarded;
//   - a new link is appended with the next rank, counting into NumResults;
//   - a duplicate link whose already-accepted record lacks a visible link
//     is replaced in place by a draft that has one, keeping the old rank;
//   - everything else is discarded.
func (p *Parser) ParseDocument(doc *goquery.Document, query, searchType string) (*Outcome, error) {
	table, err := p.table(searchType)
	if err != nil {
		return nil, err
	}

	o := NewOutcome(query)
	for _, ct := range table {
		o.Results[ct.name] = []*Result{}
	}
	if doc == nil {
		return o, nil
	}
	root := doc.Selection

	if v, ok := selector.FirstMatch(p.numResults, root); ok {
		o.NumResultsForQuery = v
	}
	if v, ok := selector.FirstMatch(p.effectiveQuery, root); ok {
		o.EffectiveQuery = v
	}
	if v, ok := selector.FirstMatch(p.noResults, root); ok {
		o.NoResultsText = v
	}
	if v, ok := selector.FirstMatch(p.pageNumber, root); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			o.PageNumber = n
		}
	}

	for _, ct := range table {
		accepted := o.Results[ct.name]
		for _, cv := range ct.variants {
			root.FindMatcher(cv.candidates).Each(func(_ int, node *goquery.Selection) {
				draft := &Result{Fields: make(map[string]string, len(cv.fields)), Type: ct.name}
				for field, plan := range cv.fields {
					if v := plan.Extract(node); v != "" {
						draft.Fields[field] = v
					}
				}

				link := draft.Link()
				if link == "" {
					return
				}

				idx := -1
				for i, a := range accepted {
					if a.Link() == link {
						idx = i
						break
					}
				}
				switch {
				case idx < 0:
					draft.Rank = len(accepted) + 1
					accepted = append(accepted, draft)
					o.NumResults++
				case draft.VisibleLink() != "" && accepted[idx].VisibleLink() == "":
					draft.Rank = accepted[idx].Rank
					accepted[idx] = draft
				}
			})
		}
		o.Results[ct.name] = accepted
	}
	return o, nil
}
