package serp

import (
	"encoding/json"
	"maps"
	"net/url"
	"regexp"
	"slices"
)

// Canonical field names shared by schemas, normalizers and storage. Schemas
// may introduce additional fields (price, store, duration, ...); these are
// the ones the pipeline itself understands.
const (
	FieldTitle       = "title"
	FieldSnippet     = "snippet"
	FieldLink        = "link"
	FieldVisibleLink = "visible_link"
	FieldDomain      = "domain"
	FieldUser        = "user"
	FieldProfileURL  = "profile_url"
)

// Result is one extracted record. Fields holds the extracted values; an
// absent key and an empty value both mean "no value". Rank is 1-based in
// discovery order within the record's result type.
type Result struct {
	Fields map[string]string
	Rank   int
	Type   string
}

// Get returns the value of a field, "" when unset.
func (r *Result) Get(name string) string { return r.Fields[name] }

// Set stores a field value, allocating the map on first use.
func (r *Result) Set(name, value string) {
	if r.Fields == nil {
		r.Fields = make(map[string]string)
	}
	r.Fields[name] = value
}

// Delete removes a field, returning it to the unset state.
func (r *Result) Delete(name string) { delete(r.Fields, name) }

func (r *Result) Title() string       { return r.Fields[FieldTitle] }
func (r *Result) Snippet() string     { return r.Fields[FieldSnippet] }
func (r *Result) Link() string        { return r.Fields[FieldLink] }
func (r *Result) VisibleLink() string { return r.Fields[FieldVisibleLink] }

// MarshalJSON flattens the record to one object: the extracted fields plus
// rank and link_type. Keys marshal in sorted order, which keeps CLI output
// and golden files stable.
func (r *Result) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		obj[k] = v
	}
	obj["rank"] = r.Rank
	obj["link_type"] = r.Type
	return json.Marshal(obj)
}

// Outcome is the result of parsing one result page.
//
// NumResultsForQuery is the raw display string (e.g. "About 8,110,000,000
// results"); NumResults counts the accepted records across all result
// types. PageNumber is -1 when the page did not reveal it. NoResultsText
// carries the raw no-results marker text for the engine normalizers and is
// not part of the serialized outcome.
type Outcome struct {
	Query              string               `json:"query"`
	EffectiveQuery     string               `json:"effective_query"`
	NumResultsForQuery string               `json:"num_results_for_query"`
	NumResults         int                  `json:"num_results"`
	NoResults          bool                 `json:"no_results"`
	PageNumber         int                  `json:"page_number"`
	Results            map[string][]*Result `json:"results"`

	NoResultsText string `json:"-"`
}

// NewOutcome returns an empty outcome for query with the unknown-page-number
// sentinel set.
func NewOutcome(query string) *Outcome {
	return &Outcome{
		Query:      query,
		PageNumber: -1,
		Results:    make(map[string][]*Result),
	}
}

// ResultTypes returns the outcome's result types in sorted order.
func (o *Outcome) ResultTypes() []string {
	return slices.Sorted(maps.Keys(o.Results))
}

// AllResults returns every record ordered by result type, then rank.
func (o *Outcome) AllResults() []*Result {
	var all []*Result
	for _, t := range o.ResultTypes() {
		all = append(all, o.Results[t]...)
	}
	return all
}

// FillDomains backfills each record's domain field from the host of its
// final link. Records whose link has no recognizable host are left alone.
func (o *Outcome) FillDomains() {
	for _, rec := range o.AllResults() {
		if d := DomainOf(rec.Link()); d != "" {
			rec.Set(FieldDomain, d)
		}
	}
}

// urlRe slices the largest URL-looking substring out of a link value; some
// engines (Baidu in particular) pad link fields with stray text.
var urlRe = regexp.MustCompile(`https?://[^\s]+`)

// DomainOf returns the host part of a link, or "" when the link carries no
// parseable absolute URL.
func DomainOf(link string) string {
	raw := urlRe.FindString(link)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
