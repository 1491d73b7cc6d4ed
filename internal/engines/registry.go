// Package engines binds the built-in search engine schemas to their
// normalizers and exposes the registry that resolves an engine from a name
// or from the URL a page was requested with.
//
// Each engine lives in its own file: the selector schema as a data literal
// plus whatever post-parse cleanup that engine's pages need. The schemas
// are compiled and validated at package init, so a bad literal fails the
// process immediately.
package engines

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"serpetl/internal/serp"
)

var (
	// ErrUnknownEngine is returned by ByName for unrecognized engine names.
	ErrUnknownEngine = errors.New("no engine for name")
	// ErrUnknownURL is returned by ByURL when no URL pattern matches.
	ErrUnknownURL = errors.New("no engine for url")
)

// Normalizer is the engine-specific post-parse step: unwrap redirect links,
// decide the no-results flag, prune degenerate records. doc is the parsed
// page (nil when the document was unusable); rawHTML the original source,
// which some engines grep for marker phrases.
type Normalizer interface {
	Normalize(o *serp.Outcome, searchType, rawHTML string, doc *goquery.Document)
}

// Engine pairs a validated schema with its normalizer.
type Engine struct {
	Name       string
	Schema     *serp.Schema
	Parser     *serp.Parser
	Normalizer Normalizer
}

// Parse runs the full pipeline for one page: extract, normalize, backfill
// record domains. The returned error is the serp.ErrSearchType
// configuration error only.
func (e *Engine) Parse(htmlSrc, query, searchType string) (*serp.Outcome, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlSrc))
	if err != nil {
		doc = nil
	}
	o, err := e.Parser.ParseDocument(doc, query, searchType)
	if err != nil {
		return nil, err
	}
	if e.Normalizer != nil {
		e.Normalizer.Normalize(o, searchType, htmlSrc, doc)
	}
	o.FillDomains()
	return o, nil
}

func mustEngine(name string, schema *serp.Schema, n Normalizer) *Engine {
	p, err := serp.NewParser(schema)
	if err != nil {
		panic(fmt.Sprintf("engine %s: %v", name, err))
	}
	return &Engine{Name: name, Schema: schema, Parser: p, Normalizer: n}
}

// registry lists every built-in engine in registration order.
var registry = []*Engine{
	google,
	baidu,
	yandex,
	bing,
	yahoo,
	duckduckgo,
	ask,
	blekko,
	youtube,
	youtubeSponsored,
}

// aliases maps lowercase engine identifiers to engines. The *img aliases
// exist because callers historically named the image flavor of an engine
// rather than passing a search type.
var aliases = map[string]*Engine{
	"google":            google,
	"googleimg":         google,
	"baidu":             baidu,
	"baiduimg":          baidu,
	"yandex":            yandex,
	"bing":              bing,
	"yahoo":             yahoo,
	"duckduckgo":        duckduckgo,
	"ask":               ask,
	"blekko":            blekko,
	"youtube":           youtube,
	"youtube_sponsored": youtubeSponsored,
}

// urlTable maps request-URL patterns to engines, checked in order with the
// first match winning. Exact hostname patterns come before the loose ones.
// YouTube has no entry on purpose: its pages are only ever parsed by name.
var urlTable = []struct {
	re     *regexp.Regexp
	engine *Engine
}{
	{regexp.MustCompile(`^http[s]?://www\.google`), google},
	{regexp.MustCompile(`^http://yandex\.ru`), yandex},
	{regexp.MustCompile(`^http://www\.bing\.`), bing},
	{regexp.MustCompile(`^http[s]?://search\.yahoo.`), yahoo},
	{regexp.MustCompile(`^http://www\.baidu\.com`), baidu},
	{regexp.MustCompile(`^https://duckduckgo\.com`), duckduckgo},
	{regexp.MustCompile(`^http[s]?://[a-z]{2}?\.ask`), ask},
	{regexp.MustCompile(`^http[s]?://blekko`), blekko},
}

// ByName resolves an engine from a case-insensitive identifier or alias.
func ByName(name string) (*Engine, error) {
	e, ok := aliases[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
	return e, nil
}

// ByURL resolves an engine from the URL the page was requested with.
func ByURL(rawURL string) (*Engine, error) {
	for _, entry := range urlTable {
		if entry.re.MatchString(rawURL) {
			return entry.engine, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownURL, rawURL)
}

// Engines returns all built-in engines in registration order.
func Engines() []*Engine {
	return slices.Clone(registry)
}

// Names returns the canonical engine names in registration order.
func Names() []string {
	names := make([]string, len(registry))
	for i, e := range registry {
		names[i] = e.Name
	}
	return names
}

// ParseSERP is the one-call entry point: resolve the engine by name and
// parse one page with it.
func ParseSERP(htmlSrc, engineName, searchType, query string) (*serp.Outcome, error) {
	e, err := ByName(engineName)
	if err != nil {
		return nil, err
	}
	return e.Parse(htmlSrc, query, searchType)
}
