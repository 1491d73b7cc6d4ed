package engines

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"serpetl/internal/serp"
)

var duckduckgoSchema = &serp.Schema{
	Engine:         "duckduckgo",
	SupportedTypes: []string{serp.SearchTypeNormal},

	EffectiveQuery: []string{""},
	// duckduckgo loads next pages with ajax
	PageNumber: []string{""},

	Selectors: map[string]serp.TypeMap{
		serp.SearchTypeNormal: {
			"organic": {
				"de_ip": {
					"container":        "#links",
					"result_container": ".result",
					"link":             ".result__title > a::attr(href)",
					"snippet":          "result__snippet::text",
					"title":            ".result__title > a::text",
					"visible_link":     ".result__url__domain::text",
				},
			},
		},
	},
}

var ddgNoResultsMarker = cascadia.MustCompile(".no-results")

type duckduckgoNormalizer struct{}

// Normalize checks the end-of-results banner first, then lets the accepted
// count have the final word; the page shows no total, so the count is the
// only reliable signal.
func (duckduckgoNormalizer) Normalize(o *serp.Outcome, searchType, _ string, doc *goquery.Document) {
	if searchType != serp.SearchTypeNormal {
		return
	}

	if doc != nil {
		if node := doc.FindMatcher(ddgNoResultsMarker).First(); node.Length() > 0 &&
			strings.Contains(node.Text(), "No more results.") {
			o.NoResults = true
		}
	}

	if o.NumResults > 0 {
		o.NoResults = false
	} else {
		o.NoResults = true
	}
}

var duckduckgo = mustEngine("duckduckgo", duckduckgoSchema, duckduckgoNormalizer{})
