package engines

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"serpetl/internal/serp"
)

var yahooSchema = &serp.Schema{
	Engine:         "yahoo",
	SupportedTypes: []string{serp.SearchTypeNormal, serp.SearchTypeImage},

	// yahoo doesn't have an effective-query element
	EffectiveQuery: []string{""},
	NumResults:     []string{"#pg > span:last-child"},
	PageNumber:     []string{"#pg > strong::text"},

	Selectors: map[string]serp.TypeMap{
		serp.SearchTypeNormal: {
			"organic": {
				"de_ip": {
					"container":        "#main",
					"result_container": ".res",
					"link":             "div > h3 > a::attr(href)",
					"snippet":          "div.abstr::text",
					"title":            "div > h3 > a::text",
					"visible_link":     "span.url::text",
				},
			},
		},
		serp.SearchTypeImage: {
			"organic": {
				"ch_ip": {
					"container":        "#results",
					"result_container": "#sres > li",
					"link":             "a::attr(href)",
				},
			},
		},
	},
}

// yahooImageRules: the target hides percent-encoded and schemeless in the
// &imgurl= parameter of the detail-view href.
// TODO: derive the protocol from the rurl parameter instead of forcing http.
var yahooImageRules = []linkRule{
	{re: regexp.MustCompile(`&imgurl=(?P<url>.*?)&`), decode: true, prefix: "http://"},
}

var yahooNoResultsMarker = cascadia.MustCompile("#cquery")

type yahooNormalizer struct{}

func (yahooNormalizer) Normalize(o *serp.Outcome, searchType, _ string, doc *goquery.Document) {
	if searchType == serp.SearchTypeNormal {
		o.NoResults = false
		if o.NumResults == 0 {
			o.NoResults = true
		}
		if doc != nil && doc.FindMatcher(yahooNoResultsMarker).Length() >= 1 {
			o.NoResults = true
		}
		prune(o, func(rec *serp.Result) bool { return rec.VisibleLink() != "" })
	}

	if searchType == serp.SearchTypeImage {
		unwrapLinks(o, yahooImageRules)
	}
}

var yahoo = mustEngine("yahoo", yahooSchema, yahooNormalizer{})
