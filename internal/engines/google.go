package engines

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"serpetl/internal/serp"
)

// googleSchema covers the desktop and mobile layouts of Google's normal
// search. The image search type is declared for alias compatibility but has
// no selector table; requesting it reports a configuration error.
var googleSchema = &serp.Schema{
	Engine:         "google",
	SupportedTypes: []string{serp.SearchTypeNormal, serp.SearchTypeImage},

	EffectiveQuery: []string{"#topstuff .med > b::text"},
	NumResults:     []string{"#resultStats"},
	PageNumber:     []string{"#navcnt td.cur::text"},

	Selectors: map[string]serp.TypeMap{
		serp.SearchTypeNormal: {
			"organic": {
				"0": {
					"container":        "#center_col",
					"result_container": "div.g ",
					"link":             "h3.r > a:first-child::attr(href)",
					"snippet":          "div.s span.st::text",
					"title":            "h3.r > a:first-child::text",
					"visible_link":     "cite::text",
				},
			},
			"ads_top": {
				"0": {
					"container":        "#_Ltg",
					"result_container": ".ads-ad",
					"title":            "h3 > a::text",
					"link":             "h3 > a::attr(href)",
					"visible_link":     ".ads-visurl > cite",
					"content":          ".ads-creative",
				},
				// Mobile
				"1": {
					"container":        "#tads",
					"result_container": ".ads-ad",
					"title":            "._uWj > h3",
					"link":             `a[id$="s0p"]::attr(href)`,
					"visible_link":     ".ads-visurl > cite",
					"content":          ".ads-creative",
				},
			},
			"ads_bottom": {
				"0": {
					"container":        "#_Ktg",
					"result_container": ".ads-ad",
					"title":            "h3 > a::text",
					"link":             "h3 > a::attr(href)",
					"visible_link":     ".ads-visurl > cite",
					"content":          ".ads-creative",
				},
				// Mobile
				"1": {
					"container":        "#tadsb",
					"result_container": ".ads-ad",
					"title":            "._uWj > h3",
					"link":             `a[id$="s3p"]::attr(href)`,
					"visible_link":     ".ads-visurl > cite",
					"content":          ".ads-creative",
				},
			},
			"pla_main": {
				"0": {
					"container":        "#center_col > table.ts",
					"result_container": `td[valign="top"]`,
					"title":            "div:nth-child(2) > a::text",
					"link":             "div:nth-child(2) > a::attr(href)",
					"price":            "div:nth-child(3)",
					"store":            "div:nth-child(4) > cite",
				},
				// Mobile
				"1": {
					"container":        ".shopping-carousel-container",
					"result_container": ".pla-unit-container",
					"title":            "h4._HLg",
					"link":             "a.pla-unit::attr(href)",
					"price":            "._XJg",
					"store":            "._FLg",
				},
			},
			"pla_side": {
				"0": {
					"container":        "#rhs_block > table.ts",
					"result_container": `td[valign="top"]`,
					"title":            "._cf > div:nth-child(2) > a::text",
					"link":             "._cf > div:nth-child(2) > a::attr(href)",
					"price":            "._cf > div:nth-child(3)",
					"store":            "._cf > div:nth-child(4) > cite",
				},
			},
		},
	},
}

// googleUnwrapRules strips Google's redirect wrapper per search type. A
// scraped link looks like
//
//	/url?q=http://www.youtube.com/user/Apple&sa=U&ei=lntiVN7JDsTfPZCMgKAO&...
//
// and the captured q parameter is percent-encoded.
var googleUnwrapRules = map[string][]linkRule{
	serp.SearchTypeNormal: {
		{re: regexp.MustCompile(`/url\?q=(?P<url>.*?)&sa=U&ei=`), decode: true},
	},
	serp.SearchTypeImage: {
		{re: regexp.MustCompile(`imgres\?imgurl=(?P<url>.*?)&`), decode: true},
	},
}

type googleNormalizer struct{}

// Normalize implements Google's no-results heuristic, then cleans links.
//
// The flag starts from the accepted-record count, is forced on by the
// page's marker phrases, and is finally retracted if any snippet still
// contains the query; a results page quoting the query back is not an
// empty page, whatever the markers said.
func (googleNormalizer) Normalize(o *serp.Outcome, searchType, rawHTML string, _ *goquery.Document) {
	if searchType == serp.SearchTypeNormal {
		o.NoResults = o.NumResults <= 0

		if strings.Contains(rawHTML, "No results found for") ||
			strings.Contains(rawHTML, "did not match any documents") {
			o.NoResults = true
		}

		if o.NoResults && o.Query != "" {
			for _, rec := range o.AllResults() {
				if s := rec.Snippet(); s != "" && containsQuery(s, o.Query) {
					o.NoResults = false
				}
			}
		}
	}

	unwrapLinks(o, googleUnwrapRules[searchType])
	for _, rec := range o.AllResults() {
		backfillFromVisible(rec)
	}
}

var google = mustEngine("google", googleSchema, googleNormalizer{})
