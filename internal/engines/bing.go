package engines

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"serpetl/internal/serp"
)

var bingSchema = &serp.Schema{
	Engine:         "bing",
	SupportedTypes: []string{serp.SearchTypeNormal, serp.SearchTypeImage},

	NoResults:      []string{"#b_results > .b_ans::text"},
	NumResults:     []string{".sb_count"},
	EffectiveQuery: []string{"#sp_requery a > strong"},
	PageNumber:     []string{".sb_pagS::text"},

	Selectors: map[string]serp.TypeMap{
		serp.SearchTypeNormal: {
			"organic": {
				"us_ip": {
					"container":        "#b_results",
					"result_container": ".b_algo",
					"link":             "h2 > a::attr(href)",
					"snippet":          ".b_caption > p::text",
					"title":            "h2::text",
					"visible_link":     "cite::text",
				},
				"de_ip": {
					"container":        "#b_results",
					"result_container": ".b_algo",
					"link":             "h2 > a::attr(href)",
					"snippet":          ".b_caption > p::text",
					"title":            "h2::text",
					"visible_link":     "cite::text",
				},
				// News inserts carry no wrapping result container.
				"de_ip_news_items": {
					"container":    "ul.b_vList li",
					"link":         " h5 a::attr(href)",
					"snippet":      "p::text",
					"title":        " h5 a::text",
					"visible_link": "cite::text",
				},
			},
			"ads_main": {
				"us_ip": {
					"container":        "#b_results .b_ad",
					"result_container": ".sb_add",
					"link":             "h2 > a::attr(href)",
					"snippet":          ".sb_addesc::text",
					"title":            "h2 > a::text",
					"visible_link":     "cite::text",
				},
				"de_ip": {
					"container":        "#b_results .b_ad",
					"result_container": ".sb_add",
					"link":             "h2 > a::attr(href)",
					"snippet":          ".b_caption > p::text",
					"title":            "h2 > a::text",
					"visible_link":     "cite::text",
				},
			},
		},
		serp.SearchTypeImage: {
			"organic": {
				"ch_ip": {
					"container":        "#dg_c .imgres",
					"result_container": ".dg_u",
					"link":             "a.dv_i::attr(m)",
				},
			},
		},
	},
}

// bingImageRules pulls the image url out of the m attribute, a loose JSON
// blob like
//
//	m={ns:"images.1_4",...,imgurl:"http://berlin-germany.ca/images/berlin250.jpg",...}
var bingImageRules = []linkRule{
	{re: regexp.MustCompile(`imgurl:"(?P<url>.*?)"`)},
}

type bingNormalizer struct{}

// Normalize reads the no-results answer box: Bing echoes the query inside
// it, or offers the "Do you want results only for" spell correction.
func (bingNormalizer) Normalize(o *serp.Outcome, searchType, _ string, _ *goquery.Document) {
	if searchType == serp.SearchTypeNormal {
		o.NoResults = false
		if o.NoResultsText != "" {
			o.NoResults = containsQuery(o.NoResultsText, o.Query) ||
				strings.Contains(o.NoResultsText, "Do you want results only for")
		}
	}

	if searchType == serp.SearchTypeImage {
		unwrapLinks(o, bingImageRules)
	}
}

var bing = mustEngine("bing", bingSchema, bingNormalizer{})
