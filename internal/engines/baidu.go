package engines

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"serpetl/internal/serp"
)

// baiduSchema's ad tables need many variants; Baidu serves wildly different
// markup per region and campaign type. FAKETAG is a deliberate never-match
// selector keeping a field declared where a variant has no source for it.
var baiduSchema = &serp.Schema{
	Engine:         "baidu",
	SupportedTypes: []string{serp.SearchTypeNormal, serp.SearchTypeImage},

	NumResults: []string{"#container .nums"},
	// no such thing for baidu
	EffectiveQuery: []string{""},
	PageNumber:     []string{".fk_cur + .pc::text"},

	Selectors: map[string]serp.TypeMap{
		serp.SearchTypeNormal: {
			"organic": {
				"0": {
					"container":        "#content_left",
					"result_container": ".c-container",
					"title":            "h3 > a::text",
					"link":             "h3 > a::attr(href)",
					"snippet":          ".c-abstract::text",
					"visible_link":     ".c-showurl::text",
				},
			},
			"brand_zone": {
				"0": {
					"container":        "#content_left",
					"result_container": `div[class$="-0-0"]`,
					"title":            `a[class$="-header-title"]::text`,
					"link":             `a[class$="-header-title"]::attr(href)`,
					"snippet":          `div[id$="-description"]::text`,
					"visible_link":     `div[class$="-site"]::text`,
				},
				"1": {
					"container":        "#content_left",
					"result_container": `div[class$="-h1"]`,
					"title":            `h2 > a[class$="-header-title"]::text`,
					"link":             `h2 > a[class$="-header-title"]::attr(href)`,
					"snippet":          `div[id$="-description"]`,
					"visible_link":     `div[class$="-site"]`,
				},
			},
			"brand_zone_side": {
				"1": {
					"container":        "#content_right",
					"result_container": `td[align="left"] > div > div > div`,
					"title":            `div[class$="-title"] > h2[id$="-h2"] > a::text`,
					"link":             `div[class$="-title"] > h2[id$="-h2"] > a::attr(href)`,
					"snippet":          `div[class$="-htmltext"] > p[class$="-htmltext-desc"] > a::text`,
					"visible_link":     `div[class$="-show-url"] > div[class$="-site"] > a::text`,
				},
				"2": {
					"container":        "#content_right",
					"result_container": "td > div > div",
					"title":            "FAKETAG",
					"link":             `div[class$="-atom-htmltext"] > p[class$="-htmltext-desc"] > a::attr(href)`,
					"snippet":          `div[class$="-atom-htmltext"] > p[class$="-htmltext-desc"] > a::text`,
					"visible_link":     "FAKETAG",
				},
				"3": {
					"container":        "#content_right",
					"result_container": `td[align="left"] > div > div > div`,
					"title":            `div[class$="-atom-htmltext"] > p[class$="-htmltext-desc"] > a::text`,
					"link":             `div[class$="-atom-htmltext"] > p[class$="-htmltext-desc"] > a::attr(href)`,
					"snippet":          `div[class$="-htmltext"] > p[class$="-htmltext-desc"] > a::text`,
					"visible_link":     `div[class$="-show-url"] > div[class$="-site"] > a::text`,
				},
				"4": {
					"container":        "#content_right",
					"result_container": "td > div > div",
					"title":            "FAKETAG",
					"link":             `div[class$="-atom-htmltext"] > p[class$="-htmltext-desc"] > a::attr(href)`,
					"snippet":          `div[class$="-atom-htmltext"] > p[class$="-htmltext-desc"] > a::text`,
					"visible_link":     `div[class$="-show-url"] > div[class$="-site"] > a::text`,
				},
			},
			"promo_ads_side": {
				"0": {
					"container":        ".ad-widget",
					"result_container": ".ec-figcaption",
					"link":             "h2 > a::attr(href)",
					"snippet":          ".ec-description-link",
					"title":            "h2 > a::text",
					"visible_link":     ".ec-footer::text",
				},
			},
			"ads_side": {
				"1": {
					"container":        "#ec_im_container",
					"result_container": `div[id^="bdfs"]`,
					"title":            `a[id^="dfs"]::text`,
					"link":             `a[id^="dfs"]::attr(href)`,
					"snippet":          `a[id^="bdfs"] > font:nth-child(2)`,
					"visible_link":     `a[id^="bdfs"] > font:nth-child(4)`,
				},
			},
			"ads_bottom": {
				"0": {
					"container":        "#content_left",
					"result_container": `div[id^="50"]`,
					"link":             "h3 > a::attr(href)",
					"snippet":          "div > a::text",
					"title":            "h3 > a::text",
					"visible_link":     "a > span::text",
				},
				"1": {
					"container":        "#content_left",
					"result_container": `div[id^="50"]`,
					"title":            "div:nth-child(1) > h3 > a::text",
					"link":             "div:nth-child(1) > h3 > a::attr(href)",
					"snippet":          "div:nth-child(2) > a::text",
					"visible_link":     "div:nth-child(3) > a > span",
				},
				"2": {
					"container":        "#content_left",
					"result_container": `div[id^="50"]`,
					"title":            "div:nth-child(1) > h3 > a::text",
					"link":             "div:nth-child(1) > h3 > a::attr(href)",
					"snippet":          "div:nth-child(2) tr:nth-child(2) > div > font > a::text",
					"visible_link":     "div:nth-child(2) tr:nth-child(2) > div > div > a > span",
				},
				"3": {
					"container":        "#content_left",
					"result_container": `div[id^="50"]`,
					"title":            "div:nth-child(1) > h3 > a::text",
					"link":             "div:nth-child(1) > h3 > a::attr(href)",
					"snippet":          "div:nth-child(2) > a::text",
					"visible_link":     "div:nth-child(3) > a > span",
				},
				"4": {
					"container":        "#content_left",
					"result_container": `div[id^="50"]`,
					"title":            "div:nth-child(1) > h3 > a::text",
					"link":             "div:nth-child(1) > h3 > a::attr(href)",
					"snippet":          "font > a::text",
					"visible_link":     "div:nth-child(2) > a > span",
				},
			},
			"ads_top": {
				"0": {
					"container":        "#content_left",
					"result_container": "#4001",
					"link":             "h3 > a::attr(href)",
					"snippet":          "div > a::text",
					"title":            "h3 > a::text",
					"visible_link":     "a > span::text",
				},
				"1": {
					"container":        "#content_left",
					"result_container": `div[id^="40"]`,
					"title":            "div:nth-child(1) > h3 > a::text",
					"link":             "div:nth-child(1) > h3 > a::attr(href)",
					"snippet":          "div:nth-child(2) > div:nth-child(1) > div:nth-child(2)",
					"visible_link":     "div:nth-child(3) > a > span",
				},
				"2": {
					"container":        "#content_left",
					"result_container": `div[id^="40"]`,
					"title":            "div:nth-child(1) > h3 > a::text",
					"link":             "div:nth-child(1) > h3 > a::attr(href)",
					"snippet":          "div:nth-child(2) > a::text",
					"visible_link":     "div:nth-child(3) > a > span",
				},
				"3": {
					"container":        "#content_left",
					"result_container": `div[id^="40"]`,
					"title":            "div:nth-child(1) > h3 > a::text",
					"link":             "div:nth-child(1) > h3 > a::attr(href)",
					"snippet":          "div:nth-child(2) > table div > font > a::text",
					"visible_link":     "div:nth-child(3) > a > span",
				},
			},
		},
	},
}

var baiduNoResultsMarker = cascadia.MustCompile(".hit_top_new")

type baiduNormalizer struct{}

// Normalize rewrites every record's link from its visible link, because
// Baidu always routes the href through its own redirector. Records that
// scraped nothing but a link are markup noise and get dropped first.
func (baiduNormalizer) Normalize(o *serp.Outcome, searchType, _ string, doc *goquery.Document) {
	prune(o, func(rec *serp.Result) bool {
		return rec.Title() != "" || rec.Snippet() != "" || rec.VisibleLink() != ""
	})
	for _, rec := range o.AllResults() {
		if rec.VisibleLink() != "" {
			promoteVisibleLink(rec)
		}
	}

	if searchType == serp.SearchTypeNormal {
		if doc != nil && doc.FindMatcher(baiduNoResultsMarker).Length() >= 1 {
			o.NoResults = true
		}
		prune(o, func(rec *serp.Result) bool { return rec.VisibleLink() != "" })
	}
}

var baidu = mustEngine("baidu", baiduSchema, baiduNormalizer{})
