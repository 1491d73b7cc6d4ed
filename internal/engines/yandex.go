package engines

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"serpetl/internal/serp"
)

var yandexSchema = &serp.Schema{
	Engine:         "yandex",
	SupportedTypes: []string{serp.SearchTypeNormal, serp.SearchTypeImage},

	NoResults:      []string{".message .misspell__message::text"},
	EffectiveQuery: []string{".misspell__message .misspell__link"},
	NumResults:     []string{".serp-adv .serp-item__wrap > strong"},
	PageNumber:     []string{".pager__group .button_checked_yes span::text"},

	Selectors: map[string]serp.TypeMap{
		serp.SearchTypeNormal: {
			"organic": {
				"de_ip": {
					"container":        "div.serp-list",
					"result_container": "div.serp-item__wrap ",
					"link":             "a.serp-item__title-link::attr(href)",
					"snippet":          "div.serp-item__text::text",
					"title":            "a.serp-item__title-link::text",
					"visible_link":     "a.serp-url__link::attr(href)",
				},
			},
		},
		serp.SearchTypeImage: {
			"organic": {
				"de_ip": {
					"container":        ".page-layout__content-wrapper",
					"result_container": ".serp-item__preview",
					"link":             ".serp-item__preview .serp-item__link::attr(onmousedown)",
				},
				"de_ip_raw": {
					"container":        ".page-layout__content-wrapper",
					"result_container": ".serp-item__preview",
					"link":             ".serp-item__preview .serp-item__link::attr(href)",
				},
			},
		},
	},
}

// yandexImageRules handles the two places an image result hides its target.
// The onmousedown attribute carries a JSON click payload like
//
//	c.hit({"dtype":"iweb",...}, {"href":"http://.../600_winter-snow.jpg"});
//
// while raw-HTTP responses put a percent-encoded img_url parameter in the
// href instead. Neither capture gets decoded; the source values are used
// verbatim.
var yandexImageRules = []linkRule{
	{re: regexp.MustCompile(`\{"href"\s*:\s*"(?P<url>.*?)"\}`)},
	{re: regexp.MustCompile(`img_url=(?P<url>.*?)&`)},
}

type yandexNormalizer struct{}

func (yandexNormalizer) Normalize(o *serp.Outcome, searchType, _ string, _ *goquery.Document) {
	if searchType == serp.SearchTypeNormal {
		o.NoResults = false
		if o.NoResultsText != "" {
			o.NoResults = strings.Contains(o.NoResultsText, "По вашему запросу ничего не нашлось")
		}
		if o.NumResults == 0 {
			o.NoResults = true
		}
	}

	if searchType == serp.SearchTypeImage {
		unwrapLinks(o, yandexImageRules)
	}
}

var yandex = mustEngine("yandex", yandexSchema, yandexNormalizer{})
