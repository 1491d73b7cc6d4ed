package engines

import "serpetl/internal/serp"

var blekkoSchema = &serp.Schema{
	Engine:         "blekko",
	SupportedTypes: []string{serp.SearchTypeNormal},

	EffectiveQuery: []string{""},

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

var blekko = mustEngine("blekko", blekkoSchema, nil)
