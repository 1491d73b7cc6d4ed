package engines

import "serpetl/internal/serp"

var askSchema = &serp.Schema{
	Engine:         "ask",
	SupportedTypes: []string{serp.SearchTypeNormal},

	EffectiveQuery: []string{"#spell-check-result > a"},
	PageNumber:     []string{".pgcsel .pg::text"},

	Selectors: map[string]serp.TypeMap{
		serp.SearchTypeNormal: {
			"organic": {
				"de_ip": {
					"container":        "#midblock",
					"result_container": ".ptbs.ur",
					"link":             ".abstract > a::attr(href)",
					"snippet":          ".abstract::text",
					"title":            ".txt_lg.b::text",
					"visible_link":     ".durl span::text",
				},
			},
		},
	},
}

// ask needs no post-parse cleanup.
var ask = mustEngine("ask", askSchema, nil)
