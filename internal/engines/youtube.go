package engines

import "serpetl/internal/serp"

// youtubeSchema treats video listings as a results page: the uploader and
// channel URL ride along as extra record fields.
var youtubeSchema = &serp.Schema{
	Engine:         "youtube",
	SupportedTypes: []string{serp.SearchTypeNormal},

	EffectiveQuery: []string{""},

	Selectors: map[string]serp.TypeMap{
		serp.SearchTypeNormal: {
			"organic": {
				"us_ip": {
					"container":        "#result",
					"result_container": "yt-lockup-content",
					"link":             "yt-lockup-title > a::attr(href)",
					"snippet":          "yt-lockup-description yt-ui-ellipsis yt-ui-ellipsis-2",
					"title":            "yt-lockup-title > a::text",
					"user":             "yt-lockup-byline > a::text",
					"profile_url":      "yt-lockup-byline > a::attr(href)",
				},
			},
			// Sponsored slots are injected by script, so static pages rarely
			// carry them; the selectors stay for instrumented captures.
			"sponsored_ads": {
				"us_ip": {
					"container":        ".pyv-afc-ads-inner",
					"result_container": ".yt-lockup-content",
					"link":             ".yt-lockup-title > a::attr(href)",
					"snippet":          ".yt-lockup-description.yt-ui-ellipsis.yt-ui-ellipsis-2",
					"title":            ".yt-lockup-title > a::text",
					"user":             ".yt-lockup-byline > a::text",
					"profile_url":      ".yt-lockup-byline > a::attr(href)",
				},
			},
		},
	},
}

var youtubeSponsoredSchema = &serp.Schema{
	Engine:         "youtube_sponsored",
	SupportedTypes: []string{serp.SearchTypeNormal},

	EffectiveQuery: []string{""},

	Selectors: map[string]serp.TypeMap{
		serp.SearchTypeNormal: {
			"sponsored_ads": {
				"us_ip": {
					"container":        ".pyv-afc-ads-inner",
					"result_container": ".yt-lockup-content",
					"link":             ".yt-lockup-title > a::attr(snippet)",
					"href":             ".yt-lockup-description.yt-ui-ellipsis.yt-ui-ellipsis-2",
					"title":            ".yt-lockup-title > a::text",
					"user":             ".yt-lockup-byline > a::text",
					"profile_url":      ".yt-lockup-byline > a::attr(href)",
				},
			},
		},
	},
}

var (
	youtube          = mustEngine("youtube", youtubeSchema, nil)
	youtubeSponsored = mustEngine("youtube_sponsored", youtubeSponsoredSchema, nil)
)
