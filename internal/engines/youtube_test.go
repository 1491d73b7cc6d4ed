package engines

import (
	"testing"

	"serpetl/internal/serp"
)

// TestYoutubeParse exercises the element-name selectors of the video
// listing and the extra user/profile_url fields records can carry.
func TestYoutubeParse(t *testing.T) {
	t.Parallel()

	const page = `<html><body>
	<div id="result">
	  <yt-lockup-content>
	    <yt-lockup-title><a href="/watch?v=abc123">A video title</a></yt-lockup-title>
	    <yt-lockup-byline><a href="/user/somechannel">Some Channel</a></yt-lockup-byline>
	  </yt-lockup-content>
	</div>
	</body></html>`

	o, err := youtube.Parse(page, "video", "normal")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	organic := o.Results["organic"]
	if len(organic) != 1 {
		t.Fatalf("organic records = %d, want 1", len(organic))
	}
	rec := organic[0]
	if rec.Link() != "/watch?v=abc123" || rec.Title() != "A video title" {
		t.Fatalf("record = %#v", rec.Fields)
	}
	if got := rec.Get(serp.FieldUser); got != "Some Channel" {
		t.Fatalf("user = %q", got)
	}
	if got := rec.Get(serp.FieldProfileURL); got != "/user/somechannel" {
		t.Fatalf("profile url = %q", got)
	}
	// Relative watch links carry no host, so no domain is filled in.
	if got := rec.Get(serp.FieldDomain); got != "" {
		t.Fatalf("domain = %q, want unset", got)
	}
}

// TestYoutubeSponsoredLinkAttr documents the sponsored table's shape: the
// record link is read from a snippet attribute on the title anchor and the
// description text lands in a field named href. Anchors without that
// attribute produce no record at all.
func TestYoutubeSponsoredLinkAttr(t *testing.T) {
	t.Parallel()

	const page = `<html><body>
	<div class="pyv-afc-ads-inner">
	  <div class="yt-lockup-content">
	    <h3 class="yt-lockup-title"><a snippet="/watch?v=ad1" href="/watch?v=ignored">Sponsored video</a></h3>
	    <div class="yt-lockup-description yt-ui-ellipsis yt-ui-ellipsis-2">Ad description.</div>
	  </div>
	</div>
	</body></html>`

	o, err := youtubeSponsored.Parse(page, "video", "normal")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ads := o.Results["sponsored_ads"]
	if len(ads) != 1 {
		t.Fatalf("sponsored records = %d, want 1", len(ads))
	}
	if got := ads[0].Link(); got != "/watch?v=ad1" {
		t.Fatalf("link = %q, want the snippet attribute", got)
	}
	if got := ads[0].Get("href"); got != "Ad description." {
		t.Fatalf("href field = %q", got)
	}

	// The same markup without the snippet attribute yields nothing.
	const bare = `<html><body>
	<div class="pyv-afc-ads-inner">
	  <div class="yt-lockup-content">
	    <h3 class="yt-lockup-title"><a href="/watch?v=ad1">Sponsored video</a></h3>
	  </div>
	</div>
	</body></html>`

	o, err = youtubeSponsored.Parse(bare, "video", "normal")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := len(o.Results["sponsored_ads"]); got != 0 {
		t.Fatalf("sponsored records = %d, want 0", got)
	}
	if o.NumResults != 0 {
		t.Fatalf("NumResults = %d, want 0", o.NumResults)
	}
}
