package engines

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/search"

	"serpetl/internal/serp"
)

// linkRule is one entry of an ordered unwrap table: the first rule whose
// pattern matches a record's link replaces it with the captured url group.
type linkRule struct {
	re     *regexp.Regexp
	decode bool   // percent-decode the captured group
	prefix string // prepended to the (decoded) capture
}

// unwrapLinks applies an unwrap table to every record. Decoding failures
// keep the raw capture; a rule that matched stops the scan for that record.
func unwrapLinks(o *serp.Outcome, rules []linkRule) {
	if len(rules) == 0 {
		return
	}
	for _, rec := range o.AllResults() {
		link := rec.Link()
		if link == "" {
			continue
		}
		for _, rule := range rules {
			m := rule.re.FindStringSubmatch(link)
			if m == nil {
				continue
			}
			captured := m[1]
			if rule.decode {
				if dec, err := url.PathUnescape(captured); err == nil {
					captured = dec
				}
			}
			rec.Set(serp.FieldLink, rule.prefix+captured)
			break
		}
	}
}

// promoteVisibleLink rewrites a record's link from its visible link: trim,
// keep the first whitespace token, force the http scheme. Both fields end
// up carrying the promoted value.
func promoteVisibleLink(rec *serp.Result) {
	v := strings.TrimSpace(rec.VisibleLink())
	if fields := strings.Fields(v); len(fields) > 0 {
		v = fields[0]
	} else {
		v = ""
	}
	rec.Set(serp.FieldVisibleLink, "http://"+v)
	rec.Set(serp.FieldLink, "http://"+v)
}

// backfillFromVisible promotes the visible link only when the record's link
// has no recognizable host. The scheme prepended during the check is a
// probe, never written back: a schemeless link with a host stays as
// scraped.
func backfillFromVisible(rec *serp.Result) {
	link := rec.Link()
	useVisible := link == ""
	if link != "" {
		probe := link
		if !strings.HasPrefix(probe, "http") {
			probe = "http://" + probe
		}
		u, err := url.Parse(probe)
		if err != nil || u.Host == "" {
			useVisible = true
		}
	}
	if !useVisible || rec.VisibleLink() == "" {
		return
	}
	promoteVisibleLink(rec)
}

// prune rebuilds every result list keeping only records keep accepts. It
// iterates a stable snapshot and never renumbers the survivors' ranks, so
// pruned lists may carry rank gaps.
func prune(o *serp.Outcome, keep func(*serp.Result) bool) {
	for rt, recs := range o.Results {
		kept := make([]*serp.Result, 0, len(recs))
		for _, rec := range recs {
			if keep(rec) {
				kept = append(kept, rec)
			}
		}
		o.Results[rt] = kept
	}
}

// containsQuery reports whether haystack contains the query, ignoring case
// and any double quotes inside the query. Collation-aware search keeps this
// usable for the non-Latin engines.
func containsQuery(haystack, query string) bool {
	q := strings.ReplaceAll(query, `"`, "")
	if q == "" || haystack == "" {
		return false
	}
	m := search.New(language.Und, search.IgnoreCase)
	start, _ := m.IndexString(haystack, q)
	return start >= 0
}
