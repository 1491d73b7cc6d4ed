// Package selector compiles the small CSS selector dialect used by the
// engine schemas and evaluates it against goquery selections.
//
// The dialect is plain CSS plus two pseudo-suffixes:
//
//	div.title a          -> text content of the first match
//	div.title a::text    -> same, suffix kept for explicitness
//	a::attr(href)        -> value of the href attribute on the first match
//
// Anything after an unknown "::" suffix is ignored and the selector falls
// back to text extraction, so schema data written for other toolkits keeps
// working.
package selector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

var attrSuffixRe = regexp.MustCompile(`::attr\((?P<attr>.*)\)$`)

// Plan is one compiled selector. The zero Plan (empty Raw) matches nothing
// and extracts the empty string; schema lists use it for blank slots.
type Plan struct {
	Raw     string
	matcher cascadia.Selector
	attr    string
	useAttr bool
}

// Compile parses a selector string into a Plan.
//
// The base CSS (everything before the first "::") is compiled with cascadia;
// a syntax error in it is returned so schema validation can fail fast instead
// of surfacing mid-parse. An empty selector compiles to the zero Plan.
func Compile(raw string) (Plan, error) {
	p := Plan{Raw: raw}
	base := raw

	switch {
	case raw == "":
		return p, nil
	case strings.HasSuffix(raw, "::text"):
		base = strings.TrimSuffix(raw, "::text")
	default:
		if m := attrSuffixRe.FindStringSubmatch(raw); m != nil {
			p.useAttr = true
			p.attr = m[1]
		}
		if i := strings.Index(raw, "::"); i >= 0 {
			base = raw[:i]
		}
	}

	base = strings.TrimSpace(base)
	if base == "" {
		return Plan{}, fmt.Errorf("selector %q: empty base", raw)
	}

	matcher, err := cascadia.Compile(base)
	if err != nil {
		return Plan{}, fmt.Errorf("selector %q: %w", raw, err)
	}
	p.matcher = matcher
	return p, nil
}

// MustCompile is Compile for the built-in schema literals; a failure there is
// a programmer error, so it panics.
func MustCompile(raw string) Plan {
	p, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// Extract evaluates the plan within scope and returns the trimmed value of
// the first match, or "" when nothing matches, the attribute is absent, or
// the matched text is empty. It never fails; "" is the null value.
func (p Plan) Extract(scope *goquery.Selection) string {
	if p.matcher == nil {
		return ""
	}
	sel := scope.FindMatcher(p.matcher).First()
	if sel.Length() == 0 {
		return ""
	}
	if p.useAttr {
		val, ok := sel.Attr(p.attr)
		if !ok {
			return ""
		}
		return strings.TrimSpace(val)
	}
	return strings.TrimSpace(sel.Text())
}

// CompileList compiles an ordered selector list, preserving blank slots.
func CompileList(raws []string) ([]Plan, error) {
	plans := make([]Plan, 0, len(raws))
	for _, raw := range raws {
		p, err := Compile(raw)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

// FirstMatch walks plans in order, skipping blank slots, and returns the
// first non-empty extracted value. The second return is false when no plan
// produced a value, which callers must distinguish from a legitimately empty
// extraction.
func FirstMatch(plans []Plan, scope *goquery.Selection) (string, bool) {
	for _, p := range plans {
		if p.Raw == "" {
			continue
		}
		if v := p.Extract(scope); v != "" {
			return v, true
		}
	}
	return "", false
}
