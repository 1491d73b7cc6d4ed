// Command parse-serp parses one search result page and prints the outcome
// as JSON.
//
// Usage (stdin):
//
//	cat page.html | parse_serp -engine google -query "cats"
//
// Usage (file):
//
//	parse_serp -engine google -query "cats" -file page.html
//
// Usage (engine resolved from the requested URL):
//
//	parse_serp -url "http://www.bing.com/search?q=cats" -query "cats" -file page.html
//
// Custom selector schema (engine normalization off):
//
//	parse_serp -schema custom.json -query "cats" -file page.html
//
// Debug (print the first-match extraction for one selector):
//
//	cat page.html | parse_serp -selector "div.g h3 a::attr(href)"
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"serpetl/internal/engines"
	"serpetl/internal/selector"
	"serpetl/internal/serp"
)

func main() {
	os.Exit(run(
		os.Args[1:],
		os.Stdin,
		os.Stdout,
		os.Stderr,
	))
}

// run is split out from main so we can unit test the command without spawning
// an OS process.
//
// It returns a Unix-style exit code:
//   - 0 for success
//   - 2 for usage/config errors
//   - 1 for operational/runtime errors
func run(
	args []string,
	stdin io.Reader,
	stdout io.Writer,
	stderr io.Writer,
) int {
	fs := flag.NewFlagSet("parse-serp", flag.ContinueOnError)
	fs.SetOutput(stderr)

	engineFlag := fs.String("engine", "", "engine name (google, bing, yandex, ...)")
	urlFlag := fs.String("url", "", "resolve the engine from the URL the page was requested with")
	queryFlag := fs.String("query", "", "the query the page was requested with")
	searchType := fs.String("search-type", serp.SearchTypeNormal, "search type the page was requested with (normal, image)")
	fileFlag := fs.String("file", "", "HTML file to parse (default: stdin)")
	schemaFlag := fs.String("schema", "", "selector schema JSON overriding the built-in engine table")
	debugSelector := fs.String("selector", "", "debug: print the first-match extraction for a CSS selector instead of parsing")
	pretty := fs.Bool("pretty", false, "indent the JSON output")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	// Resolve the mode before consuming input so flag mistakes fail fast
	// instead of blocking on stdin.
	var (
		debugPlan selector.Plan
		parse     func(htmlSrc string) (*serp.Outcome, error)
	)
	switch {
	case *debugSelector != "":
		plan, err := selector.Compile(*debugSelector)
		if err != nil {
			fmt.Fprintf(stderr, "debug selector: %v\n", err)
			return 2
		}
		debugPlan = plan

	case *schemaFlag != "":
		sch, err := serp.LoadSchemaFile(*schemaFlag)
		if err != nil {
			fmt.Fprintf(stderr, "load schema: %v\n", err)
			return 2
		}
		p, err := serp.NewParser(sch)
		if err != nil {
			fmt.Fprintf(stderr, "compile schema: %v\n", err)
			return 2
		}
		p.Logger = log.New(stderr, "", log.LstdFlags)
		parse = func(htmlSrc string) (*serp.Outcome, error) {
			return p.Parse(htmlSrc, *queryFlag, *searchType)
		}

	case *engineFlag != "":
		e, err := engines.ByName(*engineFlag)
		if err != nil {
			fmt.Fprintf(stderr, "%v (known: %s)\n", err, strings.Join(engines.Names(), ", "))
			return 2
		}
		parse = func(htmlSrc string) (*serp.Outcome, error) {
			return e.Parse(htmlSrc, *queryFlag, *searchType)
		}

	case *urlFlag != "":
		e, err := engines.ByURL(*urlFlag)
		if err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return 2
		}
		parse = func(htmlSrc string) (*serp.Outcome, error) {
			return e.Parse(htmlSrc, *queryFlag, *searchType)
		}

	default:
		fmt.Fprintln(stderr, "missing -engine, -url or -schema")
		return 2
	}

	htmlSrc, err := readInput(*fileFlag, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "read input: %v\n", err)
		return 1
	}

	// Debug mode prints the extracted value, one line. An empty line means
	// the selector matched nothing or the match was empty.
	if *debugSelector != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlSrc))
		if err != nil {
			fmt.Fprintf(stderr, "debug selector: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, debugPlan.Extract(doc.Selection))
		return 0
	}

	outcome, err := parse(htmlSrc)
	if err != nil {
		fmt.Fprintf(stderr, "parse: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetEscapeHTML(false)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(outcome); err != nil {
		fmt.Fprintf(stderr, "encode json: %v\n", err)
		return 1
	}
	return 0
}

func readInput(file string, stdin io.Reader) (string, error) {
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
