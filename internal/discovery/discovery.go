package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"comebackwatch/internal/components/assert"
	"comebackwatch/internal/components/chrono"
	"comebackwatch/internal/components/telemetry"
	"comebackwatch/internal/fetch"
	"comebackwatch/internal/model"
	"comebackwatch/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("internal/discovery")

const (
	report_discoverer_seed    = "discoverer.seed"
	report_discoverer_blocked = "discoverer.blocked"
	report_discoverer_pages   = "discoverer.pages"
)

type Seed struct {
	URL string `json:"url"`
	// Paginate follows next page links from the seed.
	Paginate bool `json:"paginate"`
}

func DefaultSeeds() []Seed {
	return []Seed{
		{URL: "https://kpopofficial.com/category/kpop-comeback-schedule/", Paginate: true},
		{URL: "https://kpopofficial.com/kpop-comebacks/", Paginate: false},
	}
}

const (
	DefaultIndexPattern   = `(?i)kpop-comeback-schedule`
	DefaultExcludePattern = `/(category|tag|page|author)/`
)

type Fetcher interface {
	Fetch(ctx context.Context, link string) ([]byte, error)
}

type Options struct {
	Seeds []Seed
	// IndexPattern is matched against the whole url of every link to find
	// index pages.
	IndexPattern *regexp.Regexp
	// ExcludePattern is matched against the path of index page candidates,
	// listing pages of the seeds themselves match it.
	ExcludePattern *regexp.Regexp
}

func DefaultOptions() Options {
	return Options{
		Seeds:          DefaultSeeds(),
		IndexPattern:   regexp.MustCompile(DefaultIndexPattern),
		ExcludePattern: regexp.MustCompile(DefaultExcludePattern),
	}
}

// Discoverer walks the seeds in priority order and collects the index
// pages they link to.
type Discoverer struct {
	fetcher Fetcher
	pacer   *fetch.Pacer
	clock   chrono.API
	tel     telemetry.API
	opts    Options
}

func NewDiscoverer(fetcher Fetcher, pacer *fetch.Pacer, clock chrono.API, tel telemetry.API, opts Options) Discoverer {
	assert.NotNil(fetcher)
	assert.NotNil(clock)
	assert.NotNil(tel)
	assert.NotNil(opts.IndexPattern)

	return Discoverer{
		fetcher: fetcher,
		pacer:   pacer,
		clock:   clock,
		tel:     telemetry.NewScopedAPI("discovery", tel),
		opts:    opts,
	}
}

type walkState struct {
	found    map[string]bool
	scanned  []string
	warnings []string
	blocked  bool
}

// Discover returns the index pages found from the first seed that yields
// any. Pagination of a seed is followed for at most maxPages pages.
func (d Discoverer) Discover(ctx context.Context, maxPages int) (model.PageSet, error) {
	ctx, span := tracer.Start(ctx, "Discover")
	defer span.End()

	if maxPages < 1 {
		maxPages = 1
	}

	state := &walkState{found: map[string]bool{}}
	result := model.PageSet{DiscoveredAt: d.clock.Now()}

	for _, seed := range d.opts.Seeds {
		result.SourcesTried = append(result.SourcesTried, seed.URL)

		err := d.walk(ctx, seed, maxPages, state)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "walk failed")
			return model.PageSet{}, err
		}
		if state.blocked {
			span.SetStatus(codes.Error, "blocked")
			break
		}
		if len(state.found) > 0 {
			result.SourceUsed = seed.URL
			break
		}
	}

	pages := make([]string, 0, len(state.found))
	for p := range state.found {
		pages = append(pages, p)
	}
	sort.Strings(pages)

	result.Pages = pages
	result.PagesScanned = state.scanned
	result.Warnings = state.warnings
	result.Blocked = state.blocked

	span.SetAttributes(
		attribute.Int("pages", len(pages)),
		attribute.String("source_used", result.SourceUsed),
	)
	d.tel.ReportCount(report_discoverer_pages, int64(len(pages)))
	return result, nil
}

// walk only returns an error for cancellation, fetch failures end the
// walk and are recorded in state.
func (d Discoverer) walk(ctx context.Context, seed Seed, maxPages int, state *walkState) error {
	current := seed.URL
	visited := map[string]bool{}

	for hop := 0; hop < maxPages; hop++ {
		err := d.pacer.Wait(ctx)
		if err != nil {
			return err
		}

		body, err := d.fetcher.Fetch(ctx, current)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			switch {
			case errors.Is(err, fetch.ErrChallenge):
				d.tel.ReportWarning(report_discoverer_blocked, current)
				state.blocked = true
				state.warnings = append(state.warnings, fmt.Sprintf("anti-bot challenge on %s, discovery stopped", current))
			case errors.Is(err, fetch.ErrNotFound) && hop > 0:
				// the conventional pagination pattern ran past the last page
			default:
				d.tel.ReportWarning(report_discoverer_seed, seed.URL, err)
				state.warnings = append(state.warnings, fmt.Sprintf("seed %s: %s", seed.URL, err.Error()))
			}
			return nil
		}

		visited[current] = true
		state.scanned = append(state.scanned, current)

		pageURL, err := url.Parse(current)
		if err != nil {
			state.warnings = append(state.warnings, fmt.Sprintf("seed %s: %s", seed.URL, err.Error()))
			return nil
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			state.warnings = append(state.warnings, fmt.Sprintf("parse %s: %s", current, err.Error()))
			return nil
		}

		for _, link := range d.indexLinks(ctx, doc, pageURL) {
			state.found[link] = true
		}

		if !seed.Paginate {
			return nil
		}
		next := NextPage(doc, pageURL)
		if next == "" || next == current || visited[next] {
			return nil
		}
		current = next
	}
	return nil
}

func (d Discoverer) indexLinks(ctx context.Context, doc *goquery.Document, page *url.URL) []string {
	var out []string
	for _, anchor := range htmlutil.GetAnchors(ctx, doc.Find("a[href]"), page) {
		link, err := url.Parse(anchor.Href)
		if err != nil || !strings.EqualFold(link.Hostname(), page.Hostname()) {
			continue
		}
		if !d.opts.IndexPattern.MatchString(anchor.Href) {
			continue
		}
		if d.opts.ExcludePattern != nil && d.opts.ExcludePattern.MatchString(link.Path) {
			continue
		}
		out = append(out, anchor.Href)
	}
	return out
}

var pagePathRegex = regexp.MustCompile(`/page/(\d+)/?`)

// NextPage returns the advertised next page of a listing, falling back to
// the conventional /page/N/ pattern.
func NextPage(doc *goquery.Document, page *url.URL) string {
	for _, sel := range []string{`link[rel="next"]`, `a[rel="next"]`} {
		href, ok := doc.Find(sel).First().Attr("href")
		if !ok {
			continue
		}
		if next := htmlutil.ResolveURL(page, href); next != "" {
			return next
		}
	}

	next := *page
	next.Fragment = ""
	next.RawQuery = ""
	next.RawPath = ""
	groups := pagePathRegex.FindStringSubmatch(next.Path)
	if groups == nil {
		next.Path = strings.TrimSuffix(next.Path, "/") + "/page/2/"
		return next.String()
	}
	n, err := strconv.Atoi(groups[1])
	if err != nil {
		return ""
	}
	next.Path = pagePathRegex.ReplaceAllString(next.Path, fmt.Sprintf("/page/%d/", n+1))
	return next.String()
}
