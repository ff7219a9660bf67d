package discovery

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"comebackwatch/internal/components/chrono"
	"comebackwatch/internal/components/telemetry"
	"comebackwatch/internal/fetch"
	"comebackwatch/lib/testutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const (
	categoryPath = "/category/kpop-comeback-schedule/"
	indexPath    = "/kpop-comebacks/"
)

func newDiscoverer(t *testing.T, site *testutil.Site) (Discoverer, *telemetry.Recorder) {
	policy := fetch.DefaultPolicy()
	policy.MaxRetries = 0
	policy.MaxRPS = 0
	tel := telemetry.NewRecorder()
	fetcher := fetch.NewFetcher(policy, tel, fetch.Options{Sleep: testutil.NoSleep})

	opts := DefaultOptions()
	opts.Seeds = []Seed{
		{URL: site.URL(categoryPath), Paginate: true},
		{URL: site.URL(indexPath), Paginate: false},
	}
	clock := chrono.NewFixedImpl(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC))
	return NewDiscoverer(fetcher, fetcher.NewPacer(), clock, tel, opts), tel
}

func TestDiscoverFollowsPagination(t *testing.T) {
	site := testutil.NewSite(t)
	site.HTML(categoryPath, `<html><head>
		<link rel="next" href="/category/kpop-comeback-schedule/page/2/">
	</head><body>
		<a href="/december-2025-kpop-comeback-schedule/">December</a>
		<a href="/november-2025-kpop-comeback-schedule/#top">November</a>
		<a href="/category/kpop-comeback-schedule/">Schedule</a>
		<a href="https://elsewhere.example/march-kpop-comeback-schedule/">Elsewhere</a>
		<a href="/about/">About</a>
	</body></html>`)
	site.HTML(categoryPath+"page/2/", `<html><body>
		<a href="/october-2025-kpop-comeback-schedule/">October</a>
		<a href="/november-2025-kpop-comeback-schedule/">November again</a>
	</body></html>`)

	discoverer, tel := newDiscoverer(t, site)
	res, err := discoverer.Discover(context.Background(), 6)
	require.NoError(t, err)

	require.Equal(t, []string{
		site.URL("/december-2025-kpop-comeback-schedule/"),
		site.URL("/november-2025-kpop-comeback-schedule/"),
		site.URL("/october-2025-kpop-comeback-schedule/"),
	}, res.Pages)
	require.Equal(t, site.URL(categoryPath), res.SourceUsed)
	require.Equal(t, []string{site.URL(categoryPath)}, res.SourcesTried)
	require.Equal(t, []string{site.URL(categoryPath), site.URL(categoryPath + "page/2/")}, res.PagesScanned)
	require.False(t, res.Blocked)
	require.Empty(t, res.Warnings, "a 404 past the last page is not a warning")
	require.Equal(t, 1, site.Hits(categoryPath+"page/3/"))
	require.Empty(t, tel.IDs("warning"))
	require.Equal(t, 0, site.Hits(indexPath))
}

func TestDiscoverMaxPages(t *testing.T) {
	site := testutil.NewSite(t)
	site.HTML(categoryPath, `<html><body><a href="/december-2025-kpop-comeback-schedule/">December</a></body></html>`)
	site.HTML(categoryPath+"page/2/", `<html><body><a href="/october-2025-kpop-comeback-schedule/">October</a></body></html>`)

	discoverer, _ := newDiscoverer(t, site)
	res, err := discoverer.Discover(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []string{site.URL("/december-2025-kpop-comeback-schedule/")}, res.Pages)
	require.Equal(t, 0, site.Hits(categoryPath+"page/2/"))
}

func TestDiscoverFallsBackToNextSeed(t *testing.T) {
	site := testutil.NewSite(t)
	site.HTML(indexPath, `<html><body>
		<a href="/january-2026-kpop-comeback-schedule/">January</a>
	</body></html>`)

	discoverer, tel := newDiscoverer(t, site)
	res, err := discoverer.Discover(context.Background(), 6)
	require.NoError(t, err)

	require.Equal(t, []string{site.URL("/january-2026-kpop-comeback-schedule/")}, res.Pages)
	require.Equal(t, site.URL(indexPath), res.SourceUsed)
	require.Equal(t, []string{site.URL(categoryPath), site.URL(indexPath)}, res.SourcesTried)
	require.Len(t, res.Warnings, 1, "a missing seed is worth a warning")
	require.Equal(t, []string{"discovery.discoverer.seed"}, tel.IDs("warning"))
}

func TestDiscoverEmptyWhenEverySeedFails(t *testing.T) {
	site := testutil.NewSite(t)
	site.Set(categoryPath, testutil.Page{Status: 500})
	site.HTML(indexPath, `<html><body>nothing here</body></html>`)

	discoverer, _ := newDiscoverer(t, site)
	res, err := discoverer.Discover(context.Background(), 6)
	require.NoError(t, err)
	require.Empty(t, res.Pages)
	require.Empty(t, res.SourceUsed)
	require.Len(t, res.SourcesTried, 2)
	require.Equal(t, 1, site.Hits(indexPath))
}

func TestDiscoverCycleGuard(t *testing.T) {
	site := testutil.NewSite(t)
	site.HTML(categoryPath, `<html><head><link rel="next" href="/category/kpop-comeback-schedule/page/2/"></head>
		<body><a href="/december-2025-kpop-comeback-schedule/">December</a></body></html>`)
	site.HTML(categoryPath+"page/2/", `<html><head><link rel="next" href="/category/kpop-comeback-schedule/"></head>
		<body><a href="/november-2025-kpop-comeback-schedule/">November</a></body></html>`)

	discoverer, _ := newDiscoverer(t, site)
	res, err := discoverer.Discover(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, res.Pages, 2)
	require.Equal(t, 1, site.Hits(categoryPath))
	require.Equal(t, 1, site.Hits(categoryPath+"page/2/"))
}

func TestDiscoverStopsOnChallenge(t *testing.T) {
	site := testutil.NewSite(t)
	site.Set(categoryPath, testutil.Page{Status: 403, Header: map[string]string{"cf-mitigated": "challenge"}})
	site.HTML(indexPath, `<html><body><a href="/january-2026-kpop-comeback-schedule/">January</a></body></html>`)

	discoverer, tel := newDiscoverer(t, site)
	res, err := discoverer.Discover(context.Background(), 6)
	require.NoError(t, err)
	require.True(t, res.Blocked)
	require.Empty(t, res.Pages)
	require.Equal(t, 0, site.Hits(indexPath))
	require.Equal(t, []string{"discovery.discoverer.blocked"}, tel.IDs("warning"))
}

func TestNextPage(t *testing.T) {
	testCases := []struct {
		page     string
		html     string
		expected string
	}{
		{
			page:     "https://kpop.example/category/schedule/",
			html:     `<html><head><link rel="next" href="/category/schedule/page/2/"></head></html>`,
			expected: "https://kpop.example/category/schedule/page/2/",
		},
		{
			page:     "https://kpop.example/category/schedule/",
			html:     `<html><body><a rel="next" href="https://kpop.example/category/schedule/?p=2">Older</a></body></html>`,
			expected: "https://kpop.example/category/schedule/?p=2",
		},
		{
			page:     "https://kpop.example/category/schedule",
			html:     `<html></html>`,
			expected: "https://kpop.example/category/schedule/page/2/",
		},
		{
			page:     "https://kpop.example/category/schedule/page/4/",
			html:     `<html></html>`,
			expected: "https://kpop.example/category/schedule/page/5/",
		},
	}
	for _, tc := range testCases {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(tc.html))
		require.NoError(t, err)
		page, err := url.Parse(tc.page)
		require.NoError(t, err)
		require.Equal(t, tc.expected, NextPage(doc, page))
	}
}

func TestDefaultPatterns(t *testing.T) {
	index := regexp.MustCompile(DefaultIndexPattern)
	exclude := regexp.MustCompile(DefaultExcludePattern)
	require.True(t, index.MatchString("https://kpopofficial.com/december-2025-KPOP-comeback-schedule/"))
	require.True(t, exclude.MatchString("/category/kpop-comeback-schedule/page/2/"))
	require.False(t, exclude.MatchString("/december-2025-kpop-comeback-schedule/"))
}
