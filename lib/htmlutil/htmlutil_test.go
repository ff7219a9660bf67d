package htmlutil

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestGetLines(t *testing.T) {
	doc := parse(t, `<li class="card">
		<div><a href="/album/x">cover</a></div>
		<div>December 12, 2025<br>7PM KST</div>
		<span>ACME</span>
		<p>New   Single</p>
		<p>New Single</p>
		<script>var ignored = 1;</script>
	</li>`)

	lines := SelectionLines(doc.Find("li.card"))
	require.Equal(t, []string{"cover", "December 12, 2025", "7PM KST", "ACME", "New Single"}, lines)
}

func TestResolveURL(t *testing.T) {
	base, err := url.Parse("https://example.com/category/page/2/")
	require.NoError(t, err)

	require.Equal(t, "https://example.com/album/x/", ResolveURL(base, "/album/x/#comments"))
	require.Equal(t, "https://example.com/category/page/2/next", ResolveURL(base, "next"))
	require.Equal(t, "", ResolveURL(base, "mailto:someone@example.com"))
	require.Equal(t, "", ResolveURL(base, "   "))
}

func TestGetAnchors(t *testing.T) {
	base, err := url.Parse("https://example.com/")
	require.NoError(t, err)
	doc := parse(t, `<div>
		<a href="/a">  First
			link </a>
		<a>no href</a>
		<a href="javascript:void(0)">js</a>
	</div>`)

	anchors := GetAnchors(context.Background(), doc.Find("a"), base)
	require.Equal(t, []Anchor{{Name: "First link", Href: "https://example.com/a"}}, anchors)
}
