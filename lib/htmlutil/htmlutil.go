package htmlutil

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var tracer = otel.Tracer("comebackwatch.lib.htmlutil")

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	if node.Type == html.ElementNode && (node.DataAtom == atom.Script || node.DataAtom == atom.Style) {
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Figcaption: true, atom.Figure: true, atom.Footer: true, atom.Form: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Li: true, atom.Main: true, atom.Nav: true,
	atom.Ol: true, atom.P: true, atom.Section: true, atom.Table: true, atom.Td: true,
	atom.Th: true, atom.Tr: true, atom.Ul: true,
}

// GetLines renders the text of a node with a line break at every block level
// element, then squashes whitespace in each line, drops empty lines and
// collapses consecutive duplicates.
func GetLines(node *html.Node) []string {
	var buffer bytes.Buffer
	getLinesRecursive(node, &buffer)

	var out []string
	for _, line := range strings.Split(buffer.String(), "\n") {
		line = innerWhitespace.ReplaceAllString(line, " ")
		line = strings.TrimSpace(removeNonPrintable(line))
		if line == "" {
			continue
		}
		if len(out) > 0 && out[len(out)-1] == line {
			continue
		}
		out = append(out, line)
	}
	return out
}

func getLinesRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	switch node.Type {
	case html.TextNode:
		buffer.WriteString(node.Data)
		return
	case html.ElementNode:
		if node.DataAtom == atom.Script || node.DataAtom == atom.Style {
			return
		}
	}

	block := node.Type == html.ElementNode && blockElements[node.DataAtom]
	if block {
		buffer.WriteByte('\n')
	}
	child := node.FirstChild
	for child != nil {
		getLinesRecursive(child, buffer)
		child = child.NextSibling
	}
	if block {
		buffer.WriteByte('\n')
	}
}

// SelectionLines is GetLines over every node of a selection.
func SelectionLines(sel *goquery.Selection) []string {
	var out []string
	for _, n := range sel.Nodes {
		for _, line := range GetLines(n) {
			if len(out) > 0 && out[len(out)-1] == line {
				continue
			}
			out = append(out, line)
		}
	}
	return out
}

type Anchor struct {
	Name string
	Href string
}

var innerWhitespace = regexp.MustCompile(`\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// ResolveURL resolves href against base and strips the fragment, returning
// "" for unparseable or non-http(s) links.
func ResolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	link, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		link = base.ResolveReference(link)
	}
	if link.Scheme != "http" && link.Scheme != "https" {
		return ""
	}
	link.Fragment = ""
	link.RawFragment = ""
	return link.String()
}

// GetAnchors returns the text and resolved href of every anchor in the
// selection, anchors without a usable href are skipped.
func GetAnchors(ctx context.Context, sel *goquery.Selection, base *url.URL) []Anchor {
	_, span := tracer.Start(ctx, "GetAnchors")
	defer span.End()

	anchors := []Anchor{}
	for _, n := range sel.Nodes {
		href := ""
		for _, a := range n.Attr {
			if a.Key == "href" {
				href = a.Val
				break
			}
		}

		linkStr := ResolveURL(base, href)
		if linkStr == "" {
			continue
		}

		name := GetText(n)
		name = removeNonPrintable(name)
		name = innerWhitespace.ReplaceAllString(name, " ")
		name = strings.TrimSpace(name)

		anchors = append(anchors, Anchor{
			Name: name,
			Href: linkStr,
		})
		span.AddEvent("anchor", trace.WithAttributes(
			attribute.String("name", name),
			attribute.String("url", linkStr),
		))
	}

	return anchors
}
