package parser

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
)

// HTMLParser converts an HTML document's main body to markdown, then
// reuses the markdown heading splitter to produce sections (§4.A).
type HTMLParser struct{}

func (p *HTMLParser) SupportedFormats() []string { return []string{"html", "htm"} }

var strippedTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "iframe": true, "svg": true,
}

func (p *HTMLParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading html file: %w", err)
	}

	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	stripNodes(doc)

	title := findTitle(doc)
	body := selectMainContent(doc)

	var buf bytes.Buffer
	if body != nil {
		if err := html.Render(&buf, body); err != nil {
			return nil, fmt.Errorf("rendering main content: %w", err)
		}
	}

	markdown, err := htmltomarkdown.ConvertString(buf.String())
	if err != nil {
		return nil, fmt.Errorf("converting html to markdown: %w", err)
	}
	markdown = strings.TrimSpace(markdown)

	sections, metadata := splitMarkdown(markdown)
	if title != "" {
		metadata["title"] = StringMeta(title)
	}

	return &ParseResult{
		Sections: sections,
		Metadata: metadata,
		Method:   "native",
	}, nil
}

// stripNodes removes script/style/noscript/iframe/svg subtrees in place.
func stripNodes(n *html.Node) {
	var toRemove []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && strippedTags[c.Data] {
			toRemove = append(toRemove, c)
			continue
		}
		stripNodes(c)
	}
	for _, c := range toRemove {
		n.RemoveChild(c)
	}
}

// selectMainContent prefers <main>, then <article>, then [role=main],
// then .content, then falls back to <body>.
func selectMainContent(doc *html.Node) *html.Node {
	if n := findByTag(doc, "main"); n != nil {
		return n
	}
	if n := findByTag(doc, "article"); n != nil {
		return n
	}
	if n := findByAttr(doc, "role", "main"); n != nil {
		return n
	}
	if n := findByClass(doc, "content"); n != nil {
		return n
	}
	return findByTag(doc, "body")
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findByTag(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByTag(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func findByAttr(n *html.Node, key, value string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == key && a.Val == value {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByAttr(c, key, value); found != nil {
			return found
		}
	}
	return nil
}

func findByClass(n *html.Node, class string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == "class" {
				for _, c := range strings.Fields(a.Val) {
					if c == class {
						return n
					}
				}
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByClass(c, class); found != nil {
			return found
		}
	}
	return nil
}
