package ingest

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var _ MetadataExtractor = (*HTMLExtractor)(nil)

// HTMLExtractor renders the block structure of an HTML page: headings,
// paragraphs and list items become paragraphs and tables become pipe rows.
// Scripts, styles and navigation are dropped. Pages without any block text
// fall back to readability's article text.
type HTMLExtractor struct {
	// PageURL resolves relative links for readability. Optional.
	PageURL *url.URL
}

// NewHTMLExtractor creates an HTML extractor.
func NewHTMLExtractor() *HTMLExtractor { return &HTMLExtractor{} }

// Extract returns the text of an HTML document.
func (e *HTMLExtractor) Extract(content []byte) (string, error) {
	res, err := e.ExtractWithMeta(content)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// ExtractWithMeta returns the page text and its title.
func (e *HTMLExtractor) ExtractWithMeta(content []byte) (ExtractResult, error) {
	content = trimBOM(content)
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return ExtractResult{}, fmt.Errorf("parse html: %w", err)
	}

	pageURL := e.PageURL
	if pageURL == nil {
		pageURL = &url.URL{Scheme: "http", Host: "localhost", Path: "/"}
	}
	var title, fallback string
	if article, err := readability.FromReader(bytes.NewReader(content), pageURL); err == nil {
		title = strings.TrimSpace(article.Title)
		fallback = strings.TrimSpace(article.TextContent)
	}

	var blocks []string
	collectHTMLBlocks(doc, &blocks)
	text := strings.Join(blocks, "\n\n")
	if text == "" {
		text = fallback
	}

	meta := map[string]any{}
	if title == "" {
		title = htmlTitle(doc)
	}
	if title != "" {
		meta["title"] = title
	}
	return ExtractResult{Text: text, Meta: meta}, nil
}

func collectHTMLBlocks(n *html.Node, out *[]string) {
	switch n.Type {
	case html.TextNode:
		if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
			*out = append(*out, t)
		}
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Head, atom.Script, atom.Style, atom.Noscript, atom.Nav, atom.Footer, atom.Template:
			return
		case atom.Table:
			*out = append(*out, htmlTable(n)...)
			return
		case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
			atom.Li, atom.Dt, atom.Dd, atom.Pre, atom.Blockquote, atom.Figcaption:
			if t := htmlText(n); t != "" {
				*out = append(*out, t)
			}
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectHTMLBlocks(c, out)
	}
}

// htmlText flattens the text under n. Line breaks survive as newlines.
func htmlText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(strings.ReplaceAll(n.Data, "\n", " "))
			return
		case n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style):
			return
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			b.WriteByte('\n')
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	lines := strings.Split(b.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// htmlTable returns the table as pipe rows, preceded by its caption line. A
// table with a single row is returned as plain text.
func htmlTable(n *html.Node) []string {
	var caption string
	var rows [][]string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Caption:
				caption = htmlText(n)
				return
			case atom.Tr:
				var cells []string
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
						cells = append(cells, strings.ReplaceAll(htmlText(c), "\n", " "))
					}
				}
				if len(cells) > 0 {
					rows = append(rows, cells)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	switch len(rows) {
	case 0:
		if caption != "" {
			return []string{caption}
		}
		return nil
	case 1:
		return nonEmptyStrings(caption, strings.Join(rows[0], " "))
	}
	table := pipeTable(rows[0], rows[1:])
	if caption != "" {
		table = caption + "\n" + table
	}
	return []string{table}
}

func nonEmptyStrings(ss ...string) []string {
	var out []string
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func htmlTitle(doc *html.Node) string {
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Title {
			title = htmlText(n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}
