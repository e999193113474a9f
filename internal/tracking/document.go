package tracking

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	tagRe        = regexp.MustCompile(`<[^>]*>`)
)

// skipped elements never contribute visible text
var invisibleTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
}

// block elements start a new line when the page is rendered to text
var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"br": true, "dd": true, "div": true, "dl": true, "dt": true,
	"fieldset": true, "figcaption": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true,
	"ol": true, "p": true, "pre": true, "section": true, "table": true,
	"tbody": true, "thead": true, "tfoot": true, "tr": true, "ul": true,
}

// Document is the parsed page handed to every extraction stage
type Document struct {
	doc   *goquery.Document
	order map[*html.Node]int
	lines []string
}

// ParseDocument parses markup into a Document
func ParseDocument(markup string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}
	return &Document{doc: doc}, nil
}

// Find runs a CSS selector against the whole document
func (d *Document) Find(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}

// Position returns the document-order index of node, or -1 when it is not
// part of this document
func (d *Document) Position(node *html.Node) int {
	if d.order == nil {
		d.order = make(map[*html.Node]int)
		i := 0
		var walk func(n *html.Node)
		walk = func(n *html.Node) {
			d.order[n] = i
			i++
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
		for _, root := range d.doc.Nodes {
			walk(root)
		}
	}
	if pos, ok := d.order[node]; ok {
		return pos
	}
	return -1
}

// Lines renders the visible text one block per line, whitespace collapsed
// and blank lines dropped
func (d *Document) Lines() []string {
	if d.lines != nil {
		return d.lines
	}

	var lines []string
	var current strings.Builder
	flush := func() {
		line := collapseSpace(current.String())
		if line != "" {
			lines = append(lines, line)
		}
		current.Reset()
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			current.WriteString(n.Data)
			return
		case html.ElementNode:
			if invisibleTags[n.Data] {
				return
			}
			if n.Data == "td" || n.Data == "th" {
				current.WriteByte(' ')
			}
		}

		block := n.Type == html.ElementNode && blockTags[n.Data]
		if block {
			flush()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			flush()
		}
	}
	for _, root := range d.doc.Nodes {
		walk(root)
	}
	flush()

	d.lines = lines
	if d.lines == nil {
		d.lines = []string{}
	}
	return d.lines
}

// VisibleText returns the rendered text with one line per block
func (d *Document) VisibleText() string {
	return strings.Join(d.Lines(), "\n")
}

// selectionText returns the trimmed, whitespace-collapsed text of s
func selectionText(s *goquery.Selection) string {
	return collapseSpace(s.Text())
}

func collapseSpace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// stripTags is the last-resort text rendering used when markup cannot be
// parsed at all
func stripTags(markup string) string {
	text := tagRe.ReplaceAllString(markup, "\n")
	text = html.UnescapeString(text)

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = collapseSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
