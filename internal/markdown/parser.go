// Package markdown parses film article pages into a title, an infobox, a lead
// paragraph and top-level sections.
package markdown

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// ErrNoTitle means the page has no H1 heading.
var ErrNoTitle = errors.New("page has no title heading")

// Infobox keys recognised in the lead. Other "Key: value" lines stay in the lead.
var infoboxKeys = map[string]struct{}{
	"directed_by":  {},
	"language":     {},
	"country":      {},
	"running_time": {},
	"starring":     {},
	"poster":       {},
	"release_date": {},
	"music_by":     {},
	"produced_by":  {},
	"written_by":   {},
}

// Section headings that carry no film information.
var skippedSections = map[string]struct{}{
	"references":     {},
	"external links": {},
	"bibliography":   {},
	"notes":          {},
	"see also":       {},
}

// Page is one parsed film article.
type Page struct {
	Title    string
	Infobox  map[string]string // keys like directed_by, running_time
	Lead     string
	Sections []Section
}

// Section is the body under one H2 heading, including any deeper headings.
type Section struct {
	Heading string
	Body    string
}

// PageParser parses film pages with goldmark.
type PageParser struct {
	parser goldmark.Markdown
}

// NewPageParser creates a parser that assigns heading ids so the TOC can be
// mapped back to AST nodes.
func NewPageParser() *PageParser {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &PageParser{parser: md}
}

type heading struct {
	level int
	title string
	node  ast.Node
}

// Parse splits source at its H1 and H2 headings. The first H1 is the title;
// text between it and the first H2 is the lead and infobox.
func (p *PageParser) Parse(source []byte) (*Page, error) {
	doc := p.parser.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	var headings []heading
	flatten(doc, tree.Items, &headings)

	titleIdx := -1
	for i, h := range headings {
		if h.level == 1 {
			titleIdx = i
			break
		}
	}
	if titleIdx < 0 {
		return nil, ErrNoTitle
	}

	page := &Page{
		Title:   headings[titleIdx].title,
		Infobox: make(map[string]string),
	}

	for i := titleIdx; i < len(headings); i++ {
		var next ast.Node
		if i+1 < len(headings) {
			next = headings[i+1].node
		}
		body := bodyBetween(source, headings[i].node, next)

		if i == titleIdx {
			page.Lead = splitInfobox(body, page.Infobox)
			continue
		}
		if headings[i].level != 2 {
			continue
		}
		if _, skip := skippedSections[strings.ToLower(headings[i].title)]; skip {
			continue
		}
		if body == "" {
			continue
		}
		page.Sections = append(page.Sections, Section{Heading: headings[i].title, Body: body})
	}
	return page, nil
}

// flatten lists TOC items in document order with their AST heading nodes.
func flatten(doc ast.Node, items toc.Items, out *[]heading) {
	for _, item := range items {
		if len(item.Title) > 0 {
			if node := findHeaderByID(doc, string(item.ID)); node != nil {
				*out = append(*out, heading{
					level: node.(*ast.Heading).Level,
					title: strings.TrimSpace(string(item.Title)),
					node:  node,
				})
			}
		}
		flatten(doc, item.Items, out)
	}
}

// findHeaderByID locates a heading node by its auto-generated ID.
func findHeaderByID(node ast.Node, id string) ast.Node {
	var found ast.Node
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			headingID, ok := n.AttributeString("id")
			if ok && string(headingID.([]byte)) == id {
				found = n
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}

// bodyBetween returns the text after the line of heading and before the line
// of next, or to the end of source when next is nil.
func bodyBetween(source []byte, heading, next ast.Node) string {
	start := lineEnd(source, heading.Lines().At(0).Stop)
	end := len(source)
	if next != nil {
		end = lineStart(source, next.Lines().At(0).Start)
	}
	if start >= end {
		return ""
	}
	return strings.TrimSpace(string(source[start:end]))
}

func lineStart(source []byte, pos int) int {
	return bytes.LastIndexByte(source[:pos], '\n') + 1
}

func lineEnd(source []byte, pos int) int {
	if i := bytes.IndexByte(source[pos:], '\n'); i >= 0 {
		return pos + i + 1
	}
	return len(source)
}

// splitInfobox moves recognised "Key: value" lines (optionally bulleted) into
// box and returns the remaining lead text.
func splitInfobox(lead string, box map[string]string) string {
	var rest []string
	for _, line := range strings.Split(lead, "\n") {
		key, value, ok := infoboxLine(line)
		if ok {
			box[key] = value
			continue
		}
		rest = append(rest, line)
	}
	return strings.TrimSpace(strings.Join(rest, "\n"))
}

func infoboxLine(line string) (string, string, bool) {
	trimmed := strings.TrimSpace(line)
	trimmed = strings.TrimLeft(trimmed, "-*+ ")
	key, value, found := strings.Cut(trimmed, ":")
	if !found {
		return "", "", false
	}
	key = strings.Trim(strings.TrimSpace(key), "*_")
	value = strings.Trim(strings.TrimSpace(value), "*_ ")
	norm := strings.ReplaceAll(strings.ToLower(key), " ", "_")
	if _, ok := infoboxKeys[norm]; !ok || value == "" {
		return "", "", false
	}
	return norm, value, true
}
