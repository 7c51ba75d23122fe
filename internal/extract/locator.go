// Package extract turns fetched HTML into review records, listing links and
// pagination counts. Every structural selector is supplied by configuration.
package extract

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"

	"github.com/JakeFAU/review-crawler/internal/config"
)

// Locator finds review blocks in a document and resolves named fields inside
// one block. A false return means the field could not be resolved.
type Locator interface {
	Blocks(doc *html.Node) []*html.Node
	Field(block *html.Node, name string) (string, bool)
}

type fieldExpr struct {
	expr *xpath.Expr
	attr string
}

// XPathLocator resolves blocks with an absolute XPath and fields with XPaths
// relative to each block.
type XPathLocator struct {
	block  *xpath.Expr
	fields map[string]fieldExpr
}

// NewXPathLocator compiles the block path and every field path up front.
func NewXPathLocator(blockPath string, fields map[string]config.FieldSelector) (*XPathLocator, error) {
	block, err := xpath.Compile(blockPath)
	if err != nil {
		return nil, fmt.Errorf("compile block xpath %q: %w", blockPath, err)
	}
	compiled := make(map[string]fieldExpr, len(fields))
	for name, sel := range fields {
		expr, err := xpath.Compile(sel.Path)
		if err != nil {
			return nil, fmt.Errorf("compile %s xpath %q: %w", name, sel.Path, err)
		}
		compiled[name] = fieldExpr{expr: expr, attr: sel.Attr}
	}
	return &XPathLocator{block: block, fields: compiled}, nil
}

// Blocks returns every node matching the block path in document order.
func (l *XPathLocator) Blocks(doc *html.Node) []*html.Node {
	if doc == nil {
		return nil
	}
	return htmlquery.QuerySelectorAll(doc, l.block)
}

// Field returns the trimmed inner text of the first match, or the named
// attribute when the selector has one.
func (l *XPathLocator) Field(block *html.Node, name string) (string, bool) {
	f, ok := l.fields[name]
	if !ok || block == nil {
		return "", false
	}
	node := htmlquery.QuerySelector(block, f.expr)
	if node == nil {
		return "", false
	}
	if f.attr == "" {
		return strings.TrimSpace(htmlquery.InnerText(node)), true
	}
	for _, a := range node.Attr {
		if a.Key == f.attr {
			return a.Val, true
		}
	}
	return "", false
}
