package capability

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Element is a single DOM node, identified by the selector that found
// it within its source HTML fragment, per spec.md §4.1's
// { html, selector } pair.
type Element struct {
	html     string
	selector *goquery.Selection
}

// Text implements element.text().
func (e *Element) Text() string {
	if e.selector == nil {
		return ""
	}
	return strings.TrimSpace(e.selector.Text())
}

// Attr implements element.attr(name) -> string?.
func (e *Element) Attr(name string) (string, bool) {
	if e.selector == nil {
		return "", false
	}
	return e.selector.Attr(name)
}

// Find implements html.find(html, selector) -> [Element]. Grounded on
// the teacher's internal/extractor/links.go direct goquery usage.
func Find(html, selector string) ([]*Element, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	var out []*Element
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Element{html: html, selector: s})
	})
	return out, nil
}

// FindOne implements html.find_one(html, selector) -> Element?.
func FindOne(html, selector string) (*Element, error) {
	elems, err := Find(html, selector)
	if err != nil {
		return nil, err
	}
	if len(elems) == 0 {
		return nil, nil
	}
	return elems[0], nil
}
