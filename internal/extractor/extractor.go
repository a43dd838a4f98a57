// Package extractor pulls link lists and paper records out of conference
// HTML pages. All functions are pure: they take already-fetched HTML and
// never touch the network.
package extractor

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mfenderov/cvf-papers/pkg/models"
	"golang.org/x/net/html"
)

// Field names used in ParseErrors.
const (
	FieldTitle    = "title"
	FieldAuthors  = "authors"
	FieldAbstract = "abstract"
	FieldLink     = "link"
	FieldList     = "dl"
)

// pdfLabel is the exact anchor text of the full-text link.
const pdfLabel = "pdf"

// ExtractDetailLinks returns the detail page links of the first definition
// list on an index page, resolved against baseURL, in document order.
func ExtractDetailLinks(htmlContent []byte, baseURL string) ([]string, error) {
	return ExtractListLinks(htmlContent, baseURL, 0)
}

// ExtractListLinks is ExtractDetailLinks for pages that carry several
// definition lists, such as one list per conference year. listIndex
// selects the list.
func ExtractListLinks(htmlContent []byte, baseURL string, listIndex int) ([]string, error) {
	return entryLinks(htmlContent, baseURL, listIndex, "dt")
}

// ExtractSubIndexLinks returns the links held by the dd entries of the first
// definition list. Paginated conference roots list their daily pages this way.
func ExtractSubIndexLinks(htmlContent []byte, baseURL string) ([]string, error) {
	return entryLinks(htmlContent, baseURL, 0, "dd")
}

func entryLinks(htmlContent []byte, baseURL string, listIndex int, entry string) ([]string, error) {
	base, err := parseBase(baseURL)
	if err != nil {
		return nil, err
	}
	doc, err := parse(htmlContent)
	if err != nil {
		return nil, err
	}

	lists := doc.Find("dl")
	if listIndex < 0 || listIndex >= lists.Length() {
		return nil, &models.ParseError{
			Field:  FieldList,
			Detail: fmt.Sprintf("page has %d definition lists, need index %d", lists.Length(), listIndex),
		}
	}

	var links []string
	lists.Eq(listIndex).Find(entry).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Find("a[href]").First().Attr("href")
		if !ok {
			return
		}
		if link, err := resolve(base, strings.TrimSpace(href)); err == nil {
			links = append(links, link)
		}
	})

	return links, nil
}

// ExtractPaperRecord reads the title, authors, abstract and pdf link of a
// paper detail page. It returns a ParseError naming the first field that
// is missing or empty; no partial record is ever returned.
func ExtractPaperRecord(htmlContent []byte, baseURL string) (models.Paper, error) {
	base, err := parseBase(baseURL)
	if err != nil {
		return models.Paper{}, err
	}
	doc, err := parse(htmlContent)
	if err != nil {
		return models.Paper{}, err
	}

	title, err := divText(doc, "papertitle", FieldTitle)
	if err != nil {
		return models.Paper{}, err
	}
	authors, err := divText(doc, "authors", FieldAuthors)
	if err != nil {
		return models.Paper{}, err
	}
	abstract, err := divText(doc, "abstract", FieldAbstract)
	if err != nil {
		return models.Paper{}, err
	}

	pdf := doc.Find("a").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Text() == pdfLabel
	}).First()
	href, ok := pdf.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return models.Paper{}, &models.ParseError{Field: FieldLink}
	}
	link, err := resolve(base, strings.TrimSpace(href))
	if err != nil {
		return models.Paper{}, &models.ParseError{Field: FieldLink, Detail: err.Error()}
	}

	return models.Paper{
		Title:    title,
		Authors:  authors,
		Link:     link,
		Abstract: abstract,
	}, nil
}

func divText(doc *goquery.Document, id, field string) (string, error) {
	sel := doc.Find("div#" + id).First()
	if sel.Length() == 0 {
		return "", &models.ParseError{Field: field}
	}
	text := strings.TrimSpace(sel.Text())
	if text == "" {
		return "", &models.ParseError{Field: field, Detail: "empty"}
	}
	return text, nil
}

func parse(htmlContent []byte) (*goquery.Document, error) {
	root, err := html.Parse(bytes.NewReader(htmlContent))
	if err != nil {
		return nil, &models.ParseError{Field: "html", Detail: err.Error()}
	}
	return goquery.NewDocumentFromNode(root), nil
}

func parseBase(baseURL string) (*url.URL, error) {
	base, err := url.Parse(baseURL)
	if err != nil || !base.IsAbs() {
		return nil, &models.ParseError{Field: "base url", Detail: fmt.Sprintf("not absolute: %q", baseURL)}
	}
	return base, nil
}

func resolve(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
