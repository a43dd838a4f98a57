package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Paper is one extracted paper record. All fields are set on success.
type Paper struct {
	Title    string `json:"title"`
	Authors  string `json:"authors"`
	Link     string `json:"link"` // absolute URL of the pdf
	Abstract string `json:"abstract"`
}

// Fields returns the record in output column order.
func (p Paper) Fields() []string {
	return []string{p.Title, p.Authors, p.Link, p.Abstract}
}

// TSVHeader lists the output columns.
var TSVHeader = []string{"title", "authors", "link", "abstract"}

var fieldSanitizer = strings.NewReplacer("\t", " ", "\r\n", " ", "\r", " ", "\n", " ")

// TSVLine renders the record as a newline-terminated tab-separated line.
// Tabs and line breaks inside a field are replaced with spaces.
func (p Paper) TSVLine() string {
	fields := p.Fields()
	for i, f := range fields {
		fields[i] = fieldSanitizer.Replace(f)
	}
	return strings.Join(fields, "\t") + "\n"
}

// PaperDocument is a paper as stored in the search index.
type PaperDocument struct {
	ID         string    `json:"id"`
	Conference string    `json:"conference,omitempty"`
	Title      string    `json:"title"`
	Authors    string    `json:"authors"`
	Link       string    `json:"link"`
	Abstract   string    `json:"abstract"`
	CrawledAt  time.Time `json:"crawled_at"`
}

// NewPaperDocument builds an index document for the paper.
func NewPaperDocument(p Paper, conference string, crawledAt time.Time) PaperDocument {
	return PaperDocument{
		ID:         GenerateDocumentID(p.Link),
		Conference: conference,
		Title:      p.Title,
		Authors:    p.Authors,
		Link:       p.Link,
		Abstract:   p.Abstract,
		CrawledAt:  crawledAt,
	}
}

// Paper returns the record part of the document.
func (d PaperDocument) Paper() Paper {
	return Paper{Title: d.Title, Authors: d.Authors, Link: d.Link, Abstract: d.Abstract}
}

// GenerateDocumentID creates a deterministic ID from URL.
// The ID is a SHA-256 hash (first 16 chars) of the URL.
func GenerateDocumentID(url string) string {
	hash := sha256.Sum256([]byte(url))
	return hex.EncodeToString(hash[:])[:16]
}
