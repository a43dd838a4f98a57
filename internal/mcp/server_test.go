package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mfenderov/cvf-papers/internal/elasticsearch"
	"github.com/mfenderov/cvf-papers/pkg/models"
)

type fakeIndex struct {
	docs    []models.PaperDocument
	lastReq elasticsearch.SearchRequest
	err     error
}

func (f *fakeIndex) Search(_ context.Context, req elasticsearch.SearchRequest) ([]models.PaperDocument, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

func (f *fakeIndex) GetDocument(_ context.Context, id string) (*models.PaperDocument, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, d := range f.docs {
		if d.ID == id {
			return &d, nil
		}
	}
	return nil, nil
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("tool result has no content")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("tool result content is %T, want TextContent", res.Content[0])
	}
	return text.Text
}

var testDoc = models.PaperDocument{
	ID:         "0123456789abcdef",
	Conference: "CVPR2023",
	Title:      "Segment Anything",
	Authors:    "Alexander Kirillov",
	Link:       "https://openaccess.thecvf.com/sam.pdf",
	Abstract:   "A new task, model, and dataset for image segmentation.",
}

func TestServer_Creation(t *testing.T) {
	s, err := NewServer(Config{
		Name:        "cvf-papers",
		Version:     "1.0.0",
		ESAddresses: []string{"http://localhost:9200"},
		ESIndex:     "cvf-papers-test",
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if s.mcpServer == nil {
		t.Error("mcpServer should not be nil")
	}

	if _, err := NewServer(Config{Name: "cvf-papers"}); err == nil {
		t.Error("NewServer() without index should fail")
	}
}

func TestServer_SearchPapers(t *testing.T) {
	idx := &fakeIndex{docs: []models.PaperDocument{testDoc}}
	s := newServer("cvf-papers", "test", idx)

	res, err := s.searchHandler(t.Context(), callRequest("search_papers", map[string]any{
		"query":      "segmentation",
		"limit":      float64(3),
		"conference": "CVPR2023",
	}))
	if err != nil {
		t.Fatalf("searchHandler() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("searchHandler() returned tool error: %s", resultText(t, res))
	}

	want := elasticsearch.SearchRequest{Query: "segmentation", Conference: "CVPR2023", Limit: 3}
	if idx.lastReq != want {
		t.Errorf("search request = %+v, want %+v", idx.lastReq, want)
	}

	var docs []models.PaperDocument
	if err := json.Unmarshal([]byte(resultText(t, res)), &docs); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if len(docs) != 1 || docs[0].Title != testDoc.Title {
		t.Errorf("docs = %+v", docs)
	}
}

func TestServer_SearchPapersErrors(t *testing.T) {
	s := newServer("cvf-papers", "test", &fakeIndex{})
	res, err := s.searchHandler(t.Context(), callRequest("search_papers", map[string]any{}))
	if err != nil {
		t.Fatalf("searchHandler() error = %v", err)
	}
	if !res.IsError {
		t.Error("missing query should be a tool error")
	}

	s = newServer("cvf-papers", "test", &fakeIndex{err: errors.New("cluster down")})
	res, err = s.searchHandler(t.Context(), callRequest("search_papers", map[string]any{"query": "x"}))
	if err != nil {
		t.Fatalf("searchHandler() error = %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "cluster down") {
		t.Errorf("backend failure should surface as tool error, got %+v", res)
	}
}

func TestServer_GetPaper(t *testing.T) {
	s := newServer("cvf-papers", "test", &fakeIndex{docs: []models.PaperDocument{testDoc}})

	res, err := s.getPaperHandler(t.Context(), callRequest("get_paper", map[string]any{"id": testDoc.ID}))
	if err != nil {
		t.Fatalf("getPaperHandler() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("getPaperHandler() returned tool error: %s", resultText(t, res))
	}
	var doc models.PaperDocument
	if err := json.Unmarshal([]byte(resultText(t, res)), &doc); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if doc.ID != testDoc.ID || doc.Conference != "CVPR2023" {
		t.Errorf("doc = %+v", doc)
	}

	res, err = s.getPaperHandler(t.Context(), callRequest("get_paper", map[string]any{"id": "missing"}))
	if err != nil {
		t.Fatalf("getPaperHandler() error = %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "not found") {
		t.Errorf("missing paper should be a not-found tool error, got %+v", res)
	}
}
