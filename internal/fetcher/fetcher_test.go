package fetcher

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mfenderov/cvf-papers/pkg/models"
)

func TestFetcher_FetchPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body><div id="papertitle">Hello</div></body></html>`))
	}))
	defer server.Close()

	f := New(Config{UserAgent: "test-agent", Timeout: 5 * time.Second})

	body, err := f.Fetch(t.Context(), server.URL+"/CVPR2023")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !strings.Contains(string(body), `<div id="papertitle">Hello</div>`) {
		t.Errorf("Fetch() body = %q", body)
	}
}

func TestFetcher_SameURLTwice(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>ok</body></html>`))
	}))
	defer server.Close()

	f := New(Config{UserAgent: "test-agent"})

	for i := 0; i < 2; i++ {
		if _, err := f.Fetch(t.Context(), server.URL); err != nil {
			t.Fatalf("Fetch() #%d error = %v", i+1, err)
		}
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}
}

func TestFetcher_NetworkErrors(t *testing.T) {
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer notFound.Close()

	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Internal Error", http.StatusInternalServerError)
	}))
	defer internal.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`<html></html>`))
	}))
	defer slow.Close()

	closed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name string
		url  string
	}{
		{"404", notFound.URL + "/missing"},
		{"500", internal.URL},
		{"timeout", slow.URL},
		{"connection refused", closedURL},
	}

	f := New(Config{UserAgent: "test-agent", Timeout: 100 * time.Millisecond})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := f.Fetch(t.Context(), tt.url)
			if err == nil {
				t.Fatalf("Fetch() expected error, got body %q", body)
			}
			if !errors.Is(err, models.ErrNetwork) {
				t.Errorf("Fetch() error = %v, want ErrNetwork", err)
			}
		})
	}
}

func TestFetcher_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html></html>`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	f := New(Config{UserAgent: "test-agent"})
	_, err := f.Fetch(ctx, server.URL)
	if !errors.Is(err, models.ErrNetwork) {
		t.Errorf("Fetch() error = %v, want ErrNetwork", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch() error = %v, want context.Canceled in chain", err)
	}
}

func TestFetcher_SetsUserAgent(t *testing.T) {
	var receivedUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>Test</body></html>`))
	}))
	defer server.Close()

	f := New(Config{UserAgent: "cvf-papers-test/1.0"})

	if _, err := f.Fetch(t.Context(), server.URL); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if receivedUA != "cvf-papers-test/1.0" {
		t.Errorf("User-Agent = %q, want %q", receivedUA, "cvf-papers-test/1.0")
	}
}

func TestFetcher_UsesConfiguredLogger(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>ok</body></html>`))
	}))
	defer server.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f := New(Config{Timeout: 5 * time.Second, Logger: logger})

	pageURL := server.URL + "/CVPR2016"
	if _, err := f.Fetch(t.Context(), pageURL); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	out := logs.String()
	if !strings.Contains(out, "fetched page") || !strings.Contains(out, pageURL) {
		t.Errorf("logger output = %q, want the fetch logged with its url", out)
	}
}
