package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mfenderov/cvf-papers/pkg/models"
)

func detailPage(title string) string {
	return fmt.Sprintf(`<html><body>
<div id="papertitle">%s</div>
<div id="authors">Ada Lovelace</div>
<div id="abstract">An abstract.</div>
[<a href="/papers/%s.pdf">pdf</a>]
</body></html>`, title, title)
}

// fakeFetcher serves detail pages, fails unknown URLs and tracks concurrency.
type fakeFetcher struct {
	pages    map[string]string
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxSeen.Load()
		if n <= cur || f.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: GET %s: %w", models.ErrNetwork, url, ctx.Err())
		}
	}

	page, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("%w: GET %s: connection refused", models.ErrNetwork, url)
	}
	return []byte(page), nil
}

type memorySink struct {
	mu     sync.Mutex
	papers []models.Paper
	err    error
}

func (s *memorySink) Write(p models.Paper) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.papers = append(s.papers, p)
	return nil
}

func feed(urls []string) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		for _, u := range urls {
			ch <- u
		}
	}()
	return ch
}

func site(n int) (*fakeFetcher, []string) {
	f := &fakeFetcher{pages: make(map[string]string)}
	var urls []string
	for i := 0; i < n; i++ {
		u := fmt.Sprintf("https://openaccess.thecvf.com/content/html/P%d.html", i)
		f.pages[u] = detailPage(fmt.Sprintf("P%d", i))
		urls = append(urls, u)
	}
	return f, urls
}

func TestNew_Workers(t *testing.T) {
	f, _ := site(0)

	tests := []struct {
		name    string
		opts    []Option
		want    int
		wantErr bool
	}{
		{"default", nil, DefaultWorkers, false},
		{"explicit", []Option{WithWorkers(16)}, 16, false},
		{"zero", []Option{WithWorkers(0)}, 0, true},
		{"negative", []Option{WithWorkers(-2)}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(f, &memorySink{}, tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, models.ErrConfiguration) {
					t.Errorf("New() error = %v, want ErrConfiguration", err)
				}
				return
			}
			if c.Workers() != tt.want {
				t.Errorf("Workers() = %d, want %d", c.Workers(), tt.want)
			}
		})
	}
}

func TestCoordinator_StreamEveryURLOnce(t *testing.T) {
	f, urls := site(40)
	f.delay = 2 * time.Millisecond
	urls = append(urls, "https://openaccess.thecvf.com/content/html/gone.html")

	c, err := New(f, nil, WithWorkers(4))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	seen := make(map[string]int)
	successes, failures := 0, 0
	for o := range c.Stream(t.Context(), feed(urls)) {
		seen[o.URL]++
		if o.OK() {
			successes++
		} else {
			failures++
			if o.Kind() != models.KindNetwork {
				t.Errorf("Kind() = %v, want network", o.Kind())
			}
		}
	}

	if len(seen) != len(urls) {
		t.Errorf("got outcomes for %d urls, want %d", len(seen), len(urls))
	}
	for u, n := range seen {
		if n != 1 {
			t.Errorf("url %s produced %d outcomes, want 1", u, n)
		}
	}
	if successes != 40 || failures != 1 {
		t.Errorf("successes=%d failures=%d, want 40 and 1", successes, failures)
	}
}

func TestCoordinator_BoundsConcurrency(t *testing.T) {
	f, urls := site(24)
	f.delay = 20 * time.Millisecond

	c, err := New(f, &memorySink{}, WithWorkers(3))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := c.Run(t.Context(), feed(urls)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := f.maxSeen.Load(); got > 3 {
		t.Errorf("max in-flight fetches = %d, want <= 3", got)
	} else if got < 2 {
		t.Errorf("max in-flight fetches = %d, want parallel fetches", got)
	}
}

func TestCoordinator_RunIsolatesFailures(t *testing.T) {
	f, urls := site(3)
	// page 2 loses its abstract
	f.pages[urls[1]] = `<html><body><div id="papertitle">P1</div><div id="authors">A</div><a href="x.pdf">pdf</a></body></html>`
	urls = append(urls, "https://openaccess.thecvf.com/content/html/unreachable.html")

	sink := &memorySink{}
	c, err := New(f, sink, WithWorkers(2))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	summary, err := c.Run(t.Context(), feed(urls))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Succeeded != 2 || summary.Failed != 2 {
		t.Errorf("Summary = %+v, want 2 succeeded and 2 failed", summary)
	}
	if summary.ByKind[models.KindParse] != 1 || summary.ByKind[models.KindNetwork] != 1 {
		t.Errorf("ByKind = %v, want 1 parse and 1 network", summary.ByKind)
	}
	if summary.Total() != len(urls) {
		t.Errorf("Total() = %d, want %d", summary.Total(), len(urls))
	}
	if len(sink.papers) != 2 {
		t.Fatalf("sink received %d papers, want 2", len(sink.papers))
	}
	for _, p := range sink.papers {
		if p.Title == "P1" {
			t.Errorf("partial record for P1 reached the sink: %+v", p)
		}
		if p.Link == "" || p.Abstract == "" {
			t.Errorf("incomplete record reached the sink: %+v", p)
		}
	}
}

func TestCoordinator_SinkErrorStopsRun(t *testing.T) {
	f, urls := site(20)
	f.delay = 5 * time.Millisecond
	sinkErr := errors.New("disk full")

	c, err := New(f, &memorySink{err: sinkErr}, WithWorkers(4))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	summary, err := c.Run(t.Context(), feed(urls))
	if !errors.Is(err, sinkErr) {
		t.Fatalf("Run() error = %v, want %v", err, sinkErr)
	}
	if summary.Total() != len(urls) {
		t.Errorf("Total() = %d, want every url accounted for (%d)", summary.Total(), len(urls))
	}
	if summary.Succeeded != 0 {
		t.Errorf("Succeeded = %d, want 0 when no write was accepted", summary.Succeeded)
	}
	if summary.Dropped < 1 {
		t.Errorf("Dropped = %d, want the rejected record counted", summary.Dropped)
	}
}

// failAfterSink accepts the first n writes and rejects the rest.
type failAfterSink struct {
	mu     sync.Mutex
	n      int
	writes int
	calls  int
}

func (s *failAfterSink) Write(models.Paper) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.writes >= s.n {
		return errors.New("disk full")
	}
	s.writes++
	return nil
}

func TestCoordinator_CountsOnlyWrittenRecords(t *testing.T) {
	f, urls := site(20)
	out := &failAfterSink{n: 3}

	c, err := New(f, out, WithWorkers(4))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	summary, err := c.Run(t.Context(), feed(urls))
	if err == nil {
		t.Fatal("Run() should return the sink error")
	}
	if summary.Succeeded != out.writes {
		t.Errorf("Succeeded = %d, want the %d accepted writes", summary.Succeeded, out.writes)
	}
	if out.calls != out.writes+1 {
		t.Errorf("sink called %d times, want no writes after the first failure", out.calls)
	}
	if summary.Total() != len(urls) {
		t.Errorf("Total() = %d, want %d", summary.Total(), len(urls))
	}
}

func TestCoordinator_EmptyInput(t *testing.T) {
	f, _ := site(0)
	c, err := New(f, &memorySink{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	summary, err := c.Run(t.Context(), feed(nil))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Total() != 0 {
		t.Errorf("Total() = %d, want 0", summary.Total())
	}
}
