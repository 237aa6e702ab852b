package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masahif/packfetch/internal/model"
	"github.com/masahif/packfetch/internal/parser"
	"github.com/masahif/packfetch/internal/web"
)

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// seedPage renders an index page in the layout the default extractor expects
func seedPage(links ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="article-body">`)
	for i := 0; i < 6; i++ {
		fmt.Fprintf(&b, "<p>intro %d</p>", i)
	}
	for _, l := range links {
		fmt.Fprintf(&b, `<p><a href="%s">%s</a></p>`, l, l)
	}
	b.WriteString(`<p>footer</p></div></body></html>`)
	return b.String()
}

func packPage(names ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="text-copy bodyCopy auto">`)
	for _, n := range names {
		fmt.Fprintf(&b, `<p><a href="/files/%s.zip">%s (10MB)</a></p>`, n, n)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func newSite(t *testing.T, pages int, failing map[int]bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	var links []string
	for i := 0; i < pages; i++ {
		links = append(links, fmt.Sprintf("/page/%d", i))
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(seedPage(links...)))
	})
	mux.HandleFunc("/page/", func(w http.ResponseWriter, r *http.Request) {
		var n int
		_, _ = fmt.Sscanf(r.URL.Path, "/page/%d", &n)
		if failing[n] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(packPage(fmt.Sprintf("pack-%d-a", n), fmt.Sprintf("pack-%d-b", n))))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newClient(t *testing.T) *web.Client {
	t.Helper()
	client, err := web.NewClient(web.Options{Timeout: 10 * time.Second, UserAgent: "packfetch-test"})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestRunCollectsItems(t *testing.T) {
	server := newSite(t, 8, nil)
	engine := New(newClient(t), parser.NewSelectorExtractor(parser.Rules{}), Options{QueueSize: 4})

	result, err := engine.Run(context.Background(), server.URL+"/", 3, 0)
	require.NoError(t, err)

	assert.Len(t, result.Pages, 8)
	assert.Len(t, result.Items, 16)
	assert.Zero(t, result.Errors)
	assert.Empty(t, result.FailedPages)

	var names []string
	for _, item := range result.Items {
		names = append(names, item.FileName())
		assert.True(t, strings.HasPrefix(item.URL(), server.URL+"/files/"))
		assert.Equal(t, "10MB", item.DeclaredSize())
	}
	sort.Strings(names)
	assert.Equal(t, "pack-0-a.zip", names[0])
}

func TestRunCountsFailedPages(t *testing.T) {
	server := newSite(t, 6, map[int]bool{1: true, 4: true})
	engine := New(newClient(t), parser.NewSelectorExtractor(parser.Rules{}), Options{})

	result, err := engine.Run(context.Background(), server.URL+"/", 2, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Errors)
	assert.ElementsMatch(t, []string{server.URL + "/page/1", server.URL + "/page/4"}, result.FailedPages)
	assert.Len(t, result.Items, 8)
}

func TestRunMaxPages(t *testing.T) {
	server := newSite(t, 10, nil)
	engine := New(newClient(t), parser.NewSelectorExtractor(parser.Rules{}), Options{})

	result, err := engine.Run(context.Background(), server.URL+"/", 4, 3)
	require.NoError(t, err)

	assert.Len(t, result.Pages, 3)
	assert.Len(t, result.Items, 6)
}

func TestRunSeedFetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	engine := New(newClient(t), parser.NewSelectorExtractor(parser.Rules{}), Options{})
	_, err := engine.Run(context.Background(), server.URL+"/", 2, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, web.ErrFetchFailed)
	assert.ErrorIs(t, err, ErrNoPagesFound)
}

func TestRunInvalidWorkers(t *testing.T) {
	engine := New(&fakeSource{}, parser.NewSelectorExtractor(parser.Rules{}), Options{})
	_, err := engine.Run(context.Background(), "https://example.com/", 0, 0)
	assert.Error(t, err)
}

// fakeSource serves generated pages without network access
type fakeSource struct {
	seed   string
	calls  atomic.Int64
	mu     sync.Mutex
	seen   map[string]int
	delay  time.Duration
	active atomic.Int32
	peak   atomic.Int32
}

func (f *fakeSource) Get(ctx context.Context, url string) (*web.Page, error) {
	f.calls.Add(1)
	if strings.HasSuffix(url, "/seed") {
		return &web.Page{URL: url, FinalURL: url, StatusCode: 200, Body: []byte(f.seed)}, nil
	}

	cur := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		peak := f.peak.Load()
		if cur <= peak || f.peak.CompareAndSwap(peak, cur) {
			break
		}
	}

	f.mu.Lock()
	if f.seen == nil {
		f.seen = make(map[string]int)
	}
	f.seen[url]++
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	name := url[strings.LastIndex(url, "/")+1:]
	return &web.Page{URL: url, FinalURL: url, StatusCode: 200, Body: []byte(packPage(name))}, nil
}

func TestRunNoPagesFound(t *testing.T) {
	source := &fakeSource{seed: seedPage()}
	engine := New(source, parser.NewSelectorExtractor(parser.Rules{}), Options{})

	result, err := engine.Run(context.Background(), "https://example.com/seed", 4, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoPagesFound))
	assert.Nil(t, result)
	assert.Equal(t, int64(1), source.calls.Load(), "only the seed page may be fetched")
}

func TestRunWorkerCounts(t *testing.T) {
	const n = 20

	var links []string
	for i := 0; i < n; i++ {
		links = append(links, fmt.Sprintf("https://example.com/p/%d", i))
	}

	for _, workers := range []int{1, n / 2, n, n + 10} {
		for _, queueSize := range []int{0, 1, n} {
			t.Run(fmt.Sprintf("workers=%d/queue=%d", workers, queueSize), func(t *testing.T) {
				base := runtime.NumGoroutine()

				source := &fakeSource{seed: seedPage(links...), delay: 2 * time.Millisecond}
				engine := New(source, parser.NewSelectorExtractor(parser.Rules{}), Options{QueueSize: queueSize})

				result, err := engine.Run(context.Background(), "https://example.com/seed", workers, 0)
				require.NoError(t, err)

				assert.Len(t, result.Items, n)
				assert.Len(t, source.seen, n)
				for url, count := range source.seen {
					assert.Equal(t, 1, count, "page %s processed more than once", url)
				}
				assert.LessOrEqual(t, int(source.peak.Load()), workers)

				assert.Eventually(t, func() bool {
					return runtime.NumGoroutine() <= base
				}, time.Second, 10*time.Millisecond, "crawl workers leaked")
			})
		}
	}
}

func TestRunOnPageCallback(t *testing.T) {
	links := []string{"https://example.com/p/a", "https://example.com/p/b"}
	source := &fakeSource{seed: seedPage(links...)}

	var mu sync.Mutex
	var outcomes []PageOutcome
	engine := New(source, parser.NewSelectorExtractor(parser.Rules{}), Options{
		OnPage: func(o PageOutcome) {
			mu.Lock()
			outcomes = append(outcomes, o)
			mu.Unlock()
		},
	})

	_, err := engine.Run(context.Background(), "https://example.com/seed", 2, 0)
	require.NoError(t, err)

	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.NoError(t, o.Err)
		assert.Equal(t, 1, o.Items)
	}
}

func TestRunDeduplicatesLinks(t *testing.T) {
	links := []string{"https://example.com/p/a", "https://example.com/p/a", "https://example.com/p/b"}
	source := &fakeSource{seed: seedPage(links...)}
	engine := New(source, parser.NewSelectorExtractor(parser.Rules{}), Options{})

	result, err := engine.Run(context.Background(), "https://example.com/seed", 2, 0)
	require.NoError(t, err)
	assert.Len(t, result.Pages, 2)
	assert.Len(t, result.Items, 2)
}

func TestUniqueItemsFileNameCollision(t *testing.T) {
	in := []model.Item{
		model.NewItem("https://example.com/p/a", "https://cdn.example.com/vol1/pack.zip", "Vol 1"),
		model.NewItem("https://example.com/p/b", "https://cdn.example.com/vol2/pack.zip", "Vol 2"),
		model.NewItem("https://example.com/p/b", "https://cdn.example.com/vol1/pack.zip", "Vol 1 again"),
		model.NewItem("https://example.com/p/c", "https://cdn.example.com/vol2/other.zip", "Other"),
	}

	out := uniqueItems(in)
	require.Len(t, out, 2)
	assert.Equal(t, "https://cdn.example.com/vol1/pack.zip", out[0].URL())
	assert.Equal(t, "https://cdn.example.com/vol2/other.zip", out[1].URL())
}

type denyRobots struct {
	deny string
}

func (d denyRobots) Allowed(_ context.Context, url string) (bool, error) {
	return !strings.HasSuffix(url, d.deny), nil
}

func (d denyRobots) CrawlDelay(string) time.Duration { return 0 }

func TestRunRespectsRobots(t *testing.T) {
	links := []string{"https://example.com/p/a", "https://example.com/p/private"}
	source := &fakeSource{seed: seedPage(links...)}
	engine := New(source, parser.NewSelectorExtractor(parser.Rules{}), Options{
		Robots:  denyRobots{deny: "/private"},
		Limiter: web.NewRateLimiter(0),
	})

	result, err := engine.Run(context.Background(), "https://example.com/seed", 2, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, []string{"https://example.com/p/private"}, result.FailedPages)
	assert.Len(t, result.Items, 1)
}

func TestRunCancelled(t *testing.T) {
	var links []string
	for i := 0; i < 50; i++ {
		links = append(links, fmt.Sprintf("https://example.com/p/%d", i))
	}
	source := &fakeSource{seed: seedPage(links...), delay: 20 * time.Millisecond}
	engine := New(source, parser.NewSelectorExtractor(parser.Rules{}), Options{QueueSize: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result, err := engine.Run(ctx, "https://example.com/seed", 2, 0)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Less(t, len(result.Items), 50)
}
