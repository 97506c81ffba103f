package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maltedev/price-spread/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pagedServer(t *testing.T, handler func(page int) (int, string)) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		status, body := handler(page)
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func matchesWhenNonEmpty(p Page) bool {
	return !strings.Contains(string(p.Body), "empty")
}

func TestPagedAPISourceStopsAtPageWithoutMatches(t *testing.T) {
	srv, hits := pagedServer(t, func(page int) (int, string) {
		if page >= 3 {
			return http.StatusOK, "empty"
		}
		return http.StatusOK, "products"
	})

	src := NewPagedAPISource(NewHTTPFetcher(DefaultFetcherOptions()), func(n int) string {
		return srv.URL + "/search?page=" + strconv.Itoa(n)
	}, 9, matchesWhenNonEmpty)

	pages, err := src.Pages(context.Background())
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{pages[0].Number, pages[1].Number, pages[2].Number})
	assert.Equal(t, int32(3), atomic.LoadInt32(hits), "nothing after the empty page is fetched")
}

func TestPagedAPISourceStopsAtMaxPages(t *testing.T) {
	srv, hits := pagedServer(t, func(int) (int, string) { return http.StatusOK, "products" })

	src := NewPagedAPISource(NewHTTPFetcher(DefaultFetcherOptions()), func(n int) string {
		return srv.URL + "/?page=" + strconv.Itoa(n)
	}, 4, matchesWhenNonEmpty)

	pages, err := src.Pages(context.Background())
	require.NoError(t, err)
	assert.Len(t, pages, 4)
	assert.Equal(t, int32(4), atomic.LoadInt32(hits))
}

func TestPagedAPISourceFirstPageFailureIsFatal(t *testing.T) {
	srv, _ := pagedServer(t, func(int) (int, string) { return http.StatusBadGateway, "" })

	src := NewPagedAPISource(NewHTTPFetcher(DefaultFetcherOptions()), func(n int) string {
		return srv.URL + "/?page=" + strconv.Itoa(n)
	}, 9, matchesWhenNonEmpty)

	_, err := src.Pages(context.Background())
	assert.ErrorIs(t, err, ErrFatalFetch)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestPagedAPISourceLaterFailureEndsIteration(t *testing.T) {
	srv, hits := pagedServer(t, func(page int) (int, string) {
		if page == 2 {
			return http.StatusInternalServerError, ""
		}
		return http.StatusOK, "products"
	})

	src := NewPagedAPISource(NewHTTPFetcher(DefaultFetcherOptions()), func(n int) string {
		return srv.URL + "/?page=" + strconv.Itoa(n)
	}, 9, matchesWhenNonEmpty)

	pages, err := src.Pages(context.Background())
	require.NoError(t, err)
	assert.Len(t, pages, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestHTTPFetcherSendsHeaders(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	body, err := NewHTTPFetcher(DefaultFetcherOptions()).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
	assert.Equal(t, "Chrome/51.0.2704.103 Safari/537.36", gotUA)
	assert.Equal(t, "*/*", gotAccept)
}

func TestHTTPFetcherTimeoutIsClassified(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	opts := DefaultFetcherOptions()
	opts.Timeout = 20 * time.Millisecond

	_, err := NewHTTPFetcher(opts).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}

type fakeRenderer struct {
	pages    map[string]string
	failures map[string]error
	full     []string
	single   []string
	closed   int
}

func (f *fakeRenderer) Render(_ context.Context, url string) ([]byte, error) {
	f.single = append(f.single, url)
	return f.lookup(url)
}

func (f *fakeRenderer) RenderFull(_ context.Context, url string) ([]byte, error) {
	f.full = append(f.full, url)
	return f.lookup(url)
}

func (f *fakeRenderer) lookup(url string) ([]byte, error) {
	if err, ok := f.failures[url]; ok {
		return nil, err
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return []byte(body), nil
}

func (f *fakeRenderer) Close() error {
	f.closed++
	return nil
}

type staticPaginator []parser.PageLink

func (s staticPaginator) ParsePagination([]byte) []parser.PageLink {
	return s
}

func TestRenderedPageSourceLoadsDiscoveredPagesInOrder(t *testing.T) {
	r := &fakeRenderer{
		pages: map[string]string{
			"search":   "page-1",
			"search&3": "page-3",
			"search&2": "page-2",
		},
		failures: map[string]error{"search&4": errors.New("navigation timeout")},
	}
	links := staticPaginator{
		{Number: 3, URL: "search&3"},
		{Number: 1, URL: "search"},
		{Number: 4, URL: "search&4"},
		{Number: 2, URL: "search&2"},
		{Number: 2, URL: "search&2"},
	}

	pages, err := NewRenderedPageSource(r, "search", links, nil).Pages(context.Background())
	require.NoError(t, err)
	require.Len(t, pages, 3, "failed page 4 is omitted")

	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, "page-1", string(pages[0].Body))
	assert.Equal(t, 2, pages[1].Number)
	assert.Equal(t, 3, pages[2].Number)
	assert.Equal(t, []string{"search", "search&2", "search&3", "search&4"}, r.full)
	assert.Empty(t, r.single)
}

func TestRenderedPageSourceWithoutPagination(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{"search": "only"}}

	pages, err := NewRenderedPageSource(r, "search", staticPaginator(nil), nil).Pages(context.Background())
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "only", string(pages[0].Body))
}

func TestRenderedPageSourceFirstPageFailureIsFatal(t *testing.T) {
	r := &fakeRenderer{failures: map[string]error{"search": errors.New("browser crashed")}}

	_, err := NewRenderedPageSource(r, "search", staticPaginator(nil), nil).Pages(context.Background())
	assert.ErrorIs(t, err, ErrFatalFetch)
}
