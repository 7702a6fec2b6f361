package discover

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/fetcher"
	"github.com/sells-group/ans-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func listing(hrefs ...string) string {
	var sb strings.Builder
	sb.WriteString("<html><body><pre>")
	sb.WriteString(`<a href="../">Parent Directory</a>`)
	for _, h := range hrefs {
		fmt.Fprintf(&sb, `<a href="%s">%s</a>`+"\n", h, h)
	}
	sb.WriteString("</pre></body></html>")
	return sb.String()
}

// newListingServer serves a static path → HTML map; unknown paths are 404.
func newListingServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: 5 * time.Second, MaxRetries: 1, RateLimit: 1000})
}

func TestParseLinks(t *testing.T) {
	links, err := ParseLinks(strings.NewReader(listing("2023/", "2024/", "README.txt")))
	require.NoError(t, err)
	assert.Equal(t, []string{"../", "2023/", "2024/", "README.txt"}, links)
}

func TestParseLinks_IgnoresAnchorsWithoutHref(t *testing.T) {
	links, err := ParseLinks(strings.NewReader(`<a name="top">x</a><a href="">y</a><A HREF="1T/">z</A>`))
	require.NoError(t, err)
	assert.Equal(t, []string{"1T/"}, links)
}

func TestClassifyLink(t *testing.T) {
	tests := []struct {
		href    string
		quarter string
		kind    model.SourceKind
		ok      bool
	}{
		{"1T/", "1T", model.SourceFolder, true},
		{"4t", "4T", model.SourceFolder, true},
		{"2T2024.zip", "2T", model.SourceFile, true},
		{"3t24.ZIP", "3T", model.SourceFile, true},
		{"1T.zip", "1T", model.SourceFile, true},
		{"5T/", "", "", false},
		{"1T2024.csv", "", "", false},
		{"demonstracoes_1T.zip", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			q, kind, ok := ClassifyLink(tt.href)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.quarter, q)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestParseYears_NumericDescending(t *testing.T) {
	years := parseYears([]string{"2019/", "2024/", "abc/", "2021", "2024/", "20245/"})
	assert.Equal(t, []string{"2024", "2021", "2019"}, years)
}

func TestDiscover_MixedLayouts(t *testing.T) {
	srv := newListingServer(t, map[string]string{
		"/pda/":      listing("2022/", "2024/", "2023/"),
		"/pda/2024/": listing("1T2024.zip", "2T2024.zip"),
		"/pda/2023/": listing("1T/", "2T/", "3T/", "4T/"),
		"/pda/2022/": listing("4T/"),
	})

	got := NewDiscoverer(testFetcher()).Discover(context.Background(), srv.URL+"/pda/", 3)
	require.Len(t, got, 3)

	assert.Equal(t, model.DiscoveredQuarter{
		Year: "2024", Quarter: "2T", Kind: model.SourceFile,
		URL: srv.URL + "/pda/2024/2T2024.zip", FileName: "2T2024.zip",
	}, got[0])
	assert.Equal(t, "2024", got[1].Year)
	assert.Equal(t, "1T", got[1].Quarter)
	assert.Equal(t, model.DiscoveredQuarter{
		Year: "2023", Quarter: "4T", Kind: model.SourceFolder,
		URL: srv.URL + "/pda/2023/4T/",
	}, got[2])
}

func TestDiscover_LimitStopsYearLoop(t *testing.T) {
	var yearHits []string
	pages := map[string]string{
		"/":      listing("2023/", "2024/"),
		"/2024/": listing("1T/", "2T/", "3T/", "4T/"),
		"/2023/": listing("4T/"),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		yearHits = append(yearHits, r.URL.Path)
		_, _ = w.Write([]byte(pages[r.URL.Path]))
	}))
	defer srv.Close()

	got := NewDiscoverer(testFetcher()).Discover(context.Background(), srv.URL, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "4T", got[0].Quarter)
	assert.Equal(t, "3T", got[1].Quarter)
	assert.NotContains(t, yearHits, "/2023/", "older years are not listed once the limit is filled")
}

func TestDiscover_FolderAndFileCollision_LastLinkWins(t *testing.T) {
	srv := newListingServer(t, map[string]string{
		"/":      listing("2024/"),
		"/2024/": listing("1T/", "1T2024.zip", "2T2024.zip", "2T/"),
	})

	got := NewDiscoverer(testFetcher()).Discover(context.Background(), srv.URL+"/", 4)
	require.Len(t, got, 2)
	assert.Equal(t, "2T", got[0].Quarter)
	assert.Equal(t, model.SourceFolder, got[0].Kind)
	assert.Equal(t, "1T", got[1].Quarter)
	assert.Equal(t, model.SourceFile, got[1].Kind)
}

func TestDiscover_UnreachableYearIsSkipped(t *testing.T) {
	srv := newListingServer(t, map[string]string{
		"/":      listing("2024/", "2023/"),
		"/2023/": listing("4T2023.zip"),
	})

	got := NewDiscoverer(testFetcher()).Discover(context.Background(), srv.URL+"/", 3)
	require.Len(t, got, 1)
	assert.Equal(t, "2023", got[0].Year)
}

func TestDiscover_UnreachableRoot(t *testing.T) {
	srv := newListingServer(t, map[string]string{})
	got := NewDiscoverer(testFetcher()).Discover(context.Background(), srv.URL+"/", 3)
	assert.Empty(t, got)
}

func TestDiscover_ZeroLimit(t *testing.T) {
	got := NewDiscoverer(nil).Discover(context.Background(), "http://unused/", 0)
	assert.Empty(t, got)
}
