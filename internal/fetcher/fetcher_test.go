package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func payload(n int) []byte {
	return make([]byte, n)
}

func TestImageFetcher_Fetch_Viable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(payload(4096))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 2 * time.Second}, nil)
	asset, ok := f.Fetch(context.Background(), srv.URL)

	require.True(t, ok)
	require.Len(t, asset.Data, 4096)
	require.Equal(t, ".png", asset.Extension)
}

func TestImageFetcher_Fetch_ExtensionClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		want        string
	}{
		{"image/jpeg", ".jpg"},
		{"image/png", ".png"},
		{"image/gif", ".gif"},
		{"image/webp", ".webp"},
		{"image/jpeg; charset=binary", ".jpg"},
		{"application/octet-stream", ".jpg"},
		{"", ".jpg"},
	}
	for _, tc := range tests {
		t.Run(tc.contentType, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tc.contentType != "" {
					w.Header().Set("Content-Type", tc.contentType)
				}
				w.Write(payload(2048))
			}))
			defer srv.Close()

			f := New(Config{Timeout: 2 * time.Second}, nil)
			asset, ok := f.Fetch(context.Background(), srv.URL)

			require.True(t, ok)
			require.Equal(t, tc.want, asset.Extension)
		})
	}
}

func TestImageFetcher_Fetch_RejectsUndersizedPayload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/gif")
		w.Write(payload(999))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 2 * time.Second}, nil)
	_, ok := f.Fetch(context.Background(), srv.URL)

	require.False(t, ok)
}

func TestImageFetcher_Fetch_NonSuccessIsMiss(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 2 * time.Second}, nil)
	_, ok := f.Fetch(context.Background(), srv.URL)

	require.False(t, ok)
}

func TestImageFetcher_Fetch_RedirectBudget(t *testing.T) {
	t.Parallel()

	hops := 0
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hops++
		http.Redirect(w, r, fmt.Sprintf("%s/hop/%d", srv.URL, hops), http.StatusFound)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 2 * time.Second, MaxRedirects: 5}, nil)
	_, ok := f.Fetch(context.Background(), srv.URL)

	require.False(t, ok)
	require.LessOrEqual(t, hops, 6)
}

func TestImageFetcher_Fetch_UnreachableIsMiss(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	f := New(Config{Timeout: 1 * time.Second}, nil)
	_, ok := f.Fetch(context.Background(), srv.URL)

	require.False(t, ok)
}

func TestImageFetcher_Fetch_BadURLIsMiss(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil)
	_, ok := f.Fetch(context.Background(), "://not-a-url")

	require.False(t, ok)
}
