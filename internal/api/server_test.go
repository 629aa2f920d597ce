package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"imagepack/internal/batch"
	"imagepack/internal/clock/system"
	"imagepack/internal/config"
	"imagepack/internal/id/token"
	"imagepack/internal/progress"
	"imagepack/internal/publisher"
	pubmemory "imagepack/internal/publisher/memory"

	storememory "imagepack/internal/artifact/memory"
)

type stubResolver struct {
	candidates map[string][]string
}

func (r *stubResolver) Resolve(_ context.Context, phrase string) []string {
	return r.candidates[phrase]
}

type stubFetcher struct {
	asset batch.Asset
}

func (f *stubFetcher) Fetch(_ context.Context, _ string) (batch.Asset, bool) {
	return f.asset, true
}

func testConfig() config.Config {
	return config.Config{
		Batch:  config.BatchConfig{Concurrency: 1},
		PubSub: config.PubSubConfig{TopicName: "batches"},
	}
}

func newTestServer(t *testing.T, resolver batch.Resolver, fetcher batch.Fetcher, pub publisher.Publisher) (*httptest.Server, *storememory.Store) {
	t.Helper()
	store := storememory.New()
	if pub == nil {
		pub = publisher.NoOp{}
	}
	s := NewServer(testConfig(), resolver, fetcher, store, pub, token.New(), system.Clock{}, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func uploadCSV(t *testing.T, url, csv string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "batch.csv")
	require.NoError(t, err)
	_, err = io.WriteString(part, csv)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, url+"/api/process", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func readFrames(t *testing.T, body io.Reader) []progress.Frame {
	t.Helper()
	var frames []progress.Frame
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var f progress.Frame
		require.NoError(t, json.Unmarshal([]byte(line), &f))
		frames = append(frames, f)
	}
	require.NoError(t, scanner.Err())
	return frames
}

func TestProcessThenDownload_EndToEnd(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{candidates: map[string][]string{
		"golden retriever": {"http://images.test/a.jpg"},
		"red panda":        {"http://images.test/b.jpg"},
	}}
	fetcher := &stubFetcher{asset: batch.Asset{
		Data:      bytes.Repeat([]byte{0x7F}, 2048),
		Extension: ".jpg",
	}}
	pub := pubmemory.New()
	srv, _ := newTestServer(t, resolver, fetcher, pub)

	resp := uploadCSV(t, srv.URL, "id,image_name\n1,golden retriever\n2,red panda\n")
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "application/x-ndjson")

	frames := readFrames(t, resp.Body)
	require.GreaterOrEqual(t, len(frames), 3)

	last := frames[len(frames)-1]
	require.Equal(t, progress.FrameComplete, last.Type)
	require.True(t, strings.HasPrefix(last.DownloadURL, "/api/download?file="), last.DownloadURL)

	// Every preceding frame is a full snapshot in input order.
	for _, f := range frames[:len(frames)-1] {
		require.Equal(t, progress.FrameProgress, f.Type)
		require.Len(t, f.Items, 2)
		require.Equal(t, "1", f.Items[0].ID)
		require.Equal(t, "2", f.Items[1].ID)
	}
	final := frames[len(frames)-2]
	require.Equal(t, batch.StatusSuccess, final.Items[0].Status)
	require.Equal(t, batch.StatusSuccess, final.Items[1].Status)

	// Completed batch was announced.
	require.Len(t, pub.Messages(), 1)
	require.Equal(t, "batches", pub.Messages()[0].Topic)

	dl, err := http.Get(srv.URL + last.DownloadURL)
	require.NoError(t, err)
	defer dl.Body.Close()
	require.Equal(t, http.StatusOK, dl.StatusCode)
	require.Equal(t, "application/zip", dl.Header.Get("Content-Type"))
	require.Contains(t, dl.Header.Get("Content-Disposition"), `filename="images.zip"`)

	data, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	// Zip magic.
	require.Equal(t, []byte{'P', 'K'}, data[:2])

	// One-shot: the second claim finds nothing.
	again, err := http.Get(srv.URL + last.DownloadURL)
	require.NoError(t, err)
	defer again.Body.Close()
	require.Equal(t, http.StatusNotFound, again.StatusCode)
}

func TestProcess_RowFailuresStillComplete(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{candidates: map[string][]string{
		"golden retriever": {"http://images.test/a.jpg"},
	}}
	fetcher := &stubFetcher{asset: batch.Asset{Data: []byte("img"), Extension: ".jpg"}}
	srv, _ := newTestServer(t, resolver, fetcher, nil)

	resp := uploadCSV(t, srv.URL, "id,image_name\n1,golden retriever\n2,no such thing\n")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	frames := readFrames(t, resp.Body)
	last := frames[len(frames)-1]
	require.Equal(t, progress.FrameComplete, last.Type)

	final := frames[len(frames)-2]
	require.Equal(t, batch.StatusSuccess, final.Items[0].Status)
	require.Equal(t, batch.StatusFailed, final.Items[1].Status)
	require.Equal(t, "No images found", final.Items[1].Error)
}

func TestProcess_MissingFileField(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &stubResolver{}, &stubFetcher{}, nil)

	resp, err := http.Post(srv.URL+"/api/process", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProcess_InvalidHeaderRejectedBeforeStreaming(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &stubResolver{}, &stubFetcher{}, nil)

	resp := uploadCSV(t, srv.URL, "id,picture\n1,cat\n")
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "application/json")

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Contains(t, payload["error"], "image_name")
}

func TestDownload_MissingAndBogusTokens(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &stubResolver{}, &stubFetcher{}, nil)

	resp, err := http.Get(srv.URL + "/api/download")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	for _, tok := range []string{"unknown", "..%2F..%2Fetc", "%21%21%21"} {
		resp, err := http.Get(srv.URL + "/api/download?file=" + tok)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusNotFound, resp.StatusCode, "token %q", tok)
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "sekrit"}
	s := NewServer(cfg, &stubResolver{}, &stubFetcher{}, storememory.New(), publisher.NoOp{}, token.New(), system.Clock{}, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "sekrit")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &stubResolver{}, &stubFetcher{}, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
