package assets

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kruntime "github.com/nmxmxh/cvstudio/kernel/runtime"
)

var wasmPayload = bytes.Repeat([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}, 512)

func hostDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, BaselineBinary), wasmPayload, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html></html>"), 0o644))
	return dir
}

// TestHostIsolationHeaders validates that isolated hosts make pages isolated
func TestHostIsolationHeaders(t *testing.T) {
	srv := httptest.NewServer(NewHost(hostDir(t), HostOptions{Isolate: true}))
	defer srv.Close()

	resp, err := srv.Client().Head(srv.URL + "/" + BaselineBinary)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/wasm", resp.Header.Get("Content-Type"))
	assert.True(t, kruntime.IsolationHeaders(resp.Header))
	assert.Equal(t, "same-origin", resp.Header.Get(kruntime.HeaderResourcePolicy))

	d := kruntime.NewNativeDetector(srv.URL+"/index.html", srv.Client())
	assert.True(t, d.DetectCrossOriginIsolation(context.Background()))
}

func TestHostWithoutIsolation(t *testing.T) {
	srv := httptest.NewServer(NewHost(hostDir(t), HostOptions{}))
	defer srv.Close()

	resp, err := srv.Client().Head(srv.URL + "/index.html")
	require.NoError(t, err)
	resp.Body.Close()

	assert.False(t, kruntime.IsolationHeaders(resp.Header))
}

// TestHostBrotli validates brotli encoding for clients that accept it
func TestHostBrotli(t *testing.T) {
	srv := httptest.NewServer(NewHost(hostDir(t), HostOptions{Compress: true}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/"+BaselineBinary, nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip, br;q=1.0")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "br", resp.Header.Get("Content-Encoding"))
	body, err := io.ReadAll(brotli.NewReader(resp.Body))
	require.NoError(t, err)
	assert.Equal(t, wasmPayload, body)
}

func TestHostPlainWhenBrotliNotAccepted(t *testing.T) {
	srv := httptest.NewServer(NewHost(hostDir(t), HostOptions{Compress: true}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/"+BaselineBinary, nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Empty(t, resp.Header.Get("Content-Encoding"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, wasmPayload, body)
}

func TestHostMissingFileNotCompressed(t *testing.T) {
	srv := httptest.NewServer(NewHost(hostDir(t), HostOptions{Compress: true}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/"+SIMDBinary, nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "br")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Content-Encoding"))
}

// TestCheckerAgainstHost validates the checker end to end over the host
func TestCheckerAgainstHost(t *testing.T) {
	srv := httptest.NewServer(NewHost(hostDir(t), HostOptions{Isolate: true, Compress: true}))
	defer srv.Close()

	res := NewChecker(srv.Client(), nil).Check(context.Background(), srv.URL, Required())
	assert.Equal(t, []string{BaselineBinary}, res.Present)
	assert.Equal(t, []string{SIMDBinary, ThreadedBinary, SIMDThreadedBinary}, res.Missing)
}
