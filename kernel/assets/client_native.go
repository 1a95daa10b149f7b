//go:build !js || !wasm

package assets

import (
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"golang.org/x/net/http2"
)

// NewClient returns the probe client: HTTP/2 so concurrent HEADs share one
// connection, plus file:// support for local deployments.
func NewClient() *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if h2, err := http2.ConfigureTransports(t); err == nil {
		// Probes carry no deadline; pings detect a dead connection instead.
		h2.ReadIdleTimeout = 15 * time.Second
		h2.PingTimeout = 5 * time.Second
	}
	t.RegisterProtocol("file", http.NewFileTransport(http.Dir("/")))
	return &http.Client{Transport: t}
}

// ResolveBase turns a bare directory into a file:// URL; URLs pass through.
func ResolveBase(base string) string {
	if u, err := url.Parse(base); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		return base
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return base
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}
