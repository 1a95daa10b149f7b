//go:build js && wasm

package assets

import "net/http"

// NewClient returns the fetch-backed default client.
func NewClient() *http.Client {
	return http.DefaultClient
}

// ResolveBase is the identity in the browser; the bridge resolves relative
// paths against the page location before they reach the checker.
func ResolveBase(base string) string {
	return base
}
