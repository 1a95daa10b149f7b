package runtime

import (
	"net/http"
	"strings"
)

// Header names and values that make a document cross-origin isolated.
const (
	HeaderOpenerPolicy   = "Cross-Origin-Opener-Policy"
	HeaderEmbedderPolicy = "Cross-Origin-Embedder-Policy"
	HeaderResourcePolicy = "Cross-Origin-Resource-Policy"

	OpenerSameOrigin      = "same-origin"
	EmbedderRequireCorp   = "require-corp"
	EmbedderCredentialess = "credentialless"
)

// IsolationHeaders reports whether a response carries the header pair that
// makes a document cross-origin isolated.
func IsolationHeaders(h http.Header) bool {
	coop := strings.ToLower(strings.TrimSpace(h.Get(HeaderOpenerPolicy)))
	coep := strings.ToLower(strings.TrimSpace(h.Get(HeaderEmbedderPolicy)))
	return coop == OpenerSameOrigin && (coep == EmbedderRequireCorp || coep == EmbedderCredentialess)
}
