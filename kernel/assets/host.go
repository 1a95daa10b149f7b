package assets

import (
	"net/http"
	"path"
	"strings"

	"github.com/andybalholm/brotli"

	kruntime "github.com/nmxmxh/cvstudio/kernel/runtime"
	"github.com/nmxmxh/cvstudio/kernel/utils"
)

// HostOptions configures the development asset host
type HostOptions struct {
	Isolate          bool // send COOP/COEP/CORP so pages become cross-origin isolated
	Compress         bool // brotli-encode runtime binaries and scripts when accepted
	CompressionLevel int
	Logger           *utils.Logger
}

// Host serves a directory of runtime assets the way a deployment must:
// correct wasm MIME type, optional isolation headers and brotli encoding.
type Host struct {
	files  http.Handler
	opts   HostOptions
	logger *utils.Logger
}

// NewHost creates a host rooted at dir.
func NewHost(dir string, opts HostOptions) *Host {
	if opts.Logger == nil {
		opts.Logger = utils.NopLogger()
	}
	if opts.CompressionLevel <= 0 {
		opts.CompressionLevel = brotli.DefaultCompression
	}
	return &Host{
		files:  http.FileServer(http.Dir(dir)),
		opts:   opts,
		logger: opts.Logger,
	}
}

func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	hdr := w.Header()
	if h.opts.Isolate {
		hdr.Set(kruntime.HeaderOpenerPolicy, kruntime.OpenerSameOrigin)
		hdr.Set(kruntime.HeaderEmbedderPolicy, kruntime.EmbedderRequireCorp)
		hdr.Set(kruntime.HeaderResourcePolicy, "same-origin")
	}

	ext := strings.ToLower(path.Ext(r.URL.Path))
	switch ext {
	case ".wasm":
		hdr.Set("Content-Type", "application/wasm")
	case ".mjs", ".js":
		hdr.Set("Content-Type", "text/javascript; charset=utf-8")
	}

	h.logger.Debug("Asset request",
		utils.String("method", r.Method),
		utils.String("path", r.URL.Path))

	if !h.compressible(r, ext) {
		h.files.ServeHTTP(w, r)
		return
	}

	bw := &brotliResponseWriter{
		ResponseWriter: w,
		level:          h.opts.CompressionLevel,
		head:           r.Method == http.MethodHead,
	}
	h.files.ServeHTTP(bw, r)
	if err := bw.Close(); err != nil {
		h.logger.Warn("Brotli stream close failed", utils.String("path", r.URL.Path), utils.Err(err))
	}
}

func (h *Host) compressible(r *http.Request, ext string) bool {
	if !h.opts.Compress || r.Header.Get("Range") != "" {
		return false
	}
	if ext != ".wasm" && ext != ".js" && ext != ".mjs" {
		return false
	}
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(name, "br") {
			return true
		}
	}
	return false
}

// brotliResponseWriter encodes 200 responses; every other status passes
// through untouched.
type brotliResponseWriter struct {
	http.ResponseWriter
	bw          *brotli.Writer
	level       int
	head        bool
	wroteHeader bool
}

func (w *brotliResponseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true

	if code == http.StatusOK {
		hdr := w.Header()
		hdr.Del("Content-Length")
		hdr.Set("Content-Encoding", "br")
		hdr.Add("Vary", "Accept-Encoding")
		if !w.head {
			w.bw = brotli.NewWriterLevel(w.ResponseWriter, w.level)
		}
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *brotliResponseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.bw != nil {
		return w.bw.Write(p)
	}
	return w.ResponseWriter.Write(p)
}

func (w *brotliResponseWriter) Close() error {
	if w.bw == nil {
		return nil
	}
	return w.bw.Close()
}
