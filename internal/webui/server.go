// Package webui serves the image-inspect HTTP interface: a JSON API for
// programmatic clients and a single HTML page for browsers.
package webui

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/fpang/image-inspect/internal/fetch"
	"github.com/fpang/image-inspect/internal/forensics"
	"github.com/klauspost/compress/gzhttp"
)

// Server timeouts applied by NewHTTPServer.
const (
	ReadTimeout  = 30 * time.Second
	WriteTimeout = 120 * time.Second
	IdleTimeout  = 60 * time.Second
)

// Fetcher downloads the bytes behind an image URL.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Server holds the dependencies shared by all handlers. Handlers keep no
// state between requests.
type Server struct {
	fetcher  Fetcher
	quality  int
	maxBytes int64
	page     *template.Template
}

// Option configures a Server.
type Option func(*Server)

// WithQuality sets the ELA re-encode quality.
func WithQuality(q int) Option {
	return func(s *Server) {
		s.quality = q
	}
}

// WithMaxBytes caps the size of an upload request body.
func WithMaxBytes(n int64) Option {
	return func(s *Server) {
		s.maxBytes = n
	}
}

// New creates a Server that downloads URL inputs through f.
func New(f Fetcher, opts ...Option) *Server {
	s := &Server{
		fetcher:  f,
		quality:  forensics.DefaultQuality,
		maxBytes: fetch.DefaultMaxBytes,
		page:     pageTemplate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the complete handler tree, middleware included.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// JSON API
	mux.HandleFunc("/analyze_url", s.handleAnalyzeURL)
	mux.HandleFunc("/analyze_upload", s.handleAnalyzeUpload)

	// Browser forms
	mux.HandleFunc("/analyze_url_web", s.handleAnalyzeURLWeb)
	mux.HandleFunc("/analyze_upload_web", s.handleAnalyzeUploadWeb)
	mux.HandleFunc("/", s.handleIndex)

	return withRequestID(withLogging(withMetrics(gzhttp.GzipHandler(mux))))
}

// NewHTTPServer wraps Routes in an http.Server listening on addr.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
		IdleTimeout:  IdleTimeout,
	}
}
