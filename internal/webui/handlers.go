package webui

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/fpang/image-inspect/internal/forensics"
	"github.com/rs/zerolog"
)

const (
	msgMissingURL   = "missing url in JSON body"
	msgNoFile       = "no file uploaded"
	msgURLEmptyWeb  = "URL empty"
	msgNoFileWeb    = "No file uploaded"
	uploadFieldName = "file"

	// urlBodyLimit caps the JSON body of /analyze_url.
	urlBodyLimit = 64 << 10
)

// errNoFile marks a multipart request without a usable file part.
var errNoFile = errors.New("no file in request")

// analyzeResponse is the body returned by POST /analyze_url.
type analyzeResponse struct {
	ImageInfo    forensics.ImageInfo  `json:"image_info"`
	Exif         *forensics.ExifTable `json:"exif"`
	ELAPNGBase64 string               `json:"ela_png_base64"`
}

// GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		httpError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.renderPage(w, r, http.StatusOK, pageData{})
}

// POST /analyze_url  {"url": "..."}
func (s *Server) handleAnalyzeURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, urlBodyLimit)).Decode(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		httpError(w, r, http.StatusBadRequest, msgMissingURL)
		return
	}

	report, err := s.analyzeURL(r.Context(), strings.TrimSpace(req.URL))
	if err != nil {
		s.logFailure(r, err)
		httpError(w, r, errorStatus(err), err.Error())
		return
	}

	respondJSON(w, r, http.StatusOK, analyzeResponse{
		ImageInfo:    report.Info,
		Exif:         report.Exif,
		ELAPNGBase64: base64.StdEncoding.EncodeToString(report.ELA),
	})
}

// POST /analyze_upload  multipart "file"
func (s *Server) handleAnalyzeUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	data, filename, err := s.readUpload(w, r)
	if errors.Is(err, errNoFile) {
		httpError(w, r, http.StatusBadRequest, msgNoFile)
		return
	}
	if err != nil {
		s.logFailure(r, err)
		httpError(w, r, errorStatus(err), err.Error())
		return
	}

	report, err := forensics.Analyze(data, forensics.Options{Quality: s.quality, Filename: filename})
	if err != nil {
		s.logFailure(r, err)
		httpError(w, r, errorStatus(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", `inline; filename="ela.png"`)
	w.WriteHeader(http.StatusOK)
	writeBody(w, r, report.ELA)
}

// POST /analyze_url_web  form "url"
func (s *Server) handleAnalyzeURLWeb(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rawURL := strings.TrimSpace(r.FormValue("url"))
	if rawURL == "" {
		http.Error(w, msgURLEmptyWeb, http.StatusBadRequest)
		return
	}

	report, err := s.analyzeURL(r.Context(), rawURL)
	if err != nil {
		s.logFailure(r, err)
		s.renderPage(w, r, errorStatus(err), pageData{URL: rawURL, Error: err.Error()})
		return
	}
	s.renderReport(w, r, report, rawURL)
}

// POST /analyze_upload_web  multipart "file"
func (s *Server) handleAnalyzeUploadWeb(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	data, filename, err := s.readUpload(w, r)
	if errors.Is(err, errNoFile) {
		http.Error(w, msgNoFileWeb, http.StatusBadRequest)
		return
	}
	if err != nil {
		s.logFailure(r, err)
		s.renderPage(w, r, errorStatus(err), pageData{Error: err.Error()})
		return
	}

	report, err := forensics.Analyze(data, forensics.Options{Quality: s.quality, Filename: filename})
	if err != nil {
		s.logFailure(r, err)
		s.renderPage(w, r, errorStatus(err), pageData{Error: err.Error()})
		return
	}
	s.renderReport(w, r, report, "")
}

func (s *Server) analyzeURL(ctx context.Context, rawURL string) (*forensics.Report, error) {
	data, err := s.fetcher.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return forensics.Analyze(data, forensics.Options{Quality: s.quality, Source: rawURL})
}

// readUpload returns the bytes and client filename of the "file" part.
// A missing or empty part yields errNoFile; an oversized body yields an
// *http.MaxBytesError.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	if r.ContentLength > s.maxBytes {
		return nil, "", &http.MaxBytesError{Limit: s.maxBytes}
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes)

	file, header, err := r.FormFile(uploadFieldName)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", err
		}
		return nil, "", errNoFile
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", errNoFile
	}
	return data, header.Filename, nil
}

func (s *Server) logFailure(r *http.Request, err error) {
	zerolog.Ctx(r.Context()).Warn().
		Err(err).
		Str("path", r.URL.Path).
		Int("status", errorStatus(err)).
		Msg("Analysis failed")
}
