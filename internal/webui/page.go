package webui

import (
	"bytes"
	"embed"
	"encoding/base64"
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/fpang/image-inspect/internal/forensics"
	"github.com/rs/zerolog"
)

//go:embed templates/index.html
var templateFS embed.FS

var pageTemplate = template.Must(
	template.New("index.html").
		Funcs(template.FuncMap{
			"bytes": func(n int64) string {
				if n < 0 {
					n = 0
				}
				return humanize.IBytes(uint64(n))
			},
		}).
		ParseFS(templateFS, "templates/index.html"),
)

type pageData struct {
	URL    string
	Error  string
	Result *pageResult
}

type pageResult struct {
	Info     forensics.ImageInfo
	Location string
	ExifJSON string
	ELA      template.URL
}

func (s *Server) renderReport(w http.ResponseWriter, r *http.Request, report *forensics.Report, rawURL string) {
	exifJSON, err := json.MarshalIndent(report.Exif, "", "  ")
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to encode EXIF table")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.renderPage(w, r, http.StatusOK, pageData{
		URL: rawURL,
		Result: &pageResult{
			Info:     report.Info,
			Location: report.Exif.LocationText(),
			ExifJSON: string(exifJSON),
			ELA:      template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(report.ELA)),
		},
	})
}

// renderPage executes the page into a buffer first so a template failure
// still produces a clean 500.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	var buf bytes.Buffer
	if err := s.page.Execute(&buf, data); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to render page")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.WriteHeader(status)
	writeBody(w, r, buf.Bytes())
}
