package webui

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image/color"
	"image/png"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fpang/image-inspect/internal/fetch"
	"github.com/fpang/image-inspect/internal/forensics"
	"github.com/fpang/image-inspect/internal/imagetest"
)

// stubFetcher returns canned bytes or a canned error.
type stubFetcher struct {
	data []byte
	err  error
}

func (f stubFetcher) Get(_ context.Context, _ string) ([]byte, error) {
	return f.data, f.err
}

func serve(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, path, field, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		part.Write(data)
	} else {
		mw.WriteField("note", "no file here")
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not a JSON error: %v\n%s", err, rec.Body.String())
	}
	return body["error"]
}

func TestAnalyzeURL_EndToEnd(t *testing.T) {
	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(imagetest.PittsburghJPEG())
	}))
	defer images.Close()

	app := httptest.NewServer(New(fetch.NewClient(fetch.WithHTTPClient(images.Client()))).Routes())
	defer app.Close()

	body := `{"url":"` + images.URL + `/pgh.jpg"}`
	resp, err := app.Client().Post(app.URL+"/analyze_url", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /analyze_url error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("missing request id header")
	}

	var got struct {
		ImageInfo struct {
			Format string `json:"format"`
			Width  int    `json:"width"`
			Source string `json:"source"`
		} `json:"image_info"`
		Exif map[string]json.RawMessage `json:"exif"`
		ELA  string                     `json:"ela_png_base64"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if got.ImageInfo.Format != "JPEG" {
		t.Errorf("format = %q, want JPEG", got.ImageInfo.Format)
	}
	if got.ImageInfo.Width != 32 {
		t.Errorf("width = %d, want 32", got.ImageInfo.Width)
	}
	if !strings.HasSuffix(got.ImageInfo.Source, "/pgh.jpg") {
		t.Errorf("source = %q", got.ImageInfo.Source)
	}

	var coord [2]float64
	if err := json.Unmarshal(got.Exif[forensics.CoordinatesKey], &coord); err != nil {
		t.Fatalf("%s = %s, want a pair", forensics.CoordinatesKey, got.Exif[forensics.CoordinatesKey])
	}
	if math.Abs(coord[0]-40.4461) > 1e-3 || math.Abs(coord[1]+79.9822) > 1e-3 {
		t.Errorf("coordinate = %v, want ≈ (40.4461, -79.9822)", coord)
	}

	ela, err := base64.StdEncoding.DecodeString(got.ELA)
	if err != nil {
		t.Fatalf("ela_png_base64 is not base64: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(ela)); err != nil {
		t.Errorf("ELA is not a PNG: %v", err)
	}
}

func TestAnalyzeURL_Errors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		body       string
		fetcher    stubFetcher
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing url",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantError:  msgMissingURL,
		},
		{
			name:       "blank url",
			body:       `{"url":"   "}`,
			wantStatus: http.StatusBadRequest,
			wantError:  msgMissingURL,
		},
		{
			name:       "invalid json",
			body:       `{"url":`,
			wantStatus: http.StatusBadRequest,
			wantError:  msgMissingURL,
		},
		{
			name:       "fetch failure",
			body:       `{"url":"http://example.invalid/a.jpg"}`,
			fetcher:    stubFetcher{err: &fetch.Error{URL: "http://example.invalid/a.jpg", StatusCode: http.StatusNotFound}},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "not an image",
			body:       `{"url":"http://example.com/page.html"}`,
			fetcher:    stubFetcher{data: []byte("<html></html>")},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "unexpected failure",
			body:       `{"url":"http://example.com/a.jpg"}`,
			fetcher:    stubFetcher{err: errors.New("boom")},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "wrong method",
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := jsonRequest("/analyze_url", tt.body)
			if tt.method != "" {
				req.Method = tt.method
			}
			rec := serve(t, New(tt.fetcher).Routes(), req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d\n%s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			msg := decodeError(t, rec)
			if msg == "" {
				t.Error("error message is empty")
			}
			if tt.wantError != "" && msg != tt.wantError {
				t.Errorf("error = %q, want %q", msg, tt.wantError)
			}
		})
	}
}

func TestAnalyzeUpload(t *testing.T) {
	routes := New(stubFetcher{}).Routes()
	pngData := imagetest.PNG(imagetest.Uniform(8, 8, color.RGBA{128, 128, 128, 255}))

	rec := serve(t, routes, uploadRequest(t, "/analyze_upload", "file", "flat.png", pngData))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `inline; filename="ela.png"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if _, err := png.Decode(bytes.NewReader(rec.Body.Bytes())); err != nil {
		t.Errorf("body is not a PNG: %v", err)
	}
}

func TestAnalyzeUpload_Errors(t *testing.T) {
	big := bytes.Repeat([]byte{0xAB}, 4096)

	tests := []struct {
		name       string
		req        func(t *testing.T) *http.Request
		opts       []Option
		wantStatus int
		wantError  string
	}{
		{
			name: "no file part",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/analyze_upload", "", "", nil)
			},
			wantStatus: http.StatusBadRequest,
			wantError:  msgNoFile,
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return jsonRequest("/analyze_upload", `{}`)
			},
			wantStatus: http.StatusBadRequest,
			wantError:  msgNoFile,
		},
		{
			name: "empty file",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/analyze_upload", "file", "empty.jpg", nil)
			},
			wantStatus: http.StatusBadRequest,
			wantError:  msgNoFile,
		},
		{
			name: "undecodable file",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/analyze_upload", "file", "junk.jpg", []byte("definitely not pixels"))
			},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "body too large",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/analyze_upload", "file", "big.bin", big)
			},
			opts:       []Option{WithMaxBytes(1024)},
			wantStatus: http.StatusRequestEntityTooLarge,
		},
		{
			name: "wrong method",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodGet, "/analyze_upload", nil)
			},
			wantStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, New(stubFetcher{}, tt.opts...).Routes(), tt.req(t))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d\n%s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			msg := decodeError(t, rec)
			if tt.wantError != "" && msg != tt.wantError {
				t.Errorf("error = %q, want %q", msg, tt.wantError)
			}
		})
	}
}
