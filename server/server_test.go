package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/wudi/ocrkit/config"
	"github.com/wudi/ocrkit/ocr"
	"github.com/wudi/ocrkit/scratch"
)

type stubEngine struct {
	fn func(in ocr.Input) ([]ocr.Detection, error)
}

func (e stubEngine) Name() string { return "stub" }

func (e stubEngine) Recognize(_ context.Context, in ocr.Input) ([]ocr.Detection, error) {
	if e.fn != nil {
		return e.fn(in)
	}
	return []ocr.Detection{{Text: "hello", Confidence: 0.87654}}, nil
}

func testSettings() *config.Settings {
	return &config.Settings{
		AppName:             "test",
		Version:             "0.0.0",
		MaxUploadSize:       10 << 20,
		MaxArchiveSize:      10 << 20,
		MaxImagesPerRequest: 50,
		OCRLanguages:        `["en"]`,
		OCRTimeoutSeconds:   5,
		MaxConcurrentOCR:    2,
		OCRStripWhitespace:  true,
	}
}

func newTestRouter(t *testing.T, cfg *config.Settings, engine ocr.Engine) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	sm := scratch.NewManager(filepath.Join(t.TempDir(), "scratch"), nil)
	if err := sm.Startup(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(sm.Shutdown)
	return New(cfg, engine, sm, nil).Router()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func addFilePart(t *testing.T, w *multipart.Writer, field, filename, contentType string, data []byte) {
	t.Helper()
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	hdr.Set("Content-Type", contentType)
	part, err := w.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
}

func doExtract(t *testing.T, r *gin.Engine, build func(w *multipart.Writer)) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	build(w)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ocr/extract", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) ExtractResponse {
	t.Helper()
	var resp ExtractResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func TestExtractRequiresExactlyOneSource(t *testing.T) {
	r := newTestRouter(t, testSettings(), stubEngine{})

	rec := doExtract(t, r, func(w *multipart.Writer) {
		w.WriteField("unrelated", "x")
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("neither source: status = %d, want 400", rec.Code)
	}

	rec = doExtract(t, r, func(w *multipart.Writer) {
		addFilePart(t, w, "archive", "a.zip", "application/zip", []byte("zz"))
		addFilePart(t, w, "images", "a.png", "image/png", pngBytes(t))
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("both sources: status = %d, want 400", rec.Code)
	}
}

func TestExtractImagesSuccess(t *testing.T) {
	r := newTestRouter(t, testSettings(), stubEngine{})

	rec := doExtract(t, r, func(w *multipart.Writer) {
		addFilePart(t, w, "images", "one.png", "image/png", pngBytes(t))
		addFilePart(t, w, "images", "two.png", "image/png", pngBytes(t))
		// Garbage with a matching extension is silently skipped.
		addFilePart(t, w, "images", "junk.png", "image/png", []byte("junk"))
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	resp := decodeResponse(t, rec)
	if resp.Status != "success" {
		t.Fatalf("status = %q, want success", resp.Status)
	}
	if resp.TotalImages != 2 || resp.ProcessedImages != 2 {
		t.Fatalf("counts = %d/%d, want 2/2", resp.TotalImages, resp.ProcessedImages)
	}
	if len(resp.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", resp.Errors)
	}
	if resp.Results[0].Filename != "one.png" || resp.Results[1].Filename != "two.png" {
		t.Fatalf("filenames not in upload order: %+v", resp.Results)
	}
	if resp.Results[0].Confidence != 0.8765 {
		t.Fatalf("confidence = %v, want rounded 0.8765", resp.Results[0].Confidence)
	}
	if resp.Results[0].Language != "en" {
		t.Fatalf("language = %q, want en", resp.Results[0].Language)
	}
}

func TestExtractAllItemsFail(t *testing.T) {
	eng := stubEngine{fn: func(in ocr.Input) ([]ocr.Detection, error) {
		return nil, fmt.Errorf("engine down")
	}}
	r := newTestRouter(t, testSettings(), eng)

	rec := doExtract(t, r, func(w *multipart.Writer) {
		addFilePart(t, w, "images", "one.png", "image/png", pngBytes(t))
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Status != "partial_success" {
		t.Fatalf("status = %q, want partial_success", resp.Status)
	}
	if resp.ProcessedImages != 0 || len(resp.Errors) != 1 {
		t.Fatalf("counts = %d processed, %d errors, want 0/1", resp.ProcessedImages, len(resp.Errors))
	}
}

func TestExtractNoValidImages(t *testing.T) {
	r := newTestRouter(t, testSettings(), stubEngine{})
	rec := doExtract(t, r, func(w *multipart.Writer) {
		addFilePart(t, w, "images", "junk.png", "image/png", []byte("junk"))
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestExtractTooManyImages(t *testing.T) {
	cfg := testSettings()
	cfg.MaxImagesPerRequest = 1
	r := newTestRouter(t, cfg, stubEngine{fn: func(ocr.Input) ([]ocr.Detection, error) {
		t.Error("recognition must not start for a rejected batch")
		return nil, nil
	}})

	rec := doExtract(t, r, func(w *multipart.Writer) {
		addFilePart(t, w, "images", "one.png", "image/png", pngBytes(t))
		addFilePart(t, w, "images", "two.png", "image/png", pngBytes(t))
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestExtractUnsupportedArchive(t *testing.T) {
	r := newTestRouter(t, testSettings(), stubEngine{})
	rec := doExtract(t, r, func(w *multipart.Writer) {
		addFilePart(t, w, "archive", "a.txt", "text/plain", []byte("x"))
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestExtractCorruptArchive(t *testing.T) {
	r := newTestRouter(t, testSettings(), stubEngine{})
	rec := doExtract(t, r, func(w *multipart.Writer) {
		addFilePart(t, w, "archive", "a.zip", "application/zip", []byte("not a zip"))
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestExtractArchiveFlow(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"scans/a.png", "scans/deep/b.png"} {
		f, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write(pngBytes(t)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	r := newTestRouter(t, testSettings(), stubEngine{})
	rec := doExtract(t, r, func(w *multipart.Writer) {
		addFilePart(t, w, "archive", "batch.zip", "application/zip", buf.Bytes())
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	resp := decodeResponse(t, rec)
	if resp.TotalImages != 2 || resp.Status != "success" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	want := map[string]bool{
		filepath.Join("scans", "a.png"):         true,
		filepath.Join("scans", "deep", "b.png"): true,
	}
	for _, res := range resp.Results {
		if !want[res.Filename] {
			t.Fatalf("unexpected display name %q", res.Filename)
		}
	}
}

func TestHealthAndRoot(t *testing.T) {
	r := newTestRouter(t, testSettings(), stubEngine{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("root status = %d", rec.Code)
	}
}

func TestCORSAllowsAnyOrigin(t *testing.T) {
	r := newTestRouter(t, testSettings(), stubEngine{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want *", got)
	}
}
