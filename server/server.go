// Package server exposes the extraction pipeline over HTTP: one
// multipart endpoint accepting either an archive or a set of images,
// plus service info and health probes.
package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/wudi/ocrkit/archive"
	"github.com/wudi/ocrkit/config"
	"github.com/wudi/ocrkit/images"
	"github.com/wudi/ocrkit/observability"
	"github.com/wudi/ocrkit/ocr"
	"github.com/wudi/ocrkit/pipeline"
	"github.com/wudi/ocrkit/scratch"
	"github.com/wudi/ocrkit/textproc"
)

type Server struct {
	cfg        *config.Settings
	dispatcher *archive.Dispatcher
	scratch    *scratch.Manager
	orch       *pipeline.Orchestrator
	log        observability.Logger
}

// New wires the pipeline components behind the HTTP surface. The
// engine and settings are constructed once at startup and shared
// across requests.
func New(cfg *config.Settings, engine ocr.Engine, sm *scratch.Manager, log observability.Logger) *Server {
	if log == nil {
		log = observability.NopLogger{}
	}
	orch := pipeline.New(engine, pipeline.Options{
		Concurrency:   cfg.MaxConcurrentOCR,
		Timeout:       time.Duration(cfg.OCRTimeoutSeconds) * time.Second,
		MaxImageWidth: cfg.OCRMaxImageSize,
		Languages:     cfg.Languages(),
		Text: textproc.Options{
			MinConfidence:    cfg.OCRMinConfidence,
			StripWhitespace:  cfg.OCRStripWhitespace,
			RemoveEmptyLines: cfg.OCRRemoveEmptyLines,
			Paragraph:        cfg.OCRParagraphMode,
		},
	}, log)
	return &Server{
		cfg:        cfg,
		dispatcher: archive.NewDispatcher(log),
		scratch:    sm,
		orch:       orch,
		log:        log,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, err any) {
		s.log.Error("panic in request handler",
			observability.String("path", c.Request.URL.Path),
			observability.String("panic", fmt.Sprint(err)))
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			gin.H{"detail": "Internal server error"})
	}))
	// Open to any origin; the service runs behind callers' own gateways.
	r.Use(cors.Default())

	r.GET("/", s.handleRoot)
	r.GET("/health", s.handleHealth)
	r.POST("/api/v1/ocr/extract", s.handleExtract)
	return r
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":         s.cfg.AppName,
		"version":      s.cfg.Version,
		"status":       "running",
		"ocr_endpoint": "/api/v1/ocr/extract",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": s.cfg.Version})
}

func clientError(c *gin.Context, code int, detail string) {
	c.JSON(code, gin.H{"detail": detail})
}

func (s *Server) handleExtract(c *gin.Context) {
	start := time.Now()

	form, err := c.MultipartForm()
	if err != nil {
		clientError(c, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	archives := form.File["archive"]
	uploads := form.File["images"]

	if len(archives) == 0 && len(uploads) == 0 {
		clientError(c, http.StatusBadRequest, "Either 'archive' or 'images' must be provided")
		return
	}
	if len(archives) > 0 && len(uploads) > 0 {
		clientError(c, http.StatusBadRequest, "Provide either 'archive' OR 'images', not both")
		return
	}

	dir, err := s.scratch.Acquire()
	if err != nil {
		s.log.Error("scratch acquisition failed", observability.Error("err", err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
		return
	}
	defer dir.Release()

	var (
		items []images.Item
		root  string
	)
	if len(archives) > 0 {
		items, root, err = s.stageArchive(c, archives[0], dir)
	} else {
		items, root, err = s.stageUploads(c, uploads, dir)
	}
	if err != nil {
		// The staging helpers have already written the client response.
		return
	}

	if len(items) == 0 {
		clientError(c, http.StatusBadRequest, "No valid PNG or JPEG images found")
		return
	}
	if len(items) > s.cfg.MaxImagesPerRequest {
		clientError(c, http.StatusBadRequest, fmt.Sprintf(
			"Too many images. Maximum: %d, Found: %d", s.cfg.MaxImagesPerRequest, len(items)))
		return
	}

	outcome := s.orch.Process(c.Request.Context(), items, root)
	c.JSON(http.StatusOK, assembleResponse(outcome, s.cfg.Languages()[0], time.Since(start)))
}

var errStagingHandled = errors.New("staging failure already reported")

// stageArchive unpacks the archive field into the scratch dir and
// discovers images in the extracted tree. On failure it writes the
// client response and returns a sentinel error.
func (s *Server) stageArchive(c *gin.Context, fh *multipart.FileHeader, dir *scratch.Dir) ([]images.Item, string, error) {
	if fh.Size > s.cfg.MaxArchiveSize {
		clientError(c, http.StatusBadRequest, fmt.Sprintf(
			"Archive too large. Maximum: %d bytes", s.cfg.MaxArchiveSize))
		return nil, "", errStagingHandled
	}
	if !s.dispatcher.IsSupported(fh.Filename) {
		clientError(c, http.StatusBadRequest, fmt.Sprintf(
			"Unsupported archive format. Supported: %s", strings.Join(s.dispatcher.Supported(), ", ")))
		return nil, "", errStagingHandled
	}

	f, err := fh.Open()
	if err != nil {
		clientError(c, http.StatusBadRequest, "unreadable archive payload")
		return nil, "", errStagingHandled
	}
	defer f.Close()

	dest := filepath.Join(dir.Path(), "extracted")
	if err := s.dispatcher.Extract(f, fh.Filename, dest); err != nil {
		s.log.Error("archive extraction failed",
			observability.String("archive", fh.Filename), observability.Error("err", err))
		clientError(c, http.StatusUnprocessableEntity, "Failed to extract archive: "+err.Error())
		return nil, "", errStagingHandled
	}

	items, err := images.Discover(dest, s.log)
	if err != nil {
		s.log.Error("image discovery failed", observability.Error("err", err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
		return nil, "", errStagingHandled
	}
	return items, dest, nil
}

// stageUploads validates each directly-uploaded image and persists the
// valid ones into the scratch dir, preserving upload order. Invalid
// payloads are skipped, not reported.
func (s *Server) stageUploads(c *gin.Context, uploads []*multipart.FileHeader, dir *scratch.Dir) ([]images.Item, string, error) {
	var items []images.Item
	for _, fh := range uploads {
		if fh.Size > s.cfg.MaxUploadSize {
			s.log.Warn("skipping oversized upload",
				observability.String("name", fh.Filename))
			continue
		}
		f, err := fh.Open()
		if err != nil {
			s.log.Warn("skipping unreadable upload",
				observability.String("name", fh.Filename), observability.Error("err", err))
			continue
		}
		ok := images.ValidateUpload(fh.Filename, fh.Header.Get("Content-Type"), f, s.log)
		if !ok {
			f.Close()
			s.log.Warn("skipping invalid image upload",
				observability.String("name", fh.Filename))
			continue
		}

		dst := filepath.Join(dir.Path(), filepath.Base(fh.Filename))
		if err := persist(dst, f); err != nil {
			f.Close()
			s.log.Error("persisting upload failed",
				observability.String("name", fh.Filename), observability.Error("err", err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
			return nil, "", errStagingHandled
		}
		f.Close()
		items = append(items, images.Item{Path: dst})
	}
	return items, dir.Path(), nil
}

func persist(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
