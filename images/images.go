// Package images finds and validates candidate image files. A file
// only qualifies when its extension matches a supported raster format
// and its bytes structurally decode; anything else is invisible to the
// rest of the pipeline.
package images

import (
	"bytes"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	"github.com/wudi/ocrkit/observability"
)

var supportedExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// SupportedExtension reports whether the filename carries a supported
// image extension (case-insensitive).
func SupportedExtension(name string) bool {
	return supportedExts[strings.ToLower(filepath.Ext(name))]
}

// Item is one candidate file staged on disk.
type Item struct {
	Path string
}

// Discover recursively enumerates regular files under root in
// deterministic walk order, keeping only files that carry a supported
// extension and decode as a raster image. Undecodable candidates are
// dropped at debug level, not reported.
func Discover(root string, log observability.Logger) ([]Item, error) {
	if log == nil {
		log = observability.NopLogger{}
	}
	var items []Item
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !SupportedExtension(path) {
			return nil
		}
		if _, err := imaging.Open(path); err != nil {
			log.Debug("skipping invalid image file",
				observability.String("path", path), observability.Error("err", err))
			return nil
		}
		items = append(items, Item{Path: path})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ValidateUpload checks a directly-uploaded payload: the declared
// content type (when present) must be an image family, the extension
// must be supported, and the bytes must both sniff and structurally
// decode as an image. The reader is rewound so the same bytes can be
// persisted afterward.
func ValidateUpload(name, contentType string, r io.ReadSeeker, log observability.Logger) bool {
	if log == nil {
		log = observability.NopLogger{}
	}
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		log.Debug("rejecting upload: content type not an image",
			observability.String("name", name), observability.String("content_type", contentType))
		return false
	}
	if !SupportedExtension(name) {
		log.Debug("rejecting upload: unsupported extension",
			observability.String("name", name))
		return false
	}

	content, err := io.ReadAll(r)
	if _, seekErr := r.Seek(0, io.SeekStart); seekErr != nil {
		log.Debug("rejecting upload: rewind failed",
			observability.String("name", name), observability.Error("err", seekErr))
		return false
	}
	if err != nil {
		log.Debug("rejecting upload: read failed",
			observability.String("name", name), observability.Error("err", err))
		return false
	}

	if mt := mimetype.Detect(content); !strings.HasPrefix(mt.String(), "image/") {
		log.Debug("rejecting upload: bytes do not sniff as an image",
			observability.String("name", name), observability.String("detected", mt.String()))
		return false
	}
	if _, err := imaging.Decode(bytes.NewReader(content)); err != nil {
		log.Debug("rejecting upload: structural decode failed",
			observability.String("name", name), observability.Error("err", err))
		return false
	}
	return true
}
