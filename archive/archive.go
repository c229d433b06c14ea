// Package archive classifies uploaded archives by filename and unpacks
// them into a destination directory. ZIP and the TAR family use the
// standard library; RAR and 7Z use format-specific decoders. Extraction
// is all-or-nothing: a failure removes the destination tree before the
// error propagates.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nwaples/rardecode/v2"

	"github.com/wudi/ocrkit/observability"
)

// ErrUnsupportedFormat indicates the filename suffix maps to no known
// extractor.
var ErrUnsupportedFormat = errors.New("unsupported archive format")

// ExtractionError wraps a failure from a format-specific extractor.
type ExtractionError struct {
	Format string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s archive: %v", e.Format, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Format derives the archive type token from a filename. Compound tar
// suffixes collapse to their compression token, matching how the
// extractors are keyed: .tar.gz and .tgz yield "gz", .tar.bz2 yields
// "bz2". Anything else is the lowercased final suffix without its dot.
func Format(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return "gz"
	case strings.HasSuffix(lower, ".tar.bz2"):
		return "bz2"
	}
	return strings.TrimPrefix(filepath.Ext(lower), ".")
}

type extractFunc func(src, dest string) error

// Dispatcher routes archives to the extractor registered for their
// format token.
type Dispatcher struct {
	extractors map[string]extractFunc
	log        observability.Logger
}

// NewDispatcher builds the extractor table. 7z is registered only when
// the capability is compiled in; its absence is logged once and the
// service carries on without it.
func NewDispatcher(log observability.Logger) *Dispatcher {
	if log == nil {
		log = observability.NopLogger{}
	}
	ex := map[string]extractFunc{
		"zip": extractZip,
		"tar": extractTar(nil),
		"gz":  extractTar(gzipWrap),
		"bz2": extractTar(bzip2Wrap),
		"rar": extractRar,
	}
	if sevenZipExtract != nil {
		ex["7z"] = sevenZipExtract
	} else {
		log.Warn("7z capability unavailable, 7z archives will not be supported")
	}
	return &Dispatcher{extractors: ex, log: log}
}

// IsSupported reports whether the filename maps to a registered
// extractor.
func (d *Dispatcher) IsSupported(name string) bool {
	_, ok := d.extractors[Format(name)]
	return ok
}

// Supported returns the registered format tokens in stable order.
func (d *Dispatcher) Supported() []string {
	out := make([]string, 0, len(d.extractors))
	for tok := range d.extractors {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// Extract stages the archive bytes into dest, unpacks them with the
// format extractor, and deletes the staged file so only extracted
// content remains. On any failure dest is removed entirely.
func (d *Dispatcher) Extract(r io.Reader, name, dest string) (err error) {
	format := Format(name)
	fn, ok := d.extractors[format]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return &ExtractionError{Format: format, Err: err}
	}
	defer func() {
		if err != nil {
			os.RemoveAll(dest)
		}
	}()

	staged := filepath.Join(dest, filepath.Base(name))
	if err := stageFile(staged, r); err != nil {
		return &ExtractionError{Format: format, Err: err}
	}

	d.log.Info("extracting archive",
		observability.String("archive", filepath.Base(name)),
		observability.String("format", format))

	if err := fn(staged, dest); err != nil {
		return &ExtractionError{Format: format, Err: err}
	}
	if err := os.Remove(staged); err != nil {
		return &ExtractionError{Format: format, Err: err}
	}
	return nil
}

func stageFile(path string, r io.Reader) error {
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

// entryPath confines an archive entry name to dest, rejecting entries
// that would escape it (zip-slip).
func entryPath(dest, name string) (string, error) {
	cleaned := filepath.Join(dest, filepath.FromSlash(name))
	if cleaned != dest && !strings.HasPrefix(cleaned, dest+string(os.PathSeparator)) {
		return "", fmt.Errorf("entry %q escapes destination", name)
	}
	return cleaned, nil
}

func writeEntry(dest, name string, r io.Reader) error {
	path, err := entryPath(dest, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
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

func extractZip(src, dest string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			path, err := entryPath(dest, f.Name)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(path, 0o755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open entry %s: %w", f.Name, err)
		}
		err = writeEntry(dest, f.Name, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("write entry %s: %w", f.Name, err)
		}
	}
	return nil
}

func gzipWrap(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) }

func bzip2Wrap(r io.Reader) (io.Reader, error) { return bzip2.NewReader(r), nil }

// extractTar returns an extractor for tar streams, optionally behind a
// decompression wrapper.
func extractTar(wrap func(io.Reader) (io.Reader, error)) extractFunc {
	return func(src, dest string) error {
		f, err := os.Open(src)
		if err != nil {
			return err
		}
		defer f.Close()

		var r io.Reader = f
		if wrap != nil {
			if r, err = wrap(f); err != nil {
				return err
			}
		}

		tr := tar.NewReader(r)
		for {
			hdr, err := tr.Next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			switch hdr.Typeflag {
			case tar.TypeDir:
				path, err := entryPath(dest, hdr.Name)
				if err != nil {
					return err
				}
				if err := os.MkdirAll(path, 0o755); err != nil {
					return err
				}
			case tar.TypeReg:
				if err := writeEntry(dest, hdr.Name, tr); err != nil {
					return fmt.Errorf("write entry %s: %w", hdr.Name, err)
				}
			}
		}
	}
}

func extractRar(src, dest string) error {
	rr, err := rardecode.OpenReader(src)
	if err != nil {
		return err
	}
	defer rr.Close()

	for {
		hdr, err := rr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if hdr.IsDir {
			path, err := entryPath(dest, hdr.Name)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(path, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := writeEntry(dest, hdr.Name, rr); err != nil {
			return fmt.Errorf("write entry %s: %w", hdr.Name, err)
		}
	}
}
