//go:build !no7z

package archive

import (
	"fmt"
	"os"

	"github.com/bodgit/sevenzip"
)

// Builds tagged no7z leave sevenZipExtract nil; NewDispatcher then
// drops the format from the supported set.
var sevenZipExtract extractFunc = extract7z

func extract7z(src, dest string) error {
	sr, err := sevenzip.OpenReader(src)
	if err != nil {
		return err
	}
	defer sr.Close()

	for _, f := range sr.File {
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
