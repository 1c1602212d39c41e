// Package assets copies the static directory into the build output,
// passing stylesheets through the CSS minifier.
package assets

import (
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	bserrors "github.com/blogsmith/blogsmith/internal/errors"
	"github.com/blogsmith/blogsmith/internal/minify"
)

// CopyStats summarizes one copy pass.
type CopyStats struct {
	Copied   int
	Minified int
}

// Copy mirrors srcDir into dstDir. When mn is non-nil, `.css` files are
// minified in transit; everything else is copied byte for byte.
// A missing srcDir is not an error; sites without static assets are fine.
func Copy(srcDir, dstDir string, mn *minify.Minifier) (CopyStats, error) {
	var stats CopyStats

	if _, err := os.Stat(srcDir); os.IsNotExist(err) {
		slog.Debug("No static directory, skipping asset copy", "dir", srcDir)
		return stats, nil
	}

	err := filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		dst := filepath.Join(dstDir, rel)

		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}

		if mn != nil && strings.EqualFold(filepath.Ext(p), ".css") {
			raw, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			minified, err := mn.CSS(raw)
			if err != nil {
				// A stylesheet the minifier chokes on is copied verbatim;
				// the site still works, just heavier.
				slog.Warn("CSS minification failed, copying as-is", "file", rel, "error", err)
				minified = raw
			} else {
				stats.Minified++
			}
			stats.Copied++
			return os.WriteFile(dst, minified, 0o644)
		}

		if err := copyFile(p, dst); err != nil {
			return err
		}
		stats.Copied++
		return nil
	})
	if err != nil {
		return stats, bserrors.Wrap(err, bserrors.CategoryFileSystem, bserrors.SeverityFatal, "copying static assets")
	}
	return stats, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
