// Package archive bundles a run's output directory into a single zip.
package archive

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Archive writes every regular file under rootDir into rootDir/name and
// returns the archive path. Entry names are slash-separated and relative to
// rootDir. The archive itself is never added.
func Archive(rootDir, name string) (path string, err error) {
	path = filepath.Join(rootDir, name)
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close archive: %w", cerr)
		}
	}()

	zw := zip.NewWriter(out)
	walkErr := filepath.WalkDir(rootDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || p == path {
			return nil
		}
		rel, err := filepath.Rel(rootDir, p)
		if err != nil {
			return err
		}
		return addFile(zw, p, filepath.ToSlash(rel))
	})
	if walkErr != nil {
		_ = zw.Close()
		return "", fmt.Errorf("walk %s: %w", rootDir, walkErr)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("finalize archive: %w", err)
	}
	return path, nil
}

func addFile(zw *zip.Writer, src, name string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	return nil
}

// Extract unpacks the zip at src into dstDir and returns the entry names.
// Entries that would escape dstDir are rejected.
func Extract(src, dstDir string) ([]string, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	root := filepath.Clean(dstDir) + string(os.PathSeparator)
	names := make([]string, 0, len(zr.File))
	for _, zf := range zr.File {
		dst := filepath.Join(dstDir, filepath.FromSlash(zf.Name))
		if !strings.HasPrefix(dst, root) {
			return nil, fmt.Errorf("illegal entry %q", zf.Name)
		}
		if zf.FileInfo().IsDir() {
			continue
		}
		if err := extractFile(zf, dst); err != nil {
			return nil, err
		}
		names = append(names, zf.Name)
	}
	return names, nil
}

func extractFile(zf *zip.File, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", zf.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", zf.Name, err)
	}
	return out.Close()
}
