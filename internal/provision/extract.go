// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// extractArchive unpacks archivePath into dest, choosing the format by name.
func extractArchive(archivePath, dest string, maxEntryBytes int64) error {
	name := strings.ToLower(archivePath)
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return extractTarGz(archivePath, dest, maxEntryBytes)
	case strings.HasSuffix(name, ".zip"):
		return extractZip(archivePath, dest, maxEntryBytes)
	default:
		return fmt.Errorf("unsupported archive format: %s", filepath.Base(archivePath))
	}
}

func extractTarGz(archivePath, dest string, maxEntryBytes int64) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer func() { _ = f.Close() }() // read-only file handle

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("creating gzip reader: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, nextErr := tr.Next()
		if errors.Is(nextErr, io.EOF) {
			return nil
		}
		if nextErr != nil {
			return fmt.Errorf("reading tar entry: %w", nextErr)
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, hdr.FileInfo().Mode().Perm(), maxEntryBytes); err != nil {
				return fmt.Errorf("extracting %s: %w", hdr.Name, err)
			}
		case tar.TypeSymlink:
			if err := writeSymlink(dest, target, hdr.Linkname); err != nil {
				return fmt.Errorf("extracting %s: %w", hdr.Name, err)
			}
		case tar.TypeLink:
			source, err := safeJoin(dest, hdr.Linkname)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("creating directory for %s: %w", hdr.Name, err)
			}
			if err := os.Link(source, target); err != nil {
				return fmt.Errorf("linking %s: %w", hdr.Name, err)
			}
		default:
			// pax headers and device nodes carry nothing the runtime needs
		}
	}
}

func extractZip(archivePath, dest string, maxEntryBytes int64) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer func() { _ = r.Close() }()

	for _, zf := range r.File {
		target, err := safeJoin(dest, zf.Name)
		if err != nil {
			return err
		}

		mode := zf.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", zf.Name, err)
			}
		case mode&os.ModeSymlink != 0:
			linkname, err := readZipEntry(zf, maxEntryBytes)
			if err != nil {
				return fmt.Errorf("extracting %s: %w", zf.Name, err)
			}
			if err := writeSymlink(dest, target, linkname); err != nil {
				return fmt.Errorf("extracting %s: %w", zf.Name, err)
			}
		default:
			if err := extractZipFile(zf, target, maxEntryBytes); err != nil {
				return fmt.Errorf("extracting %s: %w", zf.Name, err)
			}
		}
	}
	return nil
}

func extractZipFile(zf *zip.File, target string, maxEntryBytes int64) error {
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	perm := zf.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	return writeEntry(target, rc, perm, maxEntryBytes)
}

func readZipEntry(zf *zip.File, maxEntryBytes int64) (string, error) {
	rc, err := zf.Open()
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(io.LimitReader(rc, maxEntryBytes))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// writeEntry copies at most maxEntryBytes from r into a new file at target.
func writeEntry(target string, r io.Reader, perm os.FileMode, maxEntryBytes int64) (err error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	n, err := io.Copy(f, io.LimitReader(r, maxEntryBytes+1))
	if err != nil {
		return err
	}
	if n > maxEntryBytes {
		return fmt.Errorf("%w: entry larger than %d bytes", ErrArchiveTooLarge, maxEntryBytes)
	}
	return nil
}

// writeSymlink creates target pointing at linkname, refusing links that
// resolve outside dest.
func writeSymlink(dest, target, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("%w: absolute link %q", ErrUnsafeArchivePath, linkname)
	}
	resolved := filepath.Join(filepath.Dir(target), filepath.FromSlash(linkname))
	if !within(dest, resolved) {
		return fmt.Errorf("%w: link %q", ErrUnsafeArchivePath, linkname)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.Symlink(linkname, target)
}

// safeJoin joins an archive entry name onto dest and rejects names that
// would land outside it.
func safeJoin(dest, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %q", ErrUnsafeArchivePath, name)
	}
	target := filepath.Join(dest, filepath.FromSlash(name))
	if !within(dest, target) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeArchivePath, name)
	}
	return target, nil
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
