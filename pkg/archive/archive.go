// Package archive unpacks media payloads out of zip, tar, tar.gz and rar
// downloads.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/nwaples/rardecode"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// Format is a supported archive container.
type Format string

const (
	FormatNone  Format = ""
	FormatZip   Format = "zip"
	FormatTar   Format = "tar"
	FormatTarGz Format = "tar.gz"
	FormatRar   Format = "rar"
)

// UnpackSuffix is appended to the label of every extraction directory.
const UnpackSuffix = ".unpack"

// visitFunc receives every regular file of an archive. size is -1 when the
// container does not record it.
type visitFunc func(name string, size int64, r io.Reader) error

// Detect sniffs the content of filePath and reports which archive format it
// is, or FormatNone.
func Detect(filePath string) (Format, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return FormatNone, errors.WithStack(err)
	}

	for m := mtype; m != nil; m = m.Parent() {
		switch {
		case m.Is("application/zip"):
			return FormatZip, nil
		case m.Is("application/x-tar"):
			return FormatTar, nil
		case m.Is("application/x-rar-compressed"):
			return FormatRar, nil
		case m.Is("application/gzip"):
			if isGzippedTar(filePath) {
				return FormatTarGz, nil
			}
			return FormatNone, nil
		}
	}

	return FormatNone, nil
}

func isGzippedTar(filePath string) bool {
	f, err := os.Open(filePath)
	if err != nil {
		return false
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return false
	}
	defer gz.Close()

	_, err = tar.NewReader(gz).Next()
	return err == nil
}

// UnpackDir returns the directory Extract writes into for label.
func UnpackDir(workDir, label string) string {
	return filepath.Join(workDir, label+UnpackSuffix)
}

// Extractor unpacks archives. MaxEntrySize caps a single extracted entry in
// bytes; zero means no cap.
type Extractor struct {
	MaxEntrySize int64
}

// Extract unpacks with no size cap.
func Extract(ctx context.Context, filePath, workDir, label string, want func(name string) bool) (string, error) {
	return Extractor{}.Extract(ctx, filePath, workDir, label, want)
}

// Extract expands every entry of the archive at filePath accepted by want
// into workDir/<label>.unpack, flattened to base names. The directory is only
// created once an entry matches. It returns the directory, or "" when the
// file is not an archive or holds no wanted entry.
func (x Extractor) Extract(ctx context.Context, filePath, workDir, label string, want func(name string) bool) (string, error) {
	log := logger.FromContext(ctx).Data(logger.Data{"archive": filePath})

	format, err := Detect(filePath)
	if err != nil {
		return "", err
	}
	if format == FormatNone {
		return "", nil
	}

	target := UnpackDir(workDir, label)
	created := false
	extracted := 0

	visit := func(name string, size int64, r io.Reader) error {
		base, ok := entryBase(name)
		if !ok {
			log.Warn("skipping archive entry outside of target", logger.Data{"entry": name})
			return nil
		}
		if !want(base) {
			return nil
		}
		if x.MaxEntrySize > 0 && size > x.MaxEntrySize {
			log.Warn("skipping oversized archive entry", logger.Data{"entry": name, "size": size})
			return nil
		}
		if !created {
			if err := os.MkdirAll(target, 0755); err != nil {
				return errors.Wrapf(err, "failed to create %s", target)
			}
			created = true
		}
		written, err := writeEntry(filepath.Join(target, base), r, x.MaxEntrySize)
		if err != nil {
			return err
		}
		if !written {
			log.Warn("skipping oversized archive entry", logger.Data{"entry": name})
			return nil
		}
		extracted++
		return nil
	}

	switch format {
	case FormatZip:
		err = walkZip(filePath, visit)
	case FormatTar:
		err = walkTar(filePath, false, visit)
	case FormatTarGz:
		err = walkTar(filePath, true, visit)
	case FormatRar:
		err = walkRar(filePath, visit)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to extract %s", filepath.Base(filePath))
	}
	if extracted == 0 {
		return "", nil
	}

	log.Debug("extracted archive", logger.Data{"format": string(format), "target": target, "entries": extracted})
	return target, nil
}

// entryBase flattens an entry name to its base. Absolute names and names
// with parent references are rejected.
func entryBase(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return "", false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", false
		}
	}
	base := path.Base(path.Clean(name))
	if base == "." || base == "/" || base == "" {
		return "", false
	}
	return base, true
}

// writeEntry copies r into dst. It returns false, leaving nothing behind, if
// the entry turns out to be larger than limit. A limit of zero copies
// everything.
func writeEntry(dst string, r io.Reader, limit int64) (bool, error) {
	out, err := os.Create(dst)
	if err != nil {
		return false, errors.WithStack(err)
	}

	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(out, r)
	closeErr := out.Close()
	if err != nil {
		os.Remove(dst)
		return false, errors.WithStack(err)
	}
	if closeErr != nil {
		return false, errors.WithStack(closeErr)
	}
	if limit > 0 && n > limit {
		os.Remove(dst)
		return false, nil
	}
	return true, nil
}

func walkZip(filePath string, visit visitFunc) error {
	r, err := zip.OpenReader(filePath)
	if err != nil {
		return errors.WithStack(err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := visitZipFile(f, visit); err != nil {
			return err
		}
	}
	return nil
}

func visitZipFile(f *zip.File, visit visitFunc) error {
	rc, err := f.Open()
	if err != nil {
		return errors.Wrapf(err, "failed to open entry %q", f.Name)
	}
	defer rc.Close()
	return visit(f.Name, int64(f.UncompressedSize64), rc)
}

func walkTar(filePath string, gzipped bool, visit visitFunc) error {
	f, err := os.Open(filePath)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	var src io.Reader = f
	if gzipped {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return errors.WithStack(err)
		}
		defer gz.Close()
		src = gz
	}

	tr := tar.NewReader(src)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.WithStack(err)
		}
		if !hdr.FileInfo().Mode().IsRegular() {
			continue
		}
		if err := visit(hdr.Name, hdr.Size, tr); err != nil {
			return err
		}
	}
}

func walkRar(filePath string, visit visitFunc) error {
	rr, err := rardecode.OpenReader(filePath, "")
	if err != nil {
		return errors.WithStack(err)
	}
	defer rr.Close()

	for {
		hdr, err := rr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.WithStack(err)
		}
		if hdr.IsDir {
			continue
		}
		size := hdr.UnPackedSize
		if hdr.UnKnownSize {
			size = -1
		}
		if err := visit(hdr.Name, size, rr); err != nil {
			return err
		}
	}
}
