package testgen

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
)

// GenerateZip writes a zip archive holding entries to dir/filename.
func GenerateZip(t *testing.T, dir, filename string, entries []ArchiveEntry) string {
	t.Helper()

	path := filepath.Join(dir, filename)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create zip: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		if err := writeZipFile(zw, e.Name, e.Content); err != nil {
			t.Fatalf("failed to write zip entry %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return path
}

// GenerateTarGz writes a gzip-compressed tar archive holding entries to
// dir/filename.
func GenerateTarGz(t *testing.T, dir, filename string, entries []ArchiveEntry) string {
	t.Helper()

	path := filepath.Join(dir, filename)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create tar.gz: %v", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.Name,
			Mode:     0644,
			Size:     int64(len(e.Content)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("failed to write tar header %s: %v", e.Name, err)
		}
		if _, err := tw.Write(e.Content); err != nil {
			t.Fatalf("failed to write tar entry %s: %v", e.Name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("failed to close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("failed to close gzip: %v", err)
	}
	return path
}
