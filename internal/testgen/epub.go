package testgen

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// GenerateEPUB creates a minimal but structurally valid EPUB at dir/filename.
func GenerateEPUB(t *testing.T, dir, filename string, opts EPUBOptions) string {
	t.Helper()

	path := filepath.Join(dir, filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create EPUB dir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create EPUB file: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	defer zw.Close()

	// mimetype must be first and stored uncompressed.
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		t.Fatalf("failed to create mimetype entry: %v", err)
	}
	if _, err := w.Write([]byte("application/epub+zip")); err != nil {
		t.Fatalf("failed to write mimetype: %v", err)
	}

	containerXML := `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`
	if err := writeZipFile(zw, "META-INF/container.xml", []byte(containerXML)); err != nil {
		t.Fatalf("failed to write container.xml: %v", err)
	}

	var creators strings.Builder
	for _, a := range opts.Authors {
		fmt.Fprintf(&creators, "    <dc:creator opf:role=\"aut\">%s</dc:creator>\n", a)
	}
	opf := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0" unique-identifier="uid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
    <dc:title>%s</dc:title>
%s    <dc:language>en</dc:language>
  </metadata>
  <manifest>
    <item id="chapter1" href="chapter1.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="chapter1"/>
  </spine>
</package>`, opts.Title, creators.String())
	if err := writeZipFile(zw, "OEBPS/content.opf", []byte(opf)); err != nil {
		t.Fatalf("failed to write content.opf: %v", err)
	}

	chapter := `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><body><p>Chapter one.</p></body></html>`
	if err := writeZipFile(zw, "OEBPS/chapter1.xhtml", []byte(chapter)); err != nil {
		t.Fatalf("failed to write chapter: %v", err)
	}

	return path
}

func writeZipFile(zw *zip.Writer, name string, content []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(content)
	return err
}
