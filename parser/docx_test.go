package parser

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeZipFile(t *testing.T, w *zip.Writer, name string, data []byte) {
	t.Helper()
	fw, err := w.Create(name)
	if err != nil {
		t.Fatalf("creating zip entry %s: %v", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("writing zip entry %s: %v", name, err)
	}
}

const docxSampleBody = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p>
      <w:pPr><w:pStyle w:val="Heading1"/></w:pPr>
      <w:r><w:t>Overview</w:t></w:r>
    </w:p>
    <w:p>
      <w:r><w:t>This section describes the system.</w:t></w:r>
    </w:p>
  </w:body>
</w:document>`

const docxSampleCoreProps = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties"
                    xmlns:dc="http://purl.org/dc/elements/1.1/"
                    xmlns:dcterms="http://purl.org/dc/terms/">
  <dc:title>Quarterly Report</dc:title>
  <dc:creator>A. Author</dc:creator>
  <dc:subject>Finance</dc:subject>
  <cp:keywords>budget, forecast</cp:keywords>
  <dcterms:created xsi:type="dcterms:W3CDTF" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">2024-03-01T12:00:00Z</dcterms:created>
</cp:coreProperties>`

func buildTestDOCX(t *testing.T, includeCoreProps bool) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating docx file: %v", err)
	}
	w := zip.NewWriter(f)
	writeZipFile(t, w, "word/document.xml", []byte(docxSampleBody))
	if includeCoreProps {
		writeZipFile(t, w, "docProps/core.xml", []byte(docxSampleCoreProps))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing zip writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing file: %v", err)
	}
	return path
}

func TestDOCXParseExtractsSectionsAndMetadata(t *testing.T) {
	path := buildTestDOCX(t, true)
	p := &DOCXParser{}
	result, err := p.Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("parsing docx: %v", err)
	}
	if len(result.Sections) == 0 {
		t.Fatal("expected at least one section")
	}
	if result.Sections[0].Heading != "Overview" {
		t.Errorf("expected heading %q, got %q", "Overview", result.Sections[0].Heading)
	}

	if result.Metadata["title"].Str != "Quarterly Report" {
		t.Errorf("expected title metadata, got %+v", result.Metadata["title"])
	}
	if result.Metadata["author"].Str != "A. Author" {
		t.Errorf("expected author metadata, got %+v", result.Metadata["author"])
	}
	if result.Metadata["creation_date"].Str != "2024-03-01T12:00:00Z" {
		t.Errorf("expected creation_date metadata, got %+v", result.Metadata["creation_date"])
	}
}

func TestDOCXParseWithoutCorePropsYieldsEmptyMetadata(t *testing.T) {
	path := buildTestDOCX(t, false)
	p := &DOCXParser{}
	result, err := p.Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("parsing docx: %v", err)
	}
	if len(result.Metadata) != 0 {
		t.Errorf("expected empty metadata when core.xml is absent, got %+v", result.Metadata)
	}
}
