package api

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"
)

func uploadedFileHeader(t *testing.T, content []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "paper.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}
	form, err := multipart.NewReader(&buf, mw.Boundary()).ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("read form: %v", err)
	}
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["file"][0]
}

func tempUploads(t *testing.T, dir string) []string {
	t.Helper()
	leftovers, err := filepath.Glob(filepath.Join(dir, "upload-*.pdf"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	return leftovers
}

func TestSaveUploadedPDF(t *testing.T) {
	dir := t.TempDir()
	content := []byte("%PDF-1.4 test body")
	wantID := fmt.Sprintf("%x", sha256.Sum256(content))

	paperID, path, err := saveUploadedPDF(dir, uploadedFileHeader(t, content))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if paperID != wantID {
		t.Fatalf("paper id: got %q want %q", paperID, wantID)
	}
	got, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(got, content) {
		t.Fatalf("stored file mismatch: err=%v", err)
	}
	if leftovers := tempUploads(t, dir); len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestSaveUploadedPDFCleansUpTempOnFailure(t *testing.T) {
	dir := t.TempDir()
	content := []byte("%PDF-1.4 another body")
	// The final path is derived from the content hash; occupying it with a
	// directory forces the rename to fail.
	finalPath := filepath.Join(dir, fmt.Sprintf("%x", sha256.Sum256(content))+".pdf")
	if err := os.Mkdir(finalPath, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if _, _, err := saveUploadedPDF(dir, uploadedFileHeader(t, content)); err == nil {
		t.Fatal("expected rename failure")
	}
	if leftovers := tempUploads(t, dir); len(leftovers) != 0 {
		t.Fatalf("temp files left behind after failure: %v", leftovers)
	}
}
