package manuscript

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	img.Set(1, 1, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestAcceptFilter(t *testing.T) {
	f := DefaultAcceptFilter

	if got := f.Accept(); got != "image/*,.pdf" {
		t.Errorf("Accept() = %q, want %q", got, "image/*,.pdf")
	}

	tests := []struct {
		name, ct string
		want     bool
	}{
		{"scan.png", "image/png", true},
		{"scan.JPG", "image/jpeg; charset=binary", true},
		{"score.pdf", "application/octet-stream", true},
		{"SCORE.PDF", "", true},
		{"notes.txt", "text/plain", false},
		{"archive.zip", "application/zip", false},
	}
	for _, tt := range tests {
		if got := f.Allows(tt.name, tt.ct); got != tt.want {
			t.Errorf("Allows(%q, %q) = %v, want %v", tt.name, tt.ct, got, tt.want)
		}
	}

	exts := f.PickerExtensions()
	if exts[len(exts)-1] != ".pdf" {
		t.Errorf("PickerExtensions should end with .pdf: %v", exts)
	}
}

func TestAcquire_ReadsMetadata(t *testing.T) {
	captureLogs(t)
	a := NewAcquirer(1 << 20)
	data := pngBytes(t, 40, 30)

	f, err := a.Acquire(context.Background(), "dir/scan.png", "", bytes.NewReader(data), SourceDrop)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if f.Name != "scan.png" {
		t.Errorf("Name = %q, want scan.png", f.Name)
	}
	if f.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", f.ContentType)
	}
	if f.Size != int64(len(data)) {
		t.Errorf("Size = %d, want %d", f.Size, len(data))
	}
	if f.Width != 40 || f.Height != 30 {
		t.Errorf("dimensions = %dx%d, want 40x30", f.Width, f.Height)
	}
	if f.Source != SourceDrop {
		t.Errorf("Source = %q, want drop", f.Source)
	}
}

func TestAcquire_FilterIsAdvisory(t *testing.T) {
	logs := captureLogs(t)
	a := NewAcquirer(1 << 20)

	f, err := a.Acquire(context.Background(), "notes.txt", "text/plain", strings.NewReader("hello"), SourcePicker)
	if err != nil {
		t.Fatalf("non-conforming file must still be acquired: %v", err)
	}
	if f.ContentType != "text/plain" {
		t.Errorf("ContentType = %q", f.ContentType)
	}
	if !strings.Contains(logs.String(), "advisory filter mismatch") {
		t.Error("expected a warning about the filter mismatch")
	}
}

func TestAcquire_TooLarge(t *testing.T) {
	captureLogs(t)
	a := NewAcquirer(4)

	_, err := a.Acquire(context.Background(), "big.png", "image/png", strings.NewReader("12345"), SourcePicker)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("Acquire() error = %v, want ErrFileTooLarge", err)
	}
}

func TestAcquireFromPath(t *testing.T) {
	captureLogs(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "my scan.png")
	if err := os.WriteFile(path, pngBytes(t, 8, 8), 0o600); err != nil {
		t.Fatal(err)
	}
	a := NewAcquirer(1 << 20)

	// Terminals escape spaces or quote the path when a file is dropped.
	for _, in := range []string{path, "'" + path + "'", strings.ReplaceAll(path, " ", `\ `) + "\n"} {
		f, err := a.AcquireFromPath(context.Background(), in, SourceDrop)
		if err != nil {
			t.Fatalf("AcquireFromPath(%q) error = %v", in, err)
		}
		if f.Name != "my scan.png" || f.Width != 8 {
			t.Errorf("AcquireFromPath(%q) = %+v", in, f.Meta())
		}
	}

	if _, err := a.AcquireFromPath(context.Background(), dir, SourceDrop); err == nil {
		t.Error("directory should not be acquirable")
	}
	if _, err := a.AcquireFromPath(context.Background(), filepath.Join(dir, "missing.png"), SourceDrop); err == nil {
		t.Error("missing file should error")
	}
}

func TestParseSource(t *testing.T) {
	if ParseSource("drop") != SourceDrop {
		t.Error(`ParseSource("drop") != SourceDrop`)
	}
	if ParseSource("") != SourcePicker || ParseSource("weird") != SourcePicker {
		t.Error("unknown sources should fall back to picker")
	}
}
