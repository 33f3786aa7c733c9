package manuscript

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/JonMunkholm/frondo/internal/logging"
)

// DefaultMaxFileSize bounds how much of a manuscript is read into memory.
const DefaultMaxFileSize int64 = 50 << 20

// AcceptFilter is the advisory file-type filter shown by pickers.
// It never causes a file to be rejected.
type AcceptFilter struct {
	MIMEPatterns []string // e.g. "image/*"
	Extensions   []string // e.g. ".pdf"
}

// DefaultAcceptFilter accepts images and PDFs.
var DefaultAcceptFilter = AcceptFilter{
	MIMEPatterns: []string{"image/*"},
	Extensions:   []string{".pdf"},
}

// pickerImageExtensions stands in for "image/*" where a picker filters by
// extension only.
var pickerImageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// Accept renders the filter as an HTML accept attribute.
func (f AcceptFilter) Accept() string {
	parts := make([]string, 0, len(f.MIMEPatterns)+len(f.Extensions))
	parts = append(parts, f.MIMEPatterns...)
	parts = append(parts, f.Extensions...)
	return strings.Join(parts, ",")
}

// PickerExtensions returns the extensions a path-based picker should offer.
func (f AcceptFilter) PickerExtensions() []string {
	var out []string
	for _, p := range f.MIMEPatterns {
		if p == "image/*" {
			out = append(out, pickerImageExtensions...)
		}
	}
	return append(out, f.Extensions...)
}

// Allows reports whether a file would pass the filter.
func (f AcceptFilter) Allows(name, contentType string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range f.Extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	ct := strings.ToLower(contentType)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	for _, p := range f.MIMEPatterns {
		p = strings.ToLower(p)
		if strings.HasSuffix(p, "/*") {
			if strings.HasPrefix(ct, strings.TrimSuffix(p, "*")) {
				return true
			}
			continue
		}
		if ct == p {
			return true
		}
	}
	return false
}

// Acquirer turns a platform-provided file into an AcquiredFile.
type Acquirer struct {
	MaxSize int64
	Filter  AcceptFilter
}

// NewAcquirer creates an Acquirer with the default filter.
func NewAcquirer(maxSize int64) *Acquirer {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &Acquirer{MaxSize: maxSize, Filter: DefaultAcceptFilter}
}

// Acquire reads r into an AcquiredFile. The only hard limit is MaxSize;
// a file outside the accept filter is logged and passed on.
func (a *Acquirer) Acquire(ctx context.Context, name, contentType string, r io.Reader, source Source) (AcquiredFile, error) {
	data, err := io.ReadAll(io.LimitReader(r, a.MaxSize+1))
	if err != nil {
		return AcquiredFile{}, fmt.Errorf("read %s: %w", name, err)
	}
	if int64(len(data)) > a.MaxSize {
		return AcquiredFile{}, fmt.Errorf("%w: %s exceeds %d bytes", ErrFileTooLarge, name, a.MaxSize)
	}

	file := AcquiredFile{
		Name:        filepath.Base(name),
		ContentType: resolveContentType(name, contentType, data),
		Size:        int64(len(data)),
		Data:        data,
		Source:      source,
	}

	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		file.Width = cfg.Width
		file.Height = cfg.Height
	}

	logger := logging.WithFields(ctx,
		"file", file.Name,
		"content_type", file.ContentType,
		"size", file.Size,
		"source", source,
	)
	if !a.Filter.Allows(file.Name, file.ContentType) {
		logger.Warn("advisory filter mismatch", "accept", a.Filter.Accept())
	} else {
		logger.Debug("manuscript acquired", "width", file.Width, "height", file.Height)
	}

	return file, nil
}

// AcquireFromPath opens a local file, as chosen in a terminal picker or
// pasted into the terminal by a drag-and-drop.
func (a *Acquirer) AcquireFromPath(ctx context.Context, path string, source Source) (AcquiredFile, error) {
	path = CleanDroppedPath(path)
	f, err := os.Open(path)
	if err != nil {
		return AcquiredFile{}, fmt.Errorf("open manuscript: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return AcquiredFile{}, fmt.Errorf("stat manuscript: %w", err)
	}
	if info.IsDir() {
		return AcquiredFile{}, fmt.Errorf("open manuscript: %s is a directory", path)
	}

	return a.Acquire(ctx, path, "", f, source)
}

// CleanDroppedPath strips the quoting and escaping terminals add when a
// file is dragged onto them.
func CleanDroppedPath(p string) string {
	p = strings.TrimSpace(p)
	if len(p) >= 2 {
		if (p[0] == '\'' && p[len(p)-1] == '\'') || (p[0] == '"' && p[len(p)-1] == '"') {
			p = p[1 : len(p)-1]
		}
	}
	p = strings.TrimPrefix(p, "file://")
	return strings.ReplaceAll(p, `\ `, " ")
}

// resolveContentType keeps a meaningful declared type, otherwise guesses
// from the extension and finally from the bytes.
func resolveContentType(name, declared string, data []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
		return byExt
	}
	return http.DetectContentType(data)
}
