package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/dshills/docreview/internal/apperr"
	"github.com/dshills/docreview/internal/cache"
	"github.com/dshills/docreview/internal/redact"
)

// DefaultMaxImageDimension bounds the longer side of every image sent to a
// model.
const DefaultMaxImageDimension = 1568

// Error reports a failure to extract one file.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extracting %s: %v", filepath.Base(e.Path), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	textTypes = map[string]bool{
		".txt": true, ".csv": true, ".tsv": true, ".json": true,
		".yaml": true, ".yml": true, ".log": true, ".xml": true,
	}
	markdownTypes = map[string]bool{".md": true, ".markdown": true}
	imageTypes    = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
		".webp": true, ".bmp": true, ".tif": true, ".tiff": true,
	}
	officeTypes = map[string]bool{
		".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
		".ppt": true, ".pptx": true,
	}
)

// Supported reports whether path has an extension Extract can handle.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".pdf" || textTypes[ext] || markdownTypes[ext] || imageTypes[ext]
}

// Cache stores extraction results between runs.
type Cache interface {
	Get(key string, v any) bool
	Put(key string, v any) error
}

// Extractor turns files into text or normalised page images.
type Extractor struct {
	maxDim   int
	cache    Cache
	redactor *redact.Redactor
	logger   *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxImageDimension bounds the longer side of output images.
func WithMaxImageDimension(px int) Option {
	return func(x *Extractor) {
		if px > 0 {
			x.maxDim = px
		}
	}
}

// WithCache enables result caching.
func WithCache(c Cache) Option { return func(x *Extractor) { x.cache = c } }

// WithRedactor scrubs secrets from extracted text.
func WithRedactor(r *redact.Redactor) Option { return func(x *Extractor) { x.redactor = r } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(x *Extractor) { x.logger = l } }

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	x := &Extractor{
		maxDim: DefaultMaxImageDimension,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(x)
	}
	return x
}

// Extract reads f.Path and returns its content. Text formats always yield
// text and image formats always yield images; f.Mode only matters for PDF.
func (x *Extractor) Extract(ctx context.Context, f File) (Content, error) {
	c, err := x.extract(ctx, f)
	if err != nil {
		return Content{}, &Error{Path: f.Path, Err: err}
	}
	return c, nil
}

func (x *Extractor) extract(ctx context.Context, f File) (Content, error) {
	if err := ctx.Err(); err != nil {
		return Content{}, err
	}
	if f.Mode == "" {
		f.Mode = ModeText
	}
	ext := strings.ToLower(filepath.Ext(f.Path))
	if officeTypes[ext] {
		return Content{}, apperr.New(apperr.CodeUnsupportedFile,
			fmt.Sprintf("%s: office documents must be converted to PDF before review", filepath.Base(f.Path)), true)
	}
	if !Supported(f.Path) {
		return Content{}, apperr.New(apperr.CodeUnsupportedFile,
			fmt.Sprintf("%s: unsupported file type %q", filepath.Base(f.Path), ext), true)
	}

	info, err := os.Stat(f.Path)
	if err != nil {
		return Content{}, err
	}
	key := cache.BuildCacheKey(f.Path, info.Size(), info.ModTime(), string(f.Mode))
	if x.cache != nil {
		var c Content
		if x.cache.Get(key, &c) {
			x.logger.DebugContext(ctx, "extraction cache hit", "path", f.Path)
			return c, nil
		}
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return Content{}, err
	}
	sum := sha256.Sum256(data)
	c := Content{
		Hash: hex.EncodeToString(sum[:]),
		Type: strings.TrimPrefix(ext, "."),
		Mode: ModeText,
	}

	switch {
	case ext == ".pdf" && f.Mode == ModeImage:
		c.Mode = ModeImage
		c.Images, err = x.pdfImages(ctx, data)
	case ext == ".pdf":
		c.Text, err = pdfText(ctx, data)
	case markdownTypes[ext]:
		c.Text = markdownText(data)
	case imageTypes[ext]:
		c.Mode = ModeImage
		var img string
		img, err = x.imageFile(data)
		c.Images = []string{img}
	default:
		c.Text = plainText(data)
	}
	if err != nil {
		return Content{}, err
	}

	if c.Mode == ModeText {
		if strings.TrimSpace(c.Text) == "" {
			return Content{}, apperr.New(apperr.CodeUnsupportedFile,
				fmt.Sprintf("%s: no extractable text; try image mode", filepath.Base(f.Path)), true)
		}
		if x.redactor != nil {
			var n int
			c.Text, n = x.redactor.Document(f.Path, c.Text)
			if n > 0 {
				x.logger.InfoContext(ctx, "redacted secrets", "path", f.Path, "count", n)
			}
		}
	}

	x.logger.InfoContext(ctx, "extracted document",
		"path", f.Path,
		"mode", c.Mode,
		"size", humanize.Bytes(uint64(len(data))),
		"chars", utf8.RuneCountInString(c.Text),
		"images", len(c.Images),
	)

	if x.cache != nil {
		if err := x.cache.Put(key, c); err != nil {
			x.logger.WarnContext(ctx, "caching extraction", "path", f.Path, "error", err)
		}
	}
	return c, nil
}

// plainText drops a UTF-8 byte order mark and replaces invalid sequences.
func plainText(data []byte) string {
	s := strings.TrimPrefix(string(data), "\ufeff")
	return strings.ToValidUTF8(s, "\ufffd")
}
