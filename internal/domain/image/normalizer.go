package image

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"math"
	"strings"

	_ "image/gif"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	platformerrors "docuvoice-client-go/internal/platform/errors"
	"docuvoice-client-go/internal/platform/logging"
)

const normalizedFilename = "capture.jpg"

// Normalizer converts arbitrary captured images into bounded JPEG documents.
// Pure bytes-in bytes-out; no network.
type Normalizer struct {
	logger *logging.Logger
}

// NewNormalizer constructs a normalizer.
func NewNormalizer(logger *logging.Logger) *Normalizer {
	if logger == nil {
		logger = logging.DefaultLogger
	}
	return &Normalizer{logger: logger}
}

var imageSignatures = map[string][]byte{
	"jpeg": {0xFF, 0xD8},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"gif":  {0x47, 0x49, 0x46, 0x38},
	"webp": {0x52, 0x49, 0x46, 0x46},
	"bmp":  {0x42, 0x4D},
}

// sniffFormat guesses a format from magic bytes when the capture layer did
// not declare a MIME type.
func sniffFormat(data []byte) string {
	for format, signature := range imageSignatures {
		if len(data) >= len(signature) && bytes.Equal(data[:len(signature)], signature) {
			return format
		}
	}
	return ""
}

func isJPEG(mimeType string, data []byte) bool {
	if mimeType != "" {
		return strings.EqualFold(mimeType, "image/jpeg") || strings.EqualFold(mimeType, "image/jpg")
	}
	return sniffFormat(data) == "jpeg"
}

// Normalize produces an UploadableDocument within opts bounds. Images that
// already fit and are JPEG keep their exact bytes; only the filename/type
// wrapper is normalized. Downscaling is aspect-preserving, never upscaling.
// When dimension probing fails the original bytes are re-wrapped as JPEG
// best-effort rather than failing the upload flow.
func (n *Normalizer) Normalize(ctx context.Context, captured CapturedImage, opts Options) (*UploadableDocument, error) {
	if len(captured.Data) == 0 {
		return nil, platformerrors.New(platformerrors.KindNormalize, "normalize", "empty image payload")
	}
	if opts.MaxWidth <= 0 || opts.MaxHeight <= 0 {
		return nil, platformerrors.New(platformerrors.KindNormalize, "normalize", "invalid bounds")
	}
	if opts.Quality <= 0 || opts.Quality > 1 {
		opts.Quality = 0.85
	}
	if err := ctx.Err(); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindNormalize, "normalize", "cancelled", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(captured.Data))
	if err != nil {
		n.logger.WarnTag("NORMALIZE", "dimension probe failed, re-wrapping original: %v", err)
		return n.rewrap(captured, 0, 0), nil
	}

	fits := cfg.Width <= opts.MaxWidth && cfg.Height <= opts.MaxHeight
	if fits && (isJPEG(captured.MIMEType, captured.Data) || format == "jpeg") {
		n.logger.DebugTag("NORMALIZE", "already bounded jpeg %dx%d, wrapper only", cfg.Width, cfg.Height)
		return &UploadableDocument{
			Data:     captured.Data,
			Filename: normalizedFilename,
			MIMEType: "image/jpeg",
			Width:    cfg.Width,
			Height:   cfg.Height,
		}, nil
	}

	decoded, _, err := image.Decode(bytes.NewReader(captured.Data))
	if err != nil {
		n.logger.WarnTag("NORMALIZE", "full decode failed, re-wrapping original: %v", err)
		return n.rewrap(captured, cfg.Width, cfg.Height), nil
	}

	targetW, targetH := fitContain(cfg.Width, cfg.Height, opts.MaxWidth, opts.MaxHeight)

	var result image.Image = decoded
	if targetW != cfg.Width || targetH != cfg.Height {
		scaled := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), decoded, decoded.Bounds(), xdraw.Over, nil)
		result = scaled
	}

	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, result, &jpeg.Options{Quality: int(math.Round(opts.Quality * 100))}); err != nil {
		n.logger.WarnTag("NORMALIZE", "jpeg encode failed, re-wrapping original: %v", err)
		return n.rewrap(captured, cfg.Width, cfg.Height), nil
	}

	n.logger.InfoTag("NORMALIZE", "converted %s %dx%d -> jpeg %dx%d (%d bytes)",
		formatLabel(format, captured.MIMEType), cfg.Width, cfg.Height, targetW, targetH, buf.Len())

	return &UploadableDocument{
		Data:      buf.Bytes(),
		Filename:  normalizedFilename,
		MIMEType:  "image/jpeg",
		Width:     targetW,
		Height:    targetH,
		Reencoded: true,
	}, nil
}

// rewrap forces a JPEG wrapper around the original bytes without resizing.
// The size-sensitive backend may still reject the upload; that is accepted
// degraded behavior, not a client crash.
func (n *Normalizer) rewrap(captured CapturedImage, width, height int) *UploadableDocument {
	return &UploadableDocument{
		Data:     captured.Data,
		Filename: normalizedFilename,
		MIMEType: "image/jpeg",
		Width:    width,
		Height:   height,
	}
}

// fitContain computes contain-scaled dimensions, never upscaling.
func fitContain(w, h, maxW, maxH int) (int, int) {
	r := math.Min(math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h)), 1)
	return int(math.Round(float64(w) * r)), int(math.Round(float64(h) * r))
}

func formatLabel(format, mimeType string) string {
	if format != "" {
		return format
	}
	if mimeType != "" {
		return mimeType
	}
	return "unknown"
}
