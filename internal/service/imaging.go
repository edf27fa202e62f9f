package service

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	// Register decoders for the formats accepted in uploads and search.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/calvin/shopsearch/internal/domain"
)

// MaxImageBytes is the largest accepted image payload (16 MiB).
const MaxImageBytes = 16 << 20

// maxImageEdge is the longest edge kept when normalizing an upload.
const maxImageEdge = 1024

// ValidateImage checks size and decodability of an image payload.
// It must be called before any retrieval or model work is spent on the
// request.
// Parameters:
//   - data: raw image bytes.
// Returns:
//   - string: sniffed format (jpeg, png, gif, webp, bmp).
//   - error: KindValidation error if the payload is oversized, empty, or
//     not a decodable image.
func ValidateImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", domain.NewValidationError("image payload is empty")
	}
	if len(data) > MaxImageBytes {
		return "", domain.NewValidationError("image exceeds the %d MiB limit", MaxImageBytes>>20)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", domain.NewValidationError("unsupported or corrupt image: %v", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", domain.NewValidationError("image has invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	return format, nil
}

// NormalizeImage decodes the payload and re-encodes it as a JPEG whose
// longest edge is at most maxImageEdge. Smaller images are re-encoded
// without scaling. Used by the upload pipeline to keep stored images
// uniform; search inputs are passed through untouched.
// Parameters:
//   - data: raw image bytes, already validated.
// Returns:
//   - []byte: JPEG bytes.
//   - int, int: final width and height.
//   - error: non-nil if decode or encode fails.
func NormalizeImage(data []byte) ([]byte, int, int, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if w > maxImageEdge || h > maxImageEdge {
		scale := float64(maxImageEdge) / float64(w)
		if h > w {
			scale = float64(maxImageEdge) / float64(h)
		}
		nw := int(float64(w) * scale)
		nh := int(float64(h) * scale)
		if nw < 1 {
			nw = 1
		}
		if nh < 1 {
			nh = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		src = dst
		w, h = nw, nh
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: 85}); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), w, h, nil
}
