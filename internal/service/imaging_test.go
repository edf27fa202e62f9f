package service

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/calvin/shopsearch/internal/domain"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func TestValidateImageFormats(t *testing.T) {
	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, image.NewRGBA(image.Rect(0, 0, 2, 2)), nil); err != nil {
		t.Fatalf("failed to encode jpeg: %v", err)
	}

	tests := []struct {
		name       string
		data       []byte
		wantFormat string
	}{
		{"png", encodePNG(t, 2, 2), "png"},
		{"jpeg", jpg.Bytes(), "jpeg"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			format, err := ValidateImage(tc.data)
			if err != nil {
				t.Fatalf("ValidateImage failed: %v", err)
			}
			if format != tc.wantFormat {
				t.Errorf("format = %q, want %q", format, tc.wantFormat)
			}
		})
	}
}

func TestValidateImageRejections(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("definitely not an image")},
		{"oversized", make([]byte, MaxImageBytes+1)},
		{"truncated png", encodePNG(t, 8, 8)[:10]},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateImage(tc.data)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if kind := domain.KindOf(err); kind != domain.KindValidation {
				t.Errorf("error kind = %q, want %q", kind, domain.KindValidation)
			}
		})
	}
}

func TestNormalizeImageScalesDown(t *testing.T) {
	data := encodePNG(t, 2048, 512)
	out, w, h, err := NormalizeImage(data)
	if err != nil {
		t.Fatalf("NormalizeImage failed: %v", err)
	}
	if w != 1024 {
		t.Errorf("width = %d, want 1024", w)
	}
	if h != 256 {
		t.Errorf("height = %d, want 256", h)
	}
	// Output must be a decodable JPEG
	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("normalized output not decodable: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("normalized format = %q, want jpeg", format)
	}
	if cfg.Width != w || cfg.Height != h {
		t.Errorf("encoded size %dx%d, want %dx%d", cfg.Width, cfg.Height, w, h)
	}
}

func TestNormalizeImageKeepsSmallImages(t *testing.T) {
	data := encodePNG(t, 640, 480)
	_, w, h, err := NormalizeImage(data)
	if err != nil {
		t.Fatalf("NormalizeImage failed: %v", err)
	}
	if w != 640 || h != 480 {
		t.Errorf("size = %dx%d, want unchanged 640x480", w, h)
	}
}
