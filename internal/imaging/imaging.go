// Package imaging normalizes vehicle photos before they are stored: the
// format is sniffed from the bytes, oversized photos are scaled down to fit
// the listing frame and everything is re-encoded as JPEG.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
)

// Listing frame. Photos larger than this in either direction are scaled to fit.
const (
	MaxWidth  = 1600
	MaxHeight = 1200
)

// JPEGQuality is the quality used when re-encoding.
const JPEGQuality = 85

// MaxUploadSize caps the raw upload.
const MaxUploadSize = 8 << 20

// ErrUnsupportedFormat is returned for anything that is not JPEG or PNG.
var ErrUnsupportedFormat = errors.New("unsupported image format (only JPEG and PNG are accepted)")

var accepted = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// Photo is a normalized vehicle photo.
type Photo struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// NormalizePhoto reads an uploaded photo and returns it ready for storage.
func NormalizePhoto(r io.Reader) (*Photo, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading photo: %w", err)
	}
	if len(data) > MaxUploadSize {
		return nil, fmt.Errorf("photo exceeds %d bytes", MaxUploadSize)
	}

	// Client headers are not trusted.
	if detected := http.DetectContentType(data); !accepted[detected] {
		return nil, fmt.Errorf("%w: got %s", ErrUnsupportedFormat, detected)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding photo: %w", err)
	}

	img = fit(img, MaxWidth, MaxHeight)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}

	b := img.Bounds()
	return &Photo{
		Data:   buf.Bytes(),
		MIME:   "image/jpeg",
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}

// fit scales img down, keeping its aspect ratio, so it fits inside
// maxW x maxH. Images already inside the frame are returned as is.
func fit(img image.Image, maxW, maxH int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxW && h <= maxH {
		return img
	}

	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	newW := max(int(float64(w)*scale), 1)
	newH := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func init() {
	image.RegisterFormat("jpeg", "\xff\xd8", jpeg.Decode, jpeg.DecodeConfig)
	image.RegisterFormat("png", "\x89PNG", png.Decode, png.DecodeConfig)
}
