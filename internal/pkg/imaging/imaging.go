// Package imaging decodes captured face images. Captures arrive from the web
// layer as base64 data URLs ("data:image/png;base64,....") or bare base64.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/evote-api/internal/domain"
)

// DecodeDataURL parses a data URL (or bare base64 payload) into a decoded
// raster image. Malformed input maps to ErrBadRequest so handlers surface it
// as a validation failure, not a server error.
func DecodeDataURL(dataURL string) (image.Image, error) {
	payload := dataURL
	if i := strings.IndexByte(dataURL, ','); i >= 0 {
		payload = dataURL[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", domain.ErrBadRequest)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid image data: %w", domain.ErrBadRequest)
	}
	return img, nil
}

// EncodePNG renders img back to PNG bytes for portrait storage.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode portrait: %w", err)
	}
	return buf.Bytes(), nil
}
