package gemini

import (
	"bytes"
	"strings"

	"github.com/disintegration/imaging"
)

const maxImageSide = 1600

// PrepareImage shrinks large photos before upload. Non-image payloads and
// anything that fails to decode are returned unchanged.
func PrepareImage(data []byte, mimeType string) ([]byte, string) {
	if !strings.HasPrefix(strings.ToLower(mimeType), "image/") {
		return data, mimeType
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return data, mimeType
	}
	bounds := img.Bounds()
	if bounds.Dx() <= maxImageSide && bounds.Dy() <= maxImageSide {
		return data, mimeType
	}
	resized := imaging.Fit(img, maxImageSide, maxImageSide, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return data, mimeType
	}
	return buf.Bytes(), "image/jpeg"
}
