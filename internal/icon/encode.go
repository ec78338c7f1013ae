package icon

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"

	"github.com/chai2010/webp"
)

// EncodeWebPDataURI encodes img as WebP and wraps it in a data URI. A quality
// of 100 or more, or zero, selects lossless encoding.
func EncodeWebPDataURI(img image.Image, quality int) (string, error) {
	opts := &webp.Options{Lossless: true}
	if quality > 0 && quality < 100 {
		opts = &webp.Options{Quality: float32(quality)}
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, opts); err != nil {
		return "", fmt.Errorf("encode webp: %w", err)
	}
	return "data:image/webp;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// svgDataURI wraps an SVG document in a base64 data URI.
func svgDataURI(svg string) string {
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}
