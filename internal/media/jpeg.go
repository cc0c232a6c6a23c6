package media

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/pkg/errors"
)

// JPEG encodes and decodes baseline JPEG at a fixed quality.
type JPEG struct {
	Quality int // 1..100; out-of-range values are clamped by image/jpeg
}

var (
	_ Encoder = JPEG{}
	_ Decoder = JPEG{}
)

// Encode compresses img.
func (j JPEG) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: j.Quality}); err != nil {
		return nil, errors.Wrap(err, "jpeg encode")
	}
	return buf.Bytes(), nil
}

// Decode decompresses data.
func (j JPEG) Decode(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "jpeg decode")
	}
	return img, nil
}
