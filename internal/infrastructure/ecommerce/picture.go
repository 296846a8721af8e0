package ecommerce

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/disintegration/imaging"
)

// ErrInvalidPicture indicates picture bytes that cannot be decoded as an image
var ErrInvalidPicture = errors.New("ecommerce: invalid picture data")

// NormalizePicture re-encodes an image as JPEG with its longest side capped at maxSide.
// Smaller images keep their dimensions.
func NormalizePicture(data []byte, maxSide int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPicture, err)
	}

	bounds := img.Bounds()
	if maxSide > 0 && (bounds.Dx() > maxSide || bounds.Dy() > maxSide) {
		if bounds.Dx() >= bounds.Dy() {
			img = imaging.Resize(img, maxSide, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, maxSide, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("ecommerce: encode picture: %w", err)
	}
	return buf.Bytes(), nil
}
