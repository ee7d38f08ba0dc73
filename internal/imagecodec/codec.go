package imagecodec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	// imaging registers jpeg, png, gif, bmp and tiff
	_ "golang.org/x/image/webp"
)

// JPEGQuality is used for every stored image.
const JPEGQuality = 95

// ErrUnsupportedFormat is returned for data no registered decoder accepts.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// EncodeFileAsJPEG decodes the image at path and re-encodes it as JPEG.
func EncodeFileAsJPEG(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return EncodeAsJPEG(data)
}

// EncodeAsJPEG decodes any supported format (jpeg, png, gif, bmp, tiff, webp)
// and re-encodes it as JPEG. The EXIF orientation of the source is applied to
// the pixels, since the output carries no EXIF block.
func EncodeAsJPEG(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedFormat
		}
		return nil, fmt.Errorf("decode image: %w", err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// IsImage reports whether data starts with a signature of a supported format.
func IsImage(data []byte) bool {
	_, _, err := image.DecodeConfig(bytes.NewReader(data))
	return err == nil
}
