package media

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// Codec encodes an image with a lossy quality knob on a 0–100 scale.
type Codec interface {
	Name() string
	MediaType() string
	Encode(w io.Writer, img image.Image, quality int) error
}

// WebPCodec is the primary, higher-efficiency codec.
type WebPCodec struct{}

func (WebPCodec) Name() string      { return "webp" }
func (WebPCodec) MediaType() string { return "image/webp" }

func (WebPCodec) Encode(w io.Writer, img image.Image, quality int) error {
	return webp.Encode(w, img, &webp.Options{Lossless: false, Quality: float32(quality)})
}

// JPEGCodec is the fallback codec every consumer can read.
type JPEGCodec struct{}

func (JPEGCodec) Name() string      { return "jpeg" }
func (JPEGCodec) MediaType() string { return "image/jpeg" }

func (JPEGCodec) Encode(w io.Writer, img image.Image, quality int) error {
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
}

// decode reads an image and applies its EXIF orientation.
func decode(buf []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(buf), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// encodeAt scales img down to width (never up) and encodes it.
func encodeAt(img image.Image, codec Codec, width, quality int) ([]byte, error) {
	if img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := codec.Encode(&buf, img, quality); err != nil {
		return nil, fmt.Errorf("encode %s q%d w%d: %w", codec.Name(), quality, width, err)
	}
	return buf.Bytes(), nil
}
