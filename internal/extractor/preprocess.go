package extractor

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/mamage/photo-similarity/internal/config"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// decodeImage decodes any registered image format.
func decodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// coverRect returns the centred square of src that a cover fit keeps.
func coverRect(src image.Rectangle) image.Rectangle {
	w, h := src.Dx(), src.Dy()
	side := min(w, h)
	x0 := src.Min.X + (w-side)/2
	y0 := src.Min.Y + (h-side)/2
	return image.Rect(x0, y0, x0+side, y0+side)
}

// coverResize scales img so its short side equals size and centre-crops the overflow.
// The result never has letterbox bars.
func coverResize(img image.Image, size int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, coverRect(img.Bounds()), draw.Src, nil)
	return dst
}

// toTensor lays img out as a 1x3xHxW planar tensor, scaled to [0,1] and
// standardized per channel. Alpha is dropped.
func toTensor(img *image.NRGBA, mean, std [3]float32) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	out := make([]float32, 3*plane)

	for y := range h {
		row := img.Pix[y*img.Stride:]
		for x := range w {
			px := row[x*4 : x*4+3]
			i := y*w + x
			for c := range 3 {
				v := float32(px[c]) / 255
				out[c*plane+i] = (v - mean[c]) / std[c]
			}
		}
	}
	return out
}

// Preprocess turns encoded image bytes into the model's input tensor.
func Preprocess(data []byte, profile config.ModelProfile) ([]float32, error) {
	if profile.InputSize <= 0 {
		return nil, fmt.Errorf("model %s has no input size", profile.Name)
	}
	for c, sd := range profile.Std {
		if sd == 0 {
			return nil, fmt.Errorf("model %s has zero std for channel %d", profile.Name, c)
		}
	}
	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("image has no pixels")
	}
	return toTensor(coverResize(img, profile.InputSize), profile.Mean, profile.Std), nil
}

// downscale re-encodes data as JPEG when its longer side exceeds maxSide, keeping the
// aspect ratio. Images that are small enough or cannot be decoded are returned unchanged.
func downscale(data []byte, maxSide int) []byte {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxSide && height <= maxSide {
		return data
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSide
		newHeight = max(1, int(float64(height)*float64(maxSide)/float64(width)))
	} else {
		newHeight = maxSide
		newWidth = max(1, int(float64(width)*float64(maxSide)/float64(height)))
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return data
	}
	return buf.Bytes()
}
