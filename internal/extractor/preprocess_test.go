package extractor

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"testing"

	"github.com/mamage/photo-similarity/internal/config"
)

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestCoverRect(t *testing.T) {
	tests := []struct {
		name string
		src  image.Rectangle
		want image.Rectangle
	}{
		{"square", image.Rect(0, 0, 100, 100), image.Rect(0, 0, 100, 100)},
		{"landscape", image.Rect(0, 0, 400, 200), image.Rect(100, 0, 300, 200)},
		{"portrait", image.Rect(0, 0, 200, 400), image.Rect(0, 100, 200, 300)},
		{"offset origin", image.Rect(10, 10, 50, 30), image.Rect(20, 10, 40, 30)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := coverRect(tc.src); got != tc.want {
				t.Errorf("coverRect(%v) = %v; want %v", tc.src, got, tc.want)
			}
		})
	}
}

func TestCoverResize_CropsOverflowWithoutLetterbox(t *testing.T) {
	// 40x20: outer quarters green, inner half split red | blue.
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for y := range 20 {
		for x := range 40 {
			switch {
			case x < 10 || x >= 30:
				img.Set(x, y, color.RGBA{0, 255, 0, 255})
			case x < 20:
				img.Set(x, y, color.RGBA{255, 0, 0, 255})
			default:
				img.Set(x, y, color.RGBA{0, 0, 255, 255})
			}
		}
	}

	out := coverResize(img, 20)
	if out.Bounds().Dx() != 20 || out.Bounds().Dy() != 20 {
		t.Fatalf("size = %v, want 20x20", out.Bounds())
	}

	for y := range 20 {
		for x := range 20 {
			c := out.NRGBAAt(x, y)
			if c.G > 128 {
				t.Fatalf("pixel (%d,%d) = %v: green overflow was not cropped", x, y, c)
			}
			if c.A != 255 {
				t.Fatalf("pixel (%d,%d) alpha = %d: letterboxing or transparency", x, y, c.A)
			}
		}
	}
	if c := out.NRGBAAt(0, 10); c.R < 200 {
		t.Errorf("left edge = %v, want red", c)
	}
	if c := out.NRGBAAt(19, 10); c.B < 200 {
		t.Errorf("right edge = %v, want blue", c)
	}
}

func TestCoverResize_Dimensions(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		size          int
	}{
		{"landscape down", 640, 480, 224},
		{"portrait down", 480, 640, 224},
		{"upscale", 50, 80, 256},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := coverResize(createTestImage(tc.width, tc.height, color.White), tc.size)
			if out.Bounds().Dx() != tc.size || out.Bounds().Dy() != tc.size {
				t.Errorf("size = %v, want %dx%d", out.Bounds(), tc.size, tc.size)
			}
			if c := out.NRGBAAt(0, 0); c.A != 255 {
				t.Errorf("corner alpha = %d, want opaque", c.A)
			}
		})
	}
}

func TestToTensor_ChannelMajorLayout(t *testing.T) {
	img := coverResize(createTestImage(4, 4, color.RGBA{255, 0, 0, 255}), 2)
	tensor := toTensor(img, [3]float32{0, 0, 0}, [3]float32{1, 1, 1})

	if len(tensor) != 3*2*2 {
		t.Fatalf("len = %d, want 12", len(tensor))
	}
	want := []float32{1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0}
	for i := range want {
		if math.Abs(float64(tensor[i]-want[i])) > 1e-2 {
			t.Errorf("tensor[%d] = %f, want %f", i, tensor[i], want[i])
		}
	}
}

func TestPreprocess_Normalization(t *testing.T) {
	cfg := config.Load()
	profile, err := cfg.Model("resnet50")
	if err != nil {
		t.Fatal(err)
	}

	data := encodePNG(t, createTestImage(300, 250, color.RGBA{255, 255, 255, 255}))
	tensor, err := Preprocess(data, profile)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}

	plane := profile.InputSize * profile.InputSize
	if len(tensor) != 3*plane {
		t.Fatalf("len = %d, want %d", len(tensor), 3*plane)
	}
	for c := range 3 {
		want := (1 - profile.Mean[c]) / profile.Std[c]
		got := tensor[c*plane+plane/2]
		if math.Abs(float64(got-want)) > 2e-2 {
			t.Errorf("channel %d = %f, want %f", c, got, want)
		}
	}
}

func TestPreprocess_DecodesJPEG(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, createTestImage(64, 32, color.Gray{128}), nil); err != nil {
		t.Fatal(err)
	}
	profile := config.ModelProfile{Name: "tiny", InputSize: 16, Std: [3]float32{1, 1, 1}}

	tensor, err := Preprocess(buf.Bytes(), profile)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if len(tensor) != 3*16*16 {
		t.Errorf("len = %d, want %d", len(tensor), 3*16*16)
	}
}

func TestPreprocess_Errors(t *testing.T) {
	good := config.ModelProfile{Name: "tiny", InputSize: 8, Std: [3]float32{1, 1, 1}}

	tests := []struct {
		name    string
		data    []byte
		profile config.ModelProfile
	}{
		{"empty", nil, good},
		{"garbage", []byte("definitely not an image"), good},
		{"no input size", encodePNG(t, createTestImage(4, 4, color.White)), config.ModelProfile{Std: [3]float32{1, 1, 1}}},
		{"zero std", encodePNG(t, createTestImage(4, 4, color.White)), config.ModelProfile{InputSize: 8}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Preprocess(tc.data, tc.profile); err == nil {
				t.Error("expected error")
			}
		})
	}
}
