package executor

import (
	"image"
	"image/color"
	"testing"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestDiffRatio_IdenticalImages(t *testing.T) {
	a := solid(20, 20, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	b := solid(20, 20, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	ratio, err := diffRatio(a, b)
	if err != nil {
		t.Fatalf("diffRatio: %v", err)
	}
	if ratio != 0 {
		t.Errorf("identical images ratio = %f, want 0", ratio)
	}
}

func TestDiffRatio_QuarterChanged(t *testing.T) {
	a := solid(20, 20, color.RGBA{A: 255})
	b := solid(20, 20, color.RGBA{A: 255})
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			b.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}

	ratio, err := diffRatio(a, b)
	if err != nil {
		t.Fatalf("diffRatio: %v", err)
	}
	if ratio < 0.2 || ratio > 0.3 {
		t.Errorf("quarter-changed ratio = %f, want ~0.25", ratio)
	}
}

func TestDiffRatio_SmallColorShiftBelowThreshold(t *testing.T) {
	// A per-channel shift under the 40/255 threshold is anti-aliasing noise,
	// not a regression.
	a := solid(10, 10, color.RGBA{R: 100, G: 100, B: 100, A: 255})
	b := solid(10, 10, color.RGBA{R: 110, G: 105, B: 100, A: 255})

	ratio, err := diffRatio(a, b)
	if err != nil {
		t.Fatalf("diffRatio: %v", err)
	}
	if ratio != 0 {
		t.Errorf("sub-threshold shift ratio = %f, want 0", ratio)
	}
}

func TestDiffRatio_SizeMismatch(t *testing.T) {
	a := solid(20, 20, color.RGBA{A: 255})
	b := solid(20, 30, color.RGBA{A: 255})

	ratio, err := diffRatio(a, b)
	if err == nil {
		t.Fatal("size mismatch must error")
	}
	if ratio != 1 {
		t.Errorf("mismatch ratio = %f, want 1", ratio)
	}
}
