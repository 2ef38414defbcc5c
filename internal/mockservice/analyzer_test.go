package mockservice

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
)

func grayPNG(t *testing.T, w, h int, level uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestMeasureTwoEyes(t *testing.T) {
	analysis := Measure([]Detection{
		{Box: image.Rect(60, 10, 80, 20), Confidence: 0.9, Brightness: 100},
		{Box: image.Rect(10, 10, 30, 20), Confidence: 0.8, Brightness: 140},
	})

	if analysis.EyeCount != 2 {
		t.Fatalf("expected 2 eyes, got %d", analysis.EyeCount)
	}
	if analysis.Features[0].BBox[0] != 10 {
		t.Fatalf("expected eyes ordered left to right, got %v", analysis.Features[0].BBox)
	}
	if analysis.Features[0].Openness != 0.5 {
		t.Fatalf("expected openness h/w = 0.5, got %v", analysis.Features[0].Openness)
	}
	if math.Abs(analysis.SymmetryScore-1) > 1e-6 {
		t.Fatalf("expected equal areas to be symmetric, got %v", analysis.SymmetryScore)
	}
}

func TestMeasureAsymmetricEyes(t *testing.T) {
	analysis := Measure([]Detection{
		{Box: image.Rect(0, 0, 10, 10)},
		{Box: image.Rect(20, 0, 40, 10)},
	})
	// right eye is twice the left area: 1 - |100-200|/100
	if analysis.SymmetryScore > 1e-6 {
		t.Fatalf("expected score near 0, got %v", analysis.SymmetryScore)
	}
}

func TestMeasureSingleEyeIsSymmetric(t *testing.T) {
	analysis := Measure([]Detection{{Box: image.Rect(0, 0, 10, 5)}, {Box: image.Rectangle{}}})
	if analysis.EyeCount != 1 || analysis.SymmetryScore != 1 {
		t.Fatalf("unexpected analysis: %+v", analysis)
	}
}

func TestSampleAnalyzer(t *testing.T) {
	analysis, err := SampleAnalyzer{}.Analyze(context.Background(), grayPNG(t, 100, 100, 200))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if analysis.EyeCount != 2 || len(analysis.Features) != 2 {
		t.Fatalf("expected two eyes, got %+v", analysis)
	}
	if analysis.Features[0].Brightness != 200 {
		t.Fatalf("expected mean brightness 200, got %v", analysis.Features[0].Brightness)
	}
	if analysis.Marked != nil {
		t.Fatal("sample analyzer must not produce a marked image")
	}
}

func TestSampleAnalyzerRejectsGarbage(t *testing.T) {
	_, err := SampleAnalyzer{}.Analyze(context.Background(), []byte("not an image"))
	if !errors.Is(err, ErrUndecodable) {
		t.Fatalf("expected ErrUndecodable, got %v", err)
	}
}

func TestMeanGray(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.White)
	img.Set(1, 0, color.Black)
	if got := meanGray(img, img.Bounds()); math.Abs(got-127.5) > 0.01 {
		t.Fatalf("expected 127.5, got %v", got)
	}
}
