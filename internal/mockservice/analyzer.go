package mockservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"sort"

	"github.com/example/eye-check/internal/result"
)

// ErrUndecodable is returned when the upload is not a readable image.
var ErrUndecodable = errors.New("mockservice: could not load image")

// Detection is one eye region found by an Analyzer.
type Detection struct {
	Box        image.Rectangle
	Confidence float64
	// Brightness is the mean gray level inside Box, 0-255.
	Brightness float64
}

// Analysis is the outcome of analyzing one image.
type Analysis struct {
	EyeCount      int
	SymmetryScore float64
	Features      []result.Feature
	// Marked is an annotated JPEG, or nil when the analyzer draws nothing.
	Marked []byte
}

// Analyzer finds eyes in an encoded image.
type Analyzer interface {
	Analyze(ctx context.Context, data []byte) (*Analysis, error)
}

// Measure turns detections into features. Openness is the box aspect
// ratio h/w. With exactly two eyes the symmetry score compares their areas
// left to right; otherwise it is 1.
func Measure(detections []Detection) *Analysis {
	dets := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if !d.Box.Empty() {
			dets = append(dets, d)
		}
	}

	symmetry := 1.0
	if len(dets) == 2 {
		sort.Slice(dets, func(i, j int) bool { return dets[i].Box.Min.X < dets[j].Box.Min.X })
		left := area(dets[0].Box)
		right := area(dets[1].Box)
		symmetry = math.Max(0, 1-math.Abs(left-right)/(left+1e-6))
	}

	features := make([]result.Feature, 0, len(dets))
	for _, d := range dets {
		w := float64(d.Box.Dx())
		h := float64(d.Box.Dy())
		confidence := d.Confidence
		features = append(features, result.Feature{
			Openness:   h / w,
			Brightness: d.Brightness,
			Confidence: &confidence,
			BBox:       []float64{float64(d.Box.Min.X), float64(d.Box.Min.Y), float64(d.Box.Max.X), float64(d.Box.Max.Y)},
		})
	}

	return &Analysis{
		EyeCount:      len(features),
		SymmetryScore: symmetry,
		Features:      features,
	}
}

func area(r image.Rectangle) float64 {
	return float64(r.Dx()) * float64(r.Dy())
}

// SampleAnalyzer places two eye regions at fixed proportions of the face
// image. It stands in for a trained detector during development.
type SampleAnalyzer struct{}

func (SampleAnalyzer) Analyze(ctx context.Context, data []byte) (*Analysis, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	regions := []image.Rectangle{
		image.Rect(b.Min.X+w*20/100, b.Min.Y+h*30/100, b.Min.X+w*42/100, b.Min.Y+h*42/100),
		image.Rect(b.Min.X+w*58/100, b.Min.Y+h*30/100, b.Min.X+w*80/100, b.Min.Y+h*42/100),
	}

	detections := make([]Detection, 0, len(regions))
	for _, r := range regions {
		if r.Empty() {
			continue
		}
		detections = append(detections, Detection{
			Box:        r,
			Confidence: 0.5,
			Brightness: meanGray(img, r),
		})
	}
	return Measure(detections), nil
}

func meanGray(img image.Image, r image.Rectangle) float64 {
	var sum float64
	var n int
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			sum += float64(g.Y)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
