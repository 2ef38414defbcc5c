// Package opencv provides an eye detector backed by an OpenCV Haar
// cascade.
package opencv

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"

	"github.com/example/eye-check/internal/mockservice"
)

// CascadeAnalyzer detects eyes with a Haar cascade and returns an
// annotated copy of the image.
type CascadeAnalyzer struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
}

// NewCascadeAnalyzer loads the cascade at path, for example OpenCV's
// haarcascade_eye.xml.
func NewCascadeAnalyzer(path string) (*CascadeAnalyzer, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("load cascade %s", path)
	}
	return &CascadeAnalyzer{classifier: classifier}, nil
}

// Close releases the classifier.
func (a *CascadeAnalyzer) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.classifier.Close()
}

func (a *CascadeAnalyzer) Analyze(ctx context.Context, data []byte) (*mockservice.Analysis, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil || mat.Empty() {
		if err == nil {
			mat.Close()
		}
		return nil, fmt.Errorf("%w: %v", mockservice.ErrUndecodable, err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	if err := gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray); err != nil {
		return nil, fmt.Errorf("convert to gray: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	rects := a.classifier.DetectMultiScale(gray)
	a.mu.Unlock()

	detections := make([]mockservice.Detection, 0, len(rects))
	for _, r := range rects {
		region := gray.Region(r)
		mean := region.Mean()
		region.Close()
		detections = append(detections, mockservice.Detection{
			Box:        r,
			Confidence: 1,
			Brightness: mean.Val1,
		})
	}

	analysis := mockservice.Measure(detections)
	marked, err := drawBoxes(mat, rects)
	if err != nil {
		return nil, err
	}
	analysis.Marked = marked
	return analysis, nil
}

func drawBoxes(mat gocv.Mat, rects []image.Rectangle) ([]byte, error) {
	green := color.RGBA{G: 255}
	for _, r := range rects {
		if err := gocv.Rectangle(&mat, r, green, 2); err != nil {
			return nil, fmt.Errorf("draw box: %w", err)
		}
	}

	buf, err := gocv.IMEncode(".jpg", mat)
	if err != nil {
		return nil, fmt.Errorf("encode marked image: %w", err)
	}
	defer buf.Close()
	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
