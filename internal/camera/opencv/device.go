// Package opencv implements camera.Device on top of gocv video capture.
package opencv

import (
	"context"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/example/eye-check/internal/camera"
)

// Device captures from a local video device by index.
type Device struct {
	index int
}

// NewDevice returns a device for the given video index (0 is the default
// camera).
func NewDevice(index int) *Device {
	return &Device{index: index}
}

// Open starts capturing. The context is checked before touching hardware.
func (d *Device) Open(ctx context.Context) (camera.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vc, err := gocv.OpenVideoCapture(d.index)
	if err != nil {
		return nil, fmt.Errorf("open video device %d: %v", d.index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("video device %d is not available", d.index)
	}
	return &stream{vc: vc, mat: gocv.NewMat()}, nil
}

type stream struct {
	mu  sync.Mutex
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

// Frame reads the current frame and encodes it as JPEG.
func (s *stream) Frame() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ok := s.vc.Read(&s.mat); !ok {
		return nil, fmt.Errorf("failed to read frame")
	}
	if s.mat.Empty() {
		return nil, fmt.Errorf("captured frame is empty")
	}

	buf, err := gocv.IMEncode(".jpg", s.mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %v", err)
	}
	defer buf.Close()

	frame := make([]byte, len(buf.GetBytes()))
	copy(frame, buf.GetBytes())
	return frame, nil
}

// Stop releases the capture device.
func (s *stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mat.Close()
	return s.vc.Close()
}
