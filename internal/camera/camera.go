// Package camera abstracts the capture device used for still-frame
// acquisition.
package camera

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrInaccessible is returned when the device cannot be opened, for
	// example when permission is denied or no hardware is present.
	ErrInaccessible = errors.New("camera: device inaccessible")
	// ErrReleased is returned when grabbing from a released handle.
	ErrReleased = errors.New("camera: stream released")
)

// Device opens live streams.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is a live camera stream.
type Stream interface {
	// Frame returns the current frame encoded as JPEG.
	Frame() ([]byte, error)
	// Stop releases the hardware.
	Stop() error
}

// Handle owns one live stream and guarantees it is stopped exactly once,
// however many exit paths call Release.
type Handle struct {
	mu      sync.Mutex
	stream  Stream
	stopErr error
	once    sync.Once
}

// Acquire opens a stream on dev and wraps it in a Handle.
func Acquire(ctx context.Context, dev Device) (*Handle, error) {
	if dev == nil {
		return nil, ErrInaccessible
	}
	stream, err := dev.Open(ctx)
	if err != nil {
		return nil, errors.Join(ErrInaccessible, err)
	}
	return &Handle{stream: stream}, nil
}

// Grab returns the current frame.
func (h *Handle) Grab() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stream == nil {
		return nil, ErrReleased
	}
	return h.stream.Frame()
}

// Live reports whether the stream is still held.
func (h *Handle) Live() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stream != nil
}

// Release stops the stream. It is safe to call on a nil handle and more
// than once; only the first call reaches the device.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	h.once.Do(func() {
		h.mu.Lock()
		stream := h.stream
		h.stream = nil
		h.mu.Unlock()
		if stream != nil {
			h.stopErr = stream.Stop()
		}
	})
	return h.stopErr
}
