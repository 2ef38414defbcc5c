// Package acquisition produces exactly one image payload per submission
// attempt, from either an uploaded file or a captured camera frame, and
// drives that payload through the submission pipeline.
package acquisition

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/eye-check/internal/camera"
	"github.com/example/eye-check/internal/result"
	"github.com/example/eye-check/internal/submission"
)

const (
	// MsgCameraInaccessible is shown when the camera cannot be opened.
	MsgCameraInaccessible = "Camera inaccessible. Check that a camera is connected and access is allowed."
	// MsgCaptureFailed is shown when a frame cannot be read from a live stream.
	MsgCaptureFailed = "Could not capture a frame from the camera."
)

var (
	// ErrBusy is returned for any input while a submission is in flight.
	ErrBusy = errors.New("acquisition: submission in progress")
	// ErrClosed is returned after the session has been closed.
	ErrClosed = errors.New("acquisition: session closed")
	// ErrNotUploadMode is returned for file input while in camera mode.
	ErrNotUploadMode = errors.New("acquisition: not in upload mode")
	// ErrNoStream is returned when capturing without a live stream.
	ErrNoStream = errors.New("acquisition: no live camera stream")
	// ErrNoFrame is returned when submitting or retaking without a captured frame.
	ErrNoFrame = errors.New("acquisition: no captured frame")
)

// Submitter is the submission pipeline as seen by the session.
type Submitter interface {
	Submit(ctx context.Context, payload *submission.Payload) (*result.Record, error)
}

// Session is one acquisition session, from mount to Close. Inputs are
// serialized; while a submission is in flight every other input returns
// ErrBusy without side effects.
type Session struct {
	mu         sync.Mutex
	current    variant
	submitting bool
	lastError  string
	closed     bool

	device    camera.Device
	submitter Submitter
	onSuccess func(*result.Record)
	logger    *zap.Logger
	now       func() time.Time
}

// New starts a session in upload mode. onSuccess, when non-nil, receives
// every successfully analyzed record after the session has reset.
func New(submitter Submitter, device camera.Device, onSuccess func(*result.Record), logger *zap.Logger) *Session {
	return &Session{
		current:   uploadVariant{},
		device:    device,
		submitter: submitter,
		onSuccess: onSuccess,
		logger:    logger.Named("acquisition"),
		now:       time.Now,
	}
}

// Mode returns the active source.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.mode()
}

// State returns the current acquisition state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// LastError returns the user-facing message of the last failure, or "".
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Snapshot returns a consistent view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Mode:       s.current.mode(),
		State:      s.stateLocked(),
		Submitting: s.submitting,
		LastError:  s.lastError,
	}
	switch v := s.current.(type) {
	case uploadVariant:
		snap.DragActive = v.dragging
		snap.CanSelectFile = !s.submitting
	case cameraLive:
		snap.StreamLive = v.handle.Live()
		snap.CanCapture = snap.StreamLive && !s.submitting
	case cameraCaptured:
		snap.HasFrame = true
		snap.CanSubmit = !s.submitting
	}
	return snap
}

// CapturedFrame returns the held frame, if any.
func (s *Session) CapturedFrame() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.current.(cameraCaptured); ok {
		return v.frame, true
	}
	return Frame{}, false
}

// SwitchToUpload leaves camera mode, releasing any stream and discarding
// any captured frame, and clears the last error.
func (s *Session) SwitchToUpload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.submitting {
		return ErrBusy
	}
	s.releaseLocked()
	s.current = uploadVariant{}
	s.lastError = ""
	return nil
}

// SwitchToCamera enters camera mode and opens the device. When the device
// cannot be opened the session stays in camera mode without a stream, with
// the last error set, and the error is returned.
func (s *Session) SwitchToCamera(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.submitting {
		return ErrBusy
	}
	switch s.current.(type) {
	case cameraLive, cameraCaptured:
		return nil
	}
	s.lastError = ""
	var err error
	s.current, err = s.acquireLocked(ctx)
	return err
}

// DragEnter marks a drag over the drop zone. It is ignored outside upload
// mode and while submitting.
func (s *Session) DragEnter() {
	s.setDragging(true)
}

// DragOver is equivalent to DragEnter.
func (s *Session) DragOver() {
	s.setDragging(true)
}

// DragLeave clears the drag marker.
func (s *Session) DragLeave() {
	s.setDragging(false)
}

// Drop ends a drag and submits the dropped file directly.
func (s *Session) Drop(ctx context.Context, file *submission.Payload) (*result.Record, error) {
	s.setDragging(false)
	return s.SelectFile(ctx, file)
}

// SelectFile submits a picked file. A nil or empty file is ignored and
// returns (nil, nil).
func (s *Session) SelectFile(ctx context.Context, file *submission.Payload) (*result.Record, error) {
	if file.Empty() {
		return nil, nil
	}
	return s.submit(ctx, func(v variant) (*submission.Payload, error) {
		if _, ok := v.(uploadVariant); !ok {
			return nil, ErrNotUploadMode
		}
		return file, nil
	})
}

// Capture grabs the current frame and stops the stream immediately, so the
// hardware is released before the user decides whether to submit.
func (s *Session) Capture() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.submitting {
		return ErrBusy
	}
	live, ok := s.current.(cameraLive)
	if !ok {
		return ErrNoStream
	}

	data, err := live.handle.Grab()
	if err != nil {
		s.lastError = MsgCaptureFailed
		s.logger.Warn("frame capture failed", zap.Error(err))
		return err
	}
	if err := live.handle.Release(); err != nil {
		s.logger.Warn("failed to stop camera stream", zap.Error(err))
	}
	s.current = cameraCaptured{frame: Frame{Data: data, CapturedAt: s.now()}}
	s.lastError = ""
	return nil
}

// Retake discards the captured frame and reopens the stream.
func (s *Session) Retake(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.submitting {
		return ErrBusy
	}
	if _, ok := s.current.(cameraCaptured); !ok {
		return ErrNoFrame
	}
	s.lastError = ""
	var err error
	s.current, err = s.acquireLocked(ctx)
	return err
}

// Submit sends the captured frame.
func (s *Session) Submit(ctx context.Context) (*result.Record, error) {
	return s.submit(ctx, func(v variant) (*submission.Payload, error) {
		captured, ok := v.(cameraCaptured)
		if !ok {
			return nil, ErrNoFrame
		}
		return captured.frame.payload(), nil
	})
}

// Close ends the session and releases the camera. Further inputs return
// ErrClosed; a submission already in flight completes but does not reopen
// the camera.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	err := s.releaseLocked()
	s.current = uploadVariant{}
	return err
}

// submit runs one gated submission. pick selects the payload from the
// current variant under the lock.
func (s *Session) submit(ctx context.Context, pick func(variant) (*submission.Payload, error)) (*result.Record, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.submitting {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	payload, err := pick(s.current)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.submitting = true
	s.lastError = ""
	if u, ok := s.current.(uploadVariant); ok {
		u.dragging = false
		s.current = u
	}
	s.mu.Unlock()

	rec, err := s.submitter.Submit(ctx, payload)

	s.mu.Lock()
	s.submitting = false
	if err != nil {
		s.lastError = submission.MessageOf(err)
		s.mu.Unlock()
		return nil, err
	}
	if _, ok := s.current.(cameraCaptured); ok && !s.closed {
		s.current, _ = s.acquireLocked(ctx)
	}
	onSuccess := s.onSuccess
	s.mu.Unlock()

	if onSuccess != nil {
		onSuccess(rec)
	}
	return rec, nil
}

func (s *Session) acquireLocked(ctx context.Context) (variant, error) {
	handle, err := camera.Acquire(ctx, s.device)
	if err != nil {
		s.lastError = MsgCameraInaccessible
		s.logger.Warn("camera unavailable", zap.Error(err))
		return cameraUnavailable{}, err
	}
	return cameraLive{handle: handle}, nil
}

func (s *Session) releaseLocked() error {
	live, ok := s.current.(cameraLive)
	if !ok {
		return nil
	}
	if err := live.handle.Release(); err != nil {
		s.logger.Warn("failed to stop camera stream", zap.Error(err))
		return err
	}
	return nil
}

func (s *Session) setDragging(dragging bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return
	}
	if u, ok := s.current.(uploadVariant); ok {
		u.dragging = dragging
		s.current = u
	}
}

func (s *Session) stateLocked() State {
	if s.submitting {
		return StateSubmitting
	}
	switch v := s.current.(type) {
	case uploadVariant:
		if v.dragging {
			return StateDragging
		}
		return StateIdle
	case cameraLive:
		return StateCameraIdle
	case cameraCaptured:
		return StateCameraCaptured
	default:
		return StateError
	}
}
