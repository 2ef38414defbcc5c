package acquisition

import (
	"fmt"
	"time"

	"github.com/example/eye-check/internal/camera"
	"github.com/example/eye-check/internal/submission"
)

// Mode selects the image source.
type Mode int

const (
	ModeUpload Mode = iota
	ModeCamera
)

func (m Mode) String() string {
	switch m {
	case ModeUpload:
		return "upload"
	case ModeCamera:
		return "camera"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// State is the observable acquisition state.
type State int

const (
	StateIdle State = iota
	StateDragging
	StateCameraIdle
	StateCameraCaptured
	StateSubmitting
	// StateError means camera mode is active but no stream could be opened.
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDragging:
		return "dragging"
	case StateCameraIdle:
		return "camera-idle"
	case StateCameraCaptured:
		return "camera-captured"
	case StateSubmitting:
		return "submitting"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Frame is a still captured from the camera.
type Frame struct {
	Data       []byte
	CapturedAt time.Time
}

func (f Frame) payload() *submission.Payload {
	return &submission.Payload{
		Name:        "capture-" + f.CapturedAt.UTC().Format("20060102-150405") + ".jpg",
		ContentType: "image/jpeg",
		Data:        f.Data,
	}
}

// variant is the mode-dependent sub-state. Each camera variant holds
// exactly one of: a live stream, a captured frame, or nothing, so a frame
// and a live stream can never coexist.
type variant interface {
	mode() Mode
}

type uploadVariant struct {
	dragging bool
}

type cameraLive struct {
	handle *camera.Handle
}

type cameraCaptured struct {
	frame Frame
}

type cameraUnavailable struct{}

func (uploadVariant) mode() Mode     { return ModeUpload }
func (cameraLive) mode() Mode        { return ModeCamera }
func (cameraCaptured) mode() Mode    { return ModeCamera }
func (cameraUnavailable) mode() Mode { return ModeCamera }

// Snapshot is a read-only view of the session for rendering controls.
type Snapshot struct {
	Mode          Mode
	State         State
	DragActive    bool
	StreamLive    bool
	HasFrame      bool
	Submitting    bool
	LastError     string
	CanSelectFile bool
	CanCapture    bool
	CanSubmit     bool
}
