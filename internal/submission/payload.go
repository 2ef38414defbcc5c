package submission

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
)

// ErrEmptyPayload is returned when there is no image data to submit.
var ErrEmptyPayload = errors.New("submission: empty image payload")

// Payload is one binary image, from a file or a captured camera frame.
type Payload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Empty reports whether there is nothing to submit.
func (p *Payload) Empty() bool {
	return p == nil || len(p.Data) == 0
}

// PayloadFromFile reads a local image file into a payload. The content type
// is sniffed from the file contents.
func PayloadFromFile(path string) (*Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return &Payload{
		Name:        filepath.Base(path),
		ContentType: http.DetectContentType(data),
		Data:        data,
	}, nil
}
