// Package result defines the canonical client-side representation of one
// completed eye-region analysis.
package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// HighSymmetryThreshold is the score above which symmetry is highlighted.
const HighSymmetryThreshold = 0.9

// ID is an opaque server-assigned identifier. The service may send it as a
// JSON string or number; it is always kept as a string.
type ID string

// UnmarshalJSON accepts both string and numeric identifiers.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("result: invalid id %s", data)
	}
	*id = ID(n.String())
	return nil
}

// Feature holds the measurements for one detected eye.
type Feature struct {
	Openness   float64   `json:"openness"`
	Brightness float64   `json:"brightness"`
	Confidence *float64  `json:"confidence,omitempty"`
	BBox       []float64 `json:"bbox,omitempty"`
}

// Record is one completed analysis. Records are treated as immutable once
// decoded; views share pointers to the same value.
type Record struct {
	ID             ID         `json:"id"`
	Filename       string     `json:"filename"`
	MarkedFilename string     `json:"marked_filename,omitempty"`
	URL            string     `json:"url,omitempty"`
	MarkedURL      string     `json:"marked_url,omitempty"`
	EyeCount       int        `json:"eye_count"`
	SymmetryScore  *float64   `json:"symmetry_score,omitempty"`
	Features       []Feature  `json:"features,omitempty"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
}

// UnmarshalJSON decodes a record, tolerating timestamps without a zone
// offset. An unparseable timestamp is dropped rather than failing the record.
func (r *Record) UnmarshalJSON(data []byte) error {
	type alias Record
	aux := struct {
		*alias
		Timestamp *string `json:"timestamp"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Timestamp = nil
	if aux.Timestamp != nil {
		r.Timestamp = parseTimestamp(*aux.Timestamp)
	}
	return nil
}

func parseTimestamp(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return &ts
		}
	}
	return nil
}

// DisplayFilename is the stored image to show: the marked variant when the
// service produced one, otherwise the original upload.
func (r *Record) DisplayFilename() string {
	if r.MarkedFilename != "" {
		return r.MarkedFilename
	}
	return r.Filename
}

// AverageOpenness averages openness over the features actually present.
// It returns 0 for a record without features, independent of EyeCount.
func (r *Record) AverageOpenness() float64 {
	if len(r.Features) == 0 {
		return 0
	}
	var sum float64
	for _, f := range r.Features {
		sum += f.Openness
	}
	return sum / float64(len(r.Features))
}

// AverageBrightness averages brightness over the features actually present.
func (r *Record) AverageBrightness() float64 {
	if len(r.Features) == 0 {
		return 0
	}
	var sum float64
	for _, f := range r.Features {
		sum += f.Brightness
	}
	return sum / float64(len(r.Features))
}

// SymmetryPercent returns the symmetry score as a percentage. ok is false
// when the service could not compute a score.
func (r *Record) SymmetryPercent() (pct float64, ok bool) {
	if r.SymmetryScore == nil {
		return 0, false
	}
	return *r.SymmetryScore * 100, true
}

// HighSymmetry reports whether the score exceeds HighSymmetryThreshold.
func (r *Record) HighSymmetry() bool {
	return r.SymmetryScore != nil && *r.SymmetryScore > HighSymmetryThreshold
}

// OriginalName strips the "{uuid}_" prefix the service adds to stored
// filenames. It returns "" when the filename has no prefix to strip.
func (r *Record) OriginalName() string {
	parts := strings.Split(r.Filename, "_")
	if len(parts) < 2 {
		return ""
	}
	return strings.Join(parts[1:], "_")
}
