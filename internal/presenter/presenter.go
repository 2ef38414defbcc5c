// Package presenter derives display values from analysis records. It holds
// no state and performs no network calls.
package presenter

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/example/eye-check/internal/result"
)

const (
	notAvailable = "N/A"
	justNow      = "Just now"
	unknownImage = "Unknown Image"
)

// FeatureCard is the rendered form of one eye.
type FeatureCard struct {
	Label      string
	Openness   string
	Brightness string
}

// DetailView is the full analysis panel for one record.
type DetailView struct {
	Record    *result.Record
	ImageURL  string
	EyeCount  string
	Symmetry  string
	Highlight bool
	Features  []FeatureCard
}

// ListItem is one history row.
type ListItem struct {
	ID         result.ID
	Title      string
	Date       string
	ImageURL   string
	Eyes       string
	Symmetry   string
	Openness   string
	Brightness string
}

// Detail builds the detail panel for rec. It returns nil for a nil record.
// base is the API base URL used to construct upload links.
func Detail(rec *result.Record, base string) *DetailView {
	if rec == nil {
		return nil
	}
	view := &DetailView{
		Record:    rec,
		ImageURL:  UploadURL(base, rec.DisplayFilename()),
		EyeCount:  fmt.Sprintf("%d", rec.EyeCount),
		Symmetry:  FormatSymmetry(rec),
		Highlight: rec.HighSymmetry(),
		Features:  make([]FeatureCard, 0, len(rec.Features)),
	}
	for i, f := range rec.Features {
		view.Features = append(view.Features, FeatureCard{
			Label:      fmt.Sprintf("Eye %d", i+1),
			Openness:   fmt.Sprintf("%.2f", f.Openness),
			Brightness: fmt.Sprintf("%.0f", f.Brightness),
		})
	}
	return view
}

// Summarize builds the history row for rec.
func Summarize(rec *result.Record, base string) ListItem {
	title := rec.OriginalName()
	if title == "" {
		title = unknownImage
	}
	date := justNow
	if rec.Timestamp != nil {
		date = rec.Timestamp.Local().Format("2006-01-02")
	}
	return ListItem{
		ID:         rec.ID,
		Title:      title,
		Date:       date,
		ImageURL:   ListImageURL(rec, base),
		Eyes:       fmt.Sprintf("%d", rec.EyeCount),
		Symmetry:   FormatSymmetry(rec),
		Openness:   fmt.Sprintf("%.2f", rec.AverageOpenness()),
		Brightness: fmt.Sprintf("%.0f", rec.AverageBrightness()),
	}
}

// FormatSymmetry renders the score as a one-decimal percentage, or N/A when
// the service could not compute it.
func FormatSymmetry(rec *result.Record) string {
	pct, ok := rec.SymmetryPercent()
	if !ok {
		return notAvailable
	}
	return fmt.Sprintf("%.1f%%", pct)
}

// ListImageURL resolves the thumbnail for a history row in preference order:
// marked URL, URL, then a link built from the stored filename.
func ListImageURL(rec *result.Record, base string) string {
	switch {
	case rec.MarkedURL != "":
		return rec.MarkedURL
	case rec.URL != "":
		return rec.URL
	default:
		return UploadURL(base, rec.DisplayFilename())
	}
}

// UploadURL builds the static image link for a stored filename.
func UploadURL(base, filename string) string {
	return strings.TrimRight(base, "/") + "/uploads/" + url.PathEscape(filename)
}

// Render writes the detail panel as text. A nil view renders nothing.
func Render(w io.Writer, view *DetailView) error {
	if view == nil {
		return nil
	}
	symmetry := view.Symmetry
	if view.Highlight {
		symmetry += " *"
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Analysis Result\t%s\n", view.Record.ID)
	fmt.Fprintf(tw, "Image\t%s\n", view.ImageURL)
	fmt.Fprintf(tw, "Eyes Detected\t%s\n", view.EyeCount)
	fmt.Fprintf(tw, "Symmetry Score\t%s\n", symmetry)
	if len(view.Features) > 0 {
		fmt.Fprintln(tw, "Detailed Features\t")
		for _, card := range view.Features {
			fmt.Fprintf(tw, "  %s\topenness %s\tbrightness %s\n", card.Label, card.Openness, card.Brightness)
		}
	}
	return tw.Flush()
}

// RenderList writes the history rows as a table.
func RenderList(w io.Writer, items []ListItem) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "No analysis history found.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tIMAGE\tDATE\tEYES\tSYMMETRY\tOPENNESS\tBRIGHTNESS")
	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			item.ID, item.Title, item.Date, item.Eyes, item.Symmetry, item.Openness, item.Brightness)
	}
	return tw.Flush()
}
