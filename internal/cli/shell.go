// Package cli is the interactive terminal front end of eyecheck.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/example/eye-check/internal/acquisition"
	"github.com/example/eye-check/internal/app"
	"github.com/example/eye-check/internal/history"
	"github.com/example/eye-check/internal/presenter"
	"github.com/example/eye-check/internal/result"
	"github.com/example/eye-check/internal/submission"
)

const helpText = `Commands:
  mode upload|camera   switch the image source
  upload <path>        analyze an image file
  drop <path>          drag and drop an image file
  capture              take a still from the camera
  retake               discard the still and reopen the camera
  submit               analyze the captured still
  current              show the current analysis
  reset                analyze another image
  history              list past analyses
  refresh              re-fetch the history
  show <id>            open an analysis from the history
  close                close the open analysis
  save <id> <path>     download the analyzed image
  delete <id>          delete an analysis
  clear                delete all analyses
  status               show the acquisition state
  stats                show submission counters
  quit                 exit
`

var errQuit = errors.New("quit")

// Fetcher downloads stored images.
type Fetcher interface {
	FetchUpload(ctx context.Context, filename string) ([]byte, error)
}

// StatsSource reports submission counters.
type StatsSource interface {
	Stats() submission.Stats
}

// Deps are the components the shell drives.
type Deps struct {
	Session *acquisition.Session
	History *history.Synchronizer
	App     *app.App
	Uploads Fetcher
	Stats   StatsSource
	BaseURL string
}

// Shell is a line-oriented command loop.
type Shell struct {
	prompt *Prompt
	out    io.Writer
	deps   Deps
	logger *zap.Logger
}

// New creates a shell reading commands from prompt and writing to out.
func New(prompt *Prompt, out io.Writer, deps Deps, logger *zap.Logger) *Shell {
	return &Shell{
		prompt: prompt,
		out:    out,
		deps:   deps,
		logger: logger.Named("cli"),
	}
}

// Run reads and executes commands until quit, end of input, or ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	fmt.Fprintln(s.out, "eyecheck: type 'help' for commands")
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, ok := s.prompt.ReadLine("eyecheck> ")
		if !ok {
			return nil
		}
		if line == "" {
			continue
		}
		err := s.Exec(ctx, line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
}

// Exec runs one command line.
func (s *Shell) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help", "?":
		fmt.Fprint(s.out, helpText)
		return nil
	case "quit", "exit":
		return errQuit
	case "mode":
		return s.mode(ctx, args)
	case "upload":
		return s.upload(ctx, args, false)
	case "drop":
		return s.upload(ctx, args, true)
	case "capture":
		return s.capture()
	case "retake":
		return s.report(s.deps.Session.Retake(ctx))
	case "submit":
		rec, err := s.deps.Session.Submit(ctx)
		return s.submitted(rec, err)
	case "current":
		return s.showCurrent()
	case "reset":
		s.deps.App.Reset()
		fmt.Fprintln(s.out, "Ready for another image.")
		return nil
	case "history", "list":
		return s.list()
	case "refresh":
		if _, err := s.deps.History.Refresh(ctx); err != nil {
			return err
		}
		return s.list()
	case "show":
		return s.show(args)
	case "close":
		s.deps.App.CloseDetail()
		return nil
	case "save":
		return s.save(ctx, args)
	case "delete":
		return s.delete(ctx, args)
	case "clear":
		return s.clear(ctx)
	case "status":
		s.status()
		return nil
	case "stats":
		return s.stats()
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (s *Shell) mode(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: mode upload|camera")
	}
	switch strings.ToLower(args[0]) {
	case "upload":
		return s.deps.Session.SwitchToUpload()
	case "camera":
		if err := s.deps.Session.SwitchToCamera(ctx); err != nil {
			if msg := s.deps.Session.LastError(); msg != "" {
				fmt.Fprintln(s.out, msg)
				return nil
			}
			return err
		}
		fmt.Fprintln(s.out, "Camera ready. Use 'capture' to take a photo.")
		return nil
	default:
		return errors.New("usage: mode upload|camera")
	}
}

func (s *Shell) upload(ctx context.Context, args []string, drop bool) error {
	if len(args) != 1 {
		return errors.New("usage: upload <path>")
	}
	payload, err := submission.PayloadFromFile(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintln(s.out, "Analyzing...")
	var rec *result.Record
	if drop {
		s.deps.Session.DragEnter()
		rec, err = s.deps.Session.Drop(ctx, payload)
	} else {
		rec, err = s.deps.Session.SelectFile(ctx, payload)
	}
	return s.submitted(rec, err)
}

func (s *Shell) capture() error {
	if err := s.deps.Session.Capture(); err != nil {
		return s.report(err)
	}
	frame, _ := s.deps.Session.CapturedFrame()
	fmt.Fprintf(s.out, "Captured %d bytes. Use 'submit' to analyze or 'retake'.\n", len(frame.Data))
	return nil
}

func (s *Shell) submitted(rec *result.Record, err error) error {
	if err != nil {
		return s.report(err)
	}
	if rec == nil {
		return nil
	}
	return presenter.Render(s.out, presenter.Detail(rec, s.deps.BaseURL))
}

// report prints the session's user-facing message for err when it has one.
func (s *Shell) report(err error) error {
	if err == nil {
		return nil
	}
	if msg := s.deps.Session.LastError(); msg != "" {
		s.logger.Debug("command failed", zap.Error(err))
		fmt.Fprintln(s.out, msg)
		return nil
	}
	return err
}

func (s *Shell) showCurrent() error {
	current := s.deps.App.Current()
	if current == nil {
		fmt.Fprintln(s.out, "No current analysis.")
		return nil
	}
	return presenter.Render(s.out, presenter.Detail(current, s.deps.BaseURL))
}

func (s *Shell) list() error {
	if s.deps.History.Loading() {
		fmt.Fprintln(s.out, "Loading history...")
		return nil
	}
	return presenter.RenderList(s.out, s.deps.History.Items())
}

func (s *Shell) show(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: show <id>")
	}
	rec, ok := s.deps.App.Select(args[0])
	if !ok {
		return fmt.Errorf("no analysis with id %s", args[0])
	}
	return presenter.Render(s.out, presenter.Detail(rec, s.deps.BaseURL))
}

func (s *Shell) save(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: save <id> <path>")
	}
	rec, ok := s.deps.History.Select(args[0])
	if !ok {
		return fmt.Errorf("no analysis with id %s", args[0])
	}
	data, err := s.deps.Uploads.FetchUpload(ctx, rec.DisplayFilename())
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[1], data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Saved %s (%d bytes).\n", args[1], len(data))
	return nil
}

func (s *Shell) delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: delete <id>")
	}
	confirmed, err := s.deps.History.DeleteOne(ctx, args[0])
	if !confirmed {
		return nil
	}
	if selected := s.deps.App.Selected(); selected != nil && string(selected.ID) == args[0] {
		s.deps.App.CloseDetail()
	}
	if err != nil {
		s.logger.Warn("delete finished with errors", zap.Error(err))
	}
	return s.list()
}

func (s *Shell) clear(ctx context.Context) error {
	confirmed, err := s.deps.History.ClearAll(ctx)
	if !confirmed {
		return nil
	}
	s.deps.App.CloseDetail()
	if err != nil {
		s.logger.Warn("clear finished with errors", zap.Error(err))
	}
	return s.list()
}

func (s *Shell) status() {
	snap := s.deps.Session.Snapshot()
	fmt.Fprintf(s.out, "mode: %s\nstate: %s\n", snap.Mode, snap.State)
	switch {
	case snap.Mode == acquisition.ModeUpload:
		fmt.Fprintf(s.out, "can upload: %t\n", snap.CanSelectFile)
	case snap.HasFrame:
		fmt.Fprintf(s.out, "frame captured, can submit: %t\n", snap.CanSubmit)
	default:
		fmt.Fprintf(s.out, "stream live: %t, can capture: %t\n", snap.StreamLive, snap.CanCapture)
	}
	if snap.LastError != "" {
		fmt.Fprintf(s.out, "last error: %s\n", snap.LastError)
	}
}

func (s *Shell) stats() error {
	if s.deps.Stats == nil {
		return errors.New("stats unavailable")
	}
	st := s.deps.Stats.Stats()
	_, err := fmt.Fprintf(s.out, "submitted: %d\nfailed: %d\naverage latency: %s\n", st.Submitted, st.Failed, st.AverageLatency)
	return err
}
