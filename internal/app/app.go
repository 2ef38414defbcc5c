// Package app holds the session-level view state: the current analysis,
// the record open in the detail modal, and the history refresh signal.
package app

import (
	"sync"

	"go.uber.org/zap"

	"github.com/example/eye-check/internal/history"
	"github.com/example/eye-check/internal/result"
)

// Selector looks up a listed record by id.
type Selector interface {
	Select(id string) (*result.Record, bool)
}

// App is the shell shared by the acquisition, history and detail views.
type App struct {
	mu       sync.RWMutex
	current  *result.Record
	selected *result.Record

	refresh *history.Signal
	list    Selector
	logger  *zap.Logger
}

// New creates the shell. list resolves history selections.
func New(refresh *history.Signal, list Selector, logger *zap.Logger) *App {
	return &App{
		refresh: refresh,
		list:    list,
		logger:  logger.Named("app"),
	}
}

// HandleUploadSuccess makes rec the current result and asks history to
// re-fetch. rec stays the service's response; the re-fetched list holds its
// own copy of the same record.
func (a *App) HandleUploadSuccess(rec *result.Record) {
	if rec == nil {
		return
	}
	a.mu.Lock()
	a.current = rec
	a.mu.Unlock()

	n := a.refresh.Bump()
	a.logger.Debug("current result updated", zap.String("result_id", string(rec.ID)), zap.Uint64("refresh", n))
}

// Current returns the current result, or nil.
func (a *App) Current() *result.Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

// Reset clears the current result ("Analyze Another"). History is untouched.
func (a *App) Reset() {
	a.mu.Lock()
	a.current = nil
	a.mu.Unlock()
}

// Select opens the detail modal for a listed record. No request is made.
func (a *App) Select(id string) (*result.Record, bool) {
	rec, ok := a.list.Select(id)
	if !ok {
		return nil, false
	}
	a.mu.Lock()
	a.selected = rec
	a.mu.Unlock()
	return rec, true
}

// Selected returns the record open in the detail modal, or nil.
func (a *App) Selected() *result.Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.selected
}

// CloseDetail dismisses the detail modal.
func (a *App) CloseDetail() {
	a.mu.Lock()
	a.selected = nil
	a.mu.Unlock()
}
