// Package history keeps the in-memory list of past analyses in sync with
// the detection service. Every mutation is followed by a full re-fetch.
package history

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/eye-check/internal/apiclient"
	"github.com/example/eye-check/internal/logging"
	"github.com/example/eye-check/internal/presenter"
	"github.com/example/eye-check/internal/result"
)

const (
	// PromptClearAll is asked before deleting every record.
	PromptClearAll = "Are you sure you want to clear all history?"
	// PromptDeleteOne is asked before deleting a single record.
	PromptDeleteOne = "Delete this analysis?"
)

// Service is the part of the detection service the synchronizer needs.
type Service interface {
	ListResults(ctx context.Context) ([]*result.Record, error)
	DeleteResult(ctx context.Context, id string) error
	DeleteAllResults(ctx context.Context) error
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool {
	return f(prompt)
}

// Synchronizer owns the session's history list.
type Synchronizer struct {
	service   Service
	confirmer Confirmer
	base      string
	logger    *zap.Logger

	refreshMu sync.Mutex

	mu       sync.RWMutex
	records  []*result.Record
	fetched  bool
	inFlight int
}

// New constructs a synchronizer. base is the service base URL used to build
// image links for list items.
func New(service Service, confirmer Confirmer, base string, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		service:   service,
		confirmer: confirmer,
		base:      base,
		logger:    logger.Named("history"),
	}
}

// Refresh replaces the list with the service's current one. On failure the
// previous list is kept and the error is returned after logging.
func (s *Synchronizer) Refresh(ctx context.Context) ([]*result.Record, error) {
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	requestID := uuid.NewString()
	opLogger := logging.WithOperation(s.logger, "history.refresh", requestID)
	records, err := s.service.ListResults(apiclient.WithRequestID(ctx, requestID))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	s.fetched = true
	if err != nil {
		opLogger.Error("failed to fetch history", zap.Error(err))
		return s.snapshotLocked(), logging.NewOperationError("history.refresh", requestID, err)
	}
	kept := make([]*result.Record, 0, len(records))
	for _, rec := range records {
		if rec != nil {
			kept = append(kept, rec)
		}
	}
	s.records = kept
	opLogger.Debug("history refreshed", zap.Int("count", len(records)))
	return s.snapshotLocked(), nil
}

// DeleteOne deletes id after confirmation and then refreshes, whether or not
// the delete succeeded. It reports whether the user confirmed.
func (s *Synchronizer) DeleteOne(ctx context.Context, id string) (bool, error) {
	if !s.confirm(PromptDeleteOne) {
		return false, nil
	}

	requestID := uuid.NewString()
	opLogger := logging.WithOperation(s.logger, "history.delete", requestID)
	var deleteErr error
	if err := s.service.DeleteResult(apiclient.WithRequestID(ctx, requestID), id); err != nil {
		opLogger.Error("failed to delete record", zap.String("result_id", id), zap.Error(err))
		deleteErr = logging.NewOperationError("history.delete", requestID, err)
	}

	_, refreshErr := s.Refresh(ctx)
	return true, errors.Join(deleteErr, refreshErr)
}

// ClearAll deletes every record after confirmation and then refreshes.
func (s *Synchronizer) ClearAll(ctx context.Context) (bool, error) {
	if !s.confirm(PromptClearAll) {
		return false, nil
	}

	requestID := uuid.NewString()
	opLogger := logging.WithOperation(s.logger, "history.clear", requestID)
	var clearErr error
	if err := s.service.DeleteAllResults(apiclient.WithRequestID(ctx, requestID)); err != nil {
		opLogger.Error("failed to clear history", zap.Error(err))
		clearErr = logging.NewOperationError("history.clear", requestID, err)
	}

	_, refreshErr := s.Refresh(ctx)
	return true, errors.Join(clearErr, refreshErr)
}

// Loading reports whether the list is empty while a fetch is outstanding.
// It is true from construction until the first fetch completes.
func (s *Synchronizer) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records) == 0 && (s.inFlight > 0 || !s.fetched)
}

// Records returns the current list in service order.
func (s *Synchronizer) Records() []*result.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Items returns the current list as display rows.
func (s *Synchronizer) Items() []presenter.ListItem {
	records := s.Records()
	items := make([]presenter.ListItem, 0, len(records))
	for _, rec := range records {
		items = append(items, presenter.Summarize(rec, s.base))
	}
	return items
}

// Select returns the listed record with the given id. The record is shared,
// not copied, and no request is made.
func (s *Synchronizer) Select(id string) (*result.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if string(rec.ID) == id {
			return rec, true
		}
	}
	return nil, false
}

// Run refreshes once and then after every increment of sig until ctx is
// done.
func (s *Synchronizer) Run(ctx context.Context, sig *Signal) {
	wake, cancel := sig.Subscribe()
	defer cancel()

	s.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-wake:
			s.Refresh(ctx)
		}
	}
}

func (s *Synchronizer) confirm(prompt string) bool {
	if s.confirmer == nil {
		return false
	}
	return s.confirmer.Confirm(prompt)
}

func (s *Synchronizer) snapshotLocked() []*result.Record {
	out := make([]*result.Record, len(s.records))
	copy(out, s.records)
	return out
}
