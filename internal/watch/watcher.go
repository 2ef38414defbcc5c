// Package watch listens to the detection service's change feed and turns
// each change into a history refresh.
package watch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ResultsChanged is sent by the service after any create or delete.
const ResultsChanged = "results_changed"

// Event is one message on the change feed.
type Event struct {
	Type     string `json:"type"`
	ResultID string `json:"result_id,omitempty"`
}

// Bumper is the refresh signal.
type Bumper interface {
	Bump() uint64
}

// Watcher keeps a websocket open to the change feed and reconnects with
// exponential backoff until its context is cancelled.
type Watcher struct {
	url         string
	dialer      *websocket.Dialer
	signal      Bumper
	logger      *zap.Logger
	minBackoff  time.Duration
	maxBackoff  time.Duration
	stableAfter time.Duration // uptime after which a dropped connection resets backoff
}

// New creates a watcher for the service at base.
func New(base string, signal Bumper, logger *zap.Logger) (*Watcher, error) {
	eventsURL, err := EventsURL(base)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		url:         eventsURL,
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		signal:      signal,
		logger:      logger.Named("watch"),
		minBackoff:  500 * time.Millisecond,
		maxBackoff:  30 * time.Second,
		stableAfter: 10 * time.Second,
	}, nil
}

// EventsURL maps the service base URL to its websocket change feed.
func EventsURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/events"
	return u.String(), nil
}

// Run blocks until ctx is done. Failed dials and connections that drop
// before delivering anything both wait out the current backoff.
func (w *Watcher) Run(ctx context.Context) {
	backoff := w.minBackoff
	connected := false
	for {
		conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("change feed unavailable", zap.String("url", w.url), zap.Error(err), zap.Duration("retry_in", backoff))
		} else {
			if connected {
				// changes may have been missed while disconnected
				w.signal.Bump()
			}
			connected = true
			w.logger.Info("change feed connected", zap.String("url", w.url))

			start := time.Now()
			delivered := w.consume(ctx, conn)
			if ctx.Err() != nil {
				return
			}
			if delivered || time.Since(start) >= w.stableAfter {
				backoff = w.minBackoff
			}
			w.logger.Warn("change feed closed", zap.String("url", w.url), zap.Duration("retry_in", backoff))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > w.maxBackoff {
			backoff = w.maxBackoff
		}
	}
}

// consume reads events until the connection ends and reports whether any
// message arrived.
func (w *Watcher) consume(ctx context.Context, conn *websocket.Conn) bool {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	delivered := false
	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.logger.Warn("change feed dropped", zap.Error(err))
			}
			return delivered
		}
		delivered = true
		if ev.Type == ResultsChanged {
			n := w.signal.Bump()
			w.logger.Debug("results changed", zap.String("result_id", ev.ResultID), zap.Uint64("refresh", n))
		}
	}
}
