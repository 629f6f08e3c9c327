package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Dev-Umb/wife-generate-game/internal/game"
	"github.com/Dev-Umb/wife-generate-game/internal/metrics"
)

const saveTimeout = 10 * time.Second

// Saver debounces persistence. Each Schedule replaces the pending snapshot
// and restarts the timer, so a burst of state changes produces one write
// of the newest state. Writes are serialized; a write that finds no pending
// snapshot (because a newer write already took it) is skipped.
type Saver struct {
	store   Store
	delay   time.Duration
	logger  *zap.Logger
	onError func(error)

	mu      sync.Mutex
	timer   *time.Timer
	pending *game.State
	closed  bool

	saveMu sync.Mutex
}

// NewSaver creates a debounced saver. onError (optional) is called after a
// failed write so the caller can surface a warning.
func NewSaver(store Store, delay time.Duration, logger *zap.Logger, onError func(error)) *Saver {
	if delay <= 0 {
		delay = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saver{store: store, delay: delay, logger: logger, onError: onError}
}

// Schedule queues st for saving after the debounce delay.
func (s *Saver) Schedule(st *game.State) {
	if st == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending = st
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		_ = s.save(ctx)
	})
}

// Flush writes the pending snapshot now, if any.
func (s *Saver) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	return s.save(ctx)
}

// Close flushes and stops accepting new snapshots.
func (s *Saver) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Flush(ctx)
}

func (s *Saver) save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	st := s.pending
	s.pending = nil
	s.mu.Unlock()
	if st == nil {
		return nil
	}

	if err := s.store.Save(ctx, st); err != nil {
		metrics.RecordSaveError()
		s.logger.Warn("session save failed",
			zap.String("session_id", st.SessionID),
			zap.Error(err))
		if s.onError != nil {
			s.onError(err)
		}
		return err
	}
	s.logger.Debug("session saved",
		zap.String("session_id", st.SessionID),
		zap.Int("messages", len(st.History)))
	return nil
}
