package presence

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nfrund/roomchat/internal/domain"
)

const (
	// DefaultSweepInterval is how often stale online-user rows are purged.
	DefaultSweepInterval = 5 * time.Minute
	// DefaultStaleAfter is the idle time after which a row is considered dead.
	DefaultStaleAfter = 5 * time.Minute
)

// Sweeper periodically deletes online-user rows that stopped being
// refreshed. It is the backstop for disconnects that never produced a
// clean teardown.
type Sweeper struct {
	store      domain.OnlineUserRepository
	interval   time.Duration
	staleAfter time.Duration
	logger     *slog.Logger

	started  atomic.Bool
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithInterval sets the time between sweeps.
func WithInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithStaleAfter sets the idle threshold.
func WithStaleAfter(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// NewSweeper creates a Sweeper. Call Start to begin the periodic loop.
func NewSweeper(store domain.OnlineUserRepository, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:      store,
		interval:   DefaultSweepInterval,
		staleAfter: DefaultStaleAfter,
		logger:     slog.Default().With("service", "presence-sweeper"),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the sweep loop. It returns immediately; extra calls are ignored.
func (s *Sweeper) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.run()
}

func (s *Sweeper) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.SweepOnce(context.Background()); err != nil {
				s.logger.Error("presence sweep failed", "error", err)
			}
		case <-s.stop:
			return
		}
	}
}

// SweepOnce runs a single purge and returns the number of rows removed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	n, err := s.store.PurgeStaleOnlineUsers(ctx, s.staleAfter)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("purged stale online users", "count", n, "stale_after", s.staleAfter)
	}
	return n, nil
}

// Stop ends the loop and waits for an in-flight sweep to finish. It is
// safe to call more than once, and before Start.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	if s.started.Load() {
		<-s.done
	}
}
