package timer

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/partd/internal/store"
	"github.com/roach88/partd/internal/types"
)

// Firer receives due timers. The partition processor implements it.
type Firer interface {
	FireTimer(ctx context.Context, key types.TimerKey) error
}

// Clock is the wall clock timers are measured against.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// maxWait bounds a single sleep so far-future timers cannot overflow.
const maxWait = 24 * time.Hour

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Service fires the timers of one partition.
//
// Thread-safety model:
//   - Add(), Remove(), Len(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Service struct {
	partition types.PartitionID
	store     *store.Store
	firer     Firer
	clock     Clock
	logger    *slog.Logger

	mu     sync.Mutex
	queue  timerQueue
	signal chan struct{}
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// NewService creates the timer service of partition pid.
func NewService(pid types.PartitionID, s *store.Store, firer Firer, opts ...Option) *Service {
	svc := &Service{
		partition: pid,
		store:     s,
		firer:     firer,
		clock:     realClock{},
		logger:    slog.With("partition", uint64(pid), "component", "timer"),
		signal:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Add schedules key. Adding a scheduled key is a no-op.
func (s *Service) Add(key types.TimerKey) {
	s.mu.Lock()
	s.queue.add(key)
	s.mu.Unlock()
	s.wake()
}

// Remove unschedules key.
func (s *Service) Remove(key types.TimerKey) {
	s.mu.Lock()
	removed := s.queue.remove(key)
	s.mu.Unlock()
	if removed {
		s.wake()
	}
}

// Len returns the number of scheduled timers.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Service) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Run loads the stored timers and fires them as they become due. Blocks
// until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	n, err := s.load(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("timer service starting", "timers", n)

	for {
		wait := s.fireDue(ctx)

		var wake <-chan time.Time
		if wait >= 0 {
			wake = s.clock.After(wait)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("timer service stopping")
			return ctx.Err()
		case <-s.signal:
		case <-wake:
		}
	}
}

// load merges the stored timers into the queue.
func (s *Service) load(ctx context.Context) (int, error) {
	var keys []types.TimerKey
	err := s.store.View(ctx, func(tx *store.Tx) error {
		return tx.ScanTimers(ctx, s.partition, func(k types.TimerKey) error {
			keys = append(keys, k)
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("load timers of partition %d: %w", s.partition, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.queue.add(k)
	}
	return len(keys), nil
}

// fireDue fires every due timer and returns the time until the next one, or
// -1 if none is scheduled.
func (s *Service) fireDue(ctx context.Context) time.Duration {
	for {
		now := types.MillisFromTime(s.clock.Now())

		s.mu.Lock()
		next, ok := s.queue.peek()
		if !ok {
			s.mu.Unlock()
			return -1
		}
		if next.Timestamp > now {
			s.mu.Unlock()
			if diff := next.Timestamp - now; diff < types.MillisSinceEpoch(maxWait.Milliseconds()) {
				return time.Duration(diff) * time.Millisecond
			}
			return maxWait
		}
		heap.Pop(&s.queue)
		s.mu.Unlock()

		if err := s.firer.FireTimer(ctx, next); err != nil {
			// Stored timers are fired again after the next restart.
			s.logger.Warn("failed to fire timer", "timer", next, "error", err)
			continue
		}
		s.logger.Debug("timer fired", "timer", next)
	}
}
