package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc"

	"github.com/meigma/swipe/connectivity"
)

const (
	// DefaultTargetDepth is the number of candidates kept ahead of the user.
	DefaultTargetDepth = 11

	// DefaultMaxAttempts bounds the discovery calls a single fill may make.
	DefaultMaxAttempts = 40
)

// State describes the buffer relative to its target depth.
type State int

const (
	// StateEmpty means nothing is buffered and no fill is running.
	StateEmpty State = iota
	// StateFilling means a fill is in flight.
	StateFilling
	// StateReady means the buffer is at target depth.
	StateReady
	// StatePartial means the buffer is below target depth and no fill is
	// running, usually because the last fill failed.
	StatePartial
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateFilling:
		return "filling"
	case StateReady:
		return "ready"
	case StatePartial:
		return "partial"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Snapshot is a point-in-time view of a Scheduler.
type Snapshot struct {
	State  State
	Items  []Candidate
	Target int
	Err    error
}

// Scheduler keeps a Buffer topped up from a Discovery source and warms the
// images of buffered candidates.
//
// Buffer mutations happen under a single mutex and fills are serialized, so
// the buffer never holds duplicates and never reorders. A new prefetch sweep
// cancels the previous one and waits for its in-flight item before walking
// the buffer from the head. Scheduler is safe for concurrent use.
type Scheduler struct {
	discovery  Discovery
	decisions  DecisionStore
	prefetcher Prefetcher // nil disables warming
	conn       Connectivity
	logger     *slog.Logger
	metrics    *Metrics

	target      int
	maxAttempts int
	sizeHint    atomic.Int64

	mu          sync.Mutex
	buf         *Buffer
	lastErr     error
	closed      bool
	fillCancel  context.CancelFunc
	sweepCancel context.CancelFunc
	sweepDone   chan struct{}

	fillMu  sync.Mutex   // serializes fills
	pending atomic.Int32 // fills running or waiting for fillMu
	topping atomic.Bool  // a background top-up is scheduled

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTargetDepth sets how many candidates to keep buffered.
// Non-positive values use DefaultTargetDepth.
func WithTargetDepth(n int) SchedulerOption {
	return func(s *Scheduler) {
		s.target = n
	}
}

// WithMaxAttempts sets the discovery call budget of a single fill.
// Non-positive values use DefaultMaxAttempts.
func WithMaxAttempts(n int) SchedulerOption {
	return func(s *Scheduler) {
		s.maxAttempts = n
	}
}

// WithSizeHint sets the initial size hint passed to the prefetcher.
func WithSizeHint(n int) SchedulerOption {
	return func(s *Scheduler) {
		s.sizeHint.Store(int64(n))
	}
}

// WithConnectivity sets the signal consulted before each discovery call.
func WithConnectivity(c Connectivity) SchedulerOption {
	return func(s *Scheduler) {
		s.conn = c
	}
}

// WithLogger sets the logger. If nil, a discard logger is used.
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithMetrics sets the Prometheus metrics to record into.
func WithMetrics(m *Metrics) SchedulerOption {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// NewScheduler creates a Scheduler with an empty buffer. prefetcher may be
// nil. No discovery happens until FillToTarget or Reload is called.
func NewScheduler(discovery Discovery, decisions DecisionStore, prefetcher Prefetcher, opts ...SchedulerOption) (*Scheduler, error) {
	if discovery == nil {
		return nil, errors.New("feed: discovery is nil")
	}
	if decisions == nil {
		return nil, errors.New("feed: decision store is nil")
	}
	s := &Scheduler{
		discovery:   discovery,
		decisions:   decisions,
		prefetcher:  prefetcher,
		conn:        connectivity.Always{},
		target:      DefaultTargetDepth,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	if s.target <= 0 {
		s.target = DefaultTargetDepth
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = DefaultMaxAttempts
	}
	if s.conn == nil {
		s.conn = connectivity.Always{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	s.buf = NewBuffer(s.target)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// TargetDepth returns the configured target depth.
func (s *Scheduler) TargetDepth() int {
	return s.target
}

// SizeHint returns the size hint passed to the prefetcher.
func (s *Scheduler) SizeHint() int {
	return int(s.sizeHint.Load())
}

// FillToTarget calls discovery until the buffer reaches the target depth.
//
// Candidates already buffered or already seen are dropped. The first failing
// discovery call ends the fill with an error matching ErrDiscovery. If the
// attempt budget runs out first, the error matches ErrExhausted. When the
// connectivity signal reports offline the fill stops with
// connectivity.ErrOffline before calling discovery. Candidates appended
// before a failure stay buffered.
func (s *Scheduler) FillToTarget(ctx context.Context) error {
	_, err := s.runFill(ctx)
	return err
}

func (s *Scheduler) runFill(ctx context.Context) (int, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	s.pending.Add(1)
	added, err := s.fill(ctx)
	s.pending.Add(-1)
	s.refillIfShort(err)
	return added, err
}

// refillIfShort tops the buffer up after a successful fill released its
// pending slot. An advance that lands while a fill is finishing skips its
// own top-up, so the buffer may already be below target here.
func (s *Scheduler) refillIfShort(err error) {
	if err != nil {
		return
	}
	s.mu.Lock()
	short := !s.closed && s.buf.Len() < s.target
	s.mu.Unlock()
	if short {
		s.topUp()
	}
}

func (s *Scheduler) fill(ctx context.Context) (int, error) {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	s.mu.Lock()
	s.fillCancel = cancel
	s.mu.Unlock()

	added, err := s.fillLoop(ctx)

	s.mu.Lock()
	if err == nil || !errors.Is(err, context.Canceled) {
		s.lastErr = err
	}
	if added > 0 && !s.closed {
		s.startSweepLocked()
	}
	s.mu.Unlock()

	s.metrics.fill(err)
	return added, err
}

func (s *Scheduler) fillLoop(ctx context.Context) (int, error) {
	var (
		added    int
		attempts int
		lastSkip error
	)
	for {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		s.mu.Lock()
		n := s.buf.Len()
		s.mu.Unlock()
		if n >= s.target {
			return added, nil
		}
		if attempts >= s.maxAttempts {
			if lastSkip == nil {
				return added, fmt.Errorf("%w after %d attempts", ErrExhausted, attempts)
			}
			return added, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastSkip)
		}
		if !s.conn.Online() {
			return added, fmt.Errorf("fill: %w", connectivity.ErrOffline)
		}

		attempts++
		c, err := s.discovery.Next(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return added, ctxErr
			}
			s.metrics.discovery(outcomeError)
			if errors.Is(err, ErrDiscovery) {
				return added, err
			}
			return added, fmt.Errorf("%w: %w", ErrDiscovery, err)
		}
		if c.ID == "" || c.URL == "" {
			s.metrics.discovery(outcomeError)
			lastSkip = fmt.Errorf("incomplete candidate %q", c.ID)
			continue
		}

		s.mu.Lock()
		buffered := s.buf.Contains(c.ID)
		s.mu.Unlock()
		if buffered {
			s.metrics.discovery(outcomeDuplicate)
			s.logger.Debug("dropping buffered candidate", "id", c.ID)
			lastSkip = fmt.Errorf("candidate %s already buffered", c.ID)
			continue
		}

		seen, err := s.decisions.IsSeen(ctx, c.ID)
		if err != nil {
			return added, fmt.Errorf("check seen %s: %w", c.ID, err)
		}
		if seen {
			s.metrics.discovery(outcomeSeen)
			s.logger.Debug("dropping seen candidate", "id", c.ID)
			lastSkip = fmt.Errorf("candidate %s already seen", c.ID)
			continue
		}

		s.mu.Lock()
		// A reset or reload may have cancelled this fill while it was
		// waiting on discovery; nothing may be appended after that.
		if err := ctx.Err(); err != nil {
			s.mu.Unlock()
			return added, err
		}
		ok := s.buf.Append(c)
		depth := s.buf.Len()
		s.mu.Unlock()
		if !ok {
			s.metrics.discovery(outcomeDuplicate)
			lastSkip = fmt.Errorf("candidate %s already buffered", c.ID)
			continue
		}
		added++
		s.metrics.discovery(outcomeAccepted)
		s.metrics.depth(depth)
	}
}

// Advance removes the head of the buffer and returns it. It starts a new
// prefetch sweep and, when the buffer drops below target depth and no fill
// is in flight, a background top-up.
func (s *Scheduler) Advance() (Candidate, bool) {
	return s.advance("")
}

// advance pops the head. If id is non-empty the head is popped only when it
// has that id.
func (s *Scheduler) advance(id string) (Candidate, bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Candidate{}, false
	}
	if head, ok := s.buf.Front(); !ok || (id != "" && head.ID != id) {
		s.mu.Unlock()
		return Candidate{}, false
	}
	head, _ := s.buf.PopFront()
	depth := s.buf.Len()
	s.startSweepLocked()
	s.mu.Unlock()

	s.metrics.depth(depth)
	if depth < s.target {
		s.topUp()
	}
	return head, true
}

func (s *Scheduler) topUp() {
	if s.pending.Load() > 0 || !s.topping.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.topping.Store(false)
		return
	}
	s.pending.Add(1)
	s.wg.Go(func() {
		_, err := s.fill(s.ctx)
		s.pending.Add(-1)
		s.topping.Store(false)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("background fill failed", "error", err)
		}
		s.refillIfShort(err)
	})
}

// Decide records a decision on the head candidate and advances past it.
// The candidate is marked seen and, when favorite is true, also favorited.
// It returns ErrEmpty when nothing is buffered.
func (s *Scheduler) Decide(ctx context.Context, favorite bool) (Candidate, error) {
	s.mu.Lock()
	closed := s.closed
	head, ok := s.buf.Front()
	s.mu.Unlock()
	if closed {
		return Candidate{}, ErrClosed
	}
	if !ok {
		return Candidate{}, ErrEmpty
	}

	if err := s.decisions.MarkSeen(ctx, head); err != nil {
		return Candidate{}, fmt.Errorf("mark seen %s: %w", head.ID, err)
	}
	if favorite {
		if err := s.decisions.AddFavorite(ctx, head); err != nil {
			return Candidate{}, fmt.Errorf("add favorite %s: %w", head.ID, err)
		}
	}
	s.metrics.decision(favorite)
	s.advance(head.ID)
	return head, nil
}

// Reload cancels background work, clears the last error and fills the
// buffer again. A new prefetch sweep starts afterwards.
func (s *Scheduler) Reload(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.cancelWorkLocked()
	s.lastErr = nil
	s.mu.Unlock()

	added, err := s.runFill(ctx)
	if added == 0 {
		s.restartSweep()
	}
	return err
}

// Reset cancels background work and empties the buffer.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelWorkLocked()
	s.buf.Reset()
	s.lastErr = nil
	s.metrics.depth(0)
}

func (s *Scheduler) cancelWorkLocked() {
	if s.fillCancel != nil {
		s.fillCancel()
	}
	if s.sweepCancel != nil {
		s.sweepCancel()
	}
}

// SetSizeHint updates the size hint and restarts the prefetch sweep so
// buffered images are warmed at the new size.
func (s *Scheduler) SetSizeHint(n int) {
	if s.sizeHint.Swap(int64(n)) == int64(n) {
		return
	}
	s.restartSweep()
}

func (s *Scheduler) restartSweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.startSweepLocked()
}

// startSweepLocked cancels the running sweep and starts a new one over the
// current buffer contents. s.mu must be held.
func (s *Scheduler) startSweepLocked() {
	if s.sweepCancel != nil {
		s.sweepCancel()
	}
	if s.prefetcher == nil {
		return
	}

	items := s.buf.Items()
	hint := int(s.sizeHint.Load())
	prev := s.sweepDone
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	s.sweepCancel, s.sweepDone = cancel, done

	s.wg.Go(func() {
		defer close(done)
		defer cancel()
		if prev != nil {
			<-prev
		}
		for _, c := range items {
			if ctx.Err() != nil {
				return
			}
			s.prefetcher.Prefetch(ctx, c.URL, hint)
		}
	})
}

// Current returns the head candidate.
func (s *Scheduler) Current() (Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Front()
}

// Next returns the candidate after the head.
func (s *Scheduler) Next() (Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.At(1)
}

// Len returns the number of buffered candidates.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

// Err returns the error of the most recent fill, or nil if it succeeded.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// State returns the current buffer state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Scheduler) stateLocked() State {
	switch n := s.buf.Len(); {
	case s.pending.Load() > 0:
		return StateFilling
	case n == 0:
		return StateEmpty
	case n >= s.target:
		return StateReady
	default:
		return StatePartial
	}
}

// Snapshot returns the current state, buffer contents and last error.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:  s.stateLocked(),
		Items:  s.buf.Items(),
		Target: s.target,
		Err:    s.lastErr,
	}
}

// Close cancels all work and waits for background goroutines to exit.
// Close is idempotent.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}
