// Package spin runs spin jobs: a randomized, decelerating walk over the
// submitted options that is streamed to observers tick by tick.
package spin

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"liminal/internal/active"
	"liminal/internal/events"
	"liminal/internal/history"
	"liminal/internal/metrics"
	"liminal/internal/types"
)

var (
	ErrNoOptions    = errors.New("no options provided")
	ErrShuttingDown = errors.New("spin service is shutting down")
)

type Config struct {
	BaseTicks  int
	TickJitter int
	BaseDelay  time.Duration
	DelayStep  time.Duration
	// ArchiveTimeout bounds each archive write.
	ArchiveTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseTicks:      15,
		TickJitter:     10,
		BaseDelay:      50 * time.Millisecond,
		DelayStep:      20 * time.Millisecond,
		ArchiveTimeout: 2 * time.Second,
	}
}

// Publisher is the hub as seen by a running spin.
type Publisher interface {
	Publish(t events.EventType, payload interface{}) error
}

// Archiver stores completed records outside the in-memory history.
type Archiver interface {
	Save(ctx context.Context, rec types.SpinRecord) error
}

type Option func(*Service)

func WithArchive(a Archiver) Option {
	return func(s *Service) { s.archive = a }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithRand replaces the source of uniform draws in [0, n).
func WithRand(intn func(n int) int) Option { return func(s *Service) { s.intn = intn } }

// WithSleep replaces the tick delay, mainly so tests run instantly.
func WithSleep(sleep func(time.Duration)) Option { return func(s *Service) { s.sleep = sleep } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

type Service struct {
	cfg     Config
	hub     Publisher
	active  *active.Table
	history *history.Store
	archive Archiver
	metrics *metrics.Collector
	log     *slog.Logger

	intn  func(int) int
	sleep func(time.Duration)
	now   func() time.Time

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

func NewService(cfg Config, hub Publisher, table *active.Table, store *history.Store, opts ...Option) *Service {
	s := &Service{
		cfg:     cfg,
		hub:     hub,
		active:  table,
		history: store,
		log:     slog.Default(),
		intn:    rand.Intn,
		sleep:   time.Sleep,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.ArchiveTimeout <= 0 {
		s.cfg.ArchiveTimeout = DefaultConfig().ArchiveTimeout
	}
	return s
}

// Delay is the pause before tick i. It grows linearly so the spin slows down.
func (s *Service) Delay(i int) time.Duration {
	return s.cfg.BaseDelay + time.Duration(i)*s.cfg.DelayStep
}

func (s *Service) totalTicks() int {
	if s.cfg.TickJitter <= 0 {
		return s.cfg.BaseTicks
	}
	return s.cfg.BaseTicks + s.intn(s.cfg.TickJitter)
}

// Spin validates req, starts a job and waits for it to finish. The job runs on
// its own goroutine and always completes, even if ctx is cancelled first; in
// that case Spin returns ctx.Err() and the result is only visible in history.
func (s *Service) Spin(ctx context.Context, req types.SpinRequest) (types.SpinResponse, error) {
	if len(req.Options) == 0 {
		s.metrics.RecordSpinRejected()
		return types.SpinResponse{}, ErrNoOptions
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return types.SpinResponse{}, ErrShuttingDown
	}
	s.wg.Add(1)
	s.mu.Unlock()

	j := newJob(uuid.NewString(), req, s.totalTicks(), s.now())
	done := make(chan types.SpinResponse, 1)
	go func() {
		defer s.wg.Done()
		done <- s.run(j)
	}()

	select {
	case resp := <-done:
		return resp, nil
	case <-ctx.Done():
		s.log.Warn("submitter left before spin finished", "spin", j.id, "error", ctx.Err())
		return types.SpinResponse{}, ctx.Err()
	}
}

func (s *Service) run(j *job) types.SpinResponse {
	if err := s.active.Insert(j.initial()); err != nil {
		s.log.Error("insert active spin", "spin", j.id, "error", err)
	}
	s.metrics.RecordSpinStarted()

	j.advance(types.SpinStateTicking)
	s.setState(j)
	s.publish(events.SpinStart, events.SpinStartPayload{
		SpinID:  j.id,
		Options: j.options,
		Mode:    j.mode,
	})
	s.log.Debug("spin started", "spin", j.id, "options", len(j.options), "ticks", j.totalTicks)

	for i := 0; i < j.totalTicks; i++ {
		highlight := j.highlight(i)
		s.sleep(s.Delay(i))

		s.active.Update(j.id, func(a *types.ActiveSpin) {
			a.CurrentHighlight = highlight
			a.SpinCount = i
		})
		s.publish(events.SpinTick, events.SpinTickPayload{
			SpinID:         j.id,
			HighlightIndex: highlight,
			CurrentOption:  j.options[highlight],
			Progress:       j.progress(i),
		})
		s.metrics.RecordTick()
	}

	j.advance(types.SpinStateFinalizing)
	s.setState(j)

	result := j.pick(s.intn)
	finished := s.now()
	elapsed := finished.Sub(j.startedAt)

	rec := types.SpinRecord{
		ID:         j.id,
		Timestamp:  finished.UTC(),
		Mode:       j.mode,
		Options:    j.options,
		Result:     result,
		DurationMs: elapsed.Milliseconds(),
	}
	s.history.Append(rec)
	s.metrics.SetHistorySize(s.history.Len())
	s.archiveAsync(rec)

	j.advance(types.SpinStateComplete)
	s.active.Update(j.id, func(a *types.ActiveSpin) {
		a.IsComplete = true
		a.State = types.SpinStateComplete
		a.CompletedAt = &finished
	})
	s.publish(events.SpinComplete, events.SpinCompletePayload{
		SpinID:     j.id,
		Result:     result,
		DurationMs: rec.DurationMs,
	})
	s.metrics.RecordSpinCompleted(elapsed.Seconds())
	s.log.Info("spin complete", "spin", j.id, "mode", j.mode, "result", result, "duration_ms", rec.DurationMs)

	return types.SpinResponse{
		Result:     result,
		Mode:       j.mode,
		SpinID:     j.id,
		AllOptions: j.options,
	}
}

func (s *Service) setState(j *job) {
	state := j.state
	s.active.Update(j.id, func(a *types.ActiveSpin) { a.State = state })
}

func (s *Service) publish(t events.EventType, payload interface{}) {
	if err := s.hub.Publish(t, payload); err != nil {
		s.log.Error("publish failed", "event", t, "error", err)
	}
}

func (s *Service) archiveAsync(rec types.SpinRecord) {
	if s.archive == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ArchiveTimeout)
		defer cancel()
		if err := s.archive.Save(ctx, rec); err != nil {
			s.metrics.RecordArchiveError()
			s.log.Error("archive spin", "spin", rec.ID, "error", err)
		}
	}()
}

// Shutdown stops accepting spins and waits for running ones to finish.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
