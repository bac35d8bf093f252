// Package scheduler runs periodic housekeeping on a cron schedule.
package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"liminal/internal/metrics"
)

var parser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Sweepable is anything that can drop completed entries older than a cutoff.
type Sweepable interface {
	Sweep(cutoff time.Time) int
}

// Sweeper evicts completed spins from the active table once they are older
// than the retention window.
type Sweeper struct {
	cron      *cron.Cron
	schedule  cron.Schedule
	target    Sweepable
	retention time.Duration
	metrics   *metrics.Collector
	log       *slog.Logger
	now       func() time.Time
}

func NewSweeper(target Sweepable, spec string, retention time.Duration, m *metrics.Collector, logger *slog.Logger) (*Sweeper, error) {
	sched, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sweeper{
		cron:      cron.New(cron.WithParser(parser)),
		schedule:  sched,
		target:    target,
		retention: retention,
		metrics:   m,
		log:       logger,
		now:       time.Now,
	}
	s.cron.Schedule(sched, cron.FuncJob(func() { s.RunOnce() }))
	return s, nil
}

func ParseSchedule(spec string) (cron.Schedule, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cron schedule '%s': %w", spec, err)
	}
	return sched, nil
}

// RunOnce sweeps immediately and returns how many entries were removed.
func (s *Sweeper) RunOnce() int {
	removed := s.target.Sweep(s.now().Add(-s.retention))
	s.metrics.RecordSweep(removed)
	if removed > 0 {
		s.log.Info("swept completed spins", "removed", removed, "retention", s.retention)
	}
	return removed
}

// NextRun reports when the next sweep is due.
func (s *Sweeper) NextRun() time.Time {
	return s.schedule.Next(s.now())
}

func (s *Sweeper) Start() {
	s.cron.Start()
	s.log.Info("sweeper started", "next_run", s.NextRun().UTC().Format(time.RFC3339))
}

// Stop halts the schedule and waits for a sweep in progress.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
