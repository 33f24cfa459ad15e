package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Settings is the runtime-adjustable part of the scheduler.
type Settings struct {
	Enabled  bool
	Interval time.Duration
}

// Interval runs a job once per configured interval on a background goroutine.
// Reconfiguration takes effect from the next tick; Stop waits for an in-flight
// job to return, so no background work leaks past shutdown.
type Interval struct {
	job    func(context.Context)
	logger *slog.Logger

	mu       sync.Mutex
	settings Settings
	reload   chan struct{}
	cancel   context.CancelFunc
	running  bool

	wg sync.WaitGroup
}

// NewInterval binds the job to its initial settings.
func NewInterval(settings Settings, job func(context.Context), logger *slog.Logger) *Interval {
	return &Interval{
		job:      job,
		logger:   logger,
		settings: settings,
		reload:   make(chan struct{}, 1),
	}
}

// Start launches the timer loop. Calling Start on a running scheduler is a no-op.
func (s *Interval) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.job == nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop halts the loop and blocks until any in-flight job has returned.
func (s *Interval) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

// Reconfigure swaps the settings used from the next tick onward. A job
// already in progress is not affected.
func (s *Interval) Reconfigure(settings Settings) {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()

	select {
	case s.reload <- struct{}{}:
	default:
	}
}

func (s *Interval) loop(ctx context.Context) {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		settings := s.settings
		s.mu.Unlock()

		if !settings.Enabled || settings.Interval <= 0 {
			select {
			case <-ctx.Done():
				return
			case <-s.reload:
				continue
			}
		}

		ticker := time.NewTicker(settings.Interval)
		select {
		case <-ctx.Done():
			ticker.Stop()
			return
		case <-s.reload:
			ticker.Stop()
			continue
		case <-ticker.C:
			ticker.Stop()
			s.info("scheduled run starting")
			s.job(ctx)
		}
	}
}

func (s *Interval) info(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}
