package holds

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ms-venue-ticketing/internal/logger"
)

// Sweeper is implemented by *Manager.
type Sweeper interface {
	Reap(ctx context.Context) (int, error)
}

// ReaperStats describes the reaper's work so far.
type ReaperStats struct {
	Running      bool
	Sweeps       int64
	TotalReaped  int64
	LastSweep    time.Time
	LastReaped   int
	LastSweepErr string
}

// Reaper runs Reap on a fixed interval until stopped.
type Reaper struct {
	sweeper  Sweeper
	interval time.Duration
	log      *logger.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	stats   ReaperStats
}

func NewReaper(sweeper Sweeper, interval time.Duration, log *logger.Logger) *Reaper {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Reaper{sweeper: sweeper, interval: interval, log: log}
}

// Start sweeps once immediately and then on every tick.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("reaper already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.mu.Unlock()

	r.log.Info("REAP", fmt.Sprintf("Starting hold reaper (every %s)", r.interval))

	r.wg.Add(1)
	go r.loop(ctx, r.stopCh)
	return nil
}

// Stop prevents further sweeps and waits for the one in flight to finish.
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	r.mu.Unlock()

	r.wg.Wait()
	r.log.Info("REAP", "Hold reaper stopped")
}

func (r *Reaper) loop(ctx context.Context, stop <-chan struct{}) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	n, err := r.sweeper.Reap(ctx)

	r.mu.Lock()
	r.stats.Sweeps++
	r.stats.TotalReaped += int64(n)
	r.stats.LastSweep = time.Now()
	r.stats.LastReaped = n
	r.stats.LastSweepErr = ""
	if err != nil {
		r.stats.LastSweepErr = err.Error()
	}
	r.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		r.log.Error("REAP", fmt.Sprintf("Sweep finished with errors (%d reaped): %v", n, err))
	}
}

func (r *Reaper) Stats() ReaperStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.Running = r.running
	return s
}
