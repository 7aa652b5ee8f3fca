package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/invitedesk/invite-dispatch-service/pkg/logger"
)

// retrySweeper is the slice of the retry scheduler the runner needs.
type retrySweeper interface {
	ProcessDue(ctx context.Context) (int, error)
}

// Runner drives the processor from a poll loop. Each tick first sweeps due
// retries back onto the queue, then lets every worker drain jobs until the
// queues are empty or the rate limiter pushes back.
type Runner struct {
	processor *Processor
	sweeper   retrySweeper
	interval  time.Duration
	workers   int

	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
	mu       sync.RWMutex

	lastRunAt      time.Time
	runsCount      int64
	processedCount int64
	requeuedCount  int64
}

func NewRunner(processor *Processor, sweeper retrySweeper, interval time.Duration, workers int) *Runner {
	if workers < 1 {
		workers = 1
	}

	return &Runner{
		processor: processor,
		sweeper:   sweeper,
		interval:  interval,
		workers:   workers,
	}
}

func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()

	if r.running {
		r.mu.Unlock()
		logger.Warnf("Dispatcher is already running")
		return nil
	}

	r.running = true
	r.stopChan = make(chan struct{})
	r.doneChan = make(chan struct{})
	r.mu.Unlock()

	logger.Infof("Starting dispatcher with interval %v and %d workers", r.interval, r.workers)

	go r.run(ctx)

	return nil
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.doneChan)

	r.tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.tick(ctx)

		case <-r.stopChan:
			logger.Warnf("Dispatcher received stop signal")
			return

		case <-ctx.Done():
			logger.Warnf("Dispatcher context cancelled")
			return
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	r.mu.Lock()
	r.lastRunAt = time.Now()
	r.runsCount++
	runNumber := r.runsCount
	r.mu.Unlock()

	requeued, err := r.sweeper.ProcessDue(ctx)
	if err != nil {
		logger.Errorf("[Run #%d] Retry sweep failed: %v", runNumber, err)
	}
	if requeued > 0 {
		logger.Infof("[Run #%d] Re-enqueued %d due retries", runNumber, requeued)
		r.mu.Lock()
		r.requeuedCount += int64(requeued)
		r.mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.drain(ctx, runNumber)
		}()
	}
	wg.Wait()
}

// drain processes jobs until the queues run dry or the rate limiter holds
// the next one back for a later poll.
func (r *Runner) drain(ctx context.Context, runNumber int64) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := r.processor.ProcessQueue(ctx)
		if err != nil {
			logger.Errorf("[Run #%d] Processing error: %v", runNumber, err)
			return
		}
		if job == nil {
			return
		}

		r.mu.Lock()
		r.processedCount++
		r.mu.Unlock()
	}
}

func (r *Runner) Stop() error {
	r.mu.Lock()

	if !r.running {
		r.mu.Unlock()
		logger.Warnf("Dispatcher is not running")
		return nil
	}

	r.running = false
	stopChan := r.stopChan
	doneChan := r.doneChan
	r.mu.Unlock()

	close(stopChan)
	<-doneChan

	logger.Infof("Dispatcher stopped")
	return nil
}

func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

type RunnerStatus struct {
	Running        bool          `json:"running"`
	LastRunAt      time.Time     `json:"lastRunAt,omitempty"`
	NextRunAt      time.Time     `json:"nextRunAt,omitempty"`
	RunsCount      int64         `json:"runsCount"`
	ProcessedCount int64         `json:"processedCount"`
	RequeuedCount  int64         `json:"requeuedCount"`
	Interval       time.Duration `json:"interval"`
	Workers        int           `json:"workers"`
}

func (r *Runner) GetStatus() RunnerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := RunnerStatus{
		Running:        r.running,
		LastRunAt:      r.lastRunAt,
		RunsCount:      r.runsCount,
		ProcessedCount: r.processedCount,
		RequeuedCount:  r.requeuedCount,
		Interval:       r.interval,
		Workers:        r.workers,
	}

	if r.running && !r.lastRunAt.IsZero() {
		status.NextRunAt = r.lastRunAt.Add(r.interval)
	}

	return status
}
