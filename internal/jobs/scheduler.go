package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is a periodic background task.
type Job interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

// Scheduler is responsible for running background jobs
type Scheduler struct {
	logger    *slog.Logger
	jobs      []Job
	ctx       context.Context
	cancel    context.CancelFunc
	enabled   bool
	isRunning bool

	// Mutex to prevent overlapping executions of the same job
	processingMutex sync.Mutex
	processing      map[string]bool

	tickers []*time.Ticker
	wg      sync.WaitGroup
}

func NewScheduler(logger *slog.Logger, jobs ...Job) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		logger:     logger,
		jobs:       jobs,
		ctx:        ctx,
		cancel:     cancel,
		enabled:    true,
		processing: make(map[string]bool),
	}
}

// executeJobSafely runs a job only if its previous run has finished
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func(ctx context.Context) error) {
	s.processingMutex.Lock()
	if s.processing[jobName] {
		s.logger.Debug("Skipping job execution - previous run still in progress", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.processing[jobName] = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		delete(s.processing, jobName)
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(s.ctx); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...", slog.Int("jobs", len(s.jobs)))
	s.isRunning = true

	for _, job := range s.jobs {
		s.startJob(job)
	}
	return nil
}

func (s *Scheduler) startJob(job Job) {
	interval := job.Interval()
	if interval <= 0 {
		interval = time.Hour
	}
	s.logger.Info("Starting job", slog.String("job", job.Name()), slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	s.tickers = append(s.tickers, ticker)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.executeJobSafely(job.Name(), job.Run)

		for {
			select {
			case <-ticker.C:
				s.executeJobSafely(job.Name(), job.Run)
			case <-s.ctx.Done():
				s.logger.Info("Job stopped", slog.String("job", job.Name()))
				return
			}
		}
	}()
}

// Stop halts all background jobs and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	for _, ticker := range s.tickers {
		ticker.Stop()
	}

	s.cancel()
	s.wg.Wait()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}
