package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// DefaultPollInterval is how often both lanes look for due work
const DefaultPollInterval = 15 * time.Second

// DueRunner processes one batch of due rows
type DueRunner interface {
	RunDue(ctx context.Context) (processed, failed int, err error)
}

// Scheduler drives the message lane and the purge lane on a shared poll interval.
// A lane never overlaps itself; a tick that finds its lane busy is dropped.
type Scheduler struct {
	messages DueRunner
	purges   DueRunner
	interval time.Duration
	logger   *slog.Logger

	cronLog     *cronLogger
	messageBusy atomic.Bool
	purgeBusy   atomic.Bool
	wg          sync.WaitGroup

	mu   sync.Mutex
	cron *cron.Cron // nil while stopped
}

// NewScheduler creates a new scheduler
func NewScheduler(messages, purges DueRunner, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "Scheduler")

	return &Scheduler{
		messages: messages,
		purges:   purges,
		interval: interval,
		logger:   logger,
		cronLog:  &cronLogger{logger: logger},
	}
}

// Start runs both lanes once, then on every tick until Stop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.New(cron.WithLogger(s.cronLog), cron.WithChain(cron.Recover(s.cronLog)))
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := c.AddFunc(spec, func() { s.RunMessageLane(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule message lane: %w", err)
	}
	if _, err := c.AddFunc(spec, func() { s.RunPurgeLane(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule purge lane: %w", err)
	}
	s.cron = c

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.RunMessageLane(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.RunPurgeLane(ctx)
	}()

	c.Start()
	s.logger.Info("scheduler started", "interval", s.interval)
	return nil
}

// Stop halts the ticks and waits for running passes to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.cron = nil
	s.logger.Info("scheduler stopped")
}

// RunMessageLane runs one message pass. Returns false when a pass was already running.
func (s *Scheduler) RunMessageLane(ctx context.Context) bool {
	return s.runLane(ctx, "messages", &s.messageBusy, s.messages)
}

// RunPurgeLane runs one purge pass. Returns false when a pass was already running.
func (s *Scheduler) RunPurgeLane(ctx context.Context) bool {
	return s.runLane(ctx, "purge", &s.purgeBusy, s.purges)
}

func (s *Scheduler) runLane(ctx context.Context, lane string, busy *atomic.Bool, runner DueRunner) bool {
	if !busy.CompareAndSwap(false, true) {
		s.logger.Debug("pass still running, tick dropped", "lane", lane)
		return false
	}
	defer busy.Store(false)

	log := s.logger.With("lane", lane, "pass", uuid.NewString()[:8])
	start := time.Now()

	processed, failed, err := s.runSafely(ctx, runner)
	if err != nil {
		log.Error("pass failed", "error", err)
		return true
	}
	if processed > 0 {
		log.Info("pass finished", "processed", processed, "failed", failed, "took", time.Since(start).Round(time.Millisecond))
	}
	return true
}

func (s *Scheduler) runSafely(ctx context.Context, runner DueRunner) (processed, failed int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in pass: %v", r)
		}
	}()
	return runner.RunDue(ctx)
}
