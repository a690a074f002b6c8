/*
scheduler.go - Automated delinquency sweep scheduler

PURPOSE:
  Periodically runs the delinquency sweep so overdue installments and mora
  loans are flagged without waiting for a payment or a manual trigger.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick sweeps every open loan under its own lock
  - Loans locked by concurrent payments are skipped, not waited on
  - Disabled by default; operators opt in via cmd/server flags

USAGE:
  scheduler := NewSweepScheduler(eng)
  scheduler.CheckInterval = 12 * time.Hour
  scheduler.Enabled = true
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerSweep endpoint (manual sweep)
  - engine/delinquency.go: Classification rules
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/credit-engine/engine"
)

// SweepScheduler handles automated delinquency sweeps.
type SweepScheduler struct {
	Engine        *engine.Engine
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweepScheduler creates a new scheduler, disabled by default.
func NewSweepScheduler(eng *engine.Engine) *SweepScheduler {
	return &SweepScheduler{
		Engine:        eng,
		CheckInterval: 1 * time.Hour,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ss *SweepScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.wg.Add(1)

	go ss.run()

	log.Printf("[Scheduler] Started with check interval: %v", ss.CheckInterval)
}

// Stop stops the scheduler.
func (ss *SweepScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ss *SweepScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start
	ss.sweep()

	for {
		select {
		case <-ss.ticker.C:
			ss.sweep()
		case <-ss.stop:
			return
		}
	}
}

func (ss *SweepScheduler) sweep() {
	ctx := context.Background()
	asOf := engine.Today()

	result, err := ss.Engine.SweepDelinquency(ctx, asOf)
	if err != nil {
		log.Printf("[Scheduler] Sweep failed: %v", err)
		return
	}

	log.Printf("[Scheduler] Sweep as of %s: %d loans examined, %d installments overdue, %d loans in mora, %d skipped",
		asOf, result.LoansExamined, result.InstallmentsOverdue, result.LoansDelinquent, result.LoansSkipped)
}
