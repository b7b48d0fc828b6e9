/*
scheduler.go - Automated bonus recalculation scheduler

PURPOSE:
  Periodically recalculates bonuses for the current monthly, quarterly,
  and annual periods so dashboards stay current as sales land, without
  anyone driving POST /api/bonuses/calculate by hand.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick recalculates the three periods containing "now"
  - Recalculation is replace-not-append, so repeated runs over unchanged
    sales are no-ops

CONFIGURATION:
  - CheckInterval: How often to recalculate (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewBonusScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: CalculateBonuses endpoint (manual runs)
  - engine/bonus.go: the calculation itself
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/commission-engine/engine"
)

// BonusScheduler keeps the current periods' bonuses up to date.
type BonusScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewBonusScheduler creates a new scheduler.
func NewBonusScheduler(handler *Handler) *BonusScheduler {
	return &BonusScheduler{
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (bs *BonusScheduler) Start() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if !bs.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	bs.ticker = time.NewTicker(bs.CheckInterval)
	bs.wg.Add(1)

	go bs.run()

	log.Printf("[Scheduler] Started with check interval: %v", bs.CheckInterval)
}

// Stop stops the scheduler.
func (bs *BonusScheduler) Stop() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bs.ticker != nil {
		bs.ticker.Stop()
		close(bs.stop)
		bs.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (bs *BonusScheduler) run() {
	defer bs.wg.Done()

	// Run immediately on start
	bs.recalculateCurrentPeriods()

	for {
		select {
		case <-bs.ticker.C:
			bs.recalculateCurrentPeriods()
		case <-bs.stop:
			return
		}
	}
}

func (bs *BonusScheduler) recalculateCurrentPeriods() {
	ctx := context.Background()
	now := bs.Handler.Engine.Now()

	for _, period := range engine.PeriodsForDate(now) {
		run, err := bs.Handler.Engine.CalculateBonuses(ctx, period.Type, period.Key)
		if err != nil {
			log.Printf("[Scheduler] Error recalculating %s %s: %v", period.Type, period.Key, err)
			continue
		}
		if run.Created > 0 || run.Replaced > 0 {
			log.Printf("[Scheduler] %s", run.Message())
		}
	}
}

// RunNow triggers an immediate recalculation (for testing/admin).
func (bs *BonusScheduler) RunNow() {
	bs.recalculateCurrentPeriods()
}

// GetNextRunTime returns when the next scheduled check will occur.
func (bs *BonusScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(bs.CheckInterval)
}
