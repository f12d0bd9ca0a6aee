package broker

import (
	"context"
	"time"

	"github.com/dgellow/atweet/internal/log"
)

// Syncer is what the scheduler runs on every tick
type Syncer interface {
	Fetch(ctx context.Context) bool
}

// Scheduler periodically pulls the access token on a satellite. Runs never
// overlap: the loop is a single goroutine.
type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewScheduler creates a scheduler running syncer every interval
func NewScheduler(syncer Syncer, interval time.Duration) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the sync loop in a goroutine
func (s *Scheduler) Start(ctx context.Context) {
	log.LogInfoWithFields("broker", "Starting remote token sync", map[string]any{
		"interval": s.interval.String(),
	})

	go s.run(ctx)
}

// Stop stops the loop and waits for an in-progress sync to finish
func (s *Scheduler) Stop() {
	log.Logf("Stopping remote token sync...")
	close(s.stopChan)
	<-s.doneChan
	log.Logf("Remote token sync stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Sync immediately on start
	s.sync(ctx)

	for {
		select {
		case <-ticker.C:
			s.sync(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) sync(ctx context.Context) {
	if s.syncer.Fetch(ctx) {
		lastSyncSuccess.SetToCurrentTime()
		log.LogDebugWithFields("broker", "Scheduled sync completed", nil)
	}
}
