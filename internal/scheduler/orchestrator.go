package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

// Evictor drops idle sessions from memory
type Evictor interface {
	Evict(ctx context.Context, maxIdle time.Duration) int
	Live() int
}

// Config holds scheduler configuration
type Config struct {
	SweepInterval time.Duration // Default: 5m
	IdleTimeout   time.Duration // Default: 30m
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() *Config {
	return &Config{
		SweepInterval: 5 * time.Minute,
		IdleTimeout:   30 * time.Minute,
	}
}

// Orchestrator runs periodic housekeeping
type Orchestrator struct {
	sessions Evictor
	config   *Config
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewOrchestrator creates a new scheduler orchestrator
func NewOrchestrator(sessions Evictor, config *Config) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	return &Orchestrator{
		sessions: sessions,
		config:   config,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs until ctx is cancelled or Stop is called
func (o *Orchestrator) Start(ctx context.Context) {
	defer close(o.done)

	log.Printf("[scheduler] session sweep every %v (idle timeout %v)", o.config.SweepInterval, o.config.IdleTimeout)

	ticker := time.NewTicker(o.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[scheduler] stopped")
			return
		case <-o.stop:
			log.Println("[scheduler] stopped")
			return
		case <-ticker.C:
			o.Sweep(ctx)
		}
	}
}

// Sweep evicts idle sessions once
func (o *Orchestrator) Sweep(ctx context.Context) int {
	n := o.sessions.Evict(ctx, o.config.IdleTimeout)
	if n > 0 {
		log.Printf("[scheduler] evicted %d idle sessions (%d live)", n, o.sessions.Live())
	}
	return n
}

// Stop asks a running Start to return
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stop) })
}

// Done is closed once Start has returned
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}
