package scheduler

import "context"

// Scheduler drives the event lifecycle: it announces full events, cancels
// failed ones, plans new ones and keeps invites flowing.
type Scheduler interface {
	// Start begins the scheduling loop. Blocks until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the scheduler.
	Stop() error

	// Tick runs a single scheduling iteration.
	Tick(ctx context.Context) error
}
