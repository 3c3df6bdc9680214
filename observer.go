package spot

import (
	"context"
	"time"
)

// Op names the step of a memoized call an Event describes.
type Op string

const (
	OpLookup  Op = "lookup"
	OpCompute Op = "compute"
	OpStore   Op = "store"
	OpForget  Op = "forget"
)

// Outcome classifies how an operation ended.
type Outcome string

const (
	OutcomeHit     Outcome = "hit"
	OutcomeMiss    Outcome = "miss"
	OutcomeCorrupt Outcome = "corrupt"
	OutcomeStale   Outcome = "stale"
	OutcomeUnknown Outcome = "unknown_code"
	OutcomeOK      Outcome = "ok"
	OutcomeError   Outcome = "error"
	OutcomeTimeout Outcome = "timeout"
	OutcomeShared  Outcome = "shared"
)

// Event describes one completed operation.
type Event struct {
	Namespace   string
	Func        string
	Fingerprint string
	Op          Op
	Outcome     Outcome
	Err         error
	Duration    time.Duration
	Driver      Driver
}

// Observer receives events for memoization operations.
// It is called synchronously on the calling goroutine.
type Observer interface {
	OnEvent(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, ev Event)

// OnEvent implements Observer.
func (f ObserverFunc) OnEvent(ctx context.Context, ev Event) {
	if f == nil {
		return
	}
	f(ctx, ev)
}
