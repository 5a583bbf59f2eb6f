package pipeline

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate is a counting-semaphore admission gate. Capacity is fixed for the
// lifetime of the gate; an acquired slot must be released on every path,
// including failure, or later acquirers starve.
type Gate struct {
	sem *semaphore.Weighted
	cap int
}

// NewGate creates a gate admitting at most capacity concurrent holders.
func NewGate(capacity int) *Gate {
	return &Gate{sem: semaphore.NewWeighted(int64(capacity)), cap: capacity}
}

// Acquire blocks until a slot is granted or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// Release returns a slot to the gate.
func (g *Gate) Release() {
	g.sem.Release(1)
}

// Capacity returns the configured maximum number of concurrent holders.
func (g *Gate) Capacity() int {
	return g.cap
}

// Controller bounds in-flight render operations and transcription calls
// independently. The two gates are the pipeline's only serialization
// points besides the assembler's lock.
type Controller struct {
	Render     *Gate
	Transcribe *Gate
}

// NewController creates a controller with the given gate capacities.
func NewController(maxRenders, maxTranscribes int) *Controller {
	return &Controller{
		Render:     NewGate(maxRenders),
		Transcribe: NewGate(maxTranscribes),
	}
}
