package pipeline

import (
	"context"
	"time"
)

// Stage is the generic contract every pipeline stage (C4-C8) implements:
// a name for status reporting, a soft timeout the orchestrator applies at
// the stage boundary, and a typed Run. One interface replaces a
// class-per-stage hierarchy; the orchestrator sequences concrete stages
// whose input and output types chain into each other.
type Stage[In, Out any] interface {
	Name() string
	Timeout() time.Duration
	Run(ctx context.Context, in In) (Out, error)
}
