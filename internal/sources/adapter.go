package sources

import (
	"context"

	"token-sentinel/internal/domain"
)

// EmitFunc delivers a raw candidate downstream. Implementations may block
// until the pipeline has capacity or return an error to signal shutdown.
type EmitFunc func(ctx context.Context, raw domain.RawCandidate) error

// Adapter is a single ingestion source. Run blocks until the context is
// cancelled or the source fails; the supervisor handles restarts.
type Adapter interface {
	Name() string
	Run(ctx context.Context, emit EmitFunc) error
}
