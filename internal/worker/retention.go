package worker

import (
	"context"

	"github.com/raoulx24/rec-pruner/internal/recording"
	"github.com/raoulx24/rec-pruner/internal/retention"
	"github.com/raoulx24/rec-pruner/internal/scheduler"
)

// Waves is the part of the deletion scheduler a cycle talks to.
type Waves interface {
	Busy() bool
	Arm(ctx context.Context, plans []retention.Plan) (*scheduler.Wave, bool)
}

// Scanner lists the candidate directories of one monitored path.
type Scanner interface {
	Scan(ctx context.Context, root string) ([]recording.Directory, error)
}
