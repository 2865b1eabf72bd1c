package worker

import (
	"time"
)

// Job asks the worker to run one evaluation cycle.
type Job struct {
	Reason string // "startup", "schedule", "reload"
	At     time.Time
}
