package scheduler

import (
	"time"

	"github.com/flywheeldev/hotswap/pkg/runtimeiface"
)

// RedefinitionRequest is (ClassIdentity, new class bytes, originating
// source, submission timestamp). Producers construct one per change and
// Submit it; only the scheduler mutates it afterward, by coalescing a
// later submission for the same identity over an earlier one.
type RedefinitionRequest struct {
	Identity    runtimeiface.ClassIdentity
	NewBytes    []byte
	Source      string
	SubmittedAt time.Time
}
