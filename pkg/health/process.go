package health

import (
	"context"
	"time"
)

// ProcessProbe reports the pid of a supervised process and whether it is alive
type ProcessProbe interface {
	Running() (int, bool)
}

// ProcessChecker reports whether the broker process named by its pid file
// is alive
type ProcessChecker struct {
	Probe ProcessProbe
}

// NewProcessChecker creates a checker backed by probe
func NewProcessChecker(probe ProcessProbe) *ProcessChecker {
	return &ProcessChecker{Probe: probe}
}

// Check performs the liveness probe
func (p *ProcessChecker) Check(ctx context.Context) Result {
	start := time.Now()
	pid, alive := p.Probe.Running()

	switch {
	case alive:
		return pass(start, "process %d running", pid)
	case pid == 0:
		return fail(start, "no pid file")
	default:
		return fail(start, "process %d not running", pid)
	}
}

// Type returns the health check type
func (p *ProcessChecker) Type() CheckType {
	return CheckTypeProcess
}
