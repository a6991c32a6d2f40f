package health

import (
	"context"
	"fmt"
	"time"
)

// CheckType names the kind of probe
type CheckType string

const (
	CheckTypeProcess  CheckType = "process"
	CheckTypeListener CheckType = "mqtt"
	CheckTypeTool     CheckType = "tool"
)

// Result is the outcome of one probe
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

func pass(start time.Time, format string, args ...interface{}) Result {
	return Result{Healthy: true, Message: fmt.Sprintf(format, args...), CheckedAt: start, Duration: time.Since(start)}
}

func fail(start time.Time, format string, args ...interface{}) Result {
	return Result{Healthy: false, Message: fmt.Sprintf(format, args...), CheckedAt: start, Duration: time.Since(start)}
}

// Checker probes one dependency of the managed broker
type Checker interface {
	Check(ctx context.Context) Result
	Type() CheckType
}

// Config controls probe cadence and debouncing
type Config struct {
	Interval time.Duration
	Timeout  time.Duration

	// Retries is the number of consecutive failures before a component
	// is reported unhealthy
	Retries int

	// StartPeriod is a grace period after monitoring starts in which
	// failures are ignored
	StartPeriod time.Duration
}

// DefaultConfig returns settings tolerant of one broker restart
func DefaultConfig() Config {
	return Config{
		Interval:    10 * time.Second,
		Timeout:     3 * time.Second,
		Retries:     3,
		StartPeriod: 15 * time.Second,
	}
}

// Status debounces probe results for one component. It turns unhealthy
// after Retries consecutive failures outside the start period and healthy
// again on the first success.
type Status struct {
	config   Config
	since    time.Time
	failures int
	healthy  bool
	last     Result
}

// NewStatus starts tracking a component, initially healthy
func NewStatus(config Config) *Status {
	return &Status{config: config, since: time.Now(), healthy: true}
}

// Observe folds r into the status and reports whether the verdict changed
func (s *Status) Observe(r Result) bool {
	before := s.healthy
	s.last = r

	switch {
	case r.Healthy:
		s.failures = 0
		s.healthy = true
	case s.inStartPeriod(r.CheckedAt):
	default:
		s.failures++
		if s.failures >= max(s.config.Retries, 1) {
			s.healthy = false
		}
	}
	return before != s.healthy
}

// Healthy returns the debounced verdict
func (s *Status) Healthy() bool { return s.healthy }

// Failures returns the current run of consecutive counted failures
func (s *Status) Failures() int { return s.failures }

// Last returns the most recent raw result
func (s *Status) Last() Result { return s.last }

func (s *Status) inStartPeriod(at time.Time) bool {
	if s.config.StartPeriod <= 0 {
		return false
	}
	if at.IsZero() {
		at = time.Now()
	}
	return at.Sub(s.since) < s.config.StartPeriod
}
