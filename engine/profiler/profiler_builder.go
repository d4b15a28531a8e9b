package profiler

import (
	"log"
	"time"
)

// ProfilerBuilderOption is a functional option for configuring a Profiler.
type ProfilerBuilderOption func(*Profiler)

// WithInterval sets how often Tick logs. Values <= 0 log every tick.
//
// Parameters:
//   - d: the update interval
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.updateInterval = max(d, 0)
	}
}

// WithLogger sends the profiler output to a specific logger.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithLogger(l *log.Logger) ProfilerBuilderOption {
	return func(p *Profiler) {
		if l != nil {
			p.logger = l
		}
	}
}
