package recursive

import (
	"fmt"
	"time"
)

// TraceEvent is one step of a resolution: an outbound query, a response
// summary, or a cache hit/miss (§4.7: "each...is appended to a per-resolution
// trace returned alongside the answer").
type TraceEvent struct {
	At      time.Time
	Message string
}

type resolutionState struct {
	attempts int
	depth    int
	tracing  bool
	trace    []TraceEvent
}

func newResolutionState(tracing bool) *resolutionState {
	return &resolutionState{tracing: tracing}
}

func (s *resolutionState) logf(format string, args ...any) {
	if !s.tracing {
		return
	}
	s.trace = append(s.trace, TraceEvent{At: time.Now(), Message: fmt.Sprintf(format, args...)})
}
