// Package metrics defines the instrumentation hooks used by the routing core
// and the server, with a no-op and a Prometheus implementation.
package metrics

// Recorder receives routing, lifecycle and planning outcomes.
type Recorder interface {
	// RouteResolved counts router outcomes: "container", "hole" or "none".
	RouteResolved(outcome string)
	// ReservationFailed counts reservations that could not be committed.
	ReservationFailed(reason string)
	// InvariantViolation counts refused operations that indicate a broken caller.
	InvariantViolation(op string)
	ItemPromoted()
	ContainerFilled()
	ContainerRemoved()
	// PlanComputed counts balance plans by result: "valid", "lenient" or "invalid".
	PlanComputed(result string)
	// PlanCache counts plan cache lookups: "hit", "miss" or "error".
	PlanCache(result string)
	SessionsActive(n int)
}

// NopMetrics discards everything.
type NopMetrics struct{}

var _ Recorder = (*NopMetrics)(nil)

// NewNop returns a recorder that does nothing.
func NewNop() *NopMetrics { return &NopMetrics{} }

func (*NopMetrics) RouteResolved(string)      {}
func (*NopMetrics) ReservationFailed(string)  {}
func (*NopMetrics) InvariantViolation(string) {}
func (*NopMetrics) ItemPromoted()             {}
func (*NopMetrics) ContainerFilled()          {}
func (*NopMetrics) ContainerRemoved()         {}
func (*NopMetrics) PlanComputed(string)       {}
func (*NopMetrics) PlanCache(string)          {}
func (*NopMetrics) SessionsActive(int)        {}
