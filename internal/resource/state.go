package resource

// Health classifies an observed state.
type Health int

const (
	// Absent means the resource does not exist at all.
	Absent Health = iota
	// Healthy means the resource exists and passes its kind-specific check.
	Healthy
	// Degraded means partial or broken state exists. Degraded always routes
	// to Recreate, never Repair: tearing down and rebuilding is the only
	// defined recovery for partial state.
	Degraded
)

func (h Health) String() string {
	switch h {
	case Absent:
		return "absent"
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	}
	return "unknown"
}

// ObservedState is a point-in-time snapshot from a probe.
type ObservedState struct {
	Health Health
	Reason string // set for Degraded
}

// AbsentState reports a missing resource.
func AbsentState() ObservedState { return ObservedState{Health: Absent} }

// HealthyState reports a present, working resource.
func HealthyState() ObservedState { return ObservedState{Health: Healthy} }

// DegradedState reports broken partial state with the reason.
func DegradedState(reason string) ObservedState {
	return ObservedState{Health: Degraded, Reason: reason}
}

func (s ObservedState) String() string {
	if s.Health == Degraded && s.Reason != "" {
		return "degraded: " + s.Reason
	}
	return s.Health.String()
}
