package resource

// Action is what the provisioner decided to do about a resource.
type Action string

const (
	ActionSkip     Action = "SKIP"
	ActionCreate   Action = "CREATE"
	ActionRepair   Action = "REPAIR"
	ActionRecreate Action = "RECREATE"
)

// Step pairs a resource with the decided action and the probe result that
// led to it.
type Step struct {
	Resource *Resource
	Action   Action
	Observed ObservedState
}

// Plan is the ordered sequence of steps for one run. It is built once from
// probe results and not modified during execution.
type Plan struct {
	Steps   []Step
	Summary PlanSummary
}

// PlanSummary counts steps by action.
type PlanSummary struct {
	Skip     int
	Create   int
	Recreate int
}

// NewPlan builds a plan from decided steps and tallies the summary.
func NewPlan(steps []Step) *Plan {
	p := &Plan{Steps: steps}
	for _, s := range steps {
		switch s.Action {
		case ActionSkip:
			p.Summary.Skip++
		case ActionCreate:
			p.Summary.Create++
		case ActionRecreate:
			p.Summary.Recreate++
		}
	}
	return p
}

// Mutating reports whether the plan contains any non-skip step.
func (p *Plan) Mutating() bool {
	return p.Summary.Create+p.Summary.Recreate > 0
}

// ExecutionResult is the terminal outcome of one plan step. It is never
// mutated after the step completes.
type ExecutionResult struct {
	Resource  *Resource
	Action    Action
	Succeeded bool
	Attempts  int
	LastError error
}

// Report accumulates per-step outcomes for one run.
type Report struct {
	Results []ExecutionResult
}

// Failed returns the results that did not succeed.
func (r *Report) Failed() []ExecutionResult {
	var out []ExecutionResult
	for _, res := range r.Results {
		if !res.Succeeded {
			out = append(out, res)
		}
	}
	return out
}

// OK reports whether every step succeeded.
func (r *Report) OK() bool {
	return len(r.Failed()) == 0
}
