// Package provision drives resources from their observed state to the
// desired state. Per resource the machine is:
//
//	PROBE -> Healthy              -> SKIP
//	PROBE -> Absent               -> CREATE -> VERIFY
//	PROBE -> Degraded             -> TEARDOWN (best effort) -> CREATE -> VERIFY
//	VERIFY -> Healthy within the retry budget -> DONE, otherwise FAILED
//
// A plan is built once from probe results and is not revised during
// execution; a healthy resource costs a probe and nothing else.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cubeops/cubeops/internal/logging"
	"github.com/cubeops/cubeops/internal/resource"
	"github.com/cubeops/cubeops/internal/retry"
)

// FailureMode controls whether a failed step aborts the run.
type FailureMode int

const (
	// FailFast aborts the run at the first failed step. Default for
	// build/bring-up steps.
	FailFast FailureMode = iota
	// BestEffort records failures and keeps going. Default for cleanup.
	BestEffort
)

// Prober abstracts probe.Set for testing.
type Prober interface {
	Probe(ctx context.Context, res *resource.Resource) (resource.ObservedState, error)
}

// Creator knows how to create and tear down one resource kind. Teardown is
// always best-effort: its errors are logged, never fatal.
type Creator interface {
	Create(ctx context.Context, res *resource.Resource) error
	Teardown(ctx context.Context, res *resource.Resource) error
}

// Provisioner probes resources, plans actions, and executes them.
type Provisioner struct {
	probes   Prober
	creators map[resource.Kind]Creator
	budgets  map[resource.Kind]retry.Policy
	mode     FailureMode
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithMode sets the failure mode (default FailFast).
func WithMode(m FailureMode) Option {
	return func(p *Provisioner) { p.mode = m }
}

// WithBudget overrides the verify retry budget for one resource kind.
// Budgets are configuration data: heavyweight services get more attempts,
// not different code paths.
func WithBudget(kind resource.Kind, policy retry.Policy) Option {
	return func(p *Provisioner) { p.budgets[kind] = policy }
}

// DefaultBudgets returns the per-kind verify budgets. Database containers
// take far longer to accept connections than a symlink takes to appear, so
// the weights differ by an order of magnitude.
func DefaultBudgets() map[resource.Kind]retry.Policy {
	return map[resource.Kind]retry.Policy{
		// The doris FE bootstrap can take several minutes; the compose
		// budget allows up to 5 minutes total.
		resource.KindComposeService: retry.Fixed(30, 10*time.Second),
		resource.KindTCPPort:        retry.Fixed(10, 3*time.Second),
		resource.KindDBSchema:       retry.Fixed(12, 5*time.Second),
		resource.KindGitWorktree:    retry.Fixed(3, time.Second),
		resource.KindPackageLink:    retry.Fixed(3, time.Second),
		resource.KindDockerTag:      retry.Fixed(5, 5*time.Second),
	}
}

// New builds a Provisioner over the given probes and per-kind creators.
func New(probes Prober, creators map[resource.Kind]Creator, opts ...Option) *Provisioner {
	p := &Provisioner{
		probes:   probes,
		creators: creators,
		budgets:  DefaultBudgets(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BuildPlan probes every resource and decides the action for each. Healthy
// resources are skipped, absent ones created, degraded ones recreated
// (teardown first; partial state is never repaired in place).
func (p *Provisioner) BuildPlan(ctx context.Context, resources []*resource.Resource) (*resource.Plan, error) {
	steps := make([]resource.Step, 0, len(resources))
	for _, res := range resources {
		observed, err := p.probes.Probe(ctx, res)
		if err != nil {
			return nil, fmt.Errorf("probing %s: %w", res.Address(), err)
		}

		var action resource.Action
		switch observed.Health {
		case resource.Healthy:
			action = resource.ActionSkip
		case resource.Absent:
			action = resource.ActionCreate
		case resource.Degraded:
			action = resource.ActionRecreate
		}

		logging.Debug("planned", "resource", res.Address(), "observed", observed.String(), "action", string(action))
		steps = append(steps, resource.Step{Resource: res, Action: action, Observed: observed})
	}
	return resource.NewPlan(steps), nil
}

// Execute runs the plan in order. In FailFast mode the first failed step
// stops the run; in BestEffort mode failures are recorded and execution
// continues. The report always covers every attempted step.
func (p *Provisioner) Execute(ctx context.Context, plan *resource.Plan) (*resource.Report, error) {
	report := &resource.Report{}
	var errs []error

	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("provisioning cancelled: %w", err)
		}

		result := p.executeStep(ctx, step)
		report.Results = append(report.Results, result)

		if !result.Succeeded {
			err := fmt.Errorf("%s %s failed: %w", step.Action, step.Resource.Address(), result.LastError)
			if p.mode == FailFast {
				return report, err
			}
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return report, fmt.Errorf("%d resource(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return report, nil
}

func (p *Provisioner) executeStep(ctx context.Context, step resource.Step) resource.ExecutionResult {
	res := step.Resource
	result := resource.ExecutionResult{Resource: res, Action: step.Action}

	if step.Action == resource.ActionSkip {
		result.Succeeded = true
		return result
	}

	creator, ok := p.creators[res.Kind]
	if !ok {
		result.LastError = fmt.Errorf("no creator for resource kind %q", res.Kind)
		return result
	}

	if step.Action == resource.ActionRecreate {
		logging.Info("tearing down degraded resource", "resource", res.Address(), "reason", step.Observed.Reason)
		if err := creator.Teardown(ctx, res); err != nil {
			logging.Warn("teardown failed, continuing", "resource", res.Address(), "error", err)
		}
	}

	logging.Info("creating resource", "resource", res.Address())
	if err := creator.Create(ctx, res); err != nil {
		result.LastError = err
		return result
	}

	budget, ok := p.budgets[res.Kind]
	if !ok {
		budget = retry.Fixed(1, 0)
	}

	attempts := 0
	err := budget.AwaitCondition(ctx, func(ctx context.Context) (bool, string) {
		attempts++
		observed, perr := p.probes.Probe(ctx, res)
		if perr != nil {
			return false, perr.Error()
		}
		return observed.Health == resource.Healthy, observed.String()
	})

	result.Attempts = attempts
	result.Succeeded = err == nil
	result.LastError = err
	return result
}

// Teardown removes the given resources best-effort, in reverse order. It
// is the cleanup path: every error is collected, none aborts the loop.
func (p *Provisioner) Teardown(ctx context.Context, resources []*resource.Resource) error {
	var errs []error
	for i := len(resources) - 1; i >= 0; i-- {
		res := resources[i]
		creator, ok := p.creators[res.Kind]
		if !ok {
			continue
		}
		logging.Info("tearing down resource", "resource", res.Address())
		if err := creator.Teardown(ctx, res); err != nil {
			logging.Warn("teardown failed", "resource", res.Address(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", res.Address(), err))
		}
	}
	return errors.Join(errs...)
}
