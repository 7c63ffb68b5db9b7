package cli

import (
	"fmt"
	"time"

	"github.com/cubeops/cubeops/internal/pipeline"
	"github.com/cubeops/cubeops/internal/resource"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
)

// renderResourcePlan prints the decided action per resource.
func renderResourcePlan(plan *resource.Plan) {
	if !plan.Mutating() {
		return
	}
	fmt.Println("\nCubeops will perform the following actions:")
	for _, step := range plan.Steps {
		symbol, color := " ", colorReset
		switch step.Action {
		case resource.ActionCreate:
			symbol, color = "+", colorGreen
		case resource.ActionRecreate:
			symbol, color = "-/+", colorYellow
		}
		fmt.Printf("  %s%-3s %s%s (%s)\n", color, symbol, step.Resource.Address(), colorReset, step.Observed)
	}
	fmt.Printf("\nPlan: %d to create, %d to recreate, %d unchanged.\n",
		plan.Summary.Create, plan.Summary.Recreate, plan.Summary.Skip)
}

// renderResourceReport prints per-step outcomes after execution.
func renderResourceReport(report *resource.Report, what string) {
	if report == nil {
		return
	}
	for _, r := range report.Results {
		if r.Action == resource.ActionSkip {
			continue
		}
		if r.Succeeded {
			fmt.Printf("  %s✓%s %s (%d probe(s))\n", colorGreen, colorReset, r.Resource.Address(), r.Attempts)
		} else {
			fmt.Printf("  %s✗%s %s: %v\n", colorRed, colorReset, r.Resource.Address(), r.LastError)
		}
	}
	if report.OK() {
		fmt.Printf("\n%s is ready.\n", what)
	}
}

// renderPipelineReport prints the stage trace of a publish run.
func renderPipelineReport(report *pipeline.Report) {
	if report == nil {
		return
	}
	for _, s := range report.Stages {
		if s.Err != nil {
			fmt.Printf("  %s✗ %-13s%s %v\n", colorRed, s.Stage, colorReset, s.Err)
			continue
		}
		if s.Stage == pipeline.StageDone {
			fmt.Printf("  %s✓ DONE%s\n", colorGreen, colorReset)
			continue
		}
		fmt.Printf("  %s✓ %-13s%s %s\n", colorGreen, s.Stage, colorReset, s.Took.Round(10*time.Millisecond))
	}
}
