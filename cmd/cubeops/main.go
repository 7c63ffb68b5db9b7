package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cubeops/cubeops/internal/cli"
	"github.com/cubeops/cubeops/internal/runner"
	"github.com/cubeops/cubeops/internal/tasks"
)

func main() {
	os.Exit(run())
}

// run isolates the exit-code logic so deferred cleanup (background task
// termination) executes before the process exits.
func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := tasks.NewTracker()
	defer func() {
		if err := tracker.TerminateAll(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}()

	if err := cli.Execute(ctx, tracker); err != nil {
		fmt.Fprintln(os.Stderr, err)

		// A failing external command decides the exit code.
		var external *runner.ExternalError
		if errors.As(err, &external) && external.ExitCode > 0 {
			return external.ExitCode
		}
		return 1
	}
	return 0
}
