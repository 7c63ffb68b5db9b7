// Package tasks tracks detached background processes (the compiler watch,
// the dev server) whose lifetime outlives a single pipeline stage. Every
// spawned task gets its own process group so termination reaches children,
// and TerminateAll is wired to run on every exit path.
package tasks

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/cubeops/cubeops/internal/logging"
)

const terminateGrace = 5 * time.Second

// Task is a handle to one tracked background process.
type Task struct {
	Name string
	PID  int

	cmd  *exec.Cmd
	done chan struct{}
}

// Tracker collects background task handles for scoped cleanup.
type Tracker struct {
	mu    sync.Mutex
	tasks []*Task
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Spawn starts a detached process with output redirected to logPath and
// registers it for cleanup. The process is not waited on by the caller;
// the tracker reaps it in the background.
func (t *Tracker) Spawn(name, command string, args []string, dir, logPath string) (*Task, error) {
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file for %s: %w", name, err)
	}

	cmd := exec.Command(command, args...)
	cmd.Dir = dir
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return nil, fmt.Errorf("starting %s: %w", name, err)
	}
	// The child holds its own handle now.
	_ = logFile.Close()

	task := &Task{
		Name: name,
		PID:  cmd.Process.Pid,
		cmd:  cmd,
		done: make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(task.done)
	}()

	t.mu.Lock()
	t.tasks = append(t.tasks, task)
	t.mu.Unlock()

	logging.Info("spawned background task", "task", name, "pid", task.PID, "log", logPath)
	return task, nil
}

// Terminate asks the task's process group to exit, escalating to SIGKILL
// after a grace period.
func (task *Task) Terminate() error {
	select {
	case <-task.done:
		return nil
	default:
	}

	// Negative pid signals the whole process group.
	if err := syscall.Kill(-task.PID, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("terminating %s (pid %d): %w", task.Name, task.PID, err)
	}

	select {
	case <-task.done:
		return nil
	case <-time.After(terminateGrace):
	}

	if err := syscall.Kill(-task.PID, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing %s (pid %d): %w", task.Name, task.PID, err)
	}
	<-task.done
	return nil
}

// TerminateAll stops every tracked task, newest first. It is best-effort:
// every task gets a termination attempt even when earlier ones fail.
func (t *Tracker) TerminateAll() error {
	t.mu.Lock()
	tasks := make([]*Task, len(t.tasks))
	copy(tasks, t.tasks)
	t.tasks = nil
	t.mu.Unlock()

	var errs []error
	for i := len(tasks) - 1; i >= 0; i-- {
		task := tasks[i]
		logging.Debug("terminating background task", "task", task.Name, "pid", task.PID)
		if err := task.Terminate(); err != nil {
			logging.Warn("failed to terminate background task", "task", task.Name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of live tracked tasks.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tasks)
}
