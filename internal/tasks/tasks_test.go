package tasks

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnAndTerminate(t *testing.T) {
	tracker := NewTracker()
	logPath := filepath.Join(t.TempDir(), "task.log")

	task, err := tracker.Spawn("sleeper", "sleep", []string{"60"}, "", logPath)
	require.NoError(t, err)
	require.Equal(t, 1, tracker.Count())

	// The process group must exist and match the pid.
	pgid, err := syscall.Getpgid(task.PID)
	require.NoError(t, err)
	assert.Equal(t, task.PID, pgid)

	require.NoError(t, task.Terminate())

	// Process is gone after Terminate returns.
	err = syscall.Kill(task.PID, 0)
	assert.Error(t, err)
}

func TestTerminateAllStopsEverything(t *testing.T) {
	tracker := NewTracker()
	dir := t.TempDir()

	var pids []int
	for _, name := range []string{"one", "two"} {
		task, err := tracker.Spawn(name, "sleep", []string{"60"}, "", filepath.Join(dir, name+".log"))
		require.NoError(t, err)
		pids = append(pids, task.PID)
	}

	require.NoError(t, tracker.TerminateAll())
	assert.Equal(t, 0, tracker.Count())

	for _, pid := range pids {
		assert.Error(t, syscall.Kill(pid, 0), "pid %d should be gone", pid)
	}
}

func TestTerminateExitedTaskIsNoError(t *testing.T) {
	tracker := NewTracker()
	logPath := filepath.Join(t.TempDir(), "short.log")

	task, err := tracker.Spawn("short", "true", nil, "", logPath)
	require.NoError(t, err)

	// Give the process time to exit on its own.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if syscall.Kill(task.PID, 0) != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	assert.NoError(t, task.Terminate())
}

func TestSpawnWritesOutputToLogFile(t *testing.T) {
	tracker := NewTracker()
	logPath := filepath.Join(t.TempDir(), "echo.log")

	task, err := tracker.Spawn("echo", "sh", []string{"-c", "echo hello from task"}, "", logPath)
	require.NoError(t, err)
	<-task.done

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from task")
}
