package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_CapturesOutput(t *testing.T) {
	r := New()
	res, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo out; echo err >&2"}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
}

func TestRun_NonZeroExitIsNotAnError(t *testing.T) {
	r := New()
	res, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "exit 3"}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
}

func TestRun_MissingExecutable(t *testing.T) {
	r := New()
	_, err := r.Run(context.Background(), Command{Name: "definitely-not-a-real-tool-xyz"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRun_CancelledContextReportsInterruption(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	r := New()
	_, err := r.Run(ctx, Command{Name: "sleep", Args: []string{"10"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "interrupted")

	// The kill is a consequence of the cancellation, not a signal death.
	var sigErr *SignalError
	assert.False(t, errors.As(err, &sigErr))
}

func TestRun_DryRunRecordsAndSucceeds(t *testing.T) {
	r := NewDryRun()
	res, err := r.Run(context.Background(), Command{Name: "rm", Args: []string{"-rf", "/tmp/whatever"}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	recorded := r.Recorded()
	require.Len(t, recorded, 1)
	assert.Equal(t, "rm", recorded[0].Name)
	assert.Equal(t, []string{"-rf", "/tmp/whatever"}, recorded[0].Args)
}

func TestRun_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	r := New()
	res, err := r.Run(context.Background(), Command{Name: "pwd", Dir: dir})
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, dir)
}

func TestCheck(t *testing.T) {
	cmd := Command{Name: "git", Args: []string{"push"}}

	assert.NoError(t, Check(&Result{ExitCode: 0}, nil, cmd))

	err := Check(&Result{ExitCode: 128, Stderr: "fatal: remote error"}, nil, cmd)
	require.Error(t, err)
	var extErr *ExternalError
	require.True(t, errors.As(err, &extErr))
	assert.Equal(t, 128, extErr.ExitCode)
	assert.Contains(t, extErr.Error(), "git push")
	assert.Contains(t, extErr.Error(), "fatal: remote error")

	sentinel := errors.New("boom")
	assert.ErrorIs(t, Check(nil, sentinel, cmd), sentinel)
}
