package subprocess

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shell(script string) func(string) []string {
	return func(string) []string { return []string{"-c", script} }
}

func TestRunner_Run(t *testing.T) {
	r := NewRunner(2, t.TempDir(), zerolog.Nop())
	var workDir string

	res, err := r.Run(context.Background(), Job{
		Name:   "copy",
		Binary: "/bin/sh",
		Args: func(dir string) []string {
			workDir = dir
			return []string{"-c", "cat in.txt > out.txt && echo done"}
		},
		Inputs:  map[string][]byte{"in.txt": []byte("hello")},
		Output:  "out.txt",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", string(res.Output))
	assert.Contains(t, res.Combined, "done")

	_, statErr := os.Stat(workDir)
	assert.True(t, os.IsNotExist(statErr), "work dir must be removed")
}

func TestRunner_RunFailures(t *testing.T) {
	tests := []struct {
		name       string
		script     string
		output     string
		timeout    time.Duration
		wantCode   int
		wantOutput string
		wantErr    error
	}{
		{
			name:       "non-zero exit",
			script:     "echo 'broken template' >&2; exit 3",
			wantCode:   3,
			wantOutput: "broken template",
		},
		{
			name:   "missing output",
			script: "true",
			output: "document.pdf",
		},
		{
			name:    "timeout",
			script:  "exec sleep 5",
			timeout: 100 * time.Millisecond,
			wantErr: ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRunner(1, t.TempDir(), zerolog.Nop())
			timeout := tt.timeout
			if timeout == 0 {
				timeout = 5 * time.Second
			}

			_, err := r.Run(context.Background(), Job{
				Name:    "tool",
				Binary:  "/bin/sh",
				Args:    shell(tt.script),
				Output:  tt.output,
				Timeout: timeout,
			})
			require.Error(t, err)

			var rerr *RunError
			require.True(t, errors.As(err, &rerr))
			assert.Equal(t, tt.wantCode, rerr.ExitCode)
			if tt.wantOutput != "" {
				assert.Contains(t, rerr.Combined, tt.wantOutput)
			}
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRunner_CallerCancellationDoesNotKillProcess(t *testing.T) {
	r := NewRunner(1, t.TempDir(), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	res, err := r.Run(ctx, Job{
		Name:   "slow",
		Binary: "/bin/sh",
		Args: func(string) []string {
			cancel()
			return []string{"-c", "sleep 0.2; echo ok > out.txt"}
		},
		Output:  "out.txt",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(res.Output))
}

func TestRunner_WaitForSlotHonoursContext(t *testing.T) {
	r := NewRunner(1, t.TempDir(), zerolog.Nop())
	require.NoError(t, r.sem.Acquire(context.Background(), 1))
	defer r.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx, Job{Name: "queued", Binary: "/bin/sh", Args: shell("true")})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTail(t *testing.T) {
	long := make([]byte, maxDiagnostic+10)
	for i := range long {
		long[i] = 'x'
	}
	long[len(long)-1] = 'y'

	got := tail(string(long))
	assert.Len(t, got, maxDiagnostic)
	assert.Equal(t, byte('y'), got[len(got)-1])
	assert.Equal(t, "short", tail("short"))
}
