// Package subprocess runs external tools (renderer, signer) in disposable
// working directories with bounded concurrency.
package subprocess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const (
	waitDelay     = 5 * time.Second
	maxDiagnostic = 4096
)

// ErrTimeout is returned when a job exceeds its timeout.
var ErrTimeout = errors.New("subprocess timed out")

// Job describes one invocation.
type Job struct {
	// Name identifies the job in logs and errors.
	Name   string
	Binary string
	// Args builds the argument list once the working directory exists.
	Args func(dir string) []string
	// Inputs are written into the working directory before the run.
	Inputs map[string][]byte
	// Output is read back from the working directory after a successful run.
	Output  string
	Timeout time.Duration
	Env     []string
}

// Result of a finished job.
type Result struct {
	Output   []byte
	Combined string
	Duration time.Duration
}

// RunError carries the diagnostics of a failed job.
type RunError struct {
	Name     string
	ExitCode int
	Combined string
	Err      error
}

func (e *RunError) Error() string {
	if e.ExitCode > 0 {
		return fmt.Sprintf("%s exited with code %d: %v", e.Name, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Runner executes jobs with at most n running at once.
type Runner struct {
	sem     *semaphore.Weighted
	workDir string
	log     zerolog.Logger
}

// NewRunner creates a runner. An empty workDir uses the system temp dir.
func NewRunner(concurrency int64, workDir string, log zerolog.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		sem:     semaphore.NewWeighted(concurrency),
		workDir: workDir,
		log:     log.With().Str("component", "subprocess").Logger(),
	}
}

// Run executes job. Waiting for a slot honours ctx; the process itself is bound
// only by job.Timeout so an abandoned request does not leave a half-written file.
func (r *Runner) Run(ctx context.Context, job Job) (Result, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("wait for %s slot: %w", job.Name, err)
	}
	defer r.sem.Release(1)

	dir, err := os.MkdirTemp(r.workDir, "outbox-"+job.Name+"-")
	if err != nil {
		return Result{}, fmt.Errorf("create work dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			r.log.Warn().Err(err).Str("dir", dir).Msg("failed to remove work dir")
		}
	}()

	for name, body := range job.Inputs {
		if err := os.WriteFile(filepath.Join(dir, name), body, 0o600); err != nil {
			return Result{}, fmt.Errorf("write input %s: %w", name, err)
		}
	}

	runCtx := context.WithoutCancel(ctx)
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, job.Timeout)
		defer cancel()
	}

	var args []string
	if job.Args != nil {
		args = job.Args(dir)
	}
	cmd := exec.CommandContext(runCtx, job.Binary, args...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay
	if len(job.Env) > 0 {
		cmd.Env = append(os.Environ(), job.Env...)
	}
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	start := time.Now()
	runErr := cmd.Run()
	res := Result{Combined: tail(combined.String()), Duration: time.Since(start)}

	if runErr != nil {
		rerr := &RunError{Name: job.Name, Combined: res.Combined, Err: runErr}
		var exitErr *exec.ExitError
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			rerr.Err = fmt.Errorf("%w after %s", ErrTimeout, job.Timeout)
		case errors.As(runErr, &exitErr):
			rerr.ExitCode = exitErr.ExitCode()
		}
		r.log.Error().Err(rerr).Str("job", job.Name).Dur("duration", res.Duration).Str("output", res.Combined).Msg("subprocess failed")
		return res, rerr
	}

	if job.Output != "" {
		out, err := os.ReadFile(filepath.Join(dir, job.Output))
		if err != nil {
			return res, &RunError{Name: job.Name, Combined: res.Combined, Err: fmt.Errorf("expected output %s: %w", job.Output, err)}
		}
		res.Output = out
	}
	r.log.Debug().Str("job", job.Name).Dur("duration", res.Duration).Msg("subprocess finished")
	return res, nil
}

func tail(s string) string {
	if len(s) <= maxDiagnostic {
		return s
	}
	return s[len(s)-maxDiagnostic:]
}
