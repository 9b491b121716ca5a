package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	// dumpMaxRetries is the number of retries after the first attempt,
	// so a run makes at most three attempts.
	dumpMaxRetries    = 2
	dumpRetryInterval = 5 * time.Second
)

// connectionLossMarkers are pg_dump stderr fragments meaning the database
// went away mid-dump or refused the connection. Both are worth another
// attempt; anything else is not.
var connectionLossMarkers = []string{
	"server closed the connection unexpectedly",
	"connection to server",
	"could not connect to server",
	"connection refused",
	"connection reset by peer",
	"terminating connection",
	"ssl connection has been closed unexpectedly",
	"timeout expired",
}

// runner abstracts the child process invocation so the retry policy can be
// exercised without a real pg_dump.
type runner interface {
	Run(ctx context.Context, name string, args ...string) runResult
}

type runResult struct {
	ExitCode int
	Stderr   string
	// Err is a start failure or context expiry, never a plain non-zero exit.
	Err error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) runResult {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := runResult{Stderr: stderr.String()}
	if err == nil {
		return res
	}

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		res.ExitCode = -1
		res.Err = ctx.Err()
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
		res.Err = err
	}
	return res
}

// Dumper produces pg_dump custom-format artifacts under a retry policy:
// transient connection failures and cut-short attempts are retried on a
// fixed interval, everything else fails the run immediately.
type Dumper struct {
	tool          string
	run           runner
	lookPath      func(string) (string, error)
	retryInterval time.Duration
	logger        zerolog.Logger
}

func NewDumper(tool string, logger zerolog.Logger) *Dumper {
	if tool == "" {
		tool = "pg_dump"
	}
	return &Dumper{
		tool:          tool,
		run:           execRunner{},
		lookPath:      exec.LookPath,
		retryInterval: dumpRetryInterval,
		logger:        logger,
	}
}

// Dump writes a custom-format dump of the database behind connectionURL to
// outPath. On failure the partial artifact is removed and a classified
// *Error is returned.
func (d *Dumper) Dump(ctx context.Context, connectionURL, outPath string) error {
	tool, err := d.lookPath(d.tool)
	if err != nil {
		return &Error{
			Kind:    KindToolNotFound,
			Stage:   "dump",
			Message: fmt.Sprintf("%s is not installed on this host", d.tool),
			Err:     err,
		}
	}

	args := []string{
		"--format=custom",
		"--no-password",
		"--file=" + outPath,
		"--dbname=" + connectionURL,
	}

	attempt := 0
	operation := func() error {
		attempt++
		res := d.run.Run(ctx, tool, args...)
		derr := d.classify(res)
		if derr == nil {
			return nil
		}
		if !derr.Retryable() {
			return backoff.Permanent(derr)
		}
		d.logger.Warn().
			Int("attempt", attempt).
			Int("exit_code", res.ExitCode).
			Msg("dump attempt failed, retrying")
		return derr
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(d.retryInterval), dumpMaxRetries),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		_ = os.Remove(outPath)
		return err
	}

	info, err := os.Stat(outPath)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(outPath)
		return &Error{
			Kind:    KindEmptyArtifact,
			Stage:   "dump",
			Message: "dump produced an empty artifact",
			Err:     err,
		}
	}
	return nil
}

// classify sorts one attempt's outcome into the retry taxonomy.
func (d *Dumper) classify(res runResult) *Error {
	if res.Err != nil {
		switch {
		case errors.Is(res.Err, exec.ErrNotFound):
			return &Error{
				Kind:    KindToolNotFound,
				Stage:   "dump",
				Message: fmt.Sprintf("%s is not installed on this host", d.tool),
				Err:     res.Err,
			}
		case errors.Is(res.Err, context.DeadlineExceeded), errors.Is(res.Err, context.Canceled):
			return &Error{
				Kind:    KindDumpRetryable,
				Stage:   "dump",
				Message: "dump attempt was cut short",
				Err:     res.Err,
			}
		default:
			return &Error{
				Kind:    KindDumpFatal,
				Stage:   "dump",
				Message: "dump tool could not be started",
				Err:     res.Err,
			}
		}
	}

	if res.ExitCode == 0 {
		return nil
	}

	cause := fmt.Errorf("exit %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	lower := strings.ToLower(res.Stderr)
	for _, marker := range connectionLossMarkers {
		if strings.Contains(lower, marker) {
			return &Error{
				Kind:    KindDumpRetryable,
				Stage:   "dump",
				Message: "database connection was lost during dump",
				Err:     cause,
			}
		}
	}
	return &Error{
		Kind:    KindDumpFatal,
		Stage:   "dump",
		Message: "dump tool reported an unrecoverable error",
		Err:     cause,
	}
}
