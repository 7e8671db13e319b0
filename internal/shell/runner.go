// Package shell runs step scripts through the system shell with a timeout,
// a working directory and a capped combined output capture.
package shell

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const DefaultShell = "sh"

// ErrTimeout marks a step that was killed because it exceeded its timeout.
var ErrTimeout = errors.New("step timed out")

type Command struct {
	Script      string
	Dir         string
	Env         []string // full environment, not appended to os.Environ
	Shell       string   // defaults to DefaultShell
	Timeout     time.Duration
	OutputLimit int // bytes of combined output to keep, 0 means unlimited
}

type Result struct {
	Output    string
	ExitCode  int
	Duration  time.Duration
	Truncated bool
}

// Run executes the script via `<shell> -c <script>`. A nonzero exit returns
// the Result together with an error; callers log the output either way.
func Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Script == "" {
		return nil, errors.New("empty script")
	}
	sh := cmd.Shell
	if sh == "" {
		sh = DefaultShell
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if cmd.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	proc := exec.CommandContext(runCtx, sh, "-c", cmd.Script)
	proc.Dir = cmd.Dir
	proc.Env = cmd.Env

	out := newCapWriter(cmd.OutputLimit)
	proc.Stdout = out
	proc.Stderr = out

	started := time.Now()
	err := proc.Run()
	res := &Result{
		Output:    out.String(),
		Duration:  time.Since(started),
		Truncated: out.Truncated(),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		res.ExitCode = -1
		return res, errors.Wrapf(ErrTimeout, "after %s", cmd.Timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, errors.Errorf("exit status %d", res.ExitCode)
		}
		res.ExitCode = -1
		return res, errors.Wrap(err, "start step command")
	}
	return res, nil
}

// capWriter keeps at most limit bytes and remembers whether it dropped any.
type capWriter struct {
	mu        sync.Mutex
	buf       []byte
	limit     int
	truncated bool
}

func newCapWriter(limit int) *capWriter {
	return &capWriter{limit: limit}
}

func (w *capWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.limit <= 0 {
		w.buf = append(w.buf, p...)
		return len(p), nil
	}
	remaining := w.limit - len(w.buf)
	if remaining <= 0 {
		w.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf = append(w.buf, p[:remaining]...)
		w.truncated = true
		return len(p), nil
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *capWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.truncated {
		return string(w.buf) + "\n...[output truncated]"
	}
	return string(w.buf)
}

func (w *capWriter) Truncated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.truncated
}
