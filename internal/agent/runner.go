package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/xela07ax/spaceai-fleet/internal/domain"
	"github.com/xela07ax/spaceai-fleet/internal/policy"
	"go.uber.org/zap"
)

// 1 MB на поток вывода
const MaxOutputSize = 1 << 20

type limitBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (l *limitBuffer) Write(p []byte) (int, error) {
	if room := l.limit - l.buf.Len(); room < len(p) {
		if room > 0 {
			l.buf.Write(p[:room])
		}
		l.truncated = true
		return len(p), nil
	}
	return l.buf.Write(p)
}

func (l *limitBuffer) String() string {
	if l.truncated {
		return l.buf.String() + "\n[OUTPUT LIMIT EXCEEDED - TRUNCATED]\n"
	}
	return l.buf.String()
}

// Result — итог исполнения одной команды.
type Result struct {
	Stdout string
	Stderr string
	Err    error
}

// Update превращает результат в финальное обновление задачи.
func (r Result) Update() domain.JobUpdate {
	if r.Err == nil {
		st, out := domain.JobCompleted, r.Stdout
		return domain.JobUpdate{Status: &st, Output: &out}
	}
	st := domain.JobFailed
	msg := strings.TrimSpace(r.Stderr)
	if msg == "" {
		msg = r.Err.Error()
	}
	u := domain.JobUpdate{Status: &st, Error: &msg}
	if r.Stdout != "" {
		out := r.Stdout
		u.Output = &out
	}
	return u
}

// Runner исполняет команды из белого списка через системный shell.
type Runner struct {
	goos    string
	timeout time.Duration
	logger  *zap.Logger
}

func NewRunner(timeout time.Duration, logger *zap.Logger) *Runner {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Runner{goos: runtime.GOOS, timeout: timeout, logger: logger.Named("runner")}
}

// Run проверяет команду по белому списку повторно (защита на стороне агента)
// и исполняет полную строку, включая аргументы.
func (r *Runner) Run(ctx context.Context, command string) Result {
	cmdDef, err := policy.Authorize(command)
	if err != nil {
		return Result{Err: err}
	}
	if !cmdDef.SupportsPlatform(r.goos) {
		return Result{Err: fmt.Errorf("command %q is not supported on %s", cmdDef.ID, r.goos)}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := shellCommand(ctx, r.goos, command)
	stdout := &limitBuffer{limit: MaxOutputSize}
	stderr := &limitBuffer{limit: MaxOutputSize}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = 5 * time.Second

	started := time.Now()
	err = cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Err = fmt.Errorf("command timed out after %s", r.timeout)
		res.Stderr = ""
	case err != nil:
		res.Err = err
	}

	r.logger.Debug("command finished",
		zap.String("command_id", cmdDef.ID),
		zap.Duration("took", time.Since(started)),
		zap.Error(res.Err))
	return res
}

func shellCommand(ctx context.Context, goos, command string) *exec.Cmd {
	if goos == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}
