package agent

import (
	"bufio"
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
	"go.uber.org/zap"
)

func skipOnWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell tests need sh")
	}
}

func TestRunnerRunsWhitelistedCommandWithArgs(t *testing.T) {
	skipOnWindows(t)
	r := NewRunner(5*time.Second, zap.NewNop())

	res := r.Run(context.Background(), "echo hello fleet")
	require.NoError(t, res.Err)
	assert.Equal(t, "hello fleet\n", res.Stdout)

	upd := res.Update()
	assert.Equal(t, domain.JobCompleted, *upd.Status)
	assert.Equal(t, "hello fleet\n", *upd.Output)
	assert.Nil(t, upd.Error)
}

func TestRunnerRejectsUnlistedCommand(t *testing.T) {
	r := NewRunner(time.Second, zap.NewNop())
	res := r.Run(context.Background(), "rm -rf /tmp/x")
	assert.ErrorIs(t, res.Err, domain.ErrCommandNotWhitelisted)

	upd := res.Update()
	assert.Equal(t, domain.JobFailed, *upd.Status)
	require.NotNil(t, upd.Error)
}

func TestRunnerRejectsUnsupportedPlatform(t *testing.T) {
	r := NewRunner(time.Second, zap.NewNop())
	r.goos = "windows"
	res := r.Run(context.Background(), "uptime")
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "not supported on windows")
}

func TestRunnerReportsStderrOnFailure(t *testing.T) {
	skipOnWindows(t)
	r := NewRunner(5*time.Second, zap.NewNop())
	res := r.Run(context.Background(), "ls /definitely/not/here")
	require.Error(t, res.Err)

	upd := res.Update()
	assert.Equal(t, domain.JobFailed, *upd.Status)
	assert.Contains(t, *upd.Error, "/definitely/not/here")
}

func TestRunnerTimeout(t *testing.T) {
	skipOnWindows(t)
	r := NewRunner(200*time.Millisecond, zap.NewNop())

	started := time.Now()
	res := r.Run(context.Background(), "echo start && exec sleep 5")
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "timed out")
	assert.Less(t, time.Since(started), 4*time.Second)
}

func TestLimitBufferTruncates(t *testing.T) {
	b := &limitBuffer{limit: 4}
	n, err := b.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.True(t, strings.HasPrefix(b.String(), "abcd\n[OUTPUT LIMIT EXCEEDED"))
}

func TestParseMeminfo(t *testing.T) {
	in := "MemTotal:       16384000 kB\nMemFree:         1000000 kB\nMemAvailable:    8192000 kB\n"
	m := parseMeminfo(bufio.NewScanner(strings.NewReader(in)))
	assert.EqualValues(t, 16000, m.TotalMB)
	assert.EqualValues(t, 8000, m.UsedMB)
}
