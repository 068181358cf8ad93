package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	domain "github.com/bryanwahyu/esg-analyzer/internal/domain/reports"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultMaxConcurrent  = 4
	defaultMaxOutputBytes = 1 << 20
	stderrLimit           = 8 << 10
	waitDelay             = 2 * time.Second
)

// Config describes how to start the analysis engine.
type Config struct {
	Command string
	Args    []string
	Dir     string
	// Env entries (KEY=VALUE) appended to the service's own environment.
	Env []string

	Timeout        time.Duration
	MaxConcurrent  int
	QueueTimeout   time.Duration
	MaxOutputBytes int64
}

// Runner spawns one engine process per Invoke. At most MaxConcurrent
// processes run at once; callers beyond that wait up to QueueTimeout for a
// slot and are then turned away with ErrEngineBusy.
type Runner struct {
	cfg     Config
	slots   *semaphore.Weighted
	running atomic.Int64
	logger  *slog.Logger
}

func NewRunner(cfg Config, logger *slog.Logger) (*Runner, error) {
	cfg.Command = strings.TrimSpace(cfg.Command)
	if cfg.Command == "" {
		return nil, errors.New("engine command is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaultMaxOutputBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:    cfg,
		slots:  semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger: logger,
	}, nil
}

// Running reports how many engine processes are currently alive.
func (r *Runner) Running() int64 { return r.running.Load() }

// Check verifies the engine command resolves to an executable.
func (r *Runner) Check(context.Context) error {
	if _, err := exec.LookPath(r.cfg.Command); err != nil {
		return fmt.Errorf("engine command %q: %w", r.cfg.Command, err)
	}
	return nil
}

// Invoke runs the engine once: input goes to stdin, which is then closed, and
// stdout is collected until the process exits. Only a zero exit yields output.
func (r *Runner) Invoke(ctx context.Context, input []byte) (domain.EngineOutput, error) {
	if err := r.acquire(ctx); err != nil {
		return domain.EngineOutput{}, err
	}
	defer r.slots.Release(1)

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.cfg.Command, r.cfg.Args...)
	cmd.Dir = r.cfg.Dir
	cmd.Env = append(os.Environ(), r.cfg.Env...)
	cmd.Stdin = bytes.NewReader(input)
	stdout := &cappedBuffer{limit: r.cfg.MaxOutputBytes}
	stderr := &cappedBuffer{limit: stderrLimit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	configureProcess(cmd)

	if err := cmd.Start(); err != nil {
		return domain.EngineOutput{}, fmt.Errorf("%w: %s: %w", domain.ErrEngineSpawn, r.cfg.Command, err)
	}
	pid := cmd.Process.Pid
	r.running.Add(1)
	r.logger.Debug("engine started", "pid", pid, "input_bytes", len(input))

	err := cmd.Wait()
	r.running.Add(-1)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		if runCtx.Err() != nil {
			if ctx.Err() != nil {
				return domain.EngineOutput{}, fmt.Errorf("engine invocation aborted: %w", ctx.Err())
			}
			r.logger.Warn("engine killed after timeout", "pid", pid, "timeout", r.cfg.Timeout)
			return domain.EngineOutput{}, fmt.Errorf("%w after %s", domain.ErrEngineTimeout, r.cfg.Timeout)
		}
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			r.logger.Warn("engine exited with failure",
				"pid", pid,
				"exit_code", ee.ExitCode(),
				"duration_ms", duration,
				"stderr", stderr.String(),
			)
			return domain.EngineOutput{}, &domain.EngineExitError{Code: ee.ExitCode(), Stderr: stderr.String()}
		}
		return domain.EngineOutput{}, fmt.Errorf("%w: wait: %w", domain.ErrEngineExit, err)
	}

	r.logger.Debug("engine finished", "pid", pid, "duration_ms", duration, "output_bytes", stdout.Len())
	return domain.EngineOutput{
		Stdout:     stdout.Bytes(),
		ExitCode:   0,
		PID:        pid,
		DurationMS: duration,
		Truncated:  stdout.overflow,
	}, nil
}

func (r *Runner) acquire(ctx context.Context) error {
	if r.slots.TryAcquire(1) {
		return nil
	}
	if r.cfg.QueueTimeout > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, r.cfg.QueueTimeout)
		defer cancel()
		if err := r.slots.Acquire(waitCtx, 1); err == nil {
			return nil
		}
	}
	if ctx.Err() != nil {
		return fmt.Errorf("engine invocation aborted: %w", ctx.Err())
	}
	return fmt.Errorf("%w: %d engine processes already running", domain.ErrEngineBusy, r.cfg.MaxConcurrent)
}

// cappedBuffer keeps at most limit bytes and silently drops the rest so a
// chatty engine cannot exhaust memory.
type cappedBuffer struct {
	buf      bytes.Buffer
	limit    int64
	overflow bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - int64(b.buf.Len())
	if int64(len(p)) > room {
		if room > 0 {
			b.buf.Write(p[:room])
		}
		b.overflow = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte  { return b.buf.Bytes() }
func (b *cappedBuffer) Len() int       { return b.buf.Len() }
func (b *cappedBuffer) String() string { return strings.TrimSpace(b.buf.String()) }
