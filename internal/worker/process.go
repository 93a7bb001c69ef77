package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dorcha-inc/hookhost/internal/manifest"
)

// Launcher starts the execution context of a booted manifest.
type Launcher interface {
	Launch(ctx context.Context, m *manifest.Manifest) (Channel, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, m *manifest.Manifest) (Channel, error)

func (f LauncherFunc) Launch(ctx context.Context, m *manifest.Manifest) (Channel, error) {
	return f(ctx, m)
}

// CommandRunner is an interface for running commands, allowing for testing with mocks
type CommandRunner interface {
	CommandContext(ctx context.Context, name string, arg ...string) Command
}

// Command is an interface for exec.Cmd, allowing for testing with mocks
type Command interface {
	StdinPipe() (io.WriteCloser, error)
	StdoutPipe() (io.ReadCloser, error)
	SetStderr(io.Writer)
	SetDir(string)
	SetEnv([]string)
	Environ() []string
	Start() error
	Wait() error
}

// execCommand wraps exec.Cmd to implement Command interface
type execCommand struct {
	*exec.Cmd
}

func (e *execCommand) SetStderr(w io.Writer) {
	e.Stderr = w
}

func (e *execCommand) SetDir(dir string) {
	e.Dir = dir
}

func (e *execCommand) SetEnv(env []string) {
	e.Env = env
}

func (e *execCommand) Environ() []string {
	return e.Cmd.Environ()
}

func (e *execCommand) Start() error {
	return e.Cmd.Start()
}

func (e *execCommand) Wait() error {
	return e.Cmd.Wait()
}

func (e *execCommand) StdinPipe() (io.WriteCloser, error) {
	return e.Cmd.StdinPipe()
}

func (e *execCommand) StdoutPipe() (io.ReadCloser, error) {
	return e.Cmd.StdoutPipe()
}

// Interface guard for execCommand
var _ Command = &execCommand{}

// execCommandRunner wraps exec.CommandContext to implement CommandRunner
type execCommandRunner struct{}

func (e *execCommandRunner) CommandContext(ctx context.Context, name string, arg ...string) Command {
	return &execCommand{Cmd: exec.CommandContext(ctx, name, arg...)}
}

// Interface guard for execCommandRunner
var _ CommandRunner = &execCommandRunner{}

// ProcessLauncher runs each plugin as a child process speaking
// newline-delimited JSON over stdin and stdout. Stderr goes to the log.
type ProcessLauncher struct {
	runner CommandRunner
}

// Interface guard for ProcessLauncher
var _ Launcher = &ProcessLauncher{}

// NewProcessLauncher creates a launcher that uses os/exec.
func NewProcessLauncher() *ProcessLauncher {
	return &ProcessLauncher{runner: &execCommandRunner{}}
}

// NewProcessLauncherWithRunner creates a launcher with a custom command runner
// This is useful for testing with mocked command execution
func NewProcessLauncherWithRunner(runner CommandRunner) *ProcessLauncher {
	return &ProcessLauncher{runner: runner}
}

// Launch starts the plugin process. The process outlives ctx; it ends when
// the returned channel is closed or the plugin exits.
func (l *ProcessLauncher) Launch(ctx context.Context, m *manifest.Manifest) (Channel, error) {
	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	name, args := m.Command()
	cmd := l.runner.CommandContext(procCtx, name, args...)
	cmd.SetDir(m.Dir)

	if len(m.Env) > 0 {
		env := cmd.Environ()
		keys := make([]string, 0, len(m.Env))
		for key := range m.Env {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			env = append(env, fmt.Sprintf("%s=%s", key, m.Env[key]))
		}
		cmd.SetEnv(env)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	cmd.SetStderr(newLineLogger(m.Name))

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start plugin process: %w", err)
	}

	zap.L().Debug("Plugin process started",
		zap.String("plugin", m.Name),
		zap.String("command", name),
		zap.Strings("args", args))

	interrupt := func() {
		cancel()
		_ = stdout.Close()
	}
	release := func() error {
		defer cancel()
		if err := cmd.Wait(); err != nil {
			return fmt.Errorf("plugin process exited: %w", err)
		}
		return nil
	}

	return newStreamChannel(m.Name, stdout, stdin, interrupt, release), nil
}

// lineLogger forwards complete stderr lines of a plugin to the log.
type lineLogger struct {
	plugin string
	mu     sync.Mutex
	buf    bytes.Buffer
}

func newLineLogger(plugin string) *lineLogger {
	return &lineLogger{plugin: plugin}
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf.Write(p)
	for {
		line, err := l.buf.ReadBytes('\n')
		if err != nil {
			// Incomplete line: keep it for the next write
			l.buf.Reset()
			l.buf.Write(line)
			return len(p), nil
		}
		zap.L().Info("Plugin stderr",
			zap.String("plugin", l.plugin),
			zap.ByteString("line", bytes.TrimRight(line, "\r\n")))
	}
}
