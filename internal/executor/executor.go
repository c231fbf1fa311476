package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"

	"go.uber.org/zap"
)

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.Code)
}

// Executor runs shell commands with the user's terminal attached.
type Executor struct {
	Shell  string // empty selects $SHELL, /bin/sh, or cmd on Windows
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	log    *zap.Logger
}

// New returns an Executor wired to the process's stdio.
func New(log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		log:    log.Named("executor"),
	}
}

// shell returns the interpreter and the arguments that run command.
func (e *Executor) shell(command string) (string, []string) {
	if runtime.GOOS == "windows" && e.Shell == "" {
		return "cmd", []string{"/C", command}
	}
	shell := e.Shell
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}
	return shell, []string{"-c", command}
}

// Run executes command and waits for it. A non-zero exit is an *ExitError.
func (e *Executor) Run(ctx context.Context, command string) error {
	shell, args := e.shell(command)
	e.log.Debug("executing command", zap.String("shell", shell), zap.String("command", command))

	cmd := exec.CommandContext(ctx, shell, args...)
	cmd.Stdin = e.Stdin
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			e.log.Debug("command failed", zap.Int("exit_code", exitErr.ExitCode()))
			return &ExitError{Code: exitErr.ExitCode()}
		}
		e.log.Debug("command failed to start", zap.Error(err))
		return fmt.Errorf("failed to run command: %w", err)
	}

	e.log.Debug("command completed successfully")
	return nil
}
