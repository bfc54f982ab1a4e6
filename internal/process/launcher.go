package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// DefaultShell interprets user command lines.
const DefaultShell = "/bin/sh"

// outputWaitDelay bounds how long Wait keeps reading output after the
// process exits, in case a grandchild still holds the pipes open.
const outputWaitDelay = 2 * time.Second

// maxLoggedLine truncates very long output lines in the debug log.
const maxLoggedLine = 4096

// ErrEmptyCommand is returned by Launch for a blank command line.
var ErrEmptyCommand = errors.New("process: empty command line")

// Logger defines the logging interface for the launcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// LaunchInfo describes a started process.
type LaunchInfo struct {
	CommandLine string
	PID         int
	StartedAt   time.Time
}

// ExitInfo describes a finished process.
type ExitInfo struct {
	LaunchInfo
	ExitCode int
	Duration time.Duration
	Err      error
}

// Config configures a Launcher.
type Config struct {
	// Shell runs the command line as `Shell -c commandLine`.
	// Defaults to DefaultShell.
	Shell string

	// Env are additional environment variables (key=value format)
	// appended to the parent's environment.
	Env []string

	// WorkDir is the working directory. Empty inherits the parent's.
	WorkDir string

	// OnLaunch is called after a process starts.
	OnLaunch func(LaunchInfo)

	// OnExit is called after a process has been reaped.
	OnExit func(ExitInfo)
}

// Launcher starts detached shell commands and reaps them in the background.
//
// Thread Safety: all methods are safe for concurrent use.
type Launcher struct {
	config Config
	logger Logger

	mu       sync.Mutex
	running  map[int]*exec.Cmd
	launched int
	failed   int
	wg       sync.WaitGroup
}

// NewLauncher creates a launcher.
func NewLauncher(cfg Config) *Launcher {
	if cfg.Shell == "" {
		cfg.Shell = DefaultShell
	}
	return &Launcher{
		config:  cfg,
		logger:  noopLogger{},
		running: make(map[int]*exec.Cmd),
	}
}

// SetLogger sets the logger for the launcher. Nil restores the noop logger.
func (l *Launcher) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	l.mu.Lock()
	l.logger = logger
	l.mu.Unlock()
}

func (l *Launcher) getLogger() Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logger
}

// Launch starts commandLine and returns once the process is running.
//
// The process runs in its own process group and outlives ctx: ctx is only
// checked before starting. Output is logged at debug level line by line.
//
// Parameters:
//   - ctx: Checked for cancellation before the process starts
//   - commandLine: Shell command line
//
// Returns:
//   - error: ErrEmptyCommand, ctx's error, or the start error
func (l *Launcher) Launch(ctx context.Context, commandLine string) error {
	if strings.TrimSpace(commandLine) == "" {
		return ErrEmptyCommand
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	log := l.getLogger()

	cmd := exec.Command(l.config.Shell, "-c", commandLine) //nolint:gosec // command lines come from the operator's config file
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if l.config.Env != nil {
		cmd.Env = append(os.Environ(), l.config.Env...)
	}
	if l.config.WorkDir != "" {
		cmd.Dir = l.config.WorkDir
	}
	cmd.Stdout = &lineLogger{logger: log, command: commandLine, stream: "stdout"}
	cmd.Stderr = &lineLogger{logger: log, command: commandLine, stream: "stderr"}
	cmd.WaitDelay = outputWaitDelay

	if err := cmd.Start(); err != nil {
		l.mu.Lock()
		l.failed++
		l.mu.Unlock()
		return fmt.Errorf("starting %q: %w", commandLine, err)
	}

	info := LaunchInfo{
		CommandLine: commandLine,
		PID:         cmd.Process.Pid,
		StartedAt:   time.Now(),
	}

	l.mu.Lock()
	l.running[info.PID] = cmd
	l.launched++
	l.wg.Add(1)
	l.mu.Unlock()

	log.Debug("process launched", "command", commandLine, "pid", info.PID)
	if l.config.OnLaunch != nil {
		l.config.OnLaunch(info)
	}

	go l.reap(cmd, info)
	return nil
}

// reap waits for cmd and reports its exit.
func (l *Launcher) reap(cmd *exec.Cmd, info LaunchInfo) {
	defer l.wg.Done()

	err := cmd.Wait()
	for _, out := range []any{cmd.Stdout, cmd.Stderr} {
		if lw, ok := out.(*lineLogger); ok {
			lw.flush()
		}
	}

	l.mu.Lock()
	delete(l.running, info.PID)
	l.mu.Unlock()

	exit := ExitInfo{
		LaunchInfo: info,
		ExitCode:   cmd.ProcessState.ExitCode(),
		Duration:   time.Since(info.StartedAt),
		Err:        err,
	}

	log := l.getLogger()
	if err != nil {
		log.Warn("process exited with error",
			"command", info.CommandLine,
			"pid", info.PID,
			"exit_code", exit.ExitCode,
			"error", err,
		)
	} else {
		log.Debug("process exited", "command", info.CommandLine, "pid", info.PID, "duration", exit.Duration)
	}

	if l.config.OnExit != nil {
		l.config.OnExit(exit)
	}
}

// Running returns the number of launched processes not yet reaped.
func (l *Launcher) Running() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.running)
}

// Stats reports launch counters.
type Stats struct {
	Launched int `json:"launched"`
	Failed   int `json:"failed"`
	Running  int `json:"running"`
}

// Stats returns the launcher's counters.
func (l *Launcher) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{Launched: l.launched, Failed: l.failed, Running: len(l.running)}
}

// Wait blocks until every launched process has been reaped or ctx is done.
func (l *Launcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Terminate sends SIGTERM to the process group of every running process.
func (l *Launcher) Terminate() {
	l.mu.Lock()
	pids := make([]int, 0, len(l.running))
	for pid := range l.running {
		pids = append(pids, pid)
	}
	log := l.logger
	l.mu.Unlock()

	for _, pid := range pids {
		// Negative PID signals the process group created via Setpgid.
		if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
			log.Warn("failed to signal process group", "pid", pid, "error", err)
		}
	}
}

// lineLogger writes process output to the debug log one line at a time.
type lineLogger struct {
	logger  Logger
	command string
	stream  string

	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *lineLogger) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)

	consumed := 0
	data := w.buf.Bytes()
	for {
		i := bytes.IndexByte(data[consumed:], '\n')
		if i < 0 {
			break
		}
		w.emit(data[consumed : consumed+i])
		consumed += i + 1
	}
	if rest := len(data) - consumed; rest > maxLoggedLine {
		w.emit(data[consumed:])
		consumed = len(data)
	}
	w.buf.Next(consumed)
	return len(p), nil
}

// flush logs a trailing partial line.
func (w *lineLogger) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.Bytes())
		w.buf.Reset()
	}
}

func (w *lineLogger) emit(line []byte) {
	if len(line) > maxLoggedLine {
		line = line[:maxLoggedLine]
	}
	w.logger.Debug("process output", "command", w.command, "stream", w.stream, "line", string(bytes.TrimRight(line, "\r")))
}
