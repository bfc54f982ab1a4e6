package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// recordingLogger captures debug lines for output tests.
type recordingLogger struct {
	noopLogger
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Debug(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i+1 < len(args); i += 2 {
		if args[i] == "line" {
			l.lines = append(l.lines, args[i+1].(string))
		}
	}
}

func (l *recordingLogger) outputLines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func waitFor(t *testing.T, l *Launcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func TestNewLauncher_DefaultShell(t *testing.T) {
	l := NewLauncher(Config{})
	if l.config.Shell != DefaultShell {
		t.Errorf("Shell = %q, want %q", l.config.Shell, DefaultShell)
	}
}

func TestLaunch_EmptyCommand(t *testing.T) {
	l := NewLauncher(Config{})

	for _, cmd := range []string{"", "   ", "\t\n"} {
		if err := l.Launch(context.Background(), cmd); !errors.Is(err, ErrEmptyCommand) {
			t.Errorf("Launch(%q) error = %v, want ErrEmptyCommand", cmd, err)
		}
	}
	if got := l.Stats().Launched; got != 0 {
		t.Errorf("Launched = %d, want 0", got)
	}
}

func TestLaunch_CancelledContext(t *testing.T) {
	l := NewLauncher(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Launch(ctx, "true"); !errors.Is(err, context.Canceled) {
		t.Errorf("Launch() error = %v, want context.Canceled", err)
	}
}

func TestLaunch_RunsCommand(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "ran")
	l := NewLauncher(Config{})

	if err := l.Launch(context.Background(), "echo fired > "+marker); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	waitFor(t, l)

	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("marker not written: %v", err)
	}
	if strings.TrimSpace(string(data)) != "fired" {
		t.Errorf("marker = %q, want fired", data)
	}
}

func TestLaunch_DoesNotWait(t *testing.T) {
	l := NewLauncher(Config{})

	start := time.Now()
	if err := l.Launch(context.Background(), "sleep 1"); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Launch() took %v, want it to return before the process exits", elapsed)
	}
	if l.Running() != 1 {
		t.Errorf("Running() = %d, want 1", l.Running())
	}

	l.Terminate()
	waitFor(t, l)
	if l.Running() != 0 {
		t.Errorf("Running() = %d after Terminate, want 0", l.Running())
	}
}

func TestLaunch_OutlivesContext(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "late")
	l := NewLauncher(Config{})

	ctx, cancel := context.WithCancel(context.Background())
	if err := l.Launch(ctx, "sleep 0.2; touch "+marker); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	cancel()
	waitFor(t, l)

	if _, err := os.Stat(marker); err != nil {
		t.Errorf("process did not survive context cancellation: %v", err)
	}
}

func TestLaunch_Hooks(t *testing.T) {
	var mu sync.Mutex
	var launches []LaunchInfo
	var exits []ExitInfo

	l := NewLauncher(Config{
		OnLaunch: func(i LaunchInfo) {
			mu.Lock()
			launches = append(launches, i)
			mu.Unlock()
		},
		OnExit: func(e ExitInfo) {
			mu.Lock()
			exits = append(exits, e)
			mu.Unlock()
		},
	})

	if err := l.Launch(context.Background(), "exit 3"); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	waitFor(t, l)

	mu.Lock()
	defer mu.Unlock()
	if len(launches) != 1 || launches[0].PID == 0 || launches[0].CommandLine != "exit 3" {
		t.Fatalf("launches = %+v", launches)
	}
	if len(exits) != 1 {
		t.Fatalf("len(exits) = %d, want 1", len(exits))
	}
	if exits[0].ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", exits[0].ExitCode)
	}
	if exits[0].Err == nil {
		t.Error("Err = nil for non-zero exit")
	}
	if exits[0].PID != launches[0].PID {
		t.Errorf("exit PID = %d, launch PID = %d", exits[0].PID, launches[0].PID)
	}
}

func TestLaunch_StartFailure(t *testing.T) {
	l := NewLauncher(Config{Shell: filepath.Join(t.TempDir(), "no-such-shell")})

	if err := l.Launch(context.Background(), "true"); err == nil {
		t.Fatal("Launch() expected error for missing shell")
	}
	if got := l.Stats(); got.Failed != 1 || got.Launched != 0 {
		t.Errorf("Stats() = %+v, want 1 failed, 0 launched", got)
	}
}

func TestLaunch_EnvAndWorkDir(t *testing.T) {
	dir := t.TempDir()
	l := NewLauncher(Config{
		Env:     []string{"ALPWATCH_TEST_VALUE=darks"},
		WorkDir: dir,
	})

	if err := l.Launch(context.Background(), `printf %s "$ALPWATCH_TEST_VALUE" > out`); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	waitFor(t, l)

	data, err := os.ReadFile(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("output not written in WorkDir: %v", err)
	}
	if string(data) != "darks" {
		t.Errorf("output = %q, want darks", data)
	}
}

func TestLaunch_LogsOutput(t *testing.T) {
	logger := &recordingLogger{}
	l := NewLauncher(Config{})
	l.SetLogger(logger)

	if err := l.Launch(context.Background(), "echo one; echo two >&2; printf three"); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	waitFor(t, l)

	got := strings.Join(logger.outputLines(), ",")
	for _, want := range []string{"one", "two", "three"} {
		if !strings.Contains(got, want) {
			t.Errorf("output lines %q missing %q", got, want)
		}
	}
}

func TestLineLogger_LongLine(t *testing.T) {
	logger := &recordingLogger{}
	w := &lineLogger{logger: logger, command: "x", stream: "stdout"}

	if _, err := w.Write([]byte(strings.Repeat("a", maxLoggedLine+10))); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	lines := logger.outputLines()
	if len(lines) != 1 || len(lines[0]) != maxLoggedLine {
		t.Errorf("got %d lines, want one truncated line", len(lines))
	}
	w.flush()
	if len(logger.outputLines()) != 1 {
		t.Error("flush emitted an empty line")
	}
}
