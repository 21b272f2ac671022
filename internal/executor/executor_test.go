package executor

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestProcess_CapturesOutputAndEnv(t *testing.T) {
	requireShell(t)
	p := New(Config{InheritEnv: true})

	result, err := p.Run(context.Background(), &Command{
		Args: []string{"sh", "-c", "echo hello $NAME; echo oops >&2"},
		Env:  map[string]string{"NAME": "conveyor"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %d", result.ExitCode)
	}
	if result.Err() != nil {
		t.Errorf("zero exit should not produce an error: %v", result.Err())
	}

	out := result.Output.String()
	if !strings.Contains(out, "hello conveyor") {
		t.Errorf("stdout not captured: %q", out)
	}
	if !strings.Contains(out, "oops") {
		t.Errorf("stderr not captured: %q", out)
	}
}

func TestProcess_NonZeroExitIsNotRunError(t *testing.T) {
	requireShell(t)
	p := New(Config{InheritEnv: true})

	result, err := p.Run(context.Background(), &Command{
		Args: []string{"sh", "-c", "echo line1; echo line2; exit 3"},
	})
	if err != nil {
		t.Fatalf("non-zero exit should not be a Run error: %v", err)
	}
	if result.ExitCode != 3 {
		t.Fatalf("expected exit 3, got %d", result.ExitCode)
	}

	failure := result.Err()
	if !errors.Is(failure, ErrCommandFailed) {
		t.Fatalf("expected ErrCommandFailed, got %v", failure)
	}
	var cf *CommandFailedError
	if !errors.As(failure, &cf) {
		t.Fatal("expected *CommandFailedError")
	}
	if cf.Status != 3 {
		t.Errorf("expected status 3, got %d", cf.Status)
	}
	if len(cf.Tail) != 2 || cf.Tail[1] != "line2" {
		t.Errorf("unexpected tail: %v", cf.Tail)
	}
}

func TestProcess_MasksSecrets(t *testing.T) {
	requireShell(t)
	p := New(Config{InheritEnv: true})

	result, err := p.Run(context.Background(), &Command{
		Args: []string{"sh", "-c", "echo token=$TOKEN"},
		Env:  map[string]string{"TOKEN": "s3cr3t"},
		Mask: []string{"s3cr3t"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.Output.String(); got != "token=****" {
		t.Errorf("secret should be masked, got %q", got)
	}
}

func TestProcess_Stdin(t *testing.T) {
	requireShell(t)
	p := New(Config{InheritEnv: true})

	result, err := p.Run(context.Background(), &Command{
		Args:  []string{"sh", "-c", "read line; echo got:$line"},
		Stdin: []byte("password\n"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.Output.String(); got != "got:password" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestProcess_ContextCancelKillsProcess(t *testing.T) {
	requireShell(t)
	p := New(Config{InheritEnv: true})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Run(ctx, &Command{Args: []string{"sh", "-c", "sleep 5"}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("process should be killed on cancellation")
	}
}

func TestProcess_StartFailure(t *testing.T) {
	p := New(Config{})

	_, err := p.Run(context.Background(), &Command{Args: []string{"/nonexistent/conveyor-binary"}})
	if !errors.Is(err, ErrStartFailed) {
		t.Fatalf("expected ErrStartFailed, got %v", err)
	}
}

func TestProcess_EmptyCommand(t *testing.T) {
	p := New(Config{})
	if _, err := p.Run(context.Background(), &Command{}); !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("expected ErrEmptyCommand, got %v", err)
	}
}

func TestOutput_AppendOnlyTail(t *testing.T) {
	out := NewOutput()
	out.Write([]byte("a\nb\r\nc"))
	out.Flush()
	out.Append("d")

	lines := out.Lines()
	if strings.Join(lines, ",") != "a,b,c,d" {
		t.Errorf("unexpected lines: %v", lines)
	}

	// Изменение копии не влияет на Output
	lines[0] = "changed"
	if out.Lines()[0] != "a" {
		t.Error("Lines should return a copy")
	}

	if tail := out.Tail(2); strings.Join(tail, ",") != "c,d" {
		t.Errorf("unexpected tail: %v", tail)
	}
	if tail := out.Tail(10); len(tail) != 4 {
		t.Errorf("tail larger than output should return all lines, got %d", len(tail))
	}
}

func TestRecorder(t *testing.T) {
	rec := &Recorder{Script: func(cmd *Command) Reply {
		if cmd.Args[0] == "pytest" {
			return Reply{ExitCode: 1, Lines: []string{"1 failed"}}
		}
		return Reply{}
	}}

	res, err := rec.Run(context.Background(), &Command{Args: []string{"pytest", "-q"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 1 || res.Output.String() != "1 failed" {
		t.Errorf("unexpected result: %+v", res)
	}
	if !rec.Ran("pytest") || rec.Ran("docker") {
		t.Error("Ran reports wrong programs")
	}
	if len(rec.Calls()) != 1 {
		t.Errorf("expected 1 call, got %d", len(rec.Calls()))
	}
}

func TestRecorder_RedactsSecrets(t *testing.T) {
	var seen string
	rec := &Recorder{Script: func(cmd *Command) Reply {
		seen = cmd.Env["TOKEN"]
		return Reply{}
	}}

	cmd := &Command{
		Args:  []string{"deploy", "--token=s3cr3t"},
		Env:   map[string]string{"TOKEN": "s3cr3t", "BUILD_ID": "7"},
		Stdin: []byte("s3cr3t"),
		Mask:  []string{"s3cr3t"},
	}
	if _, err := rec.Run(context.Background(), cmd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != "s3cr3t" {
		t.Errorf("script should see the live command, got %q", seen)
	}

	c := rec.Calls()[0]
	if c.Env["TOKEN"] != "****" || c.Env["BUILD_ID"] != "7" {
		t.Errorf("unexpected recorded env: %v", c.Env)
	}
	if c.Args[1] != "--token=****" {
		t.Errorf("unexpected recorded argv: %v", c.Args)
	}
	if c.Stdin != nil || c.Mask != nil {
		t.Errorf("stdin and mask must not be recorded: %q %v", c.Stdin, c.Mask)
	}
	if cmd.Env["TOKEN"] != "s3cr3t" {
		t.Error("recording must not modify the command")
	}
}
