package launch

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunExitCodePropagation(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   int
	}{
		{name: "success", script: "exit 0", want: 0},
		{name: "plain failure", script: "exit 1", want: 1},
		{name: "arbitrary code", script: "exit 42", want: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := Run(context.Background(), tt.script, "", io.Discard, io.Discard)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if code != tt.want {
				t.Errorf("Run() exit code = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestRunCapturesOutput(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code, err := Run(context.Background(), "echo out; echo err >&2", "", &stdout, &stderr)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if code != 0 {
		t.Fatalf("Run() exit code = %d, want 0", code)
	}
	if got := stdout.String(); got != "out\n" {
		t.Errorf("stdout = %q, want %q", got, "out\n")
	}
	if got := stderr.String(); got != "err\n" {
		t.Errorf("stderr = %q, want %q", got, "err\n")
	}
}

func TestRunWorkDir(t *testing.T) {
	dir := t.TempDir()

	code, err := Run(context.Background(), "echo payload > marker.txt", dir, io.Discard, io.Discard)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if code != 0 {
		t.Fatalf("Run() exit code = %d, want 0", code)
	}
	if _, err := os.Stat(filepath.Join(dir, "marker.txt")); err != nil {
		t.Errorf("script did not run inside %s: %v", dir, err)
	}
}

func TestRunContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	code, err := Run(ctx, "sleep 30", "", io.Discard, io.Discard)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if code == 0 {
		t.Error("a killed script must not report exit code 0")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took %v, the script was not killed", elapsed)
	}
}

func TestRunStartFailure(t *testing.T) {
	// An unusable working directory keeps the shell from starting at all.
	_, err := Run(context.Background(), "true", "/nonexistent-workdir", io.Discard, io.Discard)
	if err == nil {
		t.Error("Run() should report an error when the script cannot start")
	}
}
