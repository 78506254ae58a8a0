package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"mpisuite/internal/logger"

	"go.uber.org/zap"
)

// Run executes a rendered launch script through the shell and returns the
// exit code of the underlying launcher. A non-zero code is a measurement,
// not an error: it is returned untouched with a nil error and never
// retried. The error is non-nil only when the script could not be started
// at all. Cancelling ctx kills the script.
func Run(ctx context.Context, script, workDir string, stdout, stderr io.Writer) (int, error) {
	log := logger.FromContext(ctx)

	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	cmd.Dir = workDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	log.Debug("starting launch script", zap.String("script", script))
	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			log.Info("launch script finished",
				zap.Int("exit_code", exitErr.ExitCode()),
				zap.Duration("elapsed", elapsed))
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("failed to run launch script: %w", err)
	}

	log.Info("launch script finished",
		zap.Int("exit_code", 0),
		zap.Duration("elapsed", elapsed))
	return 0, nil
}
