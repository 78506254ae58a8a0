package batch

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"mpisuite/internal/logger"
)

// sbatch confirms a submission with a line like
// "Submitted batch job 4171623".
var jobIDPattern = regexp.MustCompile(`Submitted batch job (?P<jid>\d+)`)

// ParseJobID extracts the scheduler's job id from sbatch output.
func ParseJobID(output string) (int, error) {
	m := jobIDPattern.FindStringSubmatch(output)
	if m == nil {
		return 0, fmt.Errorf("no job id in sbatch output: %q", strings.TrimSpace(output))
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("failed to parse job id: %w", err)
	}
	return id, nil
}

// Submit hands a job script to sbatch and returns the job id.
func Submit(ctx context.Context, scriptPath string) (int, error) {
	log := logger.FromContext(ctx)

	cmd := exec.CommandContext(ctx, "sbatch", scriptPath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("sbatch failed: %w\nOutput: %s", err, string(output))
	}

	id, err := ParseJobID(string(output))
	if err != nil {
		return 0, err
	}
	log.Info("submitted job",
		zap.String("script", scriptPath),
		zap.Int("job_id", id))
	return id, nil
}
