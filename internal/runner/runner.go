// Package runner turns loaded suites into executed runs or generated job
// scripts. The shared memory path runs every configuration locally, the
// batch path packs them into one slurm job script per core count.
package runner

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mpisuite/internal/batch"
	"mpisuite/internal/launch"
	"mpisuite/internal/machine"
	"mpisuite/internal/params"
	"mpisuite/internal/suite"
)

// Options configures a Runner. Zero values fall back to machine profiles
// and the experiment directory layout.
type Options struct {
	Machine *machine.Machine

	// DataDir is the root under which the per-suite experiment
	// directory is created. OutputDir and JobDir override the default
	// output/ and jobfiles/ locations beneath it.
	DataDir   string
	OutputDir string
	JobDir    string

	LaunchTemplate *launch.Template
	ScriptTemplate *batch.Template // nil selects the machine's built-in

	TasksPerNode int // command line override, 0 defers to the machine
	TimeLimit    int // minutes per run when neither suite nor input set one
	MaxCores     int // shared execution skips larger core counts, 0 = no cap

	BuildDir         string
	Account          string
	ModuleConfig     string
	ModuleRestoreCmd string

	TestPartition  bool
	OmitOutputPath bool
	OmitSeed       bool
	Fresh          bool
	DryRun         bool

	// Out receives dry run scripts. Defaults to os.Stdout.
	Out io.Writer
}

// Summary reports what a runner did.
type Summary struct {
	Total     int      // runs executed or packed into job scripts
	Failed    int      // non-zero exit codes, shared execution only
	JobFiles  []string // job scripts written, batch generation only
	OutputDir string
	JobDir    string
}

// Runner executes or generates the runs of one suite. The experiment
// directory is suffixed with the current date so repeated sweeps of the
// same suite stay apart.
type Runner struct {
	opts      Options
	expDir    string
	outputDir string
	jobDir    string
}

// New prepares the experiment directory tree for a suite.
func New(suiteName string, opts Options) (*Runner, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	stamp := time.Now().Format("06_01_02")
	expDir := filepath.Join(opts.DataDir, fmt.Sprintf("%s_%s", suiteName, stamp))
	if opts.Fresh {
		if err := os.RemoveAll(expDir); err != nil {
			return nil, fmt.Errorf("failed to clear experiment directory: %w", err)
		}
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join(expDir, "output")
	}
	jobDir := opts.JobDir
	if jobDir == "" {
		jobDir = filepath.Join(expDir, "jobfiles")
	}

	dirs := []string{expDir, outputDir}
	if opts.Machine.Batch {
		dirs = append(dirs, jobDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create experiment directory: %w", err)
		}
	}

	return &Runner{
		opts:      opts,
		expDir:    expDir,
		outputDir: outputDir,
		jobDir:    jobDir,
	}, nil
}

// ExperimentDir returns the dated per-suite directory.
func (r *Runner) ExperimentDir() string { return r.expDir }

// OutputDir returns where run logs and payload output land.
func (r *Runner) OutputDir() string { return r.outputDir }

// JobDir returns where generated job scripts land.
func (r *Runner) JobDir() string { return r.jobDir }

// dumpConfig writes the exploded configurations to config.json, each
// annotated with its index, so results can be joined back to their
// settings during evaluation.
func (r *Runner) dumpConfig(s *suite.Suite) error {
	annotated := make([]params.Params, 0, len(s.Configs))
	for i, config := range s.Configs {
		annotated = append(annotated, config.Set("idx", i))
	}
	data, err := json.MarshalIndent(annotated, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal config dump: %w", err)
	}
	path := filepath.Join(r.outputDir, "config.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config dump: %w", err)
	}
	return nil
}

// runCommand builds the payload command line for one run. The output path
// option and the seed are appended to the run's config unless suppressed.
func (r *Runner) runCommand(s *suite.Suite, in *suite.Input, runName string, ranks, threads, seed int, config params.Params) (string, error) {
	local := config
	if !r.opts.OmitOutputPath {
		local = local.Set(s.OutputOption, filepath.Join(r.outputDir, runName))
	}
	if !r.opts.OmitSeed {
		local = local.Set("seed", seed)
	}
	cmd, err := s.Payload(in, r.opts.BuildDir, ranks, threads, true, local)
	if err != nil {
		return "", err
	}
	return strings.Join(cmd, " "), nil
}

// runTimeLimit returns the limit in minutes for one run of an input. The
// per-input limit wins over the suite wide one, the global default covers
// suites that set neither.
func (r *Runner) runTimeLimit(s *suite.Suite, in *suite.Input) int {
	if limit := s.InputTimeLimit(in); limit > 0 {
		return limit
	}
	return r.opts.TimeLimit
}

// tasksPerNode resolves the ranks to place per node: the suite may pin
// it, the command line may override it, the machine profile is the
// fallback.
func (r *Runner) tasksPerNode(s *suite.Suite) int {
	if s.TasksPerNode > 0 {
		return s.TasksPerNode
	}
	if r.opts.TasksPerNode > 0 {
		return r.opts.TasksPerNode
	}
	return r.opts.Machine.TasksPerNode
}
