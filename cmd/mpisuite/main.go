package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"mpisuite/internal/batch"
	"mpisuite/internal/graph"
	"mpisuite/internal/launch"
	"mpisuite/internal/logger"
	"mpisuite/internal/machine"
	"mpisuite/internal/runner"
	"mpisuite/internal/suite"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// Build-time variables (set by ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Load .env file if it exists (ignore errors for optional file)
	_ = godotenv.Load()

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "mpisuite",
		Usage:   "Run MPI experiment suites locally or through slurm job files",
		Version: fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "machine",
				Aliases: []string{"m"},
				Usage:   "Machine profile (shared, supermuc, horeka, generic)",
				Value:   machine.Generic,
				Sources: cli.EnvVars("MACHINE"),
			},
			&cli.StringFlag{
				Name:    "search-path",
				Aliases: []string{"d"},
				Usage:   "Colon separated directories scanned for *.suite.yaml files",
				Value:   ".",
				Sources: cli.EnvVars("SUITE_SEARCH_PATH"),
			},
			&cli.StringSliceFlag{
				Name:    "suite-file",
				Aliases: []string{"s"},
				Usage:   "Load an explicit suite file (repeatable)",
			},
			&cli.StringFlag{
				Name:    "input-descriptions",
				Aliases: []string{"i"},
				Usage:   "Colon separated graph description files",
				Sources: cli.EnvVars("INPUT_DESCRIPTIONS"),
			},
			&cli.StringFlag{
				Name:    "experiment-data-dir",
				Usage:   "Directory in which all generated data (job files and outputs) is stored",
				Value:   "experiment_data",
				Sources: cli.EnvVars("EXPERIMENT_DATA_DIR"),
			},
			&cli.StringFlag{
				Name:    "output-dir",
				Aliases: []string{"o"},
				Usage:   "Override the run output directory",
			},
			&cli.StringFlag{
				Name:    "job-output-dir",
				Aliases: []string{"j"},
				Usage:   "Override the job file directory",
			},
			&cli.StringFlag{
				Name:    "build-dir",
				Usage:   "Directory holding the payload binaries",
				Value:   "build",
				Sources: cli.EnvVars("BUILD_DIR"),
			},
			&cli.StringFlag{
				Name:  "sbatch-template",
				Usage: "Job script template file (defaults to the machine's built-in)",
			},
			&cli.StringFlag{
				Name:  "command-template",
				Usage: "Built-in launch template (intel, openmpi, generic, shared)",
			},
			&cli.StringFlag{
				Name:  "command-template-file",
				Usage: "Load the launch template from a file instead",
			},
			&cli.StringFlag{
				Name:  "module-config",
				Usage: "Module collection restored at the top of each job script",
			},
			&cli.StringFlag{
				Name:  "module-restore-cmd",
				Usage: "Command used to restore the module collection",
				Value: "module restore",
			},
			&cli.IntFlag{
				Name:    "tasks-per-node",
				Usage:   "Override the machine's tasks per node (0 = machine default)",
				Sources: cli.EnvVars("TASKS_PER_NODE"),
			},
			&cli.IntFlag{
				Name:    "time-limit",
				Aliases: []string{"t"},
				Usage:   "Default time limit per run in minutes",
				Value:   20,
				Sources: cli.EnvVars("TIME_LIMIT"),
			},
			&cli.IntFlag{
				Name:  "max-cores",
				Usage: "Skip configurations above this core count on the shared machine (0 = unlimited)",
			},
			&cli.StringFlag{
				Name:    "account",
				Usage:   "Project account jobs are billed to",
				Value:   "PROJECT_NOT_SET",
				Sources: cli.EnvVars("PROJECT"),
			},
			&cli.BoolFlag{
				Name:  "test",
				Usage: "Use the machine's test partition",
			},
			&cli.BoolFlag{
				Name:  "fresh",
				Usage: "Clear the suite's experiment directory before running",
			},
			&cli.BoolFlag{
				Name:  "omit-output-path",
				Usage: "Do not pass the output path option to the payload",
			},
			&cli.BoolFlag{
				Name:  "omit-seed",
				Usage: "Do not pass the seed to the payload",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print rendered scripts instead of executing or writing them",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Execute suites locally or generate their job files, depending on the machine",
				ArgsUsage: "[suite...]",
				Action:    runAction,
			},
			{
				Name:      "jobs",
				Usage:     "Generate slurm job files for suites",
				ArgsUsage: "[suite...]",
				Action:    jobsAction,
			},
			{
				Name:      "submit",
				Usage:     "Submit job files or whole job directories through sbatch",
				ArgsUsage: "<file|dir>...",
				Action:    submitAction,
			},
			{
				Name:      "render",
				Usage:     "Print the scripts a run would execute, without running anything",
				ArgsUsage: "[suite...]",
				Action:    renderAction,
			},
			{
				Name:   "list",
				Usage:  "List the suites found on the search path",
				Action: listAction,
			},
			{
				Name:   "graphs",
				Usage:  "List the graphs known from the input descriptions",
				Action: graphsAction,
			},
			{
				Name:      "init",
				Usage:     "Create a sample suite file",
				ArgsUsage: "[path]",
				Action:    initAction,
			},
		},
	}
}

func output(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func setupContext(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	ctx, err := logger.Setup(ctx, cmd.String("log-level"))
	if err != nil {
		return ctx, fmt.Errorf("failed to setup logger: %w", err)
	}
	return ctx, nil
}

// splitPathList splits a colon separated path list, dropping empty
// entries.
func splitPathList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ":") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loadRegistry(ctx context.Context, cmd *cli.Command) (*graph.Registry, error) {
	reg := graph.NewRegistry()
	paths := splitPathList(cmd.String("input-descriptions"))
	if err := graph.LoadInputs(ctx, reg, paths...); err != nil {
		return nil, err
	}
	return reg, nil
}

func loadSuites(ctx context.Context, cmd *cli.Command) ([]*suite.Suite, error) {
	return suite.Discover(ctx,
		cmd.StringSlice("suite-file"),
		splitPathList(cmd.String("search-path")))
}

// selectSuites filters the discovered suites down to the names given on
// the command line. No names selects everything.
func selectSuites(all []*suite.Suite, names []string) ([]*suite.Suite, error) {
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]*suite.Suite, len(all))
	for _, s := range all {
		byName[s.Name] = s
	}
	out := make([]*suite.Suite, 0, len(names))
	for _, name := range names {
		s, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown suite %q", name)
		}
		out = append(out, s)
	}
	return out, nil
}

func runnerOptions(cmd *cli.Command, m *machine.Machine, dryRun bool) (runner.Options, error) {
	launchTmpl, err := launch.Select(m.DefaultTemplate,
		cmd.String("command-template"),
		cmd.String("command-template-file"))
	if err != nil {
		return runner.Options{}, err
	}

	var scriptTmpl *batch.Template
	if path := cmd.String("sbatch-template"); path != "" {
		scriptTmpl, err = batch.LoadTemplate(path)
		if err != nil {
			return runner.Options{}, err
		}
	}

	return runner.Options{
		Machine:          m,
		DataDir:          cmd.String("experiment-data-dir"),
		OutputDir:        cmd.String("output-dir"),
		JobDir:           cmd.String("job-output-dir"),
		LaunchTemplate:   launchTmpl,
		ScriptTemplate:   scriptTmpl,
		TasksPerNode:     cmd.Int("tasks-per-node"),
		TimeLimit:        cmd.Int("time-limit"),
		MaxCores:         cmd.Int("max-cores"),
		BuildDir:         cmd.String("build-dir"),
		Account:          cmd.String("account"),
		ModuleConfig:     cmd.String("module-config"),
		ModuleRestoreCmd: cmd.String("module-restore-cmd"),
		TestPartition:    cmd.Bool("test"),
		OmitOutputPath:   cmd.Bool("omit-output-path"),
		OmitSeed:         cmd.Bool("omit-seed"),
		Fresh:            cmd.Bool("fresh"),
		DryRun:           dryRun,
		Out:              output(cmd),
	}, nil
}

// sweep loads and resolves the selected suites, then either executes them
// or generates their job files. forceJobs requires a batch machine.
func sweep(ctx context.Context, cmd *cli.Command, forceJobs, dryRun bool) error {
	ctx, err := setupContext(ctx, cmd)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx)

	m, err := machine.ForName(cmd.String("machine"))
	if err != nil {
		return err
	}
	if forceJobs && !m.Batch {
		return fmt.Errorf("machine %s does not use job files, run the suite directly", m.Name)
	}

	suites, err := loadSuites(ctx, cmd)
	if err != nil {
		return err
	}
	suites, err = selectSuites(suites, cmd.Args().Slice())
	if err != nil {
		return err
	}
	if len(suites) == 0 {
		return fmt.Errorf("no suites found on the search path")
	}

	reg, err := loadRegistry(ctx, cmd)
	if err != nil {
		return err
	}

	opts, err := runnerOptions(cmd, m, dryRun)
	if err != nil {
		return err
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("Shutting down gracefully", zap.String("signal", sig.String()))
		cancel()
	}()

	out := output(cmd)
	for _, s := range suites {
		s.Resolve(ctx, reg)
		if len(s.Inputs) == 0 {
			log.Warn("suite has no usable inputs, skipping", zap.String("suite", s.Name))
			continue
		}

		r, err := runner.New(s.Name, opts)
		if err != nil {
			return err
		}

		if m.Batch {
			sum, err := r.GenerateJobs(ctx, s)
			if err != nil {
				return err
			}
			if !dryRun {
				fmt.Fprintf(out, "Created %d job files for suite %s in %s\n",
					len(sum.JobFiles), s.Name, sum.JobDir)
			}
			continue
		}

		fmt.Fprintf(out, "Running suite %s ...\n", s.Name)
		sum, err := r.RunShared(ctx, s)
		if err != nil {
			return err
		}
		if !dryRun {
			fmt.Fprintf(out, "Finished suite %s. Output files in %s\n", s.Name, sum.OutputDir)
			fmt.Fprintf(out, "Summary: %d out of %d runs failed.\n", sum.Failed, sum.Total)
		}
	}
	return nil
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	return sweep(ctx, cmd, false, cmd.Bool("dry-run"))
}

func jobsAction(ctx context.Context, cmd *cli.Command) error {
	return sweep(ctx, cmd, true, cmd.Bool("dry-run"))
}

func renderAction(ctx context.Context, cmd *cli.Command) error {
	return sweep(ctx, cmd, false, true)
}

func submitAction(ctx context.Context, cmd *cli.Command) error {
	ctx, err := setupContext(ctx, cmd)
	if err != nil {
		return err
	}

	args := cmd.Args().Slice()
	if len(args) == 0 {
		return fmt.Errorf("no job files or directories given")
	}

	var scripts []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return fmt.Errorf("failed to read job path: %w", err)
		}
		if !info.IsDir() {
			scripts = append(scripts, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return fmt.Errorf("failed to read job directory: %w", err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				scripts = append(scripts, filepath.Join(arg, entry.Name()))
			}
		}
	}
	if len(scripts) == 0 {
		return fmt.Errorf("no job files found")
	}

	// A rejected script does not stop the remaining submissions.
	log := logger.FromContext(ctx)
	out := output(cmd)
	failed := 0
	for _, script := range scripts {
		id, err := batch.Submit(ctx, script)
		if err != nil {
			failed++
			log.Error("submission failed", zap.String("script", script), zap.Error(err))
			continue
		}
		fmt.Fprintf(out, "Submitted %s as job %d\n", filepath.Base(script), id)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d submissions failed", failed, len(scripts))
	}
	return nil
}

func listAction(ctx context.Context, cmd *cli.Command) error {
	ctx, err := setupContext(ctx, cmd)
	if err != nil {
		return err
	}
	suites, err := loadSuites(ctx, cmd)
	if err != nil {
		return err
	}
	out := output(cmd)
	for _, s := range suites {
		fmt.Fprintln(out, s.Name)
	}
	return nil
}

func graphsAction(ctx context.Context, cmd *cli.Command) error {
	ctx, err := setupContext(ctx, cmd)
	if err != nil {
		return err
	}
	reg, err := loadRegistry(ctx, cmd)
	if err != nil {
		return err
	}
	out := output(cmd)
	for _, name := range reg.Names() {
		fmt.Fprintln(out, name)
	}
	return nil
}

func initAction(ctx context.Context, cmd *cli.Command) error {
	if _, err := setupContext(ctx, cmd); err != nil {
		return err
	}
	path := cmd.Args().First()
	if path == "" {
		path = "example" + suite.FileSuffix
	}
	if err := suite.CreateSample(path); err != nil {
		return err
	}
	fmt.Fprintf(output(cmd), "Created sample suite %s\n", path)
	return nil
}
