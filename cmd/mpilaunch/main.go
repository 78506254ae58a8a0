package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"mpisuite/internal/launch"
	"mpisuite/internal/logger"
	"mpisuite/internal/machine"

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

// exitError carries the payload's exit status through the cli layer so
// main can pass it on untouched.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("payload exited with status %d", e.code)
}

func main() {
	// Load .env file if it exists (ignore errors for optional file)
	_ = godotenv.Load()

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		log.Fatal(err)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:      "mpilaunch",
		Usage:     "Render and execute a single MPI launch command",
		UsageText: "mpilaunch [options] -- <payload command>",
		Version:   fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit),
		Action:    runLaunch,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "jobname",
				Aliases: []string{"j"},
				Usage:   "Name used in the start and finish log lines",
				Value:   "job",
			},
			&cli.IntFlag{
				Name:     "mpi-ranks",
				Aliases:  []string{"n"},
				Usage:    "Number of MPI ranks",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "ranks-per-node",
				Usage: "Ranks placed per node (defaults to all ranks on one node)",
			},
			&cli.IntFlag{
				Name:  "threads-per-rank",
				Usage: "Threads per MPI rank",
				Value: 1,
			},
			&cli.IntFlag{
				Name:  "timeout",
				Usage: "Per run timeout in seconds, enforced by the MPI launcher",
				Value: 1200,
			},
			&cli.StringFlag{
				Name:    "machine",
				Aliases: []string{"m"},
				Usage:   "Machine profile selecting the default launch template",
				Value:   machine.Generic,
				Sources: cli.EnvVars("MACHINE"),
			},
			&cli.StringFlag{
				Name:  "template",
				Usage: "Built-in launch template (intel, openmpi, generic, shared)",
			},
			&cli.StringFlag{
				Name:  "template-file",
				Usage: "Load the launch template from a file instead",
			},
			&cli.StringFlag{
				Name:  "workdir",
				Usage: "Working directory for the launched command",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print the rendered script instead of executing it",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
	}
}

func runLaunch(ctx context.Context, cmd *cli.Command) error {
	ctx, err := logger.Setup(ctx, cmd.String("log-level"))
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	log := logger.FromContext(ctx)

	payload := strings.Join(cmd.Args().Slice(), " ")
	if payload == "" {
		return fmt.Errorf("no payload command given, pass it after --")
	}

	m, err := machine.ForName(cmd.String("machine"))
	if err != nil {
		return err
	}
	tmpl, err := launch.Select(m.DefaultTemplate, cmd.String("template"), cmd.String("template-file"))
	if err != nil {
		return err
	}

	ranks := cmd.Int("mpi-ranks")
	ranksPerNode := cmd.Int("ranks-per-node")
	if ranksPerNode == 0 {
		ranksPerNode = ranks
	}

	script, err := tmpl.Render(launch.Vars{
		JobName:        cmd.String("jobname"),
		MPIRanks:       ranks,
		RanksPerNode:   ranksPerNode,
		ThreadsPerRank: cmd.Int("threads-per-rank"),
		Timeout:        cmd.Int("timeout"),
		Cmd:            payload,
	})
	if err != nil {
		return err
	}

	if cmd.Bool("dry-run") {
		out := io.Writer(os.Stdout)
		if w := cmd.Root().Writer; w != nil {
			out = w
		}
		fmt.Fprint(out, script)
		return nil
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

	log.Debug("Executing launch script",
		zap.String("template", tmpl.Name()),
		zap.Int("mpi_ranks", ranks),
		zap.Int("ranks_per_node", ranksPerNode))

	code, err := launch.Run(ctx, script, cmd.String("workdir"), os.Stdout, os.Stderr)
	if err != nil {
		return err
	}
	if code != 0 {
		return &exitError{code: code}
	}
	return nil
}
