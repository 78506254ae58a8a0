package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"mpisuite/internal/launch"
	"mpisuite/internal/logger"
	"mpisuite/internal/suite"
)

// RunShared executes every run of a suite on the local machine, one after
// the other. A failing run is counted and the sweep continues; only a
// cancelled context or a broken setup stops it early.
func (r *Runner) RunShared(ctx context.Context, s *suite.Suite) (Summary, error) {
	log := logger.FromContext(ctx)
	if err := r.dumpConfig(s); err != nil {
		return Summary{}, err
	}

	sum := Summary{OutputDir: r.outputDir}
	for inputIdx, in := range s.Inputs {
		for _, cores := range s.Cores {
			if r.opts.MaxCores > 0 && cores > r.opts.MaxCores {
				log.Debug("skipping core count above the local limit",
					zap.Int("cores", cores),
					zap.Int("max_cores", r.opts.MaxCores))
				continue
			}
			for _, seed := range s.Seeds {
				for _, threads := range s.ThreadsPerRank {
					if cores%threads != 0 {
						log.Warn("skipping core count not divisible by threads per rank",
							zap.Int("cores", cores),
							zap.Int("threads", threads))
						continue
					}
					ranks := cores / threads
					for configIdx, config := range s.Configs {
						if err := ctx.Err(); err != nil {
							return sum, err
						}

						run := nameParts{
							InputIndex:  inputIdx,
							InputName:   in.Graph.Name(),
							Ranks:       ranks,
							Threads:     threads,
							ConfigIndex: configIdx,
							Seed:        seed,
						}
						runName := run.instance()

						cmdLine, err := r.runCommand(s, in, runName, ranks, threads, seed, config)
						if err != nil {
							return sum, err
						}
						script, err := r.opts.LaunchTemplate.Render(launch.Vars{
							JobName:        run.job(s.Name),
							MPIRanks:       ranks,
							RanksPerNode:   ranks,
							ThreadsPerRank: threads,
							Timeout:        r.runTimeLimit(s, in) * 60,
							Cmd:            cmdLine,
						})
						if err != nil {
							return sum, err
						}

						sum.Total++
						if r.opts.DryRun {
							fmt.Fprintln(r.opts.Out, script)
							continue
						}

						log.Info("running configuration",
							zap.String("run", runName),
							zap.Int("mpi_ranks", ranks),
							zap.Int("threads_per_rank", threads))
						code, err := r.runScript(ctx, script, runName)
						if err != nil {
							return sum, err
						}
						if code != 0 {
							sum.Failed++
							log.Warn("run failed",
								zap.String("run", runName),
								zap.Int("exit_code", code))
						}
					}
				}
			}
		}
	}

	log.Info("suite finished",
		zap.String("suite", s.Name),
		zap.Int("total", sum.Total),
		zap.Int("failed", sum.Failed),
		zap.String("output_dir", r.outputDir))
	return sum, nil
}

// runScript executes one rendered launch script with its output wired to
// per-run log files.
func (r *Runner) runScript(ctx context.Context, script, runName string) (int, error) {
	stdout, err := os.Create(filepath.Join(r.outputDir, runName+"-log.txt"))
	if err != nil {
		return 0, fmt.Errorf("failed to create run log: %w", err)
	}
	defer stdout.Close()
	stderr, err := os.Create(filepath.Join(r.outputDir, runName+"-error-log.txt"))
	if err != nil {
		return 0, fmt.Errorf("failed to create run error log: %w", err)
	}
	defer stderr.Close()

	return launch.Run(ctx, script, "", stdout, stderr)
}
