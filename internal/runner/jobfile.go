package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"mpisuite/internal/batch"
	"mpisuite/internal/launch"
	"mpisuite/internal/logger"
	"mpisuite/internal/machine"
	"mpisuite/internal/suite"
)

// GenerateJobs writes one job script per (input, cores) pair of a suite.
// Each script requests the allocation once and runs every thread, config
// and seed combination inside it, so the queue sees few large jobs
// instead of many small ones. The script's time limit is the sum of the
// per-run limits.
func (r *Runner) GenerateJobs(ctx context.Context, s *suite.Suite) (Summary, error) {
	log := logger.FromContext(ctx)
	if err := r.dumpConfig(s); err != nil {
		return Summary{}, err
	}

	tmpl := r.opts.ScriptTemplate
	if tmpl == nil {
		var err error
		tmpl, err = batch.Default(r.opts.Machine.Name)
		if err != nil {
			return Summary{}, err
		}
	}

	tasksPerNode := r.tasksPerNode(s)
	sum := Summary{OutputDir: r.outputDir, JobDir: r.jobDir}
	for inputIdx, in := range s.Inputs {
		for _, cores := range s.Cores {
			aggregate := nameParts{
				InputIndex: inputIdx,
				InputName:  in.Graph.Name(),
				Cores:      cores,
			}
			jobName := aggregate.job(s.Name)
			instance := aggregate.instance()

			nodes := machine.RequiredNodes(cores, tasksPerNode)
			queue, err := r.opts.Machine.Queue(cores, tasksPerNode, r.opts.TestPartition)
			if err != nil {
				return sum, err
			}

			var commands []string
			totalMinutes := 0
			for _, threads := range s.ThreadsPerRank {
				if cores%threads != 0 {
					log.Warn("skipping core count not divisible by threads per rank",
						zap.Int("cores", cores),
						zap.Int("threads", threads))
					continue
				}
				ranks := cores / threads
				ranksPerNode := tasksPerNode / threads
				if ranksPerNode < 1 {
					ranksPerNode = 1
				}
				for configIdx, config := range s.Configs {
					for _, seed := range s.Seeds {
						run := nameParts{
							InputIndex:  inputIdx,
							InputName:   in.Graph.Name(),
							Ranks:       ranks,
							Threads:     threads,
							ConfigIndex: configIdx,
							Seed:        seed,
						}
						runName := run.instance()
						limit := r.runTimeLimit(s, in)
						totalMinutes += limit

						cmdLine, err := r.runCommand(s, in, runName, ranks, threads, seed, config)
						if err != nil {
							return sum, err
						}
						rendered, err := r.opts.LaunchTemplate.Render(launch.Vars{
							JobName:        run.job(s.Name),
							MPIRanks:       ranks,
							RanksPerNode:   ranksPerNode,
							ThreadsPerRank: threads,
							Timeout:        limit * 60,
							Cmd:            cmdLine,
						})
						if err != nil {
							return sum, err
						}
						commands = append(commands, rendered)
						sum.Total++
					}
				}
			}

			script, err := tmpl.Render(batch.ScriptData{
				JobName:       jobName,
				Nodes:         nodes,
				NTasks:        cores,
				NTasksPerNode: tasksPerNode,
				Queue:         queue,
				Islands:       r.opts.Machine.Islands(nodes),
				Account:       r.opts.Account,
				TimeString:    batch.TimeString(time.Duration(totalMinutes) * time.Minute),
				OutputLog:     filepath.Join(r.outputDir, instance+"-log.txt"),
				ErrorLog:      filepath.Join(r.outputDir, instance+"-err.txt"),
				ModuleSetup:   batch.ModuleSetup(r.opts.ModuleRestoreCmd, r.opts.ModuleConfig),
				Commands:      strings.Join(commands, "\n"),
			})
			if err != nil {
				return sum, err
			}

			if r.opts.DryRun {
				fmt.Fprintln(r.opts.Out, script)
				continue
			}
			path := filepath.Join(r.jobDir, jobName)
			if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
				return sum, fmt.Errorf("failed to write job file: %w", err)
			}
			sum.JobFiles = append(sum.JobFiles, path)
			log.Debug("wrote job file",
				zap.String("job", jobName),
				zap.Int("nodes", nodes),
				zap.String("queue", queue))
		}
	}

	log.Info("created job files",
		zap.String("suite", s.Name),
		zap.Int("count", len(sum.JobFiles)),
		zap.String("dir", r.jobDir))
	return sum, nil
}
