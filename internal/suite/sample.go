package suite

import (
	"fmt"
	"os"
)

const sampleSuite = `# Example experiment suite. One run is executed per combination of
# input graph, core count, thread count, seed and exploded config.
name: example
executable: graphapp
ncores: [4, 8, 16]
threads_per_rank: [1]
seeds: [1, 2, 3]
graphs:
  # References into the input descriptions, see the graphs command.
  # - europe
  # - name: europe
  #   partitioned: true
  - generator: rgg2d
    n: 18
    m: 22
  - generator: kagen
    type: rhg
    N: 16
    M: 20
    gamma: 2.8
config:
  algorithm: [bfs, sssp]
# minutes per run, used for the sbatch time limit
time_limit: 20
`

// CreateSample writes an example suite file to the given path.
func CreateSample(path string) error {
	if err := os.WriteFile(path, []byte(sampleSuite), 0o644); err != nil {
		return fmt.Errorf("failed to write sample suite: %w", err)
	}
	return nil
}
