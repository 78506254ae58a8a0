package suite

import (
	"path/filepath"

	"mpisuite/internal/params"
)

// Payload builds the payload command line for one run: the binary from
// the build directory, the arguments selecting the input and the config
// flags in suite file order. escape quotes arguments that would otherwise
// be split by the shell inside a rendered launch script.
func (s *Suite) Payload(in *Input, buildDir string, mpiRanks, threadsPerRank int, escape bool, config params.Params) ([]string, error) {
	cmd := []string{filepath.Join(buildDir, s.Executable)}
	if in.Graph != nil {
		args, err := in.Graph.Args(mpiRanks, threadsPerRank, escape)
		if err != nil {
			return nil, err
		}
		cmd = append(cmd, args...)
	}
	return append(cmd, config.Flags()...), nil
}
