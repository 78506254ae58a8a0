package launch

// The following variables are available for use in the templates:
//
// JobName         identifier echoed in the log bracket
// MPIRanks        total number of MPI ranks
// RanksPerNode    ranks placed on each node
// ThreadsPerRank  OpenMP threads per rank
// Timeout         seconds until the launcher aborts the run
// Cmd             payload command line, passed through verbatim

// See https://golang.org/pkg/text/template for more information

// The trailing sleep lets the MPI runtime tear down before the next
// invocation in the same batch script starts.

const intelTemplate = `echo "Starting job {{.JobName}}"
job_start=$(date +%s)
OMP_NUM_THREADS={{.ThreadsPerRank}} I_MPI_PIN_DOMAIN=omp:compact MPIEXEC_TIMEOUT={{.Timeout}} mpiexec.hydra -bootstrap slurm -n {{.MPIRanks}} -ppn {{.RanksPerNode}} {{.Cmd}}
job_end=$(date +%s)
echo "Finished job {{.JobName}} after $((job_end - job_start)) seconds"
sleep 5
`

const openMPITemplate = `echo "Starting job {{.JobName}}"
job_start=$(date +%s)
OMP_NUM_THREADS={{.ThreadsPerRank}} mpirun -np {{.MPIRanks}} --map-by ppr:{{.RanksPerNode}}:node:PE={{.ThreadsPerRank}} --bind-to core --timeout {{.Timeout}} {{.Cmd}}
job_end=$(date +%s)
echo "Finished job {{.JobName}} after $((job_end - job_start)) seconds"
sleep 5
`

const genericTemplate = `echo "Starting job {{.JobName}}"
job_start=$(date +%s)
OMP_NUM_THREADS={{.ThreadsPerRank}} timeout {{.Timeout}}s mpiexec -n {{.MPIRanks}} {{.Cmd}}
job_end=$(date +%s)
echo "Finished job {{.JobName}} after $((job_end - job_start)) seconds"
sleep 2
`

// sharedTemplate runs on the local machine where nothing needs to settle,
// so there is no bracket and no sleep.
const sharedTemplate = `mpiexec -n {{.MPIRanks}} {{.Cmd}}
`

var builtins = map[string]string{
	"intel":   intelTemplate,
	"openmpi": openMPITemplate,
	"generic": genericTemplate,
	"shared":  sharedTemplate,
}
