package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mpisuite/internal/launch"
	"mpisuite/internal/logger"
	"mpisuite/internal/machine"
	"mpisuite/internal/suite"
	"mpisuite/internal/testutil"
)

func testContext() context.Context {
	return logger.WithLogger(context.Background(), zap.NewNop())
}

// plainTemplate renders just the payload command so tests can execute
// runs through the base utilities without a real MPI installation.
func plainTemplate(t *testing.T) *launch.Template {
	t.Helper()
	tmpl, err := launch.New("plain", "{{.Cmd}}\n")
	require.NoError(t, err)
	return tmpl
}

func testSuite(t *testing.T, executable string) *suite.Suite {
	t.Helper()
	s, err := suite.Parse([]byte(fmt.Sprintf(`name: probe-sweep
executable: "%s"
ncores: [2]
graphs:
  - generator: dummy
    name: probe
    marker: 42
config:
  algorithm: [x, y]
`, executable)))
	require.NoError(t, err)
	return s
}

func sharedOptions(t *testing.T, dataDir string) Options {
	t.Helper()
	m, err := machine.ForName("shared")
	require.NoError(t, err)
	return Options{
		Machine:        m,
		DataDir:        dataDir,
		LaunchTemplate: plainTemplate(t),
		TimeLimit:      1,
		BuildDir:       "/bin",
		Out:            &bytes.Buffer{},
	}
}

func TestRunShared(t *testing.T) {
	dataDir := testutil.TempDir(t)
	s := testSuite(t, "echo")

	r, err := New(s.Name, sharedOptions(t, dataDir))
	require.NoError(t, err)

	sum, err := r.RunShared(testContext(), s)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 0, sum.Failed)

	// Runs are named in<input>_<graph>-r<ranks>-t<threads>-c<config>.
	logPath := filepath.Join(r.OutputDir(), "in0_probe_marker-42-r2-t1-c0-log.txt")
	content := testutil.ReadFile(t, logPath)
	assert.Contains(t, content, "--marker 42")
	assert.Contains(t, content, "--algorithm x")
	assert.Contains(t, content, "--seed 0")
	assert.Contains(t, content, "--json_output_path "+filepath.Join(r.OutputDir(), "in0_probe_marker-42-r2-t1-c0"))
	assert.True(t, testutil.FileExists(filepath.Join(r.OutputDir(), "in0_probe_marker-42-r2-t1-c1-log.txt")))

	dump := testutil.ReadFile(t, filepath.Join(r.OutputDir(), "config.json"))
	assert.Contains(t, dump, `"algorithm": "x"`)
	assert.Contains(t, dump, `"idx": 1`)
}

func TestRunSharedCountsFailures(t *testing.T) {
	dataDir := testutil.TempDir(t)
	s := testSuite(t, "false")

	r, err := New(s.Name, sharedOptions(t, dataDir))
	require.NoError(t, err)

	sum, err := r.RunShared(testContext(), s)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 2, sum.Failed)
}

func TestRunSharedOmitFlags(t *testing.T) {
	dataDir := testutil.TempDir(t)
	s := testSuite(t, "echo")

	opts := sharedOptions(t, dataDir)
	opts.OmitOutputPath = true
	opts.OmitSeed = true
	r, err := New(s.Name, opts)
	require.NoError(t, err)

	_, err = r.RunShared(testContext(), s)
	require.NoError(t, err)

	content := testutil.ReadFile(t,
		filepath.Join(r.OutputDir(), "in0_probe_marker-42-r2-t1-c0-log.txt"))
	assert.NotContains(t, content, "--json_output_path")
	assert.NotContains(t, content, "--seed")
}

func TestRunSharedMaxCores(t *testing.T) {
	dataDir := testutil.TempDir(t)
	s := testSuite(t, "echo")
	s.Cores = []int{2, 64}

	opts := sharedOptions(t, dataDir)
	opts.MaxCores = 8
	r, err := New(s.Name, opts)
	require.NoError(t, err)

	sum, err := r.RunShared(testContext(), s)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Total, "the 64 core runs should be skipped")
}

func TestRunSharedSkipsIndivisibleThreads(t *testing.T) {
	dataDir := testutil.TempDir(t)
	s := testSuite(t, "echo")
	s.Cores = []int{3}
	s.ThreadsPerRank = []int{2}

	r, err := New(s.Name, sharedOptions(t, dataDir))
	require.NoError(t, err)

	sum, err := r.RunShared(testContext(), s)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Total)
}

func TestRunSharedDryRun(t *testing.T) {
	dataDir := testutil.TempDir(t)
	s := testSuite(t, "echo")

	var out bytes.Buffer
	opts := sharedOptions(t, dataDir)
	opts.DryRun = true
	opts.Out = &out
	r, err := New(s.Name, opts)
	require.NoError(t, err)

	sum, err := r.RunShared(testContext(), s)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Total)
	assert.Contains(t, out.String(), "/bin/echo --marker 42")
	assert.False(t, testutil.FileExists(
		filepath.Join(r.OutputDir(), "in0_probe_marker-42-r2-t1-c0-log.txt")))
}

func TestRunSharedStopsWhenCancelled(t *testing.T) {
	dataDir := testutil.TempDir(t)
	s := testSuite(t, "echo")

	r, err := New(s.Name, sharedOptions(t, dataDir))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(testContext())
	cancel()
	sum, err := r.RunShared(ctx, s)
	require.Error(t, err)
	assert.Equal(t, 0, sum.Total)
}

func TestNewFresh(t *testing.T) {
	dataDir := testutil.TempDir(t)
	stamp := time.Now().Format("06_01_02")
	stale := filepath.Join(dataDir, "probe-sweep_"+stamp, "output", "stale.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	opts := sharedOptions(t, dataDir)
	opts.Fresh = true
	r, err := New("probe-sweep", opts)
	require.NoError(t, err)

	assert.False(t, testutil.FileExists(stale))
	assert.True(t, testutil.FileExists(r.OutputDir()))
}

func batchOptions(t *testing.T, dataDir string) Options {
	t.Helper()
	m, err := machine.ForName("generic-job-file")
	require.NoError(t, err)

	tmpl, err := launch.Builtin("generic")
	require.NoError(t, err)
	return Options{
		Machine:          m,
		DataDir:          dataDir,
		LaunchTemplate:   tmpl,
		TimeLimit:        20,
		BuildDir:         "/build",
		Account:          "testproj",
		ModuleRestoreCmd: "module restore",
		Out:              &bytes.Buffer{},
	}
}

func TestGenerateJobs(t *testing.T) {
	dataDir := testutil.TempDir(t)
	s := testSuite(t, "graphapp")

	r, err := New(s.Name, batchOptions(t, dataDir))
	require.NoError(t, err)

	sum, err := r.GenerateJobs(testContext(), s)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Total)
	require.Len(t, sum.JobFiles, 1)
	assert.Equal(t, "probe-sweep-in0_probe_marker-42-p2", filepath.Base(sum.JobFiles[0]))

	script := testutil.ReadFile(t, sum.JobFiles[0])
	for _, want := range []string{
		"#SBATCH --job-name=probe-sweep-in0_probe_marker-42-p2",
		"#SBATCH --nodes=2",
		"#SBATCH --ntasks=2",
		"#SBATCH --ntasks-per-node=1",
		"#SBATCH --partition=generic_partition",
		"#SBATCH --account=testproj",
		// Two runs at 20 minutes each.
		"#SBATCH --time=0-00:40:00",
		"# no specific module setup given",
		"Starting job probe-sweep-in0_probe_marker-42-r2-t1-c0",
		"Starting job probe-sweep-in0_probe_marker-42-r2-t1-c1",
		"mpiexec -n 2",
		"/build/graphapp --marker 42 --algorithm x",
	} {
		assert.Contains(t, script, want)
	}

	assert.True(t, testutil.FileExists(filepath.Join(r.OutputDir(), "config.json")))
}

func TestGenerateJobsTasksPerNodePrecedence(t *testing.T) {
	dataDir := testutil.TempDir(t)
	s := testSuite(t, "graphapp")
	s.Cores = []int{4}
	s.TasksPerNode = 2

	opts := batchOptions(t, dataDir)
	opts.TasksPerNode = 4 // the suite's value must win
	r, err := New(s.Name, opts)
	require.NoError(t, err)

	sum, err := r.GenerateJobs(testContext(), s)
	require.NoError(t, err)
	require.Len(t, sum.JobFiles, 1)

	script := testutil.ReadFile(t, sum.JobFiles[0])
	assert.Contains(t, script, "#SBATCH --nodes=2")
	assert.Contains(t, script, "#SBATCH --ntasks-per-node=2")
}

func TestGenerateJobsModuleConfig(t *testing.T) {
	dataDir := testutil.TempDir(t)
	s := testSuite(t, "graphapp")

	opts := batchOptions(t, dataDir)
	opts.ModuleConfig = "gcc12-mpi"
	r, err := New(s.Name, opts)
	require.NoError(t, err)

	sum, err := r.GenerateJobs(testContext(), s)
	require.NoError(t, err)
	require.Len(t, sum.JobFiles, 1)

	script := testutil.ReadFile(t, sum.JobFiles[0])
	assert.Contains(t, script, "module restore gcc12-mpi")
	assert.NotContains(t, script, "# no specific module setup given")
}

func TestGenerateJobsQueueError(t *testing.T) {
	dataDir := testutil.TempDir(t)
	s := testSuite(t, "graphapp")
	s.Cores = []int{76 * 193}

	m, err := machine.ForName("horeka")
	require.NoError(t, err)
	opts := batchOptions(t, dataDir)
	opts.Machine = m

	tmpl, err := launch.Builtin("openmpi")
	require.NoError(t, err)
	opts.LaunchTemplate = tmpl

	r, err := New(s.Name, opts)
	require.NoError(t, err)

	_, err = r.GenerateJobs(testContext(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "192 compute nodes")
}

func TestGenerateJobsDryRun(t *testing.T) {
	dataDir := testutil.TempDir(t)
	s := testSuite(t, "graphapp")

	var out bytes.Buffer
	opts := batchOptions(t, dataDir)
	opts.DryRun = true
	opts.Out = &out
	r, err := New(s.Name, opts)
	require.NoError(t, err)

	sum, err := r.GenerateJobs(testContext(), s)
	require.NoError(t, err)
	assert.Empty(t, sum.JobFiles)
	assert.Contains(t, out.String(), "#SBATCH --job-name=probe-sweep-in0_probe_marker-42-p2")

	entries, err := os.ReadDir(r.JobDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunSharedRendersTimeout(t *testing.T) {
	dataDir := testutil.TempDir(t)
	s := testSuite(t, "echo")
	s.TimeLimit = 3

	var out bytes.Buffer
	opts := sharedOptions(t, dataDir)
	opts.DryRun = true
	opts.Out = &out
	tmpl, err := launch.New("timeout-probe", "timeout={{.Timeout}} {{.Cmd}}\n")
	require.NoError(t, err)
	opts.LaunchTemplate = tmpl

	r, err := New(s.Name, opts)
	require.NoError(t, err)
	_, err = r.RunShared(testContext(), s)
	require.NoError(t, err)

	// 3 minutes rendered as seconds for the launcher.
	assert.True(t, strings.Contains(out.String(), "timeout=180"))
}
