// Package graph models experiment inputs: graphs read from disk and graphs
// generated in memory by the payload binaries. Every input knows the
// command line arguments that make a payload load or generate it.
package graph

import (
	"fmt"
	"math"

	"mpisuite/internal/params"

	"github.com/gosimple/slug"
)

// Graph is one experiment input.
type Graph interface {
	// Name is the slugified identifier used in run names and file names.
	Name() string
	// Args returns the payload arguments selecting this input at the
	// given parallelism. escape quotes values that would otherwise be
	// split by the shell.
	Args(mpiRanks, threadsPerRank int, escape bool) ([]string, error)
}

// FromSpec builds a generated input from its suite file entry. The entry
// must carry a "generator" key naming either kagen, dummy or one of the
// built-in generators.
func FromSpec(spec params.Params) (Graph, error) {
	v, ok := spec.Get("generator")
	if !ok {
		return nil, fmt.Errorf("input spec carries no generator")
	}
	generator, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("generator must be a string, got %T", v)
	}

	rest := spec.Without("generator", "time_limit", "partitioned")
	switch generator {
	case "kagen":
		return NewKaGenGraph(rest)
	case "dummy":
		return NewDummyGraph(rest)
	default:
		return NewGenGraph(generator, rest)
	}
}

// File graph formats.
const (
	FormatMetis  = "metis"
	FormatBinary = "binary"
	FormatBrain  = "brain_format"
)

// FileGraph is a graph stored on disk.
type FileGraph struct {
	Path        string
	Format      string
	Partitioned bool

	name       string
	partitions map[int]string
}

// NewFileGraph builds a file input. The name is slugified, an empty format
// defaults to metis.
func NewFileGraph(name, path, format string) *FileGraph {
	if format == "" {
		format = FormatMetis
	}
	return &FileGraph{name: slug.Make(name), Path: path, Format: format}
}

// Name returns the graph identifier. Partitioned variants get their own
// suffix so their runs do not collide with the unpartitioned ones.
func (g *FileGraph) Name() string {
	if g.Partitioned {
		return g.name + "_partitioned"
	}
	return g.name
}

// Exists probes the files the format needs.
func (g *FileGraph) Exists() bool {
	switch g.Format {
	case FormatMetis:
		return fileExists(g.Path)
	case FormatBinary:
		// Binary graphs come as a .first_out/.head pair next to the
		// stem path.
		return fileExists(g.Path+".first_out") && fileExists(g.Path+".head")
	case FormatBrain:
		return true
	default:
		return false
	}
}

// Args selects the graph on the payload command line. The payload binaries
// load every on-disk graph through their BRAIN reader, taking the
// directory rather than a single file.
func (g *FileGraph) Args(mpiRanks, threadsPerRank int, escape bool) ([]string, error) {
	args := []string{"--graphtype", "BRAIN", "--infile_dir", g.Path}
	if g.Partitioned && mpiRanks > 1 {
		partition, ok := g.partitions[mpiRanks]
		if !ok {
			return nil, fmt.Errorf("no partitioning for p=%d of input %s", mpiRanks, g.Name())
		}
		args = append(args, "--partitioning", partition)
	}
	return args, nil
}

// WithPartitions returns a partitioned copy wired to the given partition
// files, keyed by rank count. The receiver stays untouched so a shared
// registry entry can back both variants.
func (g *FileGraph) WithPartitions(partitions map[int]string) *FileGraph {
	clone := *g
	clone.Partitioned = true
	clone.partitions = make(map[int]string, len(partitions))
	for ranks, path := range partitions {
		clone.partitions[ranks] = path
	}
	return &clone
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n == math.Trunc(n) {
			return int(n), nil
		}
	}
	return 0, fmt.Errorf("expected an integer, got %v (%T)", v, v)
}

func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("expected a number, got %v (%T)", v, v)
}
