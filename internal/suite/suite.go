// Package suite loads experiment suite files and expands them into the
// concrete runs of a parameter sweep. A suite names a payload binary, the
// core counts to sweep, the input graphs and the config axes; everything
// else follows from machine profiles and command line flags.
package suite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"mpisuite/internal/graph"
	"mpisuite/internal/logger"
	"mpisuite/internal/params"
)

// FileSuffix marks experiment suite files during discovery.
const FileSuffix = ".suite.yaml"

const (
	defaultType         = "BFS"
	defaultOutputOption = "json_output_path"
)

// Input is one graph of a suite, either a reference into the input
// descriptions or a generated graph defined inline.
type Input struct {
	Name        string
	Partitioned bool
	TimeLimit   int // minutes, 0 falls back to the suite wide limit

	// Graph is set at load time for generated inputs and by Resolve for
	// references.
	Graph graph.Graph
}

// Suite is a loaded experiment suite.
type Suite struct {
	Name           string
	Type           string
	Executable     string
	Cores          []int
	ThreadsPerRank []int
	Seeds          []int
	Inputs         []*Input
	Configs        []params.Params
	TasksPerNode   int // 0 when the suite does not pin it
	TimeLimit      int // minutes per run, 0 when unset
	OutputOption   string
}

// InputTimeLimit returns the limit in minutes for one input, falling back
// to the suite wide limit. Zero means neither is set.
func (s *Suite) InputTimeLimit(in *Input) int {
	if in.TimeLimit > 0 {
		return in.TimeLimit
	}
	return s.TimeLimit
}

// suiteFile is the on-disk shape of a suite. The config section is kept
// as a raw node because it may be a single mapping or a list of them.
type suiteFile struct {
	Name           string      `yaml:"name"`
	Type           string      `yaml:"type"`
	Executable     string      `yaml:"executable"`
	Cores          []int       `yaml:"ncores"`
	ThreadsPerRank []int       `yaml:"threads_per_rank"`
	Seeds          []int       `yaml:"seeds"`
	Graphs         []inputSpec `yaml:"graphs"`
	Config         yaml.Node   `yaml:"config"`
	TasksPerNode   int         `yaml:"tasks_per_node"`
	TimeLimit      int         `yaml:"time_limit"`
	OutputOption   string      `yaml:"output_path_option"`
}

// inputSpec is one entry of the graphs list. The scalar form references a
// graph from the input descriptions by name, the mapping form either
// references one with extra settings or defines a generated input.
type inputSpec struct {
	name        string
	partitioned bool
	timeLimit   int
	genSpec     params.Params // nil for plain references
}

func (s *inputSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&s.name)
	case yaml.MappingNode:
		var fields struct {
			Name        string `yaml:"name"`
			Partitioned bool   `yaml:"partitioned"`
			TimeLimit   int    `yaml:"time_limit"`
		}
		if err := node.Decode(&fields); err != nil {
			return err
		}
		s.name = fields.Name
		s.partitioned = fields.Partitioned
		s.timeLimit = fields.TimeLimit

		var p params.Params
		if err := node.Decode(&p); err != nil {
			return err
		}
		if _, ok := p.Get("generator"); ok {
			s.genSpec = p
		} else if s.name == "" {
			return fmt.Errorf("graph entry needs a name or a generator")
		}
		return nil
	default:
		return fmt.Errorf("graph entry must be a string or a mapping")
	}
}

func (s *inputSpec) input() (*Input, error) {
	in := &Input{
		Name:        s.name,
		Partitioned: s.partitioned,
		TimeLimit:   s.timeLimit,
	}
	if s.genSpec != nil {
		g, err := graph.FromSpec(s.genSpec)
		if err != nil {
			return nil, err
		}
		in.Graph = g
		in.Name = g.Name()
	}
	return in, nil
}

// Load reads, validates and expands a suite file.
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("suite %s: %w", filepath.Base(path), err)
	}
	return s, nil
}

// Parse validates a suite document against the schema and expands its
// config section into the exploded configurations.
func Parse(data []byte) (*Suite, error) {
	if err := validateSuite(data); err != nil {
		return nil, err
	}
	var file suiteFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse suite file: %w", err)
	}

	configs, err := expandConfigs(&file.Config)
	if err != nil {
		return nil, err
	}

	s := &Suite{
		Name:           file.Name,
		Type:           file.Type,
		Executable:     file.Executable,
		Cores:          file.Cores,
		ThreadsPerRank: file.ThreadsPerRank,
		Seeds:          file.Seeds,
		Configs:        configs,
		TasksPerNode:   file.TasksPerNode,
		TimeLimit:      file.TimeLimit,
		OutputOption:   file.OutputOption,
	}
	for i := range file.Graphs {
		in, err := file.Graphs[i].input()
		if err != nil {
			return nil, err
		}
		s.Inputs = append(s.Inputs, in)
	}
	s.setDefaults()
	return s, nil
}

func (s *Suite) setDefaults() {
	if s.Type == "" {
		s.Type = defaultType
	}
	// The payload binary is conventionally named like the suite.
	if s.Executable == "" {
		s.Executable = s.Name
	}
	if len(s.ThreadsPerRank) == 0 {
		s.ThreadsPerRank = []int{1}
	}
	if len(s.Seeds) == 0 {
		s.Seeds = []int{0}
	}
	if s.OutputOption == "" {
		s.OutputOption = defaultOutputOption
	}
}

// expandConfigs turns the config section into the exploded configuration
// list. A missing section yields a single empty config so every suite has
// at least one run per input.
func expandConfigs(node *yaml.Node) ([]params.Params, error) {
	switch node.Kind {
	case 0:
		return []params.Params{nil}, nil
	case yaml.MappingNode:
		var p params.Params
		if err := node.Decode(&p); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
		return params.Explode(p), nil
	case yaml.SequenceNode:
		var list []params.Params
		if err := node.Decode(&list); err != nil {
			return nil, fmt.Errorf("failed to decode config list: %w", err)
		}
		var out []params.Params
		for _, p := range list {
			out = append(out, params.Explode(p)...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("config must be a mapping or a list of mappings")
	}
}

// Resolve replaces graph references with the registry's file graphs.
// Unknown references are dropped with a warning so one sweep definition
// can run on machines that hold only a subset of the graph files.
func (s *Suite) Resolve(ctx context.Context, reg *graph.Registry) {
	log := logger.FromContext(ctx)
	resolved := make([]*Input, 0, len(s.Inputs))
	for _, in := range s.Inputs {
		if in.Graph != nil {
			resolved = append(resolved, in)
			continue
		}
		g, ok := reg.Get(in.Name)
		if !ok {
			log.Warn("could not resolve input graph, skipping",
				zap.String("suite", s.Name),
				zap.String("graph", in.Name))
			continue
		}
		if in.Partitioned {
			in.Graph = g.WithPartitions(reg.Partitions(in.Name))
		} else {
			in.Graph = g
		}
		resolved = append(resolved, in)
	}
	s.Inputs = resolved
}

// Discover collects suites from search directories and explicit files.
// Directories are scanned for *.suite.yaml entries, non-recursively.
// A suite loaded later replaces an earlier one of the same name, so
// explicit files win over search path hits.
func Discover(ctx context.Context, files, searchDirs []string) ([]*Suite, error) {
	log := logger.FromContext(ctx)

	var order []string
	byName := make(map[string]*Suite)
	add := func(path string) error {
		s, err := Load(path)
		if err != nil {
			return err
		}
		if _, ok := byName[s.Name]; !ok {
			order = append(order, s.Name)
		}
		byName[s.Name] = s
		log.Debug("loaded suite",
			zap.String("suite", s.Name),
			zap.String("path", path))
		return nil
	}

	for _, dir := range searchDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			log.Debug("skipping suite search directory",
				zap.String("dir", dir),
				zap.Error(err))
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), FileSuffix) {
				continue
			}
			if err := add(filepath.Join(dir, entry.Name())); err != nil {
				return nil, err
			}
		}
	}
	for _, path := range files {
		if err := add(path); err != nil {
			return nil, err
		}
	}

	suites := make([]*Suite, 0, len(order))
	for _, name := range order {
		suites = append(suites, byName[name])
	}
	return suites, nil
}
