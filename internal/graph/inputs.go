package graph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"mpisuite/internal/logger"
)

// Registry holds the file graphs known to the tool together with the
// partition files discovered for them.
type Registry struct {
	graphs     map[string]*FileGraph
	partitions map[string]map[int]string
}

func NewRegistry() *Registry {
	return &Registry{
		graphs:     make(map[string]*FileGraph),
		partitions: make(map[string]map[int]string),
	}
}

// Add registers a graph, replacing any previous entry of the same name.
func (r *Registry) Add(g *FileGraph) {
	r.graphs[g.Name()] = g
}

func (r *Registry) Get(name string) (*FileGraph, bool) {
	g, ok := r.graphs[name]
	return g, ok
}

// Partitions returns the partition files recorded for a graph, keyed by
// rank count. The result may be nil.
func (r *Registry) Partitions(name string) map[int]string {
	return r.partitions[name]
}

func (r *Registry) AddPartition(graphName string, ranks int, path string) {
	if r.partitions[graphName] == nil {
		r.partitions[graphName] = make(map[int]string)
	}
	r.partitions[graphName][ranks] = path
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.graphs))
	for name := range r.graphs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int {
	return len(r.graphs)
}

// inputsFile is the on-disk shape of a graph description file.
type inputsFile struct {
	Graphs []struct {
		Name   string `yaml:"name"`
		Path   string `yaml:"path"`
		Format string `yaml:"format"`
	} `yaml:"graphs"`
	Includes   []string `yaml:"includes"`
	Partitions string   `yaml:"partitions"`
}

// Partition files are named <graph>_k<ranks>, for example rgg_26_k64.
var partitionPattern = regexp.MustCompile(`^(.*)_k([0-9]+)`)

// LoadInputs reads graph description files into the registry. Relative
// graph and include paths resolve against the description file's
// directory. Graphs whose files are missing are skipped with a warning so
// one stale entry does not block a whole sweep.
func LoadInputs(ctx context.Context, reg *Registry, paths ...string) error {
	seen := make(map[string]bool)
	for _, path := range paths {
		if err := loadInputsFile(ctx, reg, path, seen); err != nil {
			return err
		}
	}
	return nil
}

func loadInputsFile(ctx context.Context, reg *Registry, path string, seen map[string]bool) error {
	log := logger.FromContext(ctx)

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve input description %s: %w", path, err)
	}
	if seen[abs] {
		return nil
	}
	seen[abs] = true

	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("failed to read input description: %w", err)
	}
	var file inputsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse input description %s: %w", path, err)
	}

	dir := filepath.Dir(abs)
	for _, entry := range file.Graphs {
		g := NewFileGraph(entry.Name, resolvePath(dir, entry.Path), entry.Format)
		if !g.Exists() {
			log.Warn("could not load graph, files missing",
				zap.String("graph", entry.Name),
				zap.String("path", g.Path))
			continue
		}
		reg.Add(g)
		log.Debug("loaded graph",
			zap.String("graph", g.Name()),
			zap.String("format", g.Format))
	}

	for _, include := range file.Includes {
		if err := loadInputsFile(ctx, reg, resolvePath(dir, include), seen); err != nil {
			return err
		}
	}

	if file.Partitions != "" {
		if err := loadPartitions(ctx, reg, resolvePath(dir, file.Partitions)); err != nil {
			return err
		}
	}
	return nil
}

// loadPartitions scans a directory of precomputed partition files.
func loadPartitions(ctx context.Context, reg *Registry, dir string) error {
	log := logger.FromContext(ctx)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read partition directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := partitionPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			log.Warn("ignoring partition file with unexpected name",
				zap.String("file", entry.Name()))
			continue
		}
		ranks, err := strconv.Atoi(m[2])
		if err != nil {
			log.Warn("ignoring partition file with unexpected name",
				zap.String("file", entry.Name()))
			continue
		}
		reg.AddPartition(m[1], ranks, filepath.Join(dir, entry.Name()))
	}
	return nil
}

func resolvePath(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
