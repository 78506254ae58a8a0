// Package machine describes the clusters experiments run on: their node
// geometry, queue layout and the launch template that matches their MPI
// stack. The harness never talks to a scheduler itself, it only computes
// the values batch scripts are generated from.
package machine

import (
	"fmt"
	"sort"
	"strings"
)

// Registry names.
const (
	Shared   = "shared"
	SuperMUC = "supermuc"
	HoreKa   = "horeka"
	Generic  = "generic"
)

// Machine is one cluster profile.
type Machine struct {
	Name string
	// TasksPerNode is the number of hardware cores per node, used when
	// neither the suite nor the command line overrides it.
	TasksPerNode int
	// DefaultTemplate names the launch template matching the cluster's
	// MPI installation.
	DefaultTemplate string
	// Batch reports whether runs are wrapped into SLURM job scripts.
	// The shared profile executes directly instead.
	Batch bool

	queue   func(nodes int, testPartition bool) (string, error)
	islands func(nodes int) int
}

var registry = map[string]*Machine{
	SuperMUC: {
		Name:            SuperMUC,
		TasksPerNode:    48,
		DefaultTemplate: "intel",
		Batch:           true,
		queue:           supermucQueue,
		islands:         supermucIslands,
	},
	HoreKa: {
		Name:            HoreKa,
		TasksPerNode:    76,
		DefaultTemplate: "openmpi",
		Batch:           true,
		queue:           horekaQueue,
		islands:         oneIsland,
	},
	Generic: {
		Name:            Generic,
		TasksPerNode:    1,
		DefaultTemplate: "generic",
		Batch:           true,
		queue: func(int, bool) (string, error) {
			return "generic_partition", nil
		},
		islands: oneIsland,
	},
	Shared: {
		Name:            Shared,
		TasksPerNode:    1,
		DefaultTemplate: "shared",
		Batch:           false,
		islands:         oneIsland,
	},
}

// ForName looks up a machine profile. "generic-job-file" is accepted as a
// legacy alias for the generic profile.
func ForName(name string) (*Machine, error) {
	key := strings.ToLower(name)
	if key == "generic-job-file" {
		key = Generic
	}
	m, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("unknown machine %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return m, nil
}

// Names lists the known machine profiles.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequiredNodes returns the node count needed to place cores at
// tasksPerNode tasks each. Never less than one.
func RequiredNodes(cores, tasksPerNode int) int {
	nodes := (cores + tasksPerNode - 1) / tasksPerNode
	if nodes < 1 {
		return 1
	}
	return nodes
}

// Queue picks the partition for a job of the given size. testPartition
// asks for the cluster's development queue where one exists.
func (m *Machine) Queue(cores, tasksPerNode int, testPartition bool) (string, error) {
	if m.queue == nil {
		return "", fmt.Errorf("machine %s has no job queues", m.Name)
	}
	return m.queue(RequiredNodes(cores, tasksPerNode), testPartition)
}

// Islands returns how many islands the node count spans.
func (m *Machine) Islands(nodes int) int {
	return m.islands(nodes)
}

func supermucQueue(nodes int, testPartition bool) (string, error) {
	switch {
	case nodes <= 16:
		if testPartition {
			return "test", nil
		}
		return "micro", nil
	case nodes <= 768:
		return "general", nil
	default:
		return "large", nil
	}
}

func supermucIslands(nodes int) int {
	if nodes > 768 {
		return 2
	}
	return 1
}

func horekaQueue(nodes int, testPartition bool) (string, error) {
	switch {
	case nodes <= 12:
		if testPartition {
			return "dev_cpuonly", nil
		}
		return "cpuonly", nil
	case nodes <= 192:
		return "cpuonly", nil
	default:
		return "", fmt.Errorf("cannot use more than 192 compute nodes on horeka, got %d", nodes)
	}
}

func oneIsland(int) int {
	return 1
}
