package machine

import (
	"strings"
	"testing"
)

func TestForName(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      string
		wantError bool
	}{
		{name: "supermuc", input: "supermuc", want: SuperMUC},
		{name: "case insensitive", input: "SuperMUC", want: SuperMUC},
		{name: "horeka", input: "horeka", want: HoreKa},
		{name: "generic", input: "generic", want: Generic},
		{name: "legacy alias", input: "generic-job-file", want: Generic},
		{name: "shared", input: "shared", want: Shared},
		{name: "unknown", input: "fugaku", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ForName(tt.input)
			if tt.wantError {
				if err == nil {
					t.Fatal("expected an error, got none")
				}
				if !strings.Contains(err.Error(), "unknown machine") {
					t.Errorf("error should name the machine, got: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ForName(%q) error = %v", tt.input, err)
			}
			if m.Name != tt.want {
				t.Errorf("ForName(%q).Name = %s, want %s", tt.input, m.Name, tt.want)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	tests := []struct {
		machine      string
		tasksPerNode int
		template     string
		batch        bool
	}{
		{SuperMUC, 48, "intel", true},
		{HoreKa, 76, "openmpi", true},
		{Generic, 1, "generic", true},
		{Shared, 1, "shared", false},
	}

	for _, tt := range tests {
		t.Run(tt.machine, func(t *testing.T) {
			m, err := ForName(tt.machine)
			if err != nil {
				t.Fatalf("ForName() error = %v", err)
			}
			if m.TasksPerNode != tt.tasksPerNode {
				t.Errorf("TasksPerNode = %d, want %d", m.TasksPerNode, tt.tasksPerNode)
			}
			if m.DefaultTemplate != tt.template {
				t.Errorf("DefaultTemplate = %s, want %s", m.DefaultTemplate, tt.template)
			}
			if m.Batch != tt.batch {
				t.Errorf("Batch = %v, want %v", m.Batch, tt.batch)
			}
		})
	}
}

func TestRequiredNodes(t *testing.T) {
	tests := []struct {
		name         string
		cores        int
		tasksPerNode int
		want         int
	}{
		{name: "exact fit", cores: 96, tasksPerNode: 48, want: 2},
		{name: "rounds up", cores: 49, tasksPerNode: 48, want: 2},
		{name: "single node", cores: 4, tasksPerNode: 48, want: 1},
		{name: "never below one", cores: 0, tasksPerNode: 48, want: 1},
		{name: "one task per node", cores: 7, tasksPerNode: 1, want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RequiredNodes(tt.cores, tt.tasksPerNode); got != tt.want {
				t.Errorf("RequiredNodes(%d, %d) = %d, want %d", tt.cores, tt.tasksPerNode, got, tt.want)
			}
		})
	}
}

func TestSuperMUCQueue(t *testing.T) {
	m, err := ForName(SuperMUC)
	if err != nil {
		t.Fatalf("ForName() error = %v", err)
	}

	tests := []struct {
		name          string
		cores         int
		testPartition bool
		want          string
	}{
		{name: "small job on micro", cores: 16 * 48, want: "micro"},
		{name: "small job on test partition", cores: 16 * 48, testPartition: true, want: "test"},
		{name: "medium job on general", cores: 17 * 48, want: "general"},
		{name: "upper general bound", cores: 768 * 48, want: "general"},
		{name: "large job", cores: 769 * 48, want: "large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Queue(tt.cores, 48, tt.testPartition)
			if err != nil {
				t.Fatalf("Queue() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Queue(%d cores) = %s, want %s", tt.cores, got, tt.want)
			}
		})
	}
}

func TestSuperMUCIslands(t *testing.T) {
	m, err := ForName(SuperMUC)
	if err != nil {
		t.Fatalf("ForName() error = %v", err)
	}

	if got := m.Islands(768); got != 1 {
		t.Errorf("Islands(768) = %d, want 1", got)
	}
	if got := m.Islands(769); got != 2 {
		t.Errorf("Islands(769) = %d, want 2", got)
	}
}

func TestHoreKaQueue(t *testing.T) {
	m, err := ForName(HoreKa)
	if err != nil {
		t.Fatalf("ForName() error = %v", err)
	}

	tests := []struct {
		name          string
		cores         int
		testPartition bool
		want          string
	}{
		{name: "dev queue under test flag", cores: 12 * 76, testPartition: true, want: "dev_cpuonly"},
		{name: "small job without test flag", cores: 12 * 76, want: "cpuonly"},
		{name: "full size", cores: 192 * 76, want: "cpuonly"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Queue(tt.cores, 76, tt.testPartition)
			if err != nil {
				t.Fatalf("Queue() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Queue(%d cores) = %s, want %s", tt.cores, got, tt.want)
			}
		})
	}
}

func TestHoreKaOverCapacity(t *testing.T) {
	m, err := ForName(HoreKa)
	if err != nil {
		t.Fatalf("ForName() error = %v", err)
	}

	_, err = m.Queue(193*76, 76, false)
	if err == nil {
		t.Fatal("expected an error above 192 nodes")
	}
	if !strings.Contains(err.Error(), "192") {
		t.Errorf("error should mention the node limit, got: %v", err)
	}
}

func TestSharedHasNoQueues(t *testing.T) {
	m, err := ForName(Shared)
	if err != nil {
		t.Fatalf("ForName() error = %v", err)
	}

	if _, err := m.Queue(8, 1, false); err == nil {
		t.Error("shared machine should not offer job queues")
	}
}
