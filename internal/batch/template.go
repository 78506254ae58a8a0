// Package batch renders slurm job scripts and hands them to sbatch. One
// job script bundles every run of a suite on a fixed core count, so the
// scheduler sees a single allocation per (input, cores) pair.
package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
)

// ScriptData holds the values substituted into a job script template.
type ScriptData struct {
	JobName       string
	Nodes         int
	NTasks        int
	NTasksPerNode int
	Queue         string
	Islands       int
	Account       string
	TimeString    string
	OutputLog     string
	ErrorLog      string
	ModuleSetup   string
	Commands      string
}

// The built-in job script templates. Variables available are:
// JobName, Nodes, NTasks, NTasksPerNode, Queue, Islands, Account,
// TimeString, OutputLog, ErrorLog, ModuleSetup and Commands.
//
// See https://golang.org/pkg/text/template for more information.
const (
	// SuperMUC-NG purges the submission environment, so the script
	// restores it and loads the slurm helpers before anything else.
	supermucScript = `#!/bin/bash
#SBATCH --job-name={{.JobName}}
#SBATCH --output={{.OutputLog}}
#SBATCH --error={{.ErrorLog}}
#SBATCH --nodes={{.Nodes}}
#SBATCH --ntasks={{.NTasks}}
#SBATCH --ntasks-per-node={{.NTasksPerNode}}
#SBATCH --time={{.TimeString}}
#SBATCH --partition={{.Queue}}
#SBATCH --account={{.Account}}
#SBATCH --switches={{.Islands}}
#SBATCH --export=NONE
#SBATCH --get-user-env
module load slurm_setup
{{.ModuleSetup}}

{{.Commands}}
`

	horekaScript = `#!/bin/bash
#SBATCH --job-name={{.JobName}}
#SBATCH --output={{.OutputLog}}
#SBATCH --error={{.ErrorLog}}
#SBATCH --nodes={{.Nodes}}
#SBATCH --ntasks={{.NTasks}}
#SBATCH --ntasks-per-node={{.NTasksPerNode}}
#SBATCH --time={{.TimeString}}
#SBATCH --partition={{.Queue}}
#SBATCH --account={{.Account}}
{{.ModuleSetup}}

{{.Commands}}
`

	genericScript = `#!/bin/bash
#SBATCH --job-name={{.JobName}}
#SBATCH --output={{.OutputLog}}
#SBATCH --error={{.ErrorLog}}
#SBATCH --nodes={{.Nodes}}
#SBATCH --ntasks={{.NTasks}}
#SBATCH --ntasks-per-node={{.NTasksPerNode}}
#SBATCH --time={{.TimeString}}
#SBATCH --partition={{.Queue}}
#SBATCH --account={{.Account}}
{{.ModuleSetup}}

{{.Commands}}
`
)

var builtinScripts = map[string]string{
	"supermuc": supermucScript,
	"horeka":   horekaScript,
	"generic":  genericScript,
}

// Template is a parsed job script template.
type Template struct {
	name string
	tmpl *template.Template
}

// New parses a job script template from text.
func New(name, text string) (*Template, error) {
	tmpl, err := template.New(name).Funcs(sprig.FuncMap()).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("template parsing failed: %w", err)
	}
	return &Template{name: name, tmpl: tmpl}, nil
}

// Default returns the built-in job script template for a machine.
func Default(machineName string) (*Template, error) {
	text, ok := builtinScripts[machineName]
	if !ok {
		return nil, fmt.Errorf("machine %s has no job script template", machineName)
	}
	return New(machineName, text)
}

// LoadTemplate reads a job script template from a file. The template name
// is the file name without its extension.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job script template: %w", err)
	}
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return New(name, string(data))
}

func (t *Template) Name() string {
	return t.name
}

// Render produces the job script.
func (t *Template) Render(data ScriptData) (string, error) {
	var sb strings.Builder
	if err := t.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}
	return sb.String(), nil
}

// TimeString formats a duration the way sbatch expects, D-HH:MM:SS.
func TimeString(d time.Duration) string {
	seconds := int64(d.Seconds())
	days := seconds / (24 * 3600)
	seconds -= days * 24 * 3600
	hours := seconds / 3600
	seconds -= hours * 3600
	minutes := seconds / 60
	seconds -= minutes * 60
	return fmt.Sprintf("%d-%02d:%02d:%02d", days, hours, minutes, seconds)
}

// ModuleSetup returns the module restore line for a job script, or a
// placeholder comment when no module config is given.
func ModuleSetup(restoreCmd, config string) string {
	if config == "" {
		return "# no specific module setup given"
	}
	return restoreCmd + " " + config
}
