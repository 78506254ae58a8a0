// Package launch renders cluster specific MPI launcher invocations and runs
// them. A launch template is plain shell text: it brackets the launcher call
// with a start line and an elapsed time line so the run can be timed from
// its log alone, even when the script executes long after generation inside
// a batch job.
package launch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Vars holds the values substituted into a launch template. One Vars value
// describes one launcher invocation.
type Vars struct {
	JobName        string
	MPIRanks       int
	RanksPerNode   int
	ThreadsPerRank int
	// Timeout is in seconds and is handed to the launcher's own timeout
	// mechanism, never enforced by this process.
	Timeout int
	// Cmd is the payload command line. Templates pass it through verbatim.
	Cmd string
}

// Template is a named shell template for one launcher flavor.
type Template struct {
	name string
	tmpl *template.Template
}

// New parses text as a launch template under the given name.
func New(name, text string) (*Template, error) {
	tmpl, err := template.New(name).Funcs(sprig.FuncMap()).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("template parsing failed: %w", err)
	}
	return &Template{name: name, tmpl: tmpl}, nil
}

// Builtin returns the built-in template registered under name.
func Builtin(name string) (*Template, error) {
	text, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown launch template %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return New(name, text)
}

// Names lists the built-in template names.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads a template file. File templates use the same variables as the
// built-ins and take precedence over them.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return New(name, string(data))
}

// Select resolves the template to use: an explicit file wins over a named
// built-in, which wins over the machine default.
func Select(machineDefault, name, file string) (*Template, error) {
	switch {
	case file != "":
		return Load(file)
	case name != "":
		return Builtin(name)
	default:
		return Builtin(machineDefault)
	}
}

// Name returns the template name.
func (t *Template) Name() string {
	return t.name
}

// Render substitutes vars into the template. Rendering is pure text
// substitution; the payload command is never inspected or altered.
func (t *Template) Render(vars Vars) (string, error) {
	var buf strings.Builder
	if err := t.tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}
	return buf.String(), nil
}
