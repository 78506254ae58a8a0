package graph

import (
	"fmt"
	"strings"

	"mpisuite/internal/params"

	"github.com/gosimple/slug"
)

// DummyGraph is an escape hatch for payloads whose input selection does
// not fit the other input kinds. Every option becomes a long flag, bools
// switch the bare flag on or off.
type DummyGraph struct {
	baseName string
	options  params.Params
}

func NewDummyGraph(spec params.Params) (*DummyGraph, error) {
	v, ok := spec.Get("name")
	if !ok {
		return nil, fmt.Errorf("dummy input requires a name")
	}
	name, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("dummy input name must be a string, got %T", v)
	}
	return &DummyGraph{baseName: name, options: spec.Without("name")}, nil
}

func (g *DummyGraph) Args(mpiRanks, threadsPerRank int, escape bool) ([]string, error) {
	var args []string
	for _, option := range g.options {
		if b, ok := option.Value.(bool); ok {
			if b {
				args = append(args, "--"+option.Key)
			}
			continue
		}
		args = append(args, "--"+option.Key, fmt.Sprintf("%v", option.Value))
	}
	return args, nil
}

func (g *DummyGraph) Name() string {
	parts := append([]string{g.baseName}, g.options.Strings()...)
	return slug.Make(strings.Join(parts, "_"))
}
