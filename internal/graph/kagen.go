package graph

import (
	"fmt"
	"strings"

	"mpisuite/internal/params"

	"github.com/gosimple/slug"
)

// KaGenGraph feeds a KaGen option string to the payload. Vertex and edge
// counts can be given directly (n, m) or as exponents (N, M); all other
// options pass through to KaGen untouched, in suite file order.
type KaGenGraph struct {
	ScaleWeak bool

	vertices uint64 // 0 when the suite gave no vertex count
	edges    uint64 // 0 when the suite gave no edge count
	options  params.Params
}

func NewKaGenGraph(spec params.Params) (*KaGenGraph, error) {
	if _, ok := spec.Get("type"); !ok {
		return nil, fmt.Errorf("kagen input requires a generator type")
	}

	g := &KaGenGraph{}
	var err error
	if g.vertices, err = countParam(spec, "n", "N"); err != nil {
		return nil, err
	}
	if g.edges, err = countParam(spec, "m", "M"); err != nil {
		return nil, err
	}
	if v, ok := spec.Get("scale_weak"); ok {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("scale_weak must be a boolean, got %T", v)
		}
		g.ScaleWeak = b
	}
	g.options = spec.Without("n", "N", "m", "M", "scale_weak")
	return g, nil
}

// countParam reads a count given either directly or as a power of two
// exponent under the upper case key. The direct form wins.
func countParam(spec params.Params, direct, exponent string) (uint64, error) {
	if v, ok := spec.Get(direct); ok {
		n, err := asInt(v)
		if err != nil {
			return 0, fmt.Errorf("kagen parameter %q: %w", direct, err)
		}
		return uint64(n), nil
	}
	if v, ok := spec.Get(exponent); ok {
		exp, err := asInt(v)
		if err != nil {
			return 0, fmt.Errorf("kagen parameter %q: %w", exponent, err)
		}
		if exp < 0 || exp > 62 {
			return 0, fmt.Errorf("kagen parameter %q out of range: %d", exponent, exp)
		}
		return 1 << exp, nil
	}
	return 0, nil
}

func (g *KaGenGraph) Args(mpiRanks, threadsPerRank int, escape bool) ([]string, error) {
	p := uint64(mpiRanks * threadsPerRank)
	parts := g.options.Strings()
	if g.vertices != 0 {
		parts = append(parts, fmt.Sprintf("n=%d", g.scaled(g.vertices, p)))
	}
	if g.edges != 0 {
		parts = append(parts, fmt.Sprintf("m=%d", g.scaled(g.edges, p)))
	}

	option := strings.Join(parts, ";")
	if escape {
		// The option string carries semicolons, quote it so the shell
		// keeps it as one argument.
		option = `"` + option + `"`
	}
	return []string{"--kagen_option_string", option}, nil
}

func (g *KaGenGraph) scaled(count, p uint64) uint64 {
	if g.ScaleWeak {
		return count * p
	}
	return count
}

func (g *KaGenGraph) Name() string {
	var parts []string
	if g.vertices != 0 {
		parts = append(parts, fmt.Sprintf("n=%d", log2(g.vertices)))
	}
	if g.edges != 0 {
		parts = append(parts, fmt.Sprintf("m=%d", log2(g.edges)))
	}
	parts = append(parts, g.options.Strings()...)
	if g.ScaleWeak {
		parts = append(parts, "weak")
	}
	return slug.Make("KaGen_" + strings.Join(parts, "_"))
}
