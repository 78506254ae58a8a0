package graph

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"mpisuite/internal/params"

	"github.com/gosimple/slug"
)

// genParameters lists the parameters each built-in generator requires on
// top of the vertex exponent n.
var genParameters = map[string][]string{
	"rhg":   {"m", "gamma"},
	"gnm":   {"m"},
	"rgg2d": {"m"},
	"rgg3d": {"m"},
	"rmat":  {"m"},
	"rdg2d": {},
	"rdg3d": {},
}

// GenGraph is a graph produced by one of the payload's built-in
// generators. n and m are exponents, the generated graph has 2^n vertices
// and 2^m edges. Weak scaling grows both with the number of PEs.
type GenGraph struct {
	Generator string
	ScaleWeak bool

	params params.Params
}

// NewGenGraph validates the generator name and its required parameters.
func NewGenGraph(generator string, spec params.Params) (*GenGraph, error) {
	required, ok := genParameters[generator]
	if !ok {
		return nil, fmt.Errorf("unsupported generator %q", generator)
	}

	scaleWeak := false
	if v, ok := spec.Get("scale_weak"); ok {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("scale_weak must be a boolean, got %T", v)
		}
		scaleWeak = b
	}

	g := &GenGraph{
		Generator: generator,
		ScaleWeak: scaleWeak,
		params:    spec.Without("scale_weak"),
	}
	for _, key := range append([]string{"n"}, required...) {
		if _, ok := g.params.Get(key); !ok {
			return nil, fmt.Errorf("generator %s requires parameter %q", generator, key)
		}
	}
	return g, nil
}

// exponent returns the stored exponent for key, shifted up by log2(p)
// under weak scaling so the problem size per PE stays constant.
func (g *GenGraph) exponent(key string, p int) (int, error) {
	v, _ := g.params.Get(key)
	base, err := asInt(v)
	if err != nil {
		return 0, fmt.Errorf("generator parameter %q: %w", key, err)
	}
	if !g.ScaleWeak {
		return base, nil
	}
	return base + log2(uint64(p)), nil
}

func (g *GenGraph) Args(mpiRanks, threadsPerRank int, escape bool) ([]string, error) {
	p := mpiRanks * threadsPerRank
	if g.ScaleWeak && (p <= 0 || bits.OnesCount(uint(p)) != 1) {
		return nil, fmt.Errorf("weak scaling requires a power of two PEs, got %d", p)
	}

	n, err := g.exponent("n", p)
	if err != nil {
		return nil, err
	}
	args := []string{
		"--graphtype", g.Generator,
		"--log_num_vertices", strconv.Itoa(n),
	}

	switch g.Generator {
	case "rhg":
		gammaVal, _ := g.params.Get("gamma")
		gamma, err := asFloat(gammaVal)
		if err != nil {
			return nil, fmt.Errorf("generator parameter \"gamma\": %w", err)
		}
		m, err := g.exponent("m", p)
		if err != nil {
			return nil, err
		}
		args = append(args,
			"--gamma", strconv.FormatFloat(gamma, 'f', -1, 64),
			"--log_num_edges", strconv.Itoa(m),
		)
	case "gnm", "rgg2d", "rgg3d":
		m, err := g.exponent("m", p)
		if err != nil {
			return nil, err
		}
		args = append(args, "--log_num_edges", strconv.Itoa(m))
	case "rmat":
		m, err := g.exponent("m", p)
		if err != nil {
			return nil, err
		}
		args = append(args, "--log_num_edges", strconv.Itoa(m))
		for _, opt := range []struct {
			key  string
			flag string
		}{{"a", "--gen_a"}, {"b", "--gen_b"}, {"c", "--gen_c"}} {
			if v, ok := g.params.Get(opt.key); ok {
				args = append(args, opt.flag, fmt.Sprintf("%v", v))
			}
		}
	}
	return args, nil
}

func (g *GenGraph) Name() string {
	n, _ := g.params.Get("n")
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s(%v", strings.ToUpper(g.Generator), n)
	for _, key := range genParameters[g.Generator] {
		if v, ok := g.params.Get(key); ok {
			fmt.Fprintf(&sb, "-%s=%v", key, v)
		}
	}
	sb.WriteString(")")
	if g.ScaleWeak {
		sb.WriteString("-weak")
	}
	return slug.Make(sb.String())
}

// log2 of a power of two; floor of log2 otherwise.
func log2(v uint64) int {
	if v == 0 {
		return 0
	}
	return bits.Len64(v) - 1
}
