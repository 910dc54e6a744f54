package experiment

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/benchlab/benchlab/pkg/base"
	"github.com/benchlab/benchlab/pkg/config"
)

// Expanded is one concrete (file, arguments) pair produced by grid expansion
// of a single declared input.
type Expanded struct {
	File     string
	Args     []string
	Suffix   int  // combo index, meaningful only when Expanded
	Expanded bool // true if any glob/param/subparam dimension fired
}

// dimKind tags what a grid dimension resolves: a glob match, a flat
// parameter value, or a lockstep subparameter value.
type dimKind int

const (
	dimGlob dimKind = iota
	dimParam
	dimSubparam
)

// dimension is one axis of the cartesian product. Glob dimensions replace a
// single argument slot; param dimensions replace every occurrence of
// "param|NAME"; subparam dimensions replace every occurrence of
// "subparam|NAME.SUB" for every SUB under NAME, in lockstep.
type dimension struct {
	kind dimKind
	size int

	// dimGlob
	argIndex    int
	globMatches []string
	isFileDim   bool // true when this glob comes from InputSpec.Glob, not an argument

	// dimParam
	paramArgIndices []int
	paramValues     []string

	// dimSubparam
	subArgIndices map[string][]int
	subValues     map[string][]string
}

// Expand computes the full cartesian product (with lockstep subparameter
// collapsing) of one declared input's Glob field and argument-prefixed
// dimensions (spec §4.1 "Glob expansion" / "Parameter grid", §6 "Argument
// prefixes").
func Expand(in config.InputSpec, params map[string]config.ParameterSpec) ([]Expanded, error) {
	var dims []*dimension

	if in.Glob != "" {
		matches, err := glob(in.Glob)
		if err != nil {
			return nil, err
		}

		dims = append(dims, &dimension{kind: dimGlob, size: len(matches), globMatches: matches, isFileDim: true})
	}

	paramDims := map[string]*dimension{}
	subDims := map[string]*dimension{}

	for i, a := range in.Arguments {
		switch {
		case strings.HasPrefix(a, base.PathGlobPrefix):
			pattern := strings.TrimPrefix(a, base.PathGlobPrefix)

			matches, err := glob(pattern)
			if err != nil {
				return nil, err
			}

			dims = append(dims, &dimension{kind: dimGlob, size: len(matches), argIndex: i, globMatches: matches})

		case strings.HasPrefix(a, base.ParamPrefix):
			name := strings.TrimPrefix(a, base.ParamPrefix)

			spec, ok := params[name]
			if !ok || len(spec.Values) == 0 {
				return nil, base.Wrap(base.KindConfig, "parameter grid", fmt.Errorf("unknown or empty parameter %q", name), "")
			}

			d, exists := paramDims[name]
			if !exists {
				d = &dimension{kind: dimParam, size: len(spec.Values), paramValues: spec.Values}
				paramDims[name] = d
				dims = append(dims, d)
			}

			d.paramArgIndices = append(d.paramArgIndices, i)

		case strings.HasPrefix(a, base.SubParamPrefix):
			rest := strings.TrimPrefix(a, base.SubParamPrefix)

			parts := strings.SplitN(rest, ".", 2)
			if len(parts) != 2 {
				return nil, base.Wrap(base.KindConfig, "parameter grid", fmt.Errorf("malformed subparam reference %q", a), "expected subparam|NAME.SUB")
			}

			name, sub := parts[0], parts[1]

			spec, ok := params[name]
			if !ok {
				return nil, base.Wrap(base.KindConfig, "parameter grid", fmt.Errorf("unknown parameter %q", name), "")
			}

			subSpec, ok := spec.Sub[sub]
			if !ok || len(subSpec.Values) == 0 {
				return nil, base.Wrap(base.KindConfig, "parameter grid", fmt.Errorf("unknown or empty sub-parameter %q.%q", name, sub), "")
			}

			d, exists := subDims[name]
			if !exists {
				d = &dimension{
					kind:          dimSubparam,
					size:          len(subSpec.Values),
					subArgIndices: map[string][]int{},
					subValues:     map[string][]string{},
				}
				subDims[name] = d
				dims = append(dims, d)
			} else if d.size != len(subSpec.Values) {
				return nil, base.Wrap(base.KindConfig, "parameter grid",
					fmt.Errorf("sub-parameter %q.%q has length %d, expected %d", name, sub, len(subSpec.Values), d.size), "")
			}

			d.subArgIndices[sub] = append(d.subArgIndices[sub], i)
			d.subValues[sub] = subSpec.Values

		default:
			if looksLikePath(a) {
				slog.Default().Warn("argument looks like a path but has no path| prefix; it will not be glob-expanded", "argument", a)
			}
		}
	}

	total := 1
	for _, d := range dims {
		if d.size == 0 {
			return nil, base.Wrap(base.KindConfig, "glob expansion", fmt.Errorf("no files matched a path| glob"), "check the glob pattern")
		}

		total *= d.size
	}

	if len(dims) == 0 {
		return []Expanded{{File: in.File, Args: append([]string(nil), in.Arguments...), Expanded: false}}, nil
	}

	result := make([]Expanded, 0, total)

	for combo := 0; combo < total; combo++ {
		file := in.File
		args := append([]string(nil), in.Arguments...)

		rem := combo
		for i := len(dims) - 1; i >= 0; i-- {
			d := dims[i]
			idx := rem % d.size
			rem /= d.size

			switch d.kind {
			case dimGlob:
				if d.isFileDim {
					file = d.globMatches[idx]
				} else {
					args[d.argIndex] = d.globMatches[idx]
				}
			case dimParam:
				for _, ai := range d.paramArgIndices {
					args[ai] = d.paramValues[idx]
				}
			case dimSubparam:
				for sub, idxs := range d.subArgIndices {
					val := d.subValues[sub][idx]
					for _, ai := range idxs {
						args[ai] = val
					}
				}
			}
		}

		result = append(result, Expanded{File: file, Args: args, Suffix: combo, Expanded: true})
	}

	return result, nil
}

// looksLikePath reports whether an unprefixed argument resembles a
// filesystem path or glob pattern (spec §4.1 "Unprefixed path-like
// arguments produce a warning but are not expanded"): it contains a path
// separator or a glob metacharacter.
func looksLikePath(a string) bool {
	return strings.ContainsAny(a, "/*?[")
}

// glob resolves a pattern deterministically (sorted) and rejects empty
// matches, since a zero-match glob silently collapsing an input to nothing
// is almost always a manifest mistake.
func glob(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, base.Wrap(base.KindConfig, "glob expansion", err, fmt.Sprintf("malformed pattern %q", pattern))
	}

	if len(matches) == 0 {
		return nil, base.Wrap(base.KindResource, "glob expansion", fmt.Errorf("glob %q matched no files", pattern), "")
	}

	sort.Strings(matches)

	return matches, nil
}
