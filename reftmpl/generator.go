package reftmpl

import (
	"fmt"
	"strconv"

	"github.com/pbchekin/filesystem-spec/ref"
)

// Dimension is one axis of a generator's Cartesian product: either an
// explicit list of values, or a {start, stop, step} description that
// materializes to a half-open integer range.
type Dimension struct {
	Values []string

	HasRange          bool
	Start, Stop, Step int64
}

// Materialize returns the concrete string values for this dimension,
// in order.
func (d Dimension) Materialize() []string {
	if !d.HasRange {
		return d.Values
	}
	step := d.Step
	if step == 0 {
		step = 1
	}
	var out []string
	if step > 0 {
		for v := d.Start; v < d.Stop; v += step {
			out = append(out, strconv.FormatInt(v, 10))
		}
	} else {
		for v := d.Start; v > d.Stop; v += step {
			out = append(out, strconv.FormatInt(v, 10))
		}
	}
	return out
}

// Generator is one "gen" entry: a parametric template describing a
// batch of references produced by a Cartesian product over named
// dimensions.
type Generator struct {
	Key        string
	URL        string
	Dimensions []NamedDimension
	Offset     string // template; "" if absent
	Length     string // template; "" if absent
}

// NamedDimension pairs a dimension with the insertion-order name used
// to bind its values during expansion.
type NamedDimension struct {
	Name string
	Dim  Dimension
}

// Validate rejects a generator that sets only one of Offset and
// Length: both must be given, or neither.
func (g *Generator) Validate() error {
	if (g.Offset == "") != (g.Length == "") {
		return fmt.Errorf("reftmpl: generator %q: must provide both offset and length, or neither", g.Key)
	}
	return nil
}

// Expand computes the Cartesian product over g.Dimensions (iteration
// order = insertion order of dimension names) and renders Key, URL,
// and (if present) Offset/Length for each binding, emitting one
// path->Reference pair per binding. set provides the template
// bindings layered under the per-binding dimension values.
func (g *Generator) Expand(set *Set) (map[string]ref.Reference, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	out := make(map[string]ref.Reference)
	values := make([][]string, len(g.Dimensions))
	for i, nd := range g.Dimensions {
		values[i] = nd.Dim.Materialize()
	}
	idx := make([]int, len(values))
	if len(values) == 0 {
		return out, nil
	}
	for {
		binding := make(map[string]string, len(g.Dimensions))
		for i, nd := range g.Dimensions {
			binding[nd.Name] = values[i][idx[i]]
		}
		key, err := renderWith(set, g.Key, binding)
		if err != nil {
			return nil, err
		}
		url, err := renderWith(set, g.URL, binding)
		if err != nil {
			return nil, err
		}
		var r ref.Reference
		if g.Offset != "" {
			offStr, err := renderWith(set, g.Offset, binding)
			if err != nil {
				return nil, err
			}
			lenStr, err := renderWith(set, g.Length, binding)
			if err != nil {
				return nil, err
			}
			off, err := strconv.ParseInt(offStr, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("reftmpl: generator %q: non-integer offset %q", g.Key, offStr)
			}
			length, err := strconv.ParseInt(lenStr, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("reftmpl: generator %q: non-integer length %q", g.Key, lenStr)
			}
			r = ref.NewSlice(url, off, length)
		} else {
			r = ref.NewWhole(url)
		}
		out[key] = r

		// advance the odometer; last dimension moves fastest
		i := len(idx) - 1
		for i >= 0 {
			idx[i]++
			if idx[i] < len(values[i]) {
				break
			}
			idx[i] = 0
			i--
		}
		if i < 0 {
			break
		}
	}
	return out, nil
}

// renderWith expands a template string against both the dimension
// binding for this Cartesian product element and the ambient template
// set. Generator entries always render through the full template
// engine regardless of the ambient simple/full mode; the mode switch
// only gates refs URL expansion.
func renderWith(set *Set, tmpl string, binding map[string]string) (string, error) {
	if !HasTemplates(tmpl) {
		return tmpl, nil
	}
	merged := newSetWithExtraLiterals(set, binding)
	return merged.expandFull(tmpl)
}

// newSetWithExtraLiterals layers per-element dimension bindings over
// the ambient template set's literals for one full-mode render.
func newSetWithExtraLiterals(set *Set, extra map[string]string) *Set {
	lits := make(map[string]string, len(set.lits)+len(extra))
	for k, v := range set.lits {
		lits[k] = v
	}
	for k, v := range extra {
		lits[k] = v
	}
	return &Set{
		simple: false,
		lits:   lits,
		params: set.params,
		cache:  newMemo(1),
	}
}
