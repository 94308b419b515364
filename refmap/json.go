package refmap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pbchekin/filesystem-spec/ref"
	"github.com/pbchekin/filesystem-spec/reftmpl"
)

// rawSpec is the on-the-wire shape of a version-0 or version-1 JSON
// reference spec. Version 0 is a flat refs mapping; version 1 wraps
// it with "version", optional "templates", and optional "gen".
type rawSpec struct {
	Version   int                        `json:"version"`
	Templates map[string]string          `json:"templates,omitempty"`
	Refs      map[string]json.RawMessage `json:"refs,omitempty"`
	Gen       []rawGenerator             `json:"gen,omitempty"`
}

type rawGenerator struct {
	Key        string         `json:"key"`
	URL        string         `json:"url"`
	Dimensions orderedRawDims `json:"dimensions"`
	Offset     string         `json:"offset,omitempty"`
	Length     string         `json:"length,omitempty"`
}

// namedRaw pairs a dimension name with its undecoded JSON value.
type namedRaw struct {
	Name string
	Raw  json.RawMessage
}

// orderedRawDims decodes a JSON object while preserving the source
// key order: the generator's Cartesian product iterates dimensions in
// the order they appear in the document.
type orderedRawDims []namedRaw

func (d *orderedRawDims) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("dimensions must be a JSON object")
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		*d = append(*d, namedRaw{Name: key, Raw: raw})
	}
	return nil
}

// ParseSpec parses a version-0 or version-1 JSON reference spec and
// returns a fully expanded EagerMap: templates and generator entries
// have already been rendered into concrete references.
//
// template_overrides, if non-nil, shadows entries of equal key in the
// spec's own "templates" section. simpleTemplates selects the simple
// vs. full template-expansion mode.
func ParseSpec(data []byte, overrides map[string]string, simpleTemplates bool) (*EagerMap, error) {
	// Detect version 0 (flat refs mapping, no "version"/"refs"
	// wrapper) vs version 1 by sniffing for a top-level "version"
	// field without double-decoding ambiguity: a version-1 spec is
	// always a JSON object with a numeric "version" key; try that
	// shape first.
	var probe struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, &BadSpec{Reason: fmt.Sprintf("invalid JSON: %s", err)}
	}

	var raw rawSpec
	if probe.Version == nil {
		// version 0: the whole document is the refs mapping.
		flat := make(map[string]json.RawMessage)
		if err := json.Unmarshal(data, &flat); err != nil {
			return nil, &BadSpec{Reason: fmt.Sprintf("invalid version-0 spec: %s", err)}
		}
		raw = rawSpec{Version: 0, Refs: flat}
	} else {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, &BadSpec{Reason: fmt.Sprintf("invalid version-1 spec: %s", err)}
		}
		if raw.Version != 0 && raw.Version != 1 {
			return nil, &BadSpec{Reason: fmt.Sprintf("unsupported spec version %d", raw.Version)}
		}
	}

	set := reftmpl.NewSet(raw.Templates, overrides, simpleTemplates)

	entries := make(map[string]ref.Reference, len(raw.Refs))
	for path, rv := range raw.Refs {
		r, err := decodeRefValue(rv, set)
		if err != nil {
			return nil, fmt.Errorf("refmap: entry %q: %w", path, err)
		}
		entries[path] = r
	}

	for _, rg := range raw.Gen {
		g, err := toGenerator(rg)
		if err != nil {
			return nil, err
		}
		expanded, err := g.Expand(set)
		if err != nil {
			return nil, &BadSpec{Reason: err.Error()}
		}
		for k, v := range expanded {
			entries[k] = v
		}
	}

	return NewEagerMap(entries), nil
}

// decodeRefValue classifies a single refs[path] value into a
// Reference: a byte string, a plain string, or a 1- or 3-element
// [url] / [url, offset, size] array. A URL containing "{{" is
// template-expanded first.
func decodeRefValue(raw json.RawMessage, set *reftmpl.Set) (ref.Reference, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		b, err := ref.DecodeInline(asString)
		if err != nil {
			return ref.Reference{}, err
		}
		return ref.NewInline(b), nil
	}

	var asArray []json.RawMessage
	if err := json.Unmarshal(raw, &asArray); err != nil {
		return ref.Reference{}, &BadSpec{Reason: fmt.Sprintf("ref value must be a string or array: %s", err)}
	}
	if len(asArray) != 1 && len(asArray) != 3 {
		return ref.Reference{}, &BadSpec{Reason: fmt.Sprintf("ref array must have 1 or 3 elements, got %d", len(asArray))}
	}
	var url string
	if err := json.Unmarshal(asArray[0], &url); err != nil {
		return ref.Reference{}, &BadSpec{Reason: "ref array[0] must be a URL string"}
	}
	if reftmpl.HasTemplates(url) {
		expanded, err := set.Expand(url)
		if err != nil {
			return ref.Reference{}, err
		}
		url = expanded
	}
	if len(asArray) == 1 {
		return ref.NewWhole(url), nil
	}
	offset, err := jsonInt(asArray[1])
	if err != nil {
		return ref.Reference{}, &BadSpec{Reason: fmt.Sprintf("ref array[1] (offset): %s", err)}
	}
	size, err := jsonInt(asArray[2])
	if err != nil {
		return ref.Reference{}, &BadSpec{Reason: fmt.Sprintf("ref array[2] (size): %s", err)}
	}
	return ref.NewSlice(url, offset, size), nil
}

func jsonInt(raw json.RawMessage) (int64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return int64(f), nil
}

func toGenerator(rg rawGenerator) (*reftmpl.Generator, error) {
	g := &reftmpl.Generator{
		Key:    rg.Key,
		URL:    rg.URL,
		Offset: rg.Offset,
		Length: rg.Length,
	}
	for _, nr := range rg.Dimensions {
		dim, err := decodeDimension(nr.Raw)
		if err != nil {
			return nil, fmt.Errorf("refmap: generator %q dimension %q: %w", rg.Key, nr.Name, err)
		}
		g.Dimensions = append(g.Dimensions, reftmpl.NamedDimension{Name: nr.Name, Dim: dim})
	}
	if err := g.Validate(); err != nil {
		return nil, &BadSpec{Reason: err.Error()}
	}
	return g, nil
}

func decodeDimension(raw json.RawMessage) (reftmpl.Dimension, error) {
	var asList []json.RawMessage
	if err := json.Unmarshal(raw, &asList); err == nil {
		values := make([]string, len(asList))
		for i, elem := range asList {
			v, err := stringifyDimensionValue(elem)
			if err != nil {
				return reftmpl.Dimension{}, fmt.Errorf("list element %d: %w", i, err)
			}
			values[i] = v
		}
		return reftmpl.Dimension{Values: values}, nil
	}
	var asRange struct {
		Start int64 `json:"start"`
		Stop  int64 `json:"stop"`
		Step  int64 `json:"step"`
	}
	if err := json.Unmarshal(raw, &asRange); err != nil {
		return reftmpl.Dimension{}, fmt.Errorf("must be a list of values or a {start,stop,step} object: %w", err)
	}
	return reftmpl.Dimension{HasRange: true, Start: asRange.Start, Stop: asRange.Stop, Step: asRange.Step}, nil
}

// stringifyDimensionValue renders one "dimensions" list element as
// the string a template binding substitutes. Any JSON scalar is
// accepted, not just strings; numbers are decoded via json.Number so
// e.g. 2 renders as "2", not "2.0".
func stringifyDimensionValue(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err == nil {
		return n.String(), nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b), nil
	}
	if string(raw) == "null" {
		return "", nil
	}
	return "", fmt.Errorf("unsupported dimension value %s", raw)
}
