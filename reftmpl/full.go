package reftmpl

import (
	"regexp"
	"strings"

	"github.com/yosida95/uritemplate/v3"
)

// plainPlaceholder matches a "{{name}}" placeholder that carries no
// RFC 6570 operator.
var plainPlaceholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+(?:\.[A-Za-z0-9_]+)*)\s*\}\}`)

// expandFull implements the "full" template mode: a plain "{{name}}"
// placeholder is rewritten to the RFC 6570 reserved expansion
// "{+name}", so URL characters such as ":" and "/" in a value are
// substituted as-is (characters outside the URI reserved and
// unreserved sets, such as a space, are still percent-encoded); any
// other double-brace expression is rewritten to single-brace syntax.
// The result is evaluated with a real URI Template engine, so
// expressions beyond plain name substitution (reserved expansion,
// default operators) are supported. Results are memoized by input URL.
func (s *Set) expandFull(url string) (string, error) {
	if v, ok := s.cache.get(url); ok {
		return v, nil
	}
	rewritten := plainPlaceholder.ReplaceAllString(url, "{+${1}}")
	rewritten = strings.NewReplacer("{{", "{", "}}", "}").Replace(rewritten)
	tpl, err := uritemplate.New(rewritten)
	if err != nil {
		return "", &errBadTemplate{name: url, err: err}
	}
	vars := uritemplate.Values{}
	for k, v := range s.bindings() {
		vars[k] = uritemplate.String(v)
	}
	out, err := tpl.Expand(vars)
	if err != nil {
		return "", &errBadTemplate{name: url, err: err}
	}
	s.cache.put(url, out)
	return out, nil
}
