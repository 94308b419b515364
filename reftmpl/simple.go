package reftmpl

import (
	"io"
	"strings"

	"github.com/valyala/fasttemplate"
)

// expandSimple implements the "simple" template mode: rewrite
// "{{" -> "{" and "}}" -> "}", then substitute bindings by name.
// This is correct only when templates perform nothing beyond name
// substitution; it never evaluates expressions.
func expandSimple(url string, bindings map[string]string) string {
	rewritten := strings.NewReplacer("{{", "{", "}}", "}").Replace(url)
	t, err := fasttemplate.NewTemplate(rewritten, "{", "}")
	if err != nil {
		// not a valid fasttemplate pattern (e.g. unbalanced
		// braces); return the literal rewrite rather than fail,
		// since simple mode is a best-effort fast path.
		return rewritten
	}
	return t.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		if v, ok := bindings[tag]; ok {
			return w.Write([]byte(v))
		}
		return w.Write([]byte("{" + tag + "}"))
	})
}
