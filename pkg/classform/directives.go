package classform

import (
	"go/ast"
	"strings"
)

// directive is one parsed "//hotswap:name(args)" doc-comment line.
type directive struct {
	name string
	args []string
}

// parseDirectives scans a comment group for lines of the form
// "hotswap:name(arg1, arg2)" and returns them in source order. Unrecognised
// comment lines are ignored; this is deliberately forgiving since ordinary
// doc prose lives alongside directives in the same comment block.
func parseDirectives(group *ast.CommentGroup) []directive {
	if group == nil {
		return nil
	}

	var out []directive
	for _, c := range group.List {
		text := strings.TrimSpace(strings.TrimPrefix(c.Text, "//"))
		if !strings.HasPrefix(text, "hotswap:") {
			continue
		}
		text = strings.TrimPrefix(text, "hotswap:")

		open := strings.IndexByte(text, '(')
		if open < 0 || !strings.HasSuffix(text, ")") {
			continue
		}
		name := strings.TrimSpace(text[:open])
		argsStr := text[open+1 : len(text)-1]

		var args []string
		if strings.TrimSpace(argsStr) != "" {
			for _, a := range strings.Split(argsStr, ",") {
				args = append(args, strings.TrimSpace(a))
			}
		}
		out = append(out, directive{name: name, args: args})
	}
	return out
}

// directiveArgs returns the args of the first directive named name, and
// whether it was present at all.
func directiveArgs(directives []directive, name string) ([]string, bool) {
	for _, d := range directives {
		if d.name == name {
			return d.args, true
		}
	}
	return nil, false
}

// allDirectiveArgs concatenates args from every directive named name
// (directives may repeat, e.g. multiple "annotation(...)" lines).
func allDirectiveArgs(directives []directive, name string) []string {
	var out []string
	for _, d := range directives {
		if d.name == name {
			out = append(out, d.args...)
		}
	}
	return out
}

// paramAnnotations parses "param(name, Anno1+Anno2)" directives into a
// per-parameter annotation map.
func paramAnnotations(directives []directive) map[string]AnnotationSet {
	var out map[string]AnnotationSet
	for _, d := range directives {
		if d.name != "param" || len(d.args) < 2 {
			continue
		}
		paramName := d.args[0]
		var annos AnnotationSet
		for _, raw := range d.args[1:] {
			for _, a := range strings.Split(raw, "+") {
				a = strings.TrimSpace(a)
				if a != "" {
					annos = append(annos, a)
				}
			}
		}
		if len(annos) == 0 {
			continue
		}
		if out == nil {
			out = make(map[string]AnnotationSet)
		}
		out[paramName] = append(out[paramName], annos...)
	}
	return out
}
