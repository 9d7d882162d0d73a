package binder

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Context carries the values a template may reference, in resolution order:
// named upstream node outputs, flow scoped variables, then the run's initial
// input. All three maps are read-only to the binder.
type Context struct {
	// Inputs maps upstream output variable names (and port names such as
	// "input") to the values produced by dependency nodes.
	Inputs map[string]any
	// Variables are the flow scoped variables declared on the graph.
	Variables map[string]any
	// InitialInput is the caller supplied input injected at run start.
	InitialInput map[string]any
}

// Lookup resolves a possibly dotted identifier ("user.name") against the
// context in resolution order. The boolean reports whether a value was found.
func (c Context) Lookup(name string) (any, bool) {
	for _, scope := range []map[string]any{c.Inputs, c.Variables, c.InitialInput} {
		if v, ok := lookupPath(scope, name); ok {
			return v, true
		}
	}
	return nil, false
}

// lookupPath walks dotted segments through nested maps.
func lookupPath(scope map[string]any, name string) (any, bool) {
	if scope == nil {
		return nil, false
	}
	parts := strings.Split(name, ".")
	var cur any = scope
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Resolve replaces every {{identifier}} occurrence in template with the
// stringified value found in ctx. Placeholders with no matching value are
// left verbatim and reported in the returned warnings slice. Resolving the
// same template against an unchanged context always yields the same string.
func Resolve(template string, ctx Context) (string, []string) {
	return ResolveWith(template, ctx, nil)
}

// ResolveWith is Resolve with a transform applied to every substituted
// value. Literal template text and unresolved placeholders pass through
// untransformed.
func ResolveWith(template string, ctx Context, transform func(string) string) (string, []string) {
	if !strings.Contains(template, "{{") {
		return template, nil
	}

	var warnings []string
	resolved := placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.TrimSpace(placeholderRe.FindStringSubmatch(match)[1])
		v, ok := ctx.Lookup(name)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("unresolved placeholder {{%s}}", name))
			return match
		}
		s := Stringify(v)
		if transform != nil {
			s = transform(s)
		}
		return s
	})
	return resolved, warnings
}

// Stringify converts a value into its template / prompt representation.
// Strings pass through, structured values render as compact JSON, scalars
// use their Go literal form.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.RawMessage:
		return string(t)
	default:
		if data, err := json.Marshal(t); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", t)
	}
}
