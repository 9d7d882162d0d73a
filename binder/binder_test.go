package binder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_Basic(t *testing.T) {
	ctx := Context{
		Inputs:    map[string]any{"input": "bees"},
		Variables: map[string]any{"tone": "formal"},
	}

	resolved, warnings := Resolve("Write about {{input}} in a {{tone}} tone", ctx)
	assert.Equal(t, "Write about bees in a formal tone", resolved)
	assert.Empty(t, warnings)
}

func TestResolve_ResolutionOrder(t *testing.T) {
	ctx := Context{
		Inputs:       map[string]any{"topic": "from-input"},
		Variables:    map[string]any{"topic": "from-variables", "extra": "var"},
		InitialInput: map[string]any{"topic": "from-initial", "extra": "initial", "only": "initial"},
	}

	resolved, warnings := Resolve("{{topic}}/{{extra}}/{{only}}", ctx)
	assert.Equal(t, "from-input/var/initial", resolved)
	assert.Empty(t, warnings)
}

func TestResolve_UnresolvedLeftVerbatim(t *testing.T) {
	ctx := Context{Inputs: map[string]any{"known": "yes"}}

	resolved, warnings := Resolve("{{known}} and {{missing}}", ctx)
	assert.Equal(t, "yes and {{missing}}", resolved)
	assert.Equal(t, []string{"unresolved placeholder {{missing}}"}, warnings)
}

func TestResolve_Idempotent(t *testing.T) {
	ctx := Context{Inputs: map[string]any{"a": "1"}}
	template := "{{a}} {{b}} literal"

	first, _ := Resolve(template, ctx)
	second, _ := Resolve(template, ctx)
	assert.Equal(t, first, second)
}

func TestResolve_DottedPath(t *testing.T) {
	ctx := Context{
		Inputs: map[string]any{
			"input": map[string]any{"user": map[string]any{"name": "Ada"}},
		},
	}

	resolved, warnings := Resolve("Hello {{input.user.name}}", ctx)
	assert.Equal(t, "Hello Ada", resolved)
	assert.Empty(t, warnings)
}

func TestResolve_DottedPathThroughNonMap(t *testing.T) {
	ctx := Context{Inputs: map[string]any{"input": "plain string"}}

	resolved, warnings := Resolve("{{input.field}}", ctx)
	assert.Equal(t, "{{input.field}}", resolved)
	assert.Len(t, warnings, 1)
}

func TestResolve_WhitespaceInsidePlaceholder(t *testing.T) {
	ctx := Context{Inputs: map[string]any{"name": "x"}}

	resolved, _ := Resolve("{{  name  }}", ctx)
	assert.Equal(t, "x", resolved)
}

func TestResolve_NoPlaceholders(t *testing.T) {
	resolved, warnings := Resolve("static text", Context{})
	assert.Equal(t, "static text", resolved)
	assert.Nil(t, warnings)
}

func TestResolveWith_TransformsSubstitutedValuesOnly(t *testing.T) {
	ctx := Context{Inputs: map[string]any{"a": "x"}}

	resolved, warnings := ResolveWith("<{{a}}> <{{b}}>", ctx, strings.ToUpper)
	assert.Equal(t, "<X> <{{b}}>", resolved)
	assert.Len(t, warnings, 1)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "hello", Stringify("hello"))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "42", Stringify(float64(42)))
	assert.Equal(t, "3.5", Stringify(3.5))
	assert.Equal(t, "7", Stringify(7))
	assert.Equal(t, `{"k":"v"}`, Stringify(map[string]any{"k": "v"}))
	assert.Equal(t, `["a","b"]`, Stringify([]string{"a", "b"}))
}
