package evaluator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethanlchristensen/flowmesh/graph"
)

func templateRequest(cfg graph.TemplateConfig, named map[string]any) *Request {
	return &Request{
		Node:  graph.Node{ID: "tpl", Type: graph.TypeTemplate, Config: cfg},
		Named: named,
	}
}

func TestTemplateEvaluator_Render(t *testing.T) {
	cfg := graph.TemplateConfig{Template: "Hello {{name}}, topic: {{input}}"}
	res, err := NewTemplateEvaluator().Evaluate(context.Background(),
		templateRequest(cfg, map[string]any{"name": "Ada", "input": "bees"}))
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada, topic: bees", res.Output)
}

func TestTemplateEvaluator_UpstreamShadowsLocalVariables(t *testing.T) {
	cfg := graph.TemplateConfig{
		Template:  "{{who}} and {{local}}",
		Variables: map[string]any{"who": "local-value", "local": "only-local"},
	}
	res, err := NewTemplateEvaluator().Evaluate(context.Background(),
		templateRequest(cfg, map[string]any{"who": "upstream-value"}))
	require.NoError(t, err)
	assert.Equal(t, "upstream-value and only-local", res.Output)
}

func TestTemplateEvaluator_EscapeHTML(t *testing.T) {
	cfg := graph.TemplateConfig{Template: "<p>{{body}}</p>", EscapeHTML: true}
	res, err := NewTemplateEvaluator().Evaluate(context.Background(),
		templateRequest(cfg, map[string]any{"body": "<script>x</script>"}))
	require.NoError(t, err)
	assert.Equal(t, "<p>&lt;script&gt;x&lt;/script&gt;</p>", res.Output)
}

func TestTemplateEvaluator_EscapeHTMLCoversAllScopes(t *testing.T) {
	cfg := graph.TemplateConfig{Template: "{{up}}|{{flowVar}}|{{initial}}", EscapeHTML: true}
	req := templateRequest(cfg, map[string]any{"up": "<a>"})
	req.Variables = map[string]any{"flowVar": "<b>"}
	req.InitialInput = map[string]any{"initial": "<c>"}

	res, err := NewTemplateEvaluator().Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "&lt;a&gt;|&lt;b&gt;|&lt;c&gt;", res.Output)
}

func TestTemplateEvaluator_UnresolvedWarns(t *testing.T) {
	cfg := graph.TemplateConfig{Template: "{{ghost}}"}
	res, err := NewTemplateEvaluator().Evaluate(context.Background(), templateRequest(cfg, nil))
	require.NoError(t, err)
	assert.Equal(t, "{{ghost}}", res.Output)
	assert.Len(t, res.Warnings, 1)
}

func TestTemplateEvaluator_EmptyTemplateFails(t *testing.T) {
	_, err := NewTemplateEvaluator().Evaluate(context.Background(),
		templateRequest(graph.TemplateConfig{}, nil))
	var evalErr *Error
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "empty_template", evalErr.Code)
}
