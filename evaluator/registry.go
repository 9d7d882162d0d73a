package evaluator

import (
	"github.com/ethanlchristensen/flowmesh/graph"
	"github.com/ethanlchristensen/flowmesh/logging"
	"github.com/ethanlchristensen/flowmesh/provider"
)

// NewDefaultRegistry returns a registry with every built-in node type wired:
// input, llm, json_extractor, output, template, merge and text_transformer.
func NewDefaultRegistry(providers *provider.Registry, logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	r := NewRegistry()
	r.Register(graph.TypeInput, NewInputEvaluator())
	r.Register(graph.TypeLLM, NewLLMEvaluator(providers, func(o *LLMOptions) { o.Logger = logger }))
	r.Register(graph.TypeJSONExtractor, NewJSONExtractorEvaluator())
	r.Register(graph.TypeOutput, NewOutputEvaluator())
	r.Register(graph.TypeTemplate, NewTemplateEvaluator())
	r.Register(graph.TypeMerge, NewMergeEvaluator())
	r.Register(graph.TypeTextTransformer, NewTextTransformerEvaluator())
	return r
}
