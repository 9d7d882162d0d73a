package graph

import (
	"encoding/json"
	"fmt"
)

// NodeType identifies the kind of work a node performs. The set is closed;
// adding a type means adding a Config variant and an evaluator.
type NodeType string

const (
	// TypeInput is a pass-through source node feeding the flow an initial value.
	TypeInput NodeType = "input"
	// TypeLLM invokes an external language model provider.
	TypeLLM NodeType = "llm"
	// TypeJSONExtractor pulls values out of JSON input by path.
	TypeJSONExtractor NodeType = "json_extractor"
	// TypeOutput formats an upstream value as the flow's result.
	TypeOutput NodeType = "output"
	// TypeTemplate renders a configured template against its inputs.
	TypeTemplate NodeType = "template"
	// TypeMerge fans in multiple upstream values into one.
	TypeMerge NodeType = "merge"
	// TypeTextTransformer applies a string transformation to its input.
	TypeTextTransformer NodeType = "text_transformer"
)

// Config is the per-type node configuration. Exactly one concrete variant
// exists per NodeType; evaluators type-switch on it.
type Config interface {
	NodeType() NodeType
}

// InputConfig configures an input node. Either a literal Value or a
// VariableName keyed into the run's initial input must be set.
type InputConfig struct {
	Value        string `json:"value"`
	VariableName string `json:"variableName,omitempty"`
	Multiline    bool   `json:"multiline,omitempty"`
	MaxLength    int    `json:"maxLength,omitempty"`
}

// NodeType implements Config.
func (InputConfig) NodeType() NodeType { return TypeInput }

// LLMConfig configures a language model node. UserPromptTemplate may contain
// {{variable}} placeholders resolved by the binder before invocation.
type LLMConfig struct {
	Provider           string   `json:"provider"`
	Model              string   `json:"model"`
	SystemPrompt       string   `json:"systemPrompt,omitempty"`
	UserPromptTemplate string   `json:"userPromptTemplate"`
	Temperature        float64  `json:"temperature"`
	MaxTokens          int      `json:"maxTokens,omitempty"`
	TopP               *float64 `json:"topP,omitempty"`
	TopK               *int     `json:"topK,omitempty"`
	Stream             bool     `json:"stream"`
	ResponseFormat     string   `json:"responseFormat,omitempty"` // "text" or "json"
	MaxRetries         int      `json:"maxRetries"`
	RetryDelay         int      `json:"retryDelay"` // milliseconds between retry attempts
}

// NodeType implements Config.
func (LLMConfig) NodeType() NodeType { return TypeLLM }

// Extraction is a single keyed path lookup performed by a json_extractor node.
// Fallback is substituted when the path does not match; a nil Fallback under
// strict mode fails the node instead.
type Extraction struct {
	Key      string `json:"key"`
	Path     string `json:"path"`
	Fallback any    `json:"fallback,omitempty"`
}

// JSONExtractorConfig configures a json_extractor node.
type JSONExtractorConfig struct {
	Extractions  []Extraction `json:"extractions"`
	StrictMode   bool         `json:"strictMode,omitempty"`
	OutputFormat string       `json:"outputFormat,omitempty"` // "object" (default) or "array"
}

// NodeType implements Config.
func (JSONExtractorConfig) NodeType() NodeType { return TypeJSONExtractor }

// OutputConfig configures an output node.
type OutputConfig struct {
	Format           string `json:"format"` // text, markdown, json or code
	Language         string `json:"language,omitempty"`
	Copyable         bool   `json:"copyable,omitempty"`
	Downloadable     bool   `json:"downloadable,omitempty"`
	DownloadFilename string `json:"downloadFilename,omitempty"`
}

// NodeType implements Config.
func (OutputConfig) NodeType() NodeType { return TypeOutput }

// TemplateConfig configures a template node. Node-local Variables take
// precedence below upstream values during resolution.
type TemplateConfig struct {
	Template   string         `json:"template"`
	Variables  map[string]any `json:"variables,omitempty"`
	EscapeHTML bool           `json:"escapeHtml,omitempty"`
}

// NodeType implements Config.
func (TemplateConfig) NodeType() NodeType { return TypeTemplate }

// MergeConfig configures a merge node.
type MergeConfig struct {
	Strategy  string `json:"mergeStrategy"` // concat, array or object
	Separator string `json:"separator,omitempty"`
}

// NodeType implements Config.
func (MergeConfig) NodeType() NodeType { return TypeMerge }

// TextTransformerConfig configures a text_transformer node.
type TextTransformerConfig struct {
	TransformType string `json:"transformType"` // uppercase, lowercase, trim, replace or regex_extract
	SearchValue   string `json:"searchValue,omitempty"`
	ReplaceValue  string `json:"replaceValue,omitempty"`
	Pattern       string `json:"pattern,omitempty"`
}

// NodeType implements Config.
func (TextTransformerConfig) NodeType() NodeType { return TypeTextTransformer }

// Node is a single typed unit of work in a flow. Nodes are immutable once a
// run starts; evaluators only ever read Config.
type Node struct {
	ID     string   `json:"id"`
	Type   NodeType `json:"type"`
	Label  string   `json:"label,omitempty"`
	Config Config   `json:"data"`
}

// nodeJSON is the wire shape of a Node; Config is dispatched on Type.
type nodeJSON struct {
	ID    string          `json:"id"`
	Type  NodeType        `json:"type"`
	Label string          `json:"label,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// UnmarshalJSON decodes a node, selecting the Config variant from the type tag.
func (n *Node) UnmarshalJSON(data []byte) error {
	var nj nodeJSON
	if err := json.Unmarshal(data, &nj); err != nil {
		return err
	}
	cfg, err := newConfig(nj.Type)
	if err != nil {
		return fmt.Errorf("node %q: %w", nj.ID, err)
	}
	if len(nj.Data) > 0 {
		if err := json.Unmarshal(nj.Data, cfg); err != nil {
			return fmt.Errorf("node %q: invalid %s config: %w", nj.ID, nj.Type, err)
		}
	}
	n.ID = nj.ID
	n.Type = nj.Type
	n.Label = nj.Label
	n.Config = deref(cfg)
	return nil
}

// MarshalJSON encodes a node in the editor wire shape.
func (n Node) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(n.Config)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nodeJSON{ID: n.ID, Type: n.Type, Label: n.Label, Data: data})
}

// newConfig returns a pointer to the zero Config variant for t so it can be
// unmarshaled into.
func newConfig(t NodeType) (Config, error) {
	switch t {
	case TypeInput:
		return &InputConfig{}, nil
	case TypeLLM:
		return &LLMConfig{}, nil
	case TypeJSONExtractor:
		return &JSONExtractorConfig{}, nil
	case TypeOutput:
		return &OutputConfig{}, nil
	case TypeTemplate:
		return &TemplateConfig{}, nil
	case TypeMerge:
		return &MergeConfig{}, nil
	case TypeTextTransformer:
		return &TextTransformerConfig{}, nil
	default:
		return nil, fmt.Errorf("unknown node type %q", t)
	}
}

// deref converts the pointer used for unmarshaling back into the value form
// stored on Node so configs stay immutable by copy.
func deref(cfg Config) Config {
	switch c := cfg.(type) {
	case *InputConfig:
		return *c
	case *LLMConfig:
		return *c
	case *JSONExtractorConfig:
		return *c
	case *OutputConfig:
		return *c
	case *TemplateConfig:
		return *c
	case *MergeConfig:
		return *c
	case *TextTransformerConfig:
		return *c
	default:
		return cfg
	}
}
