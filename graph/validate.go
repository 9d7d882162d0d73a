package graph

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ValidationError describes one structural problem found in a graph. NodeID
// is empty for flow-level problems.
type ValidationError struct {
	NodeID  string `json:"nodeId"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("node %s: %s: %s", e.NodeID, e.Field, e.Message)
}

// ValidationErrors aggregates every problem found in one validation pass so
// callers can report them all at once.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("graph validation failed: %s", strings.Join(msgs, "; "))
}

// ValidationResult carries the outcome of Validate: hard errors that block
// execution and advisory warnings that do not.
type ValidationResult struct {
	Valid    bool             `json:"valid"`
	Errors   ValidationErrors `json:"errors"`
	Warnings []string         `json:"warnings,omitempty"`
}

// Err returns the aggregated errors as a single error, or nil when valid.
func (r *ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return r.Errors
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the graph for structural and per-type configuration
// problems. It is a pure query: the graph is never modified and repeated
// calls return equivalent results. Execution must not start unless the
// result is valid.
func (g *Graph) Validate() *ValidationResult {
	res := &ValidationResult{}

	if len(g.Nodes) == 0 {
		res.Errors = append(res.Errors, ValidationError{Field: "nodes", Message: "flow must have at least one node"})
		res.Valid = false
		return res
	}

	nodeIDs := map[string]bool{}
	var inputCount, outputCount int
	for _, n := range g.Nodes {
		if n.ID == "" {
			res.Errors = append(res.Errors, ValidationError{Field: "nodes", Message: "node id cannot be empty"})
			continue
		}
		if nodeIDs[n.ID] {
			res.Errors = append(res.Errors, ValidationError{NodeID: n.ID, Field: "id", Message: "duplicate node id"})
		}
		nodeIDs[n.ID] = true
		switch n.Type {
		case TypeInput:
			inputCount++
		case TypeOutput:
			outputCount++
		}
	}

	if inputCount == 0 {
		res.Errors = append(res.Errors, ValidationError{Field: "nodes", Message: "flow must have at least one input node"})
	}
	if outputCount == 0 {
		res.Errors = append(res.Errors, ValidationError{Field: "nodes", Message: "flow must have at least one output node"})
	}

	seenEdges := map[string]bool{}
	for _, e := range g.Edges {
		if !nodeIDs[e.Source] {
			res.Errors = append(res.Errors, ValidationError{
				NodeID: e.Source, Field: "edges",
				Message: fmt.Sprintf("edge source %q references non-existent node", e.Source),
			})
		}
		if !nodeIDs[e.Target] {
			res.Errors = append(res.Errors, ValidationError{
				NodeID: e.Target, Field: "edges",
				Message: fmt.Sprintf("edge target %q references non-existent node", e.Target),
			})
		}
		key := e.Source + "\x00" + e.SourceHandle + "\x00" + e.Target + "\x00" + e.TargetHandle
		if seenEdges[key] {
			res.Errors = append(res.Errors, ValidationError{
				NodeID: e.Source, Field: "edges",
				Message: fmt.Sprintf("duplicate edge from %q to %q", e.Source, e.Target),
			})
		}
		seenEdges[key] = true
	}

	for _, n := range g.Nodes {
		res.Errors = append(res.Errors, validateNode(n)...)
	}

	// Intermediate nodes with no edges cannot contribute to the run; warn
	// rather than fail, matching editor expectations for half-built flows.
	connected := map[string]bool{}
	for _, e := range g.Edges {
		connected[e.Source] = true
		connected[e.Target] = true
	}
	var disconnected []string
	for _, n := range g.Nodes {
		if !connected[n.ID] && n.Type != TypeInput && n.Type != TypeOutput {
			disconnected = append(disconnected, n.ID)
		}
	}
	sort.Strings(disconnected)
	for _, id := range disconnected {
		res.Warnings = append(res.Warnings, fmt.Sprintf("node %q is not connected to any other nodes", id))
	}

	if cycle := g.findCycle(); len(cycle) > 0 {
		res.Errors = append(res.Errors, ValidationError{
			Field:   "flow",
			Message: fmt.Sprintf("flow contains a cycle: %s", strings.Join(cycle, " -> ")),
		})
	}

	res.Valid = len(res.Errors) == 0
	return res
}

func validateNode(n Node) ValidationErrors {
	var errs ValidationErrors
	add := func(field, msg string) {
		errs = append(errs, ValidationError{NodeID: n.ID, Field: field, Message: msg})
	}

	switch cfg := n.Config.(type) {
	case InputConfig:
		if cfg.Value == "" && cfg.VariableName == "" {
			add("value", "input node must have either a value or a variable name")
		}
		if cfg.VariableName != "" && !identifierRe.MatchString(cfg.VariableName) {
			add("variableName", fmt.Sprintf("%q is not a valid identifier", cfg.VariableName))
		}
		if cfg.MaxLength < 0 {
			add("maxLength", "maxLength must be positive")
		}
	case LLMConfig:
		if cfg.Provider == "" {
			add("provider", "llm node must specify a provider")
		}
		if strings.TrimSpace(cfg.Model) == "" {
			add("model", "llm node must specify a model")
		}
		if strings.TrimSpace(cfg.UserPromptTemplate) == "" {
			add("userPromptTemplate", "llm node must have a prompt template")
		}
		if cfg.Temperature < 0 || cfg.Temperature > 2 {
			add("temperature", "temperature must be between 0.0 and 2.0")
		}
		if cfg.MaxRetries < 0 || cfg.MaxRetries > 10 {
			add("maxRetries", "maxRetries must be between 0 and 10")
		}
		if cfg.RetryDelay < 0 {
			add("retryDelay", "retryDelay must not be negative")
		}
		if cfg.ResponseFormat != "" && cfg.ResponseFormat != "text" && cfg.ResponseFormat != "json" {
			add("responseFormat", fmt.Sprintf("unknown response format %q", cfg.ResponseFormat))
		}
	case JSONExtractorConfig:
		if len(cfg.Extractions) == 0 {
			add("extractions", "json_extractor node must define at least one extraction")
		}
		for i, ex := range cfg.Extractions {
			if ex.Key == "" {
				add("extractions", fmt.Sprintf("extraction %d has no key", i))
			}
			if ex.Path == "" {
				add("extractions", fmt.Sprintf("extraction %q has no path", ex.Key))
			}
		}
		if cfg.OutputFormat != "" && cfg.OutputFormat != "object" && cfg.OutputFormat != "array" {
			add("outputFormat", fmt.Sprintf("unknown output format %q", cfg.OutputFormat))
		}
	case OutputConfig:
		switch cfg.Format {
		case "text", "markdown", "json", "code":
		case "":
			add("format", "output node must specify a format")
		default:
			add("format", fmt.Sprintf("unknown format %q", cfg.Format))
		}
		if cfg.Format == "code" && cfg.Language == "" {
			add("language", "language is required when format is code")
		}
	case TemplateConfig:
		if strings.TrimSpace(cfg.Template) == "" {
			add("template", "template node must have a template")
		}
	case MergeConfig:
		switch cfg.Strategy {
		case "concat", "array", "object":
		case "":
			add("mergeStrategy", "merge node must specify a strategy")
		default:
			add("mergeStrategy", fmt.Sprintf("unknown merge strategy %q", cfg.Strategy))
		}
	case TextTransformerConfig:
		switch cfg.TransformType {
		case "uppercase", "lowercase", "trim":
		case "replace":
			if cfg.SearchValue == "" {
				add("searchValue", "replace transform requires a search value")
			}
		case "regex_extract":
			if cfg.Pattern == "" {
				add("pattern", "regex_extract transform requires a pattern")
			} else if _, err := regexp.Compile(cfg.Pattern); err != nil {
				add("pattern", fmt.Sprintf("invalid pattern: %v", err))
			}
		case "":
			add("transformType", "text_transformer node must specify a transform type")
		default:
			add("transformType", fmt.Sprintf("unknown transform type %q", cfg.TransformType))
		}
	case nil:
		add("data", "node has no configuration")
	}

	return errs
}

// findCycle runs a depth-first search with an explicit recursion stack. The
// first back-edge found yields the participating node ids, source to source.
func (g *Graph) findCycle() []string {
	adj := map[string][]string{}
	for _, e := range g.Edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	visited := map[string]bool{}
	onStack := map[string]bool{}
	var stack []string
	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		stack = append(stack, id)

		for _, next := range adj[id] {
			if !visited[next] {
				if dfs(next) {
					return true
				}
			} else if onStack[next] {
				// Slice the stack from the first occurrence of next to
				// report only the nodes participating in the cycle.
				for i, sid := range stack {
					if sid == next {
						cycle = append(append([]string{}, stack[i:]...), next)
						return true
					}
				}
			}
		}

		onStack[id] = false
		stack = stack[:len(stack)-1]
		return false
	}

	for _, n := range g.Nodes {
		if !visited[n.ID] && dfs(n.ID) {
			return cycle
		}
	}
	return nil
}
