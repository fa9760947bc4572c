package tool

import "context"

// Capability names. The registry table is closed: these four are the whole
// surface advertised to the orchestrating model.
const (
	NameCallModel    = "call_model"
	NameCompareTexts = "compare_texts"
	NameExtractQuote = "extract_quotes"
	NameMakeDecision = "make_decision"
)

// Capability is a single named operation with a declared schema and an
// executor. Capabilities never touch conversation state; the orchestrator
// consumes their string result.
type Capability interface {
	Schema() Schema
	Execute(ctx context.Context, input map[string]interface{}, ec *ExecContext) (string, error)
}

// Registry aggregates all capabilities. It is immutable after construction
// and safe for concurrent reads by any number of runs.
type Registry struct {
	order []string
	table map[string]Capability
}

// NewRegistry builds the fixed capability table.
func NewRegistry() *Registry {
	caps := []Capability{
		CallModel{},
		CompareTexts{},
		ExtractQuotes{},
		MakeDecision{},
	}

	r := &Registry{table: make(map[string]Capability, len(caps))}
	for _, c := range caps {
		name := c.Schema().Name
		r.order = append(r.order, name)
		r.table[name] = c
	}
	return r
}

// Schemas returns the advertised schema list in declaration order.
func (r *Registry) Schemas() []Schema {
	out := make([]Schema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.table[name].Schema())
	}
	return out
}

// Lookup resolves a capability by name.
func (r *Registry) Lookup(name string) (Capability, bool) {
	c, ok := r.table[name]
	return c, ok
}
