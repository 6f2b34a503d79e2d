// Package intent holds the fixed catalog of procurement intents and the slot
// validation applied to understanding-adapter output.
package intent

import (
	"fmt"
	"regexp"

	"github.com/procureflow/agent/internal/domain"
)

// Registry is the static intent catalog. It is loaded once at process start
// and read-only afterwards, so lookups need no locking.
type Registry struct {
	intents  map[string]domain.IntentDefinition
	order    []string
	patterns map[string]*regexp.Regexp // "intent.field" -> compiled pattern
}

// NewRegistry builds a registry from a list of definitions. Duplicate names
// and invalid field patterns are configuration errors.
func NewRegistry(defs []domain.IntentDefinition) (*Registry, error) {
	r := &Registry{
		intents:  make(map[string]domain.IntentDefinition, len(defs)),
		patterns: make(map[string]*regexp.Regexp),
	}
	for _, def := range defs {
		if _, exists := r.intents[def.Name]; exists {
			return nil, fmt.Errorf("intent %s registered twice", def.Name)
		}
		for _, f := range def.Fields {
			if f.Pattern == "" {
				continue
			}
			re, err := regexp.Compile(f.Pattern)
			if err != nil {
				return nil, fmt.Errorf("intent %s field %s: bad pattern: %w", def.Name, f.Name, err)
			}
			r.patterns[def.Name+"."+f.Name] = re
		}
		r.intents[def.Name] = def
		r.order = append(r.order, def.Name)
	}
	return r, nil
}

// Lookup returns the definition for a name, or ErrUnknownIntent. A miss is
// always a caller error and is never retried.
func (r *Registry) Lookup(name string) (domain.IntentDefinition, error) {
	def, ok := r.intents[name]
	if !ok {
		return domain.IntentDefinition{}, fmt.Errorf("%w: %s", domain.ErrUnknownIntent, name)
	}
	return def, nil
}

// List returns all definitions in registration order.
func (r *Registry) List() []domain.IntentDefinition {
	out := make([]domain.IntentDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.intents[name])
	}
	return out
}

// Summaries returns the compact catalog view handed to the understanding
// adapter.
func (r *Registry) Summaries() []domain.IntentSummary {
	out := make([]domain.IntentSummary, 0, len(r.order))
	for _, name := range r.order {
		def := r.intents[name]
		out = append(out, domain.IntentSummary{
			Name:        def.Name,
			Description: def.Description,
			Fields:      def.Fields,
		})
	}
	return out
}

func (r *Registry) pattern(intentName, fieldName string) *regexp.Regexp {
	return r.patterns[intentName+"."+fieldName]
}
