package criteria

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Matcher is a compiled, executable subscription filter.
//
// Matchers are immutable and safe for concurrent use.
type Matcher struct {
	resourceType string
	criteria     string
	expression   string
	program      cel.Program
}

// ResourceType returns the resource type the matcher applies to.
func (m *Matcher) ResourceType() string { return m.resourceType }

// Criteria returns the criteria string the matcher was compiled from.
func (m *Matcher) Criteria() string { return m.criteria }

// Expression returns the translated CEL expression.
func (m *Matcher) Expression() string { return m.expression }

// Matches evaluates the matcher against a resource.
//
// Resources of another type never match. Evaluation failures (for example a field
// holding a nested object) are returned as errors and count as "no match".
//
// Parameters:
//   - resourceType: Type tag of the changed resource
//   - resource: Decoded top-level fields of the resource
//
// Returns:
//   - bool: true if the resource satisfies the criteria
//   - error: Evaluation error
func (m *Matcher) Matches(resourceType string, resource map[string]any) (bool, error) {
	if resourceType != m.resourceType {
		return false, nil
	}
	if resource == nil {
		resource = map[string]any{}
	}

	out, _, err := m.program.Eval(map[string]any{resourceVar: resource})
	if err != nil {
		return false, fmt.Errorf("CEL eval error: %w", err)
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result not boolean")
	}

	return matched, nil
}
