package criteria

import (
	"fmt"

	"github.com/arloliu/subwatch/types"
)

// Validator confirms subscription criteria translate into an executable matcher.
//
// Validation is synchronous and side-effect-free, so it is safe to call before any
// persistence write (pre-commit rejection) and again at activation time.
type Validator struct {
	catalog  Catalog
	compiler *Compiler
}

// NewValidator creates a validator over the given catalog.
//
// Parameters:
//   - catalog: Known resource types
//
// Returns:
//   - *Validator: Ready validator
//   - error: CEL environment construction failure
func NewValidator(catalog Catalog) (*Validator, error) {
	compiler, err := NewCompiler()
	if err != nil {
		return nil, err
	}

	return &Validator{catalog: catalog, compiler: compiler}, nil
}

// Catalog returns the resource-type catalog.
func (v *Validator) Catalog() Catalog {
	return v.catalog
}

// Validate parses, resolves and compiles criteria.
//
// Returns:
//   - *Matcher: Compiled matcher on success
//   - error: *types.ValidationError when the resource type is unknown or the
//     query is rejected by the compiler
func (v *Validator) Validate(criteria string) (*Matcher, error) {
	q, err := Parse(criteria)
	if err != nil {
		return nil, types.NewValidationError(criteria, err)
	}

	if !v.catalog.Contains(q.ResourceType) {
		return nil, types.NewValidationError(criteria, fmt.Errorf("%w: %s", types.ErrUnknownResourceType, q.ResourceType))
	}

	m, err := v.compiler.Compile(criteria, q)
	if err != nil {
		return nil, types.NewValidationError(criteria, err)
	}

	return m, nil
}
