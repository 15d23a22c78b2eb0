package criteria

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arloliu/subwatch/types"
	"github.com/google/cel-go/cel"
)

// resourceVar is the CEL variable holding the resource being matched.
const resourceVar = "resource"

// Compiler translates parsed criteria into CEL programs.
//
// A Compiler is safe for concurrent use.
type Compiler struct {
	env *cel.Env
}

// NewCompiler creates a compiler with a single "resource" map variable.
func NewCompiler() (*Compiler, error) {
	env, err := cel.NewEnv(
		cel.Variable(resourceVar, cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	return &Compiler{env: env}, nil
}

// Compile builds an executable matcher for q.
//
// Parameters:
//   - criteria: Original criteria string, kept on the matcher for diagnostics
//   - q: Parsed query
//
// Returns:
//   - *Matcher: Executable matcher
//   - error: ErrMalformedQuery wrapping the CEL issue when translation fails
func (c *Compiler) Compile(criteria string, q Query) (*Matcher, error) {
	expr := Translate(q)

	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: CEL compile error: %w", types.ErrMalformedQuery, issues.Err())
	}

	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: CEL program error: %w", types.ErrMalformedQuery, err)
	}

	return &Matcher{
		resourceType: q.ResourceType,
		criteria:     criteria,
		expression:   expr,
		program:      prg,
	}, nil
}

// Translate renders q as a CEL boolean expression over the resource variable.
func Translate(q Query) string {
	if len(q.Params) == 0 {
		return "true"
	}

	clauses := make([]string, 0, len(q.Params))
	for _, p := range q.Params {
		field := strconv.Quote(p.Field)
		access := fmt.Sprintf("string(%s[%s])", resourceVar, field)

		var test string
		if len(p.Values) == 1 {
			test = fmt.Sprintf("%s == %s", access, strconv.Quote(p.Values[0]))
		} else {
			quoted := make([]string, len(p.Values))
			for i, v := range p.Values {
				quoted[i] = strconv.Quote(v)
			}
			test = fmt.Sprintf("%s in [%s]", access, strings.Join(quoted, ", "))
		}
		clauses = append(clauses, fmt.Sprintf("(%s in %s && %s)", field, resourceVar, test))
	}

	return strings.Join(clauses, " && ")
}
