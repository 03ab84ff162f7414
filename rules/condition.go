package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// conditionCostLimit bounds the work a single condition may do
const conditionCostLimit = 1000000

// ConditionInput carries the facts a rule condition can reference
type ConditionInput struct {
	ChildID     int
	ChildType   string
	ChildState  string
	ParentID    int
	ParentState string
}

// Condition is a compiled CEL rule condition
type Condition struct {
	expression string
	program    cel.Program
}

// conditionEnv declares the variables visible to conditions:
// child.id, child.type, child.state, parent.id, parent.state
var conditionEnv = sync.OnceValues(func() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("child", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("parent", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
})

// CompileCondition compiles and type checks a condition expression.
// The expression must produce a bool.
func CompileCondition(expression string) (*Condition, error) {
	env, err := conditionEnv()
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	if !ast.OutputType().IsExactType(cel.BoolType) && !ast.OutputType().IsExactType(cel.DynType) {
		return nil, fmt.Errorf("condition %q must evaluate to bool, got %s", expression, ast.OutputType())
	}

	prog, err := env.Program(ast, cel.CostLimit(conditionCostLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	return &Condition{expression: expression, program: prog}, nil
}

// Evaluate runs the condition against input.
// Non-boolean results are treated as false.
func (c *Condition) Evaluate(input ConditionInput) (bool, error) {
	out, _, err := c.program.Eval(map[string]any{
		"child": map[string]any{
			"id":    int64(input.ChildID),
			"type":  input.ChildType,
			"state": input.ChildState,
		},
		"parent": map[string]any{
			"id":    int64(input.ParentID),
			"state": input.ParentState,
		},
	})
	if err != nil {
		return false, fmt.Errorf("condition %q: %w", c.expression, err)
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return false, nil
	}
	return matched, nil
}

// String returns the source expression
func (c *Condition) String() string {
	return c.expression
}
