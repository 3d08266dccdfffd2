package eagerload

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/asakaida/polyload/internal/repositories"
)

// RowFilter evaluates relationship `where` expressions against fetched rows.
// The row is available to expressions as the map variable `row`.
type RowFilter struct {
	env      *cel.Env
	programs sync.Map // expression -> cel.Program
}

// NewRowFilter creates a filter with the `row` variable declared
func NewRowFilter() (*RowFilter, error) {
	env, err := cel.NewEnv(
		cel.Variable("row", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &RowFilter{env: env}, nil
}

// Validate checks that expression compiles and returns a boolean
func (f *RowFilter) Validate(expression string) error {
	_, err := f.compile(expression)
	return err
}

func (f *RowFilter) compile(expression string) (*cel.Ast, error) {
	ast, issues := f.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid CEL expression: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
		return nil, fmt.Errorf("CEL expression must return boolean, got: %s", ast.OutputType())
	}
	return ast, nil
}

// Match reports whether row satisfies expression
func (f *RowFilter) Match(expression string, row repositories.Row) (bool, error) {
	program, err := f.program(expression)
	if err != nil {
		return false, err
	}

	result, _, err := program.Eval(map[string]interface{}{"row": map[string]interface{}(row)})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression %q: %w", expression, err)
	}

	matched, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression %q did not evaluate to boolean, got: %T", expression, result.Value())
	}
	return matched, nil
}

// Apply returns the rows matching expression, keeping their order
func (f *RowFilter) Apply(expression string, rows []repositories.Row) ([]repositories.Row, error) {
	if expression == "" {
		return rows, nil
	}
	out := rows[:0:0]
	for _, row := range rows {
		ok, err := f.Match(expression, row)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *RowFilter) program(expression string) (cel.Program, error) {
	if p, ok := f.programs.Load(expression); ok {
		return p.(cel.Program), nil
	}

	ast, err := f.compile(expression)
	if err != nil {
		return nil, err
	}
	program, err := f.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	actual, _ := f.programs.LoadOrStore(expression, program)
	return actual.(cel.Program), nil
}
