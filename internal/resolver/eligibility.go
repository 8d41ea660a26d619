package resolver

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// EligibilityEvaluator compiles and evaluates the optional CEL eligibility
// expressions attached to program definitions. Compiled programs are cached
// by expression text.
type EligibilityEvaluator struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]cel.Program
}

// NewEligibilityEvaluator creates an evaluator with the vehicle variables
// available to program expressions.
func NewEligibilityEvaluator() (*EligibilityEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("brand", cel.StringType),
		cel.Variable("model", cel.StringType),
		cel.Variable("trim", cel.StringType),
		cel.Variable("year", cel.IntType),
		cel.Variable("state", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &EligibilityEvaluator{
		env:      env,
		compiled: make(map[string]cel.Program),
	}, nil
}

// Validate compiles an expression without caching it. Used by the admin
// surface before persisting a program.
func (e *EligibilityEvaluator) Validate(expression string) error {
	if expression == "" {
		return nil
	}
	_, err := e.compile(expression)
	return err
}

// Evaluate runs an expression against a vehicle. An empty expression is
// always eligible.
func (e *EligibilityEvaluator) Evaluate(expression string, v Vehicle) (bool, error) {
	if expression == "" {
		return true, nil
	}

	e.mu.RLock()
	program, ok := e.compiled[expression]
	e.mu.RUnlock()

	if !ok {
		var err error
		program, err = e.compile(expression)
		if err != nil {
			return false, err
		}
		e.mu.Lock()
		e.compiled[expression] = program
		e.mu.Unlock()
	}

	out, _, err := program.Eval(map[string]any{
		"brand": v.Brand,
		"model": v.Model,
		"trim":  v.Trim,
		"year":  int64(v.Year),
		"state": v.State,
	})
	if err != nil {
		return false, fmt.Errorf("eligibility evaluation failed: %w", err)
	}

	result, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("eligibility expression returned %T, want bool", out)
	}
	return bool(result), nil
}

func (e *EligibilityEvaluator) compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile eligibility expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("eligibility expression must return bool, got %s", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create eligibility program: %w", err)
	}
	return program, nil
}
