// Package condition compiles and evaluates the `when` expressions that gate
// individual copy, link and render entries.
package condition

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Compile compiles an expression string once for reuse. An empty expression
// always evaluates to true.
func Compile(code string) (*vm.Program, error) {
	if code == "" {
		code = "true"
	}

	return expr.Compile(code, expr.AsBool())
}

// Eval evaluates a pre-compiled expression with the given environment.
func Eval(program *vm.Program, env map[string]any) (bool, error) {
	output, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}

	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("expression did not evaluate to boolean, got %T", output)
	}

	return result, nil
}
