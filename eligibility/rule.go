package eligibility

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/zero-day-ai/aviator"
	"github.com/zero-day-ai/aviator/finding"
)

// Rule is a compiled CEL expression over a finding. The expression sees a
// single variable, finding, a map with the keys category, subcategory,
// priority, confidence, severity, analyzer, audience, likelihood, file and
// line. A rule that evaluates to true excludes the finding.
//
// Example:
//
//	finding.analyzer == "configuration" || finding.confidence < 2.0
type Rule struct {
	expr    string
	program cel.Program
}

// CompileRule compiles expr. Compilation failures are KindSimple errors.
func CompileRule(expr string) (*Rule, error) {
	const op = "eligibility.CompileRule"

	env, err := cel.NewEnv(
		cel.Variable("finding", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, aviator.NewTechnicalError(op, fmt.Errorf("failed to create CEL environment: %w", err))
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, aviator.NewSimpleError(op, fmt.Errorf("invalid exclusion rule %q: %w", expr, issues.Err()))
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, aviator.NewSimpleError(op, fmt.Errorf("invalid exclusion rule %q: %w", expr, err))
	}

	return &Rule{expr: expr, program: program}, nil
}

// String returns the source expression.
func (r *Rule) String() string {
	return r.expr
}

// Excludes evaluates the rule against f.
func (r *Rule) Excludes(f *finding.Finding) (bool, error) {
	out, _, err := r.program.Eval(map[string]any{
		"finding": activation(f),
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rule: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule returned %T, want bool", out.Value())
	}
	return result, nil
}

func activation(f *finding.Finding) map[string]any {
	primary := f.Primary()
	return map[string]any{
		"category":    f.Category,
		"subcategory": f.Subcategory,
		"priority":    f.Priority.String(),
		"confidence":  f.Confidence,
		"severity":    f.InstanceSeverity,
		"analyzer":    f.Analyzer,
		"audience":    f.Audience,
		"likelihood":  f.Likelihood(),
		"file":        primary.File,
		"line":        int64(primary.Line),
	}
}
