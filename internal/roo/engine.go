// Package roo provides the CEL-Go based rule-of-origin qualification engine.
//
// Most rules of origin use the built-in regional value content test and
// never reach this package. Agreements with bespoke origin criteria attach a
// CEL expression to the rule instead; this engine compiles and evaluates
// those expressions over the shipment's cost breakdown.
package roo

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/tariffsheriff/tariffd/internal/domain"
)

// Engine compiles and evaluates origin-qualification expressions. Compiled
// programs are cached per rule so repeated resolutions pay the compile cost
// once.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	programs map[string]*compiledRule
}

type compiledRule struct {
	expression string
	program    cel.Program
}

// NewEngine creates a qualification engine. Expressions see the cost
// components, the reference value, and the precomputed RVC percentage.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("material_cost", cel.DoubleType),
		cel.Variable("labour_cost", cel.DoubleType),
		cel.Variable("overhead_cost", cel.DoubleType),
		cel.Variable("profit", cel.DoubleType),
		cel.Variable("other_costs", cel.DoubleType),
		cel.Variable("fob", cel.DoubleType),
		cel.Variable("rvc", cel.DoubleType),
		cel.Variable("threshold", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		programs: make(map[string]*compiledRule),
	}, nil
}

// ValidateRule compiles an expression without caching it, for admission
// checks when rules are created or updated.
func (e *Engine) ValidateRule(rule *domain.RooRule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}
	if rule.Expression == "" {
		return fmt.Errorf("rule %s: expression is required for method %q", rule.ID, rule.Method)
	}
	_, err := e.compile(rule.ID, rule.Expression)
	return err
}

// Evaluate runs the rule's expression against the given cost breakdown and
// reports whether the shipment qualifies. A bool expression decides
// directly; a numeric expression qualifies when its value meets the rule's
// threshold.
func (e *Engine) Evaluate(ctx context.Context, rule *domain.RooRule, costs *domain.CostBreakdown, rvcPercent float64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if costs == nil {
		return false, fmt.Errorf("rule %s: cost breakdown is required", rule.ID)
	}

	program, err := e.programFor(rule)
	if err != nil {
		return false, err
	}

	activation := map[string]any{
		"material_cost": costs.MaterialCost,
		"labour_cost":   costs.LabourCost,
		"overhead_cost": costs.OverheadCost,
		"profit":        costs.Profit,
		"other_costs":   costs.OtherCosts,
		"fob":           costs.FreeOnBoardValue,
		"rvc":           rvcPercent,
		"threshold":     rule.Threshold,
	}

	out, _, err := program.Eval(activation)
	if err != nil {
		return false, fmt.Errorf("rule %s: evaluation error: %w", rule.ID, err)
	}

	return qualifies(out, rule.Threshold), nil
}

// programFor returns the cached program for a rule, recompiling when the
// stored expression changed since it was cached.
func (e *Engine) programFor(rule *domain.RooRule) (cel.Program, error) {
	e.mu.RLock()
	cached, ok := e.programs[rule.ID]
	e.mu.RUnlock()
	if ok && cached.expression == rule.Expression {
		return cached.program, nil
	}

	program, err := e.compile(rule.ID, rule.Expression)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.programs[rule.ID] = &compiledRule{expression: rule.Expression, program: program}
	e.mu.Unlock()

	return program, nil
}

// RulesCount returns the number of cached compiled rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.programs)
}

// Close clears the compiled-rule cache.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.programs = make(map[string]*compiledRule)
	return nil
}

func (e *Engine) compile(ruleID, expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", ruleID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", ruleID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", ruleID, err)
	}
	return program, nil
}

// qualifies converts a CEL result into a pass/fail decision.
func qualifies(val ref.Val, threshold float64) bool {
	switch v := val.(type) {
	case types.Bool:
		return bool(v)
	case types.Double:
		return float64(v) >= threshold
	case types.Int:
		return float64(v) >= threshold
	default:
		return false
	}
}
