// Package audience provides the CEL-based segment filter engine.
// Filters arrive as ad hoc expressions over customer attributes,
// feature vectors and the assigned persona, and must evaluate to bool.
package audience

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensegment/magpie/internal/domain"
)

// ErrInvalidFilter marks expressions that do not compile or do not
// produce a boolean.
var ErrInvalidFilter = errors.New("invalid filter")

// Row is one candidate for selection: the customer, its current
// feature vector, and its assigned persona label.
type Row struct {
	Customer *domain.Customer
	Features *domain.FeatureVector
	Persona  string
}

// Engine compiles and evaluates audience filters. Compiled programs
// are cached by expression so repeated filters skip compilation.
type Engine struct {
	mu         sync.RWMutex
	env        *cel.Env
	programs   map[string]cel.Program
	maxWorkers int
}

// NewEngine creates a filter engine with bounded evaluation concurrency.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("customer", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("features", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("persona", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:        env,
		programs:   make(map[string]cel.Program),
		maxWorkers: maxWorkers,
	}, nil
}

// Validate compiles an expression without caching it.
func (e *Engine) Validate(expr string) error {
	_, err := e.compile(expr)
	return err
}

// Match evaluates one row against a filter.
func (e *Engine) Match(expr string, row Row) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	return evalRow(prg, row)
}

// Select returns the rows matching the filter, preserving input order
// regardless of evaluation order. Any row-level evaluation error fails
// the whole selection.
func (e *Engine) Select(ctx context.Context, expr string, rows []Row) ([]Row, error) {
	prg, err := e.program(expr)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matched := make([]bool, len(rows))
	errs := make([]error, len(rows))
	var wg sync.WaitGroup

	sem := make(chan struct{}, e.maxWorkers)

	for i := range rows {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			matched[idx], errs[idx] = evalRow(prg, rows[idx])
		}(i)
	}

	wg.Wait()

	for i, rowErr := range errs {
		if rowErr != nil {
			return nil, fmt.Errorf("row %d: %w", i, rowErr)
		}
	}

	out := make([]Row, 0, len(rows))
	for i := range rows {
		if matched[i] {
			out = append(out, rows[i])
		}
	}
	return out, nil
}

// program returns the cached compiled program for expr, compiling and
// caching it on first use.
func (e *Engine) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, ok := e.programs[expr]; ok {
		return prg, nil
	}

	prg, err := e.compile(expr)
	if err != nil {
		return nil, err
	}
	e.programs[expr] = prg
	return prg, nil
}

func (e *Engine) compile(expr string) (cel.Program, error) {
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: expression must return bool, got %s", ErrInvalidFilter, ast.OutputType())
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return prg, nil
}

func evalRow(prg cel.Program, row Row) (bool, error) {
	customer := map[string]any{}
	if row.Customer != nil {
		customer = row.Customer.AsMap()
	}
	feats := map[string]any{}
	if row.Features != nil {
		feats = row.Features.AsMap()
	}

	out, _, err := prg.Eval(map[string]any{
		"customer": customer,
		"features": feats,
		"persona":  row.Persona,
	})
	if err != nil {
		return false, fmt.Errorf("evaluation error: %w", err)
	}

	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("expression produced %T, not bool", out)
	}
	return bool(b), nil
}

// CachedPrograms returns the number of compiled filters held.
func (e *Engine) CachedPrograms() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.programs)
}
