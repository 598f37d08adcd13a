// Package highlight provides the CEL-based display-flag engine.
//
// Flags are cosmetic: they tell the view layer which rows deserve a
// visual distinction (negative stand, extreme delta, skipped reading).
// They are not anomaly detection; that stays on the billing backend.
package highlight

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-utility/dipper/internal/domain"
)

// Rule maps a boolean CEL expression to a named display flag.
type Rule struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Flag       string `json:"flag"`
	Enabled    bool   `json:"enabled"`
}

// Display flags emitted by the default rules.
const (
	FlagNegative = "negative"
	FlagExtreme  = "extreme"
	FlagZero     = "zero"
	FlagSkipped  = "skipped"
)

// DefaultRules returns the dashboard's built-in display cues with the
// configured delta threshold.
func DefaultRules(deltaThreshold int) []Rule {
	if deltaThreshold <= 0 {
		deltaThreshold = 100
	}
	return []Rule{
		{
			ID:         "display-negative",
			Name:       "Regressed stand",
			Expression: "delta < 0",
			Flag:       FlagNegative,
			Enabled:    true,
		},
		{
			ID:         "display-extreme",
			Name:       "Extreme period delta",
			Expression: fmt.Sprintf("delta > %d", deltaThreshold),
			Flag:       FlagExtreme,
			Enabled:    true,
		},
		{
			ID:         "display-zero",
			Name:       "Zero consumption",
			Expression: "delta == 0",
			Flag:       FlagZero,
			Enabled:    true,
		},
		{
			ID:         "display-skipped",
			Name:       "Skipped or troubled reading",
			Expression: `skip_code != "" || trouble_code != ""`,
			Flag:       FlagSkipped,
			Enabled:    true,
		},
	}
}

// Engine compiles and evaluates display rules. Rules keep their load
// order so flag output is deterministic.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled []*compiledRule
}

type compiledRule struct {
	rule    Rule
	program cel.Program
}

// NewEngine creates an engine with the review display variables.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("nomen", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("usage", cel.IntType),
		cel.Variable("tags", cel.ListType(cel.StringType)),
		cel.Variable("delta", cel.IntType),
		cel.Variable("prev", cel.IntType),
		cel.Variable("curr", cel.IntType),
		cel.Variable("skip_code", cel.StringType),
		cel.Variable("trouble_code", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Engine{env: env}, nil
}

// LoadRule compiles and appends one rule.
func (e *Engine) LoadRule(r Rule) error {
	compiled, err := e.compile(r)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = append(e.compiled, compiled)
	return nil
}

// LoadRules compiles and appends all enabled rules.
func (e *Engine) LoadRules(rules []Rule) error {
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		if err := e.LoadRule(r); err != nil {
			return err
		}
	}
	return nil
}

// ReloadRules replaces the loaded rule set.
func (e *Engine) ReloadRules(rules []Rule) error {
	compiled := make([]*compiledRule, 0, len(rules))
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		c, err := e.compile(r)
		if err != nil {
			return err
		}
		compiled = append(compiled, c)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = compiled
	return nil
}

// LoadedRules returns the currently loaded rules in order.
func (e *Engine) LoadedRules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rules := make([]Rule, 0, len(e.compiled))
	for _, c := range e.compiled {
		rules = append(rules, c.rule)
	}
	return rules
}

// FlagAnomaly returns the display flags for a list row.
func (e *Engine) FlagAnomaly(a *domain.Anomaly) []string {
	tags := make([]string, len(a.Status))
	copy(tags, a.Status)

	return e.evaluate(map[string]any{
		"nomen":        a.Nomen,
		"name":         a.Name,
		"usage":        a.Usage,
		"tags":         tags,
		"delta":        a.Usage,
		"prev":         0,
		"curr":         0,
		"skip_code":    "",
		"trouble_code": "",
	})
}

// FlagEntry returns the display flags for one history row.
func (e *Engine) FlagEntry(entry *domain.ReadingHistoryEntry) []string {
	delta := entry.UsageDelta()
	return e.evaluate(map[string]any{
		"nomen":        "",
		"name":         "",
		"usage":        delta,
		"tags":         []string{},
		"delta":        delta,
		"prev":         entry.PreviousReading,
		"curr":         entry.CurrentReading,
		"skip_code":    entry.SkipCode,
		"trouble_code": entry.TroubleCode,
	})
}

// evaluate runs every loaded rule against one activation. A rule that
// errors is skipped; a broken display cue must not break the review.
func (e *Engine) evaluate(activation map[string]any) []string {
	e.mu.RLock()
	compiled := e.compiled
	e.mu.RUnlock()

	var flags []string
	for _, c := range compiled {
		out, _, err := c.program.Eval(activation)
		if err != nil {
			continue
		}
		if b, ok := out.(types.Bool); ok && bool(b) {
			flags = append(flags, c.rule.Flag)
		}
	}
	return flags
}

func (e *Engine) compile(r Rule) (*compiledRule, error) {
	if r.Flag == "" {
		return nil, fmt.Errorf("rule %s: flag name is required", r.ID)
	}

	ast, issues := e.env.Compile(r.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", r.ID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", r.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", r.ID, err)
	}
	return &compiledRule{rule: r, program: program}, nil
}
