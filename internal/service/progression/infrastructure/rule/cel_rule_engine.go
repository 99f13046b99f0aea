// internal/service/progression/infrastructure/rule/cel_rule_engine.go
package rule

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"arcadia/internal/service/progression/domain"
)

// CELRuleEngineAdapter 是 domain.RuleEngine 接口的 CEL 实现。
// 目录里的资格表达式（例如 "level >= 10"）在这里编译并求值。
// 典型的适配器：把第三方表达式引擎适配到我们自己的领域接口上。
type CELRuleEngineAdapter struct {
	env *cel.Env

	// 编译结果按表达式原文缓存，目录是静态的，缓存不需要淘汰。
	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCELRuleEngineAdapter 创建一个规则引擎适配器。
// 声明的变量即 domain.Fact 的字段。
func NewCELRuleEngineAdapter() (*CELRuleEngineAdapter, error) {
	env, err := cel.NewEnv(
		cel.Variable("level", cel.IntType),
		cel.Variable("experience", cel.IntType),
		cel.Variable("coins", cel.IntType),
		cel.Variable("rarity", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &CELRuleEngineAdapter{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Evaluate 实现了 domain.RuleEngine 接口。
func (a *CELRuleEngineAdapter) Evaluate(ruleExpr string, fact domain.Fact) (bool, error) {
	program, err := a.compile(ruleExpr)
	if err != nil {
		return false, err
	}

	out, _, err := program.Eval(map[string]interface{}{
		"level":      fact.Level,
		"experience": fact.Experience,
		"coins":      fact.Coins,
		"rarity":     fact.Rarity,
	})
	if err != nil {
		return false, fmt.Errorf("rule evaluation failed: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule %q did not evaluate to a boolean (got %T)", ruleExpr, out.Value())
	}
	return result, nil
}

func (a *CELRuleEngineAdapter) compile(ruleExpr string) (cel.Program, error) {
	a.mu.RLock()
	program, ok := a.programs[ruleExpr]
	a.mu.RUnlock()
	if ok {
		return program, nil
	}

	ast, issues := a.env.Compile(ruleExpr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid rule %q: %w", ruleExpr, issues.Err())
	}
	program, err := a.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build program for rule %q: %w", ruleExpr, err)
	}

	a.mu.Lock()
	a.programs[ruleExpr] = program
	a.mu.Unlock()
	return program, nil
}
