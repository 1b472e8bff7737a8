package rule

import (
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"convenience/internal/service/checkout/domain"
)

// CELRuleEngine 是 domain.RuleEngine 的 CEL 实现。
// 表达式可以使用变量 product、quantity、promotion、now，结果必须是 bool。
type CELRuleEngine struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCELRuleEngine 创建规则引擎实例
func NewCELRuleEngine() (*CELRuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("product", cel.StringType),
		cel.Variable("quantity", cel.IntType),
		cel.Variable("promotion", cel.StringType),
		cel.Variable("now", cel.TimestampType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel environment")
	}
	return &CELRuleEngine{env: env, programs: make(map[string]cel.Program)}, nil
}

// Compile 预编译表达式，加载目录时可以用来提前发现错误
func (e *CELRuleEngine) Compile(ruleDefinition string) error {
	_, err := e.program(ruleDefinition)
	return err
}

// Evaluate 实现了 domain.RuleEngine 接口
func (e *CELRuleEngine) Evaluate(ruleDefinition string, fact domain.Fact) (bool, error) {
	prg, err := e.program(ruleDefinition)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]any{
		"product":   fact.Product,
		"quantity":  int64(fact.Quantity),
		"promotion": fact.Promotion,
		"now":       fact.Now,
	})
	if err != nil {
		return false, errors.Wrapf(err, "evaluate rule %q", ruleDefinition)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("rule %q returned %T, want bool", ruleDefinition, out.Value())
	}
	return result, nil
}

func (e *CELRuleEngine) program(ruleDefinition string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[ruleDefinition]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, iss := e.env.Compile(ruleDefinition)
	if iss != nil && iss.Err() != nil {
		return nil, errors.Wrapf(iss.Err(), "compile rule %q", ruleDefinition)
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, errors.Errorf("rule %q has output type %s, want bool", ruleDefinition, out)
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "build program for rule %q", ruleDefinition)
	}

	e.mu.Lock()
	e.programs[ruleDefinition] = prg
	e.mu.Unlock()
	return prg, nil
}
