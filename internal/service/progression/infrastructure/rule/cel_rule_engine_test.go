// internal/service/progression/infrastructure/rule/cel_rule_engine_test.go
package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcadia/internal/service/progression/domain"
)

func TestCELRuleEngine_Evaluate(t *testing.T) {
	engine, err := NewCELRuleEngineAdapter()
	require.NoError(t, err)

	fact := domain.Fact{Level: 7, Experience: 300, Coins: 12000, Rarity: "epic"}

	tests := []struct {
		rule string
		want bool
	}{
		{"level >= 5", true},
		{"level >= 10", false},
		{"coins >= 12000", true},
		{"level >= 5 && coins >= 20000", false},
		{`rarity == "epic"`, true},
		{"experience > 0 || level > 100", true},
	}
	for _, tt := range tests {
		got, err := engine.Evaluate(tt.rule, fact)
		require.NoError(t, err, "rule %q", tt.rule)
		assert.Equal(t, tt.want, got, "rule %q", tt.rule)
	}
}

func TestCELRuleEngine_InvalidRule(t *testing.T) {
	engine, err := NewCELRuleEngineAdapter()
	require.NoError(t, err)

	_, err = engine.Evaluate("level >==> 5", domain.Fact{Level: 1})
	assert.Error(t, err)

	// 编译通过但结果不是布尔值
	_, err = engine.Evaluate("level + 1", domain.Fact{Level: 1})
	assert.Error(t, err)
}

func TestCELRuleEngine_CachesPrograms(t *testing.T) {
	engine, err := NewCELRuleEngineAdapter()
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		ok, err := engine.Evaluate("level >= 5", domain.Fact{Level: 6})
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Len(t, engine.programs, 1)
}
