package tests

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbenzarti/botbench/model"
	"github.com/kbenzarti/botbench/suite"
)

func TestBuiltinPlanParses(t *testing.T) {
	plan, err := suite.Builtin()
	require.NoError(t, err)

	assert.NotEmpty(t, plan.Name)
	assert.NotEmpty(t, plan.Cases)
}

func TestBuiltinPlanCategories(t *testing.T) {
	plan, err := suite.Builtin()
	require.NoError(t, err)

	registry := model.NewRegistry(plan.Cases)
	for _, category := range []string{
		"smoke", "api", "ui", "combined", "regression",
		"security", "edge_case", "performance", "stress", "integration",
	} {
		if len(registry.ByCategory(category)) == 0 {
			t.Errorf("built-in plan has no cases in category %q", category)
		}
	}
}

func TestBuiltinPlanStressCase(t *testing.T) {
	plan, err := suite.Builtin()
	require.NoError(t, err)

	registry := model.NewRegistry(plan.Cases)
	stress := registry.ByCategory("stress")
	require.NotEmpty(t, stress)
	assert.Equal(t, 3, stress[0].Workers)
}

func TestBuiltinPlanSecurityPayloads(t *testing.T) {
	plan, err := suite.Builtin()
	require.NoError(t, err)

	registry := model.NewRegistry(plan.Cases)
	security := registry.ByCategory("security")
	require.NotEmpty(t, security)

	foundXSS := false
	for _, tc := range security {
		if tc.Message == "<script>alert('xss')</script>" {
			foundXSS = true
		}
	}
	assert.True(t, foundXSS, "XSS probe missing from security cases")
}

func TestBuiltinPlanUICasesMarked(t *testing.T) {
	plan, err := suite.Builtin()
	require.NoError(t, err)

	registry := model.NewRegistry(plan.Cases)
	for _, tc := range registry.ByCategory("ui") {
		assert.Equal(t, model.ChannelUI, tc.Channel, "case %s", tc.Name)
	}
}

func TestBuiltinPlanUniqueNames(t *testing.T) {
	plan, err := suite.Builtin()
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, tc := range plan.Cases {
		if seen[tc.Name] {
			t.Errorf("duplicate case name %q", tc.Name)
		}
		seen[tc.Name] = true
	}
}
