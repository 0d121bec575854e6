package tests

import (
	"io"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbenzarti/botbench/logger"
	"github.com/kbenzarti/botbench/model"
)

func TestMain(m *testing.M) {
	logger.SetupLogger(io.Discard, false)
	os.Exit(m.Run())
}

func TestCalculateEmptyResults(t *testing.T) {
	metrics := model.Calculate(nil)

	assert.Equal(t, 0, metrics.Total)
	assert.Equal(t, 0.0, metrics.SuccessRate)
	assert.Equal(t, 0.0, metrics.AverageResponseTime)
}

func TestCalculateMixedResults(t *testing.T) {
	results := []model.TestResult{
		{Name: "a", Status: model.StatusPassed, ExecutionTime: 0.1},
		{Name: "b", Status: model.StatusFailed, ExecutionTime: 0.2},
		{Name: "c", Status: model.StatusError, ExecutionTime: 0.3},
	}

	metrics := model.Calculate(results)

	assert.Equal(t, 3, metrics.Total)
	assert.Equal(t, 1, metrics.Passed)
	assert.Equal(t, 1, metrics.Failed)
	assert.Equal(t, 1, metrics.Errors)
	assert.InDelta(t, 33.33, metrics.SuccessRate, 0.01)
	assert.InDelta(t, 0.2, metrics.AverageResponseTime, 1e-9)
}

func TestCalculateOrderIndependent(t *testing.T) {
	a := []model.TestResult{
		{Status: model.StatusPassed, ExecutionTime: 1.5},
		{Status: model.StatusFailed, ExecutionTime: 0.5},
		{Status: model.StatusPassed, ExecutionTime: 2.0},
	}
	b := []model.TestResult{a[2], a[0], a[1]}

	assert.Equal(t, model.Calculate(a), model.Calculate(b))
}

func TestCalculateAllPassed(t *testing.T) {
	results := []model.TestResult{
		{Status: model.StatusPassed, ExecutionTime: 1},
		{Status: model.StatusPassed, ExecutionTime: 3},
	}

	metrics := model.Calculate(results)

	if metrics.SuccessRate != 100 {
		t.Errorf("expected 100%% success rate, got %f", metrics.SuccessRate)
	}
	if math.Abs(metrics.AverageResponseTime-2.0) > 1e-9 {
		t.Errorf("expected avg 2.0s, got %f", metrics.AverageResponseTime)
	}
}

func TestMatchKeywordsAnySemantics(t *testing.T) {
	cases := []struct {
		name     string
		response string
		keywords []string
		want     bool
	}{
		{"single match", "Hello there!", []string{"hello"}, true},
		{"case insensitive", "WELCOME aboard", []string{"welcome"}, true},
		{"any of many", "I can help you", []string{"menu", "help", "start"}, true},
		{"no match", "Goodbye", []string{"hello", "hi"}, false},
		{"substring match", "unhelpful", []string{"help"}, true},
		{"empty keywords nonempty response", "anything", nil, true},
		{"empty keywords empty response", "", nil, false},
		{"empty keywords whitespace response", "   ", nil, false},
		{"empty response with keywords", "", []string{"hello"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := model.MatchKeywords(tc.response, tc.keywords)
			if got != tc.want {
				t.Errorf("MatchKeywords(%q, %v) = %v, want %v", tc.response, tc.keywords, got, tc.want)
			}
		})
	}
}

func TestHasFailures(t *testing.T) {
	assert.False(t, model.HasFailures([]model.TestResult{{Status: model.StatusPassed}}))
	assert.True(t, model.HasFailures([]model.TestResult{
		{Status: model.StatusPassed},
		{Status: model.StatusError},
	}))
	assert.False(t, model.HasFailures(nil))
}

func TestCheckResponsePath(t *testing.T) {
	raw := []byte(`{"message_id": 42, "text": "pong", "from": {"is_bot": true}}`)

	ok, err := model.CheckResponsePath(raw, "$.text", "pong")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = model.CheckResponsePath(raw, "$.message_id", "42")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = model.CheckResponsePath(raw, "$.from.is_bot", "true")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = model.CheckResponsePath(raw, "$.text", "ping")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = model.CheckResponsePath(nil, "$.text", "pong")
	assert.Error(t, err)
}

func TestParsePlanFromString(t *testing.T) {
	definition := `
name: sample
variables:
  GREETING: Hello
settings:
  timeout: 10s
cases:
  - name: greet
    message: "{{GREETING}}"
    expected_keywords: ["hi", "hello"]
    categories: [smoke]
  - name: stress
    message: "load"
    workers: 3
    categories: [stress]
`

	plan, err := model.ParsePlanFromString(definition)
	require.NoError(t, err)

	assert.Equal(t, "sample", plan.Name)
	assert.Equal(t, "Hello", plan.Variables["GREETING"])
	assert.Equal(t, "10s", plan.Settings.Timeout)
	require.Len(t, plan.Cases, 2)
	assert.Equal(t, []string{"hi", "hello"}, plan.Cases[0].ExpectedKeywords)
	assert.Equal(t, 3, plan.Cases[1].Workers)
}

func TestParsePlanInvalidYAML(t *testing.T) {
	_, err := model.ParsePlanFromString("cases: [unclosed")
	if err == nil {
		t.Fatal("expected parse error for invalid YAML")
	}
}

func TestRegistryCategoryFilter(t *testing.T) {
	registry := model.NewRegistry([]model.TestCase{
		{Name: "a", Categories: []string{"smoke", "api"}},
		{Name: "b", Categories: []string{"security"}},
		{Name: "c", Categories: []string{"api"}},
	})

	all := registry.Select(model.CategoryFilter(nil))
	assert.Len(t, all, 3)

	api := registry.Select(model.CategoryFilter([]string{"api"}))
	require.Len(t, api, 2)
	assert.Equal(t, "a", api[0].Name)
	assert.Equal(t, "c", api[1].Name)

	multi := registry.Select(model.CategoryFilter([]string{"smoke", "security"}))
	assert.Len(t, multi, 2)

	none := registry.Select(model.CategoryFilter([]string{"missing"}))
	assert.Empty(t, none)
}

func TestRegistryDefaultsChannel(t *testing.T) {
	registry := model.NewRegistry([]model.TestCase{{Name: "a"}})

	cases := registry.All()
	require.Len(t, cases, 1)
	assert.Equal(t, model.ChannelAPI, cases[0].Channel)
}

func TestRenderTemplateWithVariables(t *testing.T) {
	out := model.RenderTemplate("Hello {{NAME}}", map[string]string{"NAME": "bot"})
	assert.Equal(t, "Hello bot", out)
}

func TestRenderTemplateInvalidReturnsInput(t *testing.T) {
	// Handlebars-looking payloads that fail to parse must come back verbatim
	input := "{{7*7}}"
	out := model.RenderTemplate(input, nil)
	assert.Equal(t, input, out)
}
