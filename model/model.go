package model

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/aymerick/raymond"
	"github.com/life4/genesis/slices"
	"github.com/yalp/jsonpath"
	"gopkg.in/yaml.v3"
)

// ============================================================================
// HARNESS CONFIGURATION
// ============================================================================

// Config carries every external setting the harness needs. It is built once
// (from the environment and CLI flags) and threaded through each component's
// constructor so nothing reads the process environment at call sites.
type Config struct {
	BotToken       string
	BotUsername    string
	TestChatID     string
	APIBaseURL     string
	WebURL         string
	Timeout        time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	ScreenshotsDir string
	ReportsDir     string
	UITests        bool
	Headless       bool
}

const (
	DefaultAPIBaseURL     = "https://api.telegram.org"
	DefaultWebURL         = "https://web.telegram.org"
	DefaultTimeout        = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = 1 * time.Second
	DefaultScreenshotsDir = "screenshots"
	DefaultReportsDir     = "reports"
)

// ConfigFromEnv builds a Config from the recognized environment variables.
// Unset options fall back to defaults; the token/username/chat id triple is
// validated later, when the API client is actually constructed.
func ConfigFromEnv() Config {
	cfg := Config{
		BotToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		BotUsername:    os.Getenv("TELEGRAM_BOT_USERNAME"),
		TestChatID:     os.Getenv("TELEGRAM_TEST_CHAT_ID"),
		APIBaseURL:     DefaultAPIBaseURL,
		WebURL:         DefaultWebURL,
		Timeout:        DefaultTimeout,
		MaxRetries:     DefaultMaxRetries,
		RetryDelay:     DefaultRetryDelay,
		ScreenshotsDir: DefaultScreenshotsDir,
		ReportsDir:     DefaultReportsDir,
		UITests:        envBool("RUN_UI_TESTS", false),
		Headless:       envBool("HEADLESS", true),
	}

	if v := os.Getenv("TELEGRAM_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("TELEGRAM_WEB_URL"); v != "" {
		cfg.WebURL = v
	}
	if v := os.Getenv("SCREENSHOTS_DIR"); v != "" {
		cfg.ScreenshotsDir = v
	}
	if v := os.Getenv("REPORTS_DIR"); v != "" {
		cfg.ReportsDir = v
	}
	if v := os.Getenv("TEST_TIMEOUT"); v != "" {
		if dur, err := time.ParseDuration(v); err == nil && dur > 0 {
			cfg.Timeout = dur
		}
	}

	return cfg
}

func (c Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("bot token is empty (TELEGRAM_BOT_TOKEN)")
	}
	if c.BotUsername == "" {
		return fmt.Errorf("bot username is empty (TELEGRAM_BOT_USERNAME)")
	}
	if c.TestChatID == "" {
		return fmt.Errorf("test chat id is empty (TELEGRAM_TEST_CHAT_ID)")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return strings.EqualFold(v, "true") || v == "1"
}

// ============================================================================
// TEST PLAN
// ============================================================================

// Channel selects which boundary a test case exercises.
type Channel string

const (
	ChannelAPI  Channel = "api"
	ChannelUI   Channel = "ui"
	ChannelBoth Channel = "both"
)

type Settings struct {
	Verbose    bool   `yaml:"verbose"`
	Timeout    string `yaml:"timeout"`
	TestDelay  string `yaml:"test_delay"`
	MaxRetries int    `yaml:"max_retries"`
}

// TestCase describes one scripted exchange with the bot. Messages and
// expected keywords may contain Handlebars templates resolved at run time.
type TestCase struct {
	Name             string   `yaml:"name"`
	Description      string   `yaml:"description,omitempty"`
	Message          string   `yaml:"message"`
	ExpectedKeywords []string `yaml:"expected_keywords"`
	// ResponsePath is an optional JSONPath applied to the raw API response,
	// compared against ResponseEquals. Only meaningful for API-channel cases.
	ResponsePath   string   `yaml:"response_path,omitempty"`
	ResponseEquals string   `yaml:"response_equals,omitempty"`
	Categories     []string `yaml:"categories"`
	Channel        Channel  `yaml:"channel,omitempty"`
	StartDelay     string   `yaml:"start_delay,omitempty"`
	// Workers > 1 marks a stress case: the same message is sent by this many
	// concurrent workers, each producing its own result.
	Workers int `yaml:"workers,omitempty"`
}

// HasCategory reports whether the case carries the given category tag.
func (tc TestCase) HasCategory(category string) bool {
	return slices.Contains(tc.Categories, category)
}

type Plan struct {
	Name      string            `yaml:"name"`
	Variables map[string]string `yaml:"variables,omitempty"`
	Settings  Settings          `yaml:"settings"`
	Cases     []TestCase        `yaml:"cases"`
}

func ParsePlan(filename string) (*Plan, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return ParsePlanFromString(string(data))
}

func ParsePlanFromString(definition string) (*Plan, error) {
	var plan Plan
	if err := yaml.Unmarshal([]byte(definition), &plan); err != nil {
		return nil, fmt.Errorf("failed to parse YAML plan: %w", err)
	}

	return &plan, nil
}

// ============================================================================
// TEST CASE REGISTRY
// ============================================================================

// Registry keeps test cases in declaration order and indexes them by
// category tag, replacing marker-based dynamic registration with an explicit
// mapping selected by a filter predicate at run time.
type Registry struct {
	ordered    []TestCase
	categories map[string][]TestCase
}

func NewRegistry(cases []TestCase) *Registry {
	r := &Registry{
		ordered:    make([]TestCase, 0, len(cases)),
		categories: make(map[string][]TestCase),
	}
	for _, tc := range cases {
		r.Register(tc)
	}
	return r
}

func (r *Registry) Register(tc TestCase) {
	if tc.Channel == "" {
		tc.Channel = ChannelAPI
	}
	r.ordered = append(r.ordered, tc)
	for _, cat := range tc.Categories {
		r.categories[cat] = append(r.categories[cat], tc)
	}
}

// All returns every registered case in declaration order.
func (r *Registry) All() []TestCase {
	out := make([]TestCase, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// ByCategory returns the ordered cases tagged with the given category.
func (r *Registry) ByCategory(category string) []TestCase {
	cases := r.categories[category]
	out := make([]TestCase, len(cases))
	copy(out, cases)
	return out
}

// Categories returns the set of known category tags.
func (r *Registry) Categories() []string {
	names := make([]string, 0, len(r.categories))
	for name := range r.categories {
		names = append(names, name)
	}
	return names
}

// Select returns the ordered cases matching the predicate.
func (r *Registry) Select(keep func(TestCase) bool) []TestCase {
	return slices.Filter(r.ordered, keep)
}

// CategoryFilter builds a predicate that keeps cases tagged with any of the
// requested categories. An empty request keeps everything.
func CategoryFilter(categories []string) func(TestCase) bool {
	if len(categories) == 0 {
		return func(TestCase) bool { return true }
	}
	return func(tc TestCase) bool {
		for _, want := range categories {
			if tc.HasCategory(want) {
				return true
			}
		}
		return false
	}
}

// ============================================================================
// TEST RESULT
// ============================================================================

type Status string

const (
	StatusPassed Status = "PASSED"
	StatusFailed Status = "FAILED"
	StatusError  Status = "ERROR"
)

// TestResult is the outcome record for a single test-case execution.
// It is immutable after creation.
type TestResult struct {
	Name             string    `json:"test_name"`
	Status           Status    `json:"status"`
	ExecutionTime    float64   `json:"execution_time"` // seconds
	Timestamp        time.Time `json:"timestamp"`
	Channel          Channel   `json:"channel"`
	ExpectedKeywords []string  `json:"expected_keywords,omitempty"`
	ActualResponse   string    `json:"actual_response,omitempty"`
	ScreenshotPath   string    `json:"screenshot_path,omitempty"`
	ErrorMessage     string    `json:"error_message,omitempty"`
}

// ScreenshotRecord tracks one capture on disk. FilePath is unique per
// (TestName, Timestamp) pair; files are never overwritten.
type ScreenshotRecord struct {
	TestName  string    `json:"test_name"`
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
	FilePath  string    `json:"file_path"`
}

// ============================================================================
// KEYWORD MATCHING
// ============================================================================

// MatchKeywords reports whether the response satisfies the expected keyword
// set. Matching is case-insensitive substring containment with ANY-of
// semantics: one present keyword is enough. An empty keyword set only
// requires a non-empty response.
func MatchKeywords(response string, keywords []string) bool {
	if len(keywords) == 0 {
		return strings.TrimSpace(response) != ""
	}

	lowered := strings.ToLower(response)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// KeywordMismatch formats the failure message for a response that matched
// none of the expected keywords.
func KeywordMismatch(keywords []string) string {
	return fmt.Sprintf("none of expected keywords present: [%s]", strings.Join(keywords, ", "))
}

// CheckResponsePath evaluates a JSONPath against a raw JSON document and
// compares the result with the expected value using loose scalar
// normalization (so "42" matches the number 42).
func CheckResponsePath(raw []byte, path, expected string) (bool, error) {
	if len(raw) == 0 {
		return false, fmt.Errorf("empty response document")
	}

	var data interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return false, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	res, err := jsonpath.Read(data, path)
	if err != nil {
		return false, fmt.Errorf("invalid JSONPath %q: %w", path, err)
	}

	return normalize(res) == normalize(expected), nil
}

func normalize(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		return fmt.Sprint(v)
	}
}

// ============================================================================
// METRICS
// ============================================================================

// Metrics holds aggregate statistics derived from a TestResult collection.
// All counts are derived, never mutated independently of the results they
// summarize.
type Metrics struct {
	Total               int     `json:"total"`
	Passed              int     `json:"passed"`
	Failed              int     `json:"failed"`
	Errors              int     `json:"errors"`
	SuccessRate         float64 `json:"success_rate"`          // percent, 0-100
	AverageResponseTime float64 `json:"average_response_time"` // seconds
}

// Calculate derives Metrics from a result sequence. It is a pure function:
// no side effects, idempotent, and invariant under reordering of the input.
// An empty input yields all-zero metrics (no division by zero).
func Calculate(results []TestResult) Metrics {
	m := Metrics{Total: len(results)}
	if m.Total == 0 {
		return m
	}

	totalTime := 0.0
	for _, r := range results {
		switch r.Status {
		case StatusPassed:
			m.Passed++
		case StatusFailed:
			m.Failed++
		case StatusError:
			m.Errors++
		}
		totalTime += r.ExecutionTime
	}

	m.SuccessRate = float64(m.Passed) / float64(m.Total) * 100
	m.AverageResponseTime = totalTime / float64(m.Total)
	return m
}

// HasFailures reports whether any result is not PASSED.
func HasFailures(results []TestResult) bool {
	for _, r := range results {
		if r.Status != StatusPassed {
			return true
		}
	}
	return false
}

// ============================================================================
// TEMPLATE UTILITIES
// ============================================================================

func GetAllEnv() map[string]string {
	envMap := make(map[string]string)
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}
	return envMap
}

// RenderTemplate safely parses and executes a Raymond template.
// If parsing or execution fails, it returns the input string unchanged.
func RenderTemplate(input string, context map[string]string) string {
	tmpl, err := raymond.Parse(input)
	if err != nil {
		log.Printf("Failed to parse template: %v", err)
		return input
	}

	output, err := tmpl.Exec(context)
	if err != nil {
		log.Printf("Failed to execute template: %v", err)
		return input
	}

	return output
}
