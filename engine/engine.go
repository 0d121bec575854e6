// Package engine orchestrates test execution: plan loading, channel
// dispatch, outcome classification and report generation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbenzarti/botbench/analysis"
	"github.com/kbenzarti/botbench/logger"
	"github.com/kbenzarti/botbench/model"
	"github.com/kbenzarti/botbench/report"
	"github.com/kbenzarti/botbench/screenshot"
	"github.com/kbenzarti/botbench/suite"
	"github.com/kbenzarti/botbench/telegram"
	"github.com/kbenzarti/botbench/templates"
	"github.com/kbenzarti/botbench/ui"
)

// ErrTestsFailed is returned by Run when the suite completed but at least
// one test did not pass. The CLI maps it to a non-zero exit code.
var ErrTestsFailed = errors.New("one or more tests did not pass")

const (
	defaultTestDelay     = 2 * time.Second
	defaultStressWorkers = 3
)

// Options carries the CLI-level run configuration.
type Options struct {
	PlanFile    string
	Categories  []string
	OutputPath  string
	ReportTypes []string
	FailFast    bool
}

// Engine holds the wired components for one run.
type Engine struct {
	cfg     model.Config
	client  *telegram.Client
	driver  *ui.Driver
	shots   *screenshot.Manager
	tmplCtx map[string]string
}

// Run executes the plan end to end and writes the requested reports.
func Run(ctx context.Context, cfg model.Config, opts Options) error {
	plan, err := loadPlan(opts.PlanFile)
	if err != nil {
		return err
	}

	registry := model.NewRegistry(plan.Cases)
	cases := registry.Select(model.CategoryFilter(opts.Categories))
	if len(cases) == 0 {
		return fmt.Errorf("no test cases match categories %v", opts.Categories)
	}

	logger.Logger.Info("Starting test run",
		"plan", plan.Name, "cases", len(cases), "categories", opts.Categories)

	eng, err := newEngine(ctx, cfg, plan, cases)
	if err != nil {
		return err
	}
	defer eng.close()

	results := eng.runCases(ctx, plan, cases, opts.FailFast)
	metrics := model.Calculate(results)

	PrintTestSummary(results, metrics)

	if err := GenerateReports(ctx, results, cfg, opts); err != nil {
		return err
	}

	if model.HasFailures(results) {
		return ErrTestsFailed
	}
	return nil
}

func loadPlan(planFile string) (*model.Plan, error) {
	if planFile == "" {
		logger.Logger.Info("No plan file given, using built-in suite")
		return suite.Builtin()
	}

	if _, err := os.Stat(planFile); err != nil {
		return nil, fmt.Errorf("plan file not accessible: %w", err)
	}

	return model.ParsePlan(planFile)
}

func newEngine(ctx context.Context, cfg model.Config, plan *model.Plan, cases []model.TestCase) (*Engine, error) {
	templates.NewTemplateEngine()

	client, err := telegram.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	me, err := client.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("bot token verification failed: %w", err)
	}
	logger.Logger.Info("Connected to bot", "username", me.Username, "id", me.ID)

	shots, err := screenshot.NewManager(cfg.ScreenshotsDir)
	if err != nil {
		return nil, err
	}

	eng := &Engine{
		cfg:     cfg,
		client:  client,
		shots:   shots,
		tmplCtx: CreateStaticTemplateContext(plan),
	}

	if cfg.UITests && needsUI(cases) {
		driver, err := ui.NewDriver(cfg)
		if err != nil {
			logger.Logger.Warn("UI driver unavailable, UI cases will error", "error", err)
		} else {
			eng.driver = driver
			if err := driver.OpenChat(); err != nil {
				logger.Logger.Warn("Could not open bot chat in UI", "error", err)
			}
		}
	}

	return eng, nil
}

func needsUI(cases []model.TestCase) bool {
	for _, tc := range cases {
		if tc.Channel == model.ChannelUI || tc.Channel == model.ChannelBoth {
			return true
		}
	}
	return false
}

func (e *Engine) close() {
	if e.driver != nil {
		e.driver.Close()
	}
}

// CreateStaticTemplateContext builds the variable context available to test
// message templates: the environment, run metadata and the plan variables.
func CreateStaticTemplateContext(plan *model.Plan) map[string]string {
	contextMap := model.GetAllEnv()
	contextMap["RUN_ID"] = uuid.New().String()
	contextMap["TEMP_DIR"] = os.TempDir()

	for name, value := range plan.Variables {
		contextMap[name] = model.RenderTemplate(value, contextMap)
	}

	return contextMap
}

// runCases drives the filtered cases sequentially. A panic-free contract:
// every case produces at least one TestResult, whatever goes wrong.
func (e *Engine) runCases(ctx context.Context, plan *model.Plan, cases []model.TestCase, failFast bool) []model.TestResult {
	testDelay := ParseDelay(plan.Settings.TestDelay, defaultTestDelay)
	timeout := ParseTimeout(plan.Settings.Timeout, e.cfg.Timeout)

	var results []model.TestResult
	for i, tc := range cases {
		if delay := ParseDelay(tc.StartDelay, 0); delay > 0 {
			logger.Logger.Debug("Delaying test start", "test", tc.Name, "delay", delay)
			time.Sleep(delay)
		}

		if tc.Workers > 1 {
			results = append(results, e.runStressCase(ctx, tc, timeout)...)
		} else {
			results = append(results, e.runCase(ctx, tc, timeout))
		}

		last := results[len(results)-1]
		logger.Logger.Info("Test finished",
			"test", last.Name, "status", last.Status, "duration", fmt.Sprintf("%.2fs", last.ExecutionTime))

		if failFast && last.Status != model.StatusPassed {
			logger.Logger.Warn("Stopping run after first failure", "test", last.Name)
			break
		}

		if i < len(cases)-1 && testDelay > 0 {
			time.Sleep(testDelay)
		}
	}

	return results
}

// runCase executes one test case on its channel and classifies the outcome.
// Errors never propagate: they become ERROR results.
func (e *Engine) runCase(ctx context.Context, tc model.TestCase, timeout time.Duration) model.TestResult {
	message := model.RenderTemplate(tc.Message, e.tmplCtx)
	channel := tc.Channel
	if channel == "" {
		channel = model.ChannelAPI
	}

	start := time.Now()
	result := model.TestResult{
		Name:             tc.Name,
		Channel:          channel,
		ExpectedKeywords: tc.ExpectedKeywords,
		Timestamp:        start,
	}

	var response string
	var raw []byte
	var err error

	switch channel {
	case model.ChannelUI:
		response, err = e.runUIExchange(message, timeout)
	case model.ChannelBoth:
		// Keywords are validated against the API reply only; the UI leg
		// just has to complete the exchange.
		response, raw, err = e.runAPIExchange(ctx, message, timeout)
		if err == nil {
			_, uiErr := e.runUIExchange(message, timeout)
			if uiErr != nil {
				err = uiErr
			}
		}
	default:
		response, raw, err = e.runAPIExchange(ctx, message, timeout)
	}

	result.ExecutionTime = time.Since(start).Seconds()
	result.ActualResponse = response

	switch {
	case err != nil:
		result.Status = model.StatusError
		result.ErrorMessage = err.Error()
	case !model.MatchKeywords(response, tc.ExpectedKeywords):
		result.Status = model.StatusFailed
		result.ErrorMessage = model.KeywordMismatch(tc.ExpectedKeywords)
	case tc.ResponsePath != "":
		ok, pathErr := model.CheckResponsePath(raw, tc.ResponsePath, tc.ResponseEquals)
		if pathErr != nil {
			result.Status = model.StatusError
			result.ErrorMessage = pathErr.Error()
		} else if !ok {
			result.Status = model.StatusFailed
			result.ErrorMessage = fmt.Sprintf("response path %s != %q", tc.ResponsePath, tc.ResponseEquals)
		} else {
			result.Status = model.StatusPassed
		}
	default:
		result.Status = model.StatusPassed
	}

	e.attachScreenshot(&result, channel)
	return result
}

// runAPIExchange sends the message through the Bot API and waits for the
// bot's reply. Commands are messages too; the API does not distinguish.
func (e *Engine) runAPIExchange(ctx context.Context, message string, timeout time.Duration) (string, []byte, error) {
	sent, err := e.client.SendMessage(ctx, message)
	if err != nil {
		return "", nil, err
	}

	reply, raw, err := e.client.WaitForReply(ctx, sent.MessageID, timeout)
	if err != nil {
		return "", nil, err
	}

	return reply.Text, raw, nil
}

func (e *Engine) runUIExchange(message string, timeout time.Duration) (string, error) {
	if e.driver == nil {
		return "", fmt.Errorf("UI driver not available (set RUN_UI_TESTS=true and install browsers)")
	}

	if err := e.driver.SendText(message); err != nil {
		return "", err
	}

	return e.driver.WaitForResponse(message, timeout)
}

// runStressCase fans the same message out to a fixed worker pool. Each
// worker appends to its own slice; slices are merged only after the join, so
// no result is written concurrently.
func (e *Engine) runStressCase(ctx context.Context, tc model.TestCase, timeout time.Duration) []model.TestResult {
	workers := tc.Workers
	if workers <= 0 {
		workers = defaultStressWorkers
	}

	logger.Logger.Info("Running stress case", "test", tc.Name, "workers", workers)

	perWorker := make([][]model.TestResult, workers)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			workerCase := tc
			workerCase.Name = fmt.Sprintf("%s_worker_%d", tc.Name, w+1)
			workerCase.Workers = 0
			// UI drivers are single-session; stress always goes over the API
			workerCase.Channel = model.ChannelAPI
			perWorker[w] = append(perWorker[w], e.runCase(ctx, workerCase, timeout))
		}(w)
	}
	wg.Wait()

	merged := make([]model.TestResult, 0, workers)
	for _, rs := range perWorker {
		merged = append(merged, rs...)
	}
	return merged
}

// attachScreenshot captures failure evidence. UI-channel cases also get a
// capture on success.
func (e *Engine) attachScreenshot(result *model.TestResult, channel model.Channel) {
	onUI := channel == model.ChannelUI || channel == model.ChannelBoth
	if result.Status == model.StatusPassed && !onUI {
		return
	}

	var capturer screenshot.Capturer
	if onUI && e.driver != nil {
		capturer = e.driver
	}

	path, err := e.shots.Capture(capturer, result.Name, result.Status)
	if err != nil {
		logger.Logger.Warn("Screenshot capture failed", "test", result.Name, "error", err)
		return
	}
	result.ScreenshotPath = path
}

// ============================================================================
// SETTINGS PARSING
// ============================================================================

// ParseTimeout parses a duration string, falling back with a warning.
func ParseTimeout(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	dur, err := time.ParseDuration(value)
	if err != nil || dur <= 0 {
		logger.Logger.Warn("Invalid timeout setting, using default", "value", value, "default", fallback)
		return fallback
	}
	return dur
}

// ParseDelay parses a delay string, falling back with a warning.
func ParseDelay(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	dur, err := time.ParseDuration(value)
	if err != nil || dur < 0 {
		logger.Logger.Warn("Invalid delay setting, using default", "value", value, "default", fallback)
		return fallback
	}
	return dur
}

// ============================================================================
// REPORTS
// ============================================================================

// GenerateReports writes every requested report format. An unwritable
// output location is a hard error.
func GenerateReports(ctx context.Context, results []model.TestResult, cfg model.Config, opts Options) error {
	outputPath := opts.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(cfg.ReportsDir, "report")
	}

	if dir := filepath.Dir(outputPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create reports directory: %w", err)
		}
	}

	reportTypes := opts.ReportTypes
	if len(reportTypes) == 0 {
		reportTypes = []string{"html", "json"}
	}

	aiSummary := generateAISummary(ctx, results)

	for _, reportType := range reportTypes {
		var err error
		switch strings.ToLower(strings.TrimSpace(reportType)) {
		case "html":
			err = writeHTMLReport(results, cfg, outputPath+".html", aiSummary)
		case "json":
			err = writeJSONReport(results, cfg, outputPath+".json")
		case "md", "markdown":
			err = writeFileReport(outputPath+".md", []byte(report.GenerateMarkdownReport(results, cfg.BotUsername)))
		default:
			logger.Logger.Warn("Unknown report type, skipping", "type", reportType)
			continue
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func generateAISummary(ctx context.Context, results []model.TestResult) string {
	judge, err := analysis.NewJudge()
	if err != nil {
		logger.Logger.Warn("AI summary judge misconfigured", "error", err)
		return ""
	}
	if judge == nil {
		return ""
	}

	logger.Logger.Info("Generating AI summary")
	summary := analysis.GenerateSummary(ctx, judge, results)
	if !summary.Success {
		logger.Logger.Warn("AI summary unavailable", "error", summary.Error)
		return ""
	}
	return summary.Analysis
}

func writeHTMLReport(results []model.TestResult, cfg model.Config, path, aiSummary string) error {
	gen, err := report.NewGenerator()
	if err != nil {
		return err
	}

	html, err := gen.GenerateHTMLWithAnalysis(results, cfg.BotUsername, aiSummary)
	if err != nil {
		return err
	}

	return writeFileReport(path, []byte(html))
}

func writeJSONReport(results []model.TestResult, cfg model.Config, path string) error {
	data, err := report.GenerateJSONReport(results, cfg.BotUsername)
	if err != nil {
		return err
	}
	return writeFileReport(path, data)
}

func writeFileReport(path string, data []byte) error {
	if err := os.WriteFile(path, data, logger.FilePermission); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}

	// Verify the file actually landed on disk
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("report file missing after write %s: %w", path, err)
	}

	logger.Logger.Info("Report written", "path", path)
	return nil
}

// ============================================================================
// CONSOLE SUMMARY
// ============================================================================

// PrintTestSummary logs the per-test outcomes and aggregate metrics.
func PrintTestSummary(results []model.TestResult, metrics model.Metrics) {
	logger.Logger.Info(strings.Repeat("=", 80))
	logger.Logger.Info("TEST RUN SUMMARY")
	logger.Logger.Info(strings.Repeat("=", 80))

	for _, r := range results {
		switch r.Status {
		case model.StatusPassed:
			logger.Logger.Info("PASSED", "test", r.Name, "duration", fmt.Sprintf("%.2fs", r.ExecutionTime))
		case model.StatusFailed:
			logger.Logger.Warn("FAILED", "test", r.Name, "reason", r.ErrorMessage)
		case model.StatusError:
			logger.Logger.Error("ERROR", "test", r.Name, "reason", r.ErrorMessage)
		}
	}

	logger.Logger.Info(strings.Repeat("-", 80))
	logger.Logger.Info("Totals",
		"total", metrics.Total,
		"passed", metrics.Passed,
		"failed", metrics.Failed,
		"errors", metrics.Errors,
		"success_rate", fmt.Sprintf("%.2f%%", metrics.SuccessRate),
		"avg_response_time", fmt.Sprintf("%.2fs", metrics.AverageResponseTime))
	logger.Logger.Info(strings.Repeat("=", 80))
}
