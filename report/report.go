// Package report provides HTML, JSON and Markdown report generation.
package report

import (
	"bytes"
	"embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"strings"
	"time"

	"github.com/kbenzarti/botbench/logger"
	"github.com/kbenzarti/botbench/model"
	"github.com/kbenzarti/botbench/version"
)

//go:embed templates/*.html templates/*.css
var templateFS embed.FS

// ReportData represents the data structure passed to the HTML template
type ReportData struct {
	CSS         template.CSS
	Version     string
	GeneratedAt string
	BotUsername string
	Summary     SummaryData
	Results     []TestResultView
	// AI Summary - LLM-generated executive summary (optional)
	AISummary    string
	HasAISummary bool
}

// SummaryData holds overall run statistics for the stat cards
type SummaryData struct {
	Total            int
	Passed           int
	Failed           int
	Errors           int
	SuccessRate      float64
	SuccessRateClass string
	AvgResponseTime  float64
}

// TestResultView is a view model for a single test row
type TestResultView struct {
	Name            string
	Status          string
	StatusClass     string
	Channel         string
	DurationSeconds float64
	Timestamp       string
	Keywords        string
	Response        string
	ErrorMessage    string
	// Screenshot inlined as a data URI so the report is a single file
	Screenshot    template.URL
	HasScreenshot bool
}

// Generator handles HTML report generation
type Generator struct {
	tmpl *template.Template
}

// NewGenerator creates a new report generator with embedded templates
func NewGenerator() (*Generator, error) {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"truncate": func(s string, max int) string {
			if len(s) <= max {
				return s
			}
			return s[:max-3] + "..."
		},
	}

	tmpl, err := template.New("report.html").Funcs(funcMap).ParseFS(templateFS, "templates/report.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	return &Generator{tmpl: tmpl}, nil
}

// GenerateHTML generates an HTML report from test results
func (g *Generator) GenerateHTML(results []model.TestResult, botUsername string) (string, error) {
	return g.GenerateHTMLWithAnalysis(results, botUsername, "")
}

// GenerateHTMLWithAnalysis generates an HTML report with an optional
// LLM-generated executive summary.
func (g *Generator) GenerateHTMLWithAnalysis(results []model.TestResult, botUsername, analysis string) (string, error) {
	data := buildReportData(results, botUsername)

	if analysis != "" {
		data.AISummary = analysis
		data.HasAISummary = true
	}

	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// GenerateHTMLToFile generates an HTML report and writes it to a file
func (g *Generator) GenerateHTMLToFile(results []model.TestResult, botUsername, outputPath string) error {
	html, err := g.GenerateHTML(results, botUsername)
	if err != nil {
		return err
	}

	if err := os.WriteFile(outputPath, []byte(html), logger.FilePermission); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}

	return nil
}

// buildReportData transforms TestResults into the template view model
func buildReportData(results []model.TestResult, botUsername string) ReportData {
	metrics := model.Calculate(results)

	views := make([]TestResultView, 0, len(results))
	for _, r := range results {
		views = append(views, buildResultView(r))
	}

	// Load CSS from embedded file
	cssBytes, err := templateFS.ReadFile("templates/report.css")
	if err != nil {
		cssBytes = []byte("/* CSS load error */")
	}

	return ReportData{
		CSS:         template.CSS(cssBytes),
		Version:     version.Version,
		GeneratedAt: time.Now().Format(time.RFC3339),
		BotUsername: botUsername,
		Summary: SummaryData{
			Total:            metrics.Total,
			Passed:           metrics.Passed,
			Failed:           metrics.Failed,
			Errors:           metrics.Errors,
			SuccessRate:      metrics.SuccessRate,
			SuccessRateClass: getSuccessRateClass(metrics.SuccessRate),
			AvgResponseTime:  metrics.AverageResponseTime,
		},
		Results: views,
	}
}

func buildResultView(r model.TestResult) TestResultView {
	view := TestResultView{
		Name:            r.Name,
		Status:          string(r.Status),
		StatusClass:     getStatusClass(r.Status),
		Channel:         string(r.Channel),
		DurationSeconds: r.ExecutionTime,
		Timestamp:       r.Timestamp.Format("2006-01-02 15:04:05"),
		Keywords:        strings.Join(r.ExpectedKeywords, ", "),
		Response:        r.ActualResponse,
		ErrorMessage:    r.ErrorMessage,
	}

	if r.ScreenshotPath != "" {
		if data, err := os.ReadFile(r.ScreenshotPath); err == nil {
			encoded := base64.StdEncoding.EncodeToString(data)
			view.Screenshot = template.URL("data:image/png;base64," + encoded)
			view.HasScreenshot = true
		}
	}

	return view
}

func getStatusClass(status model.Status) string {
	switch status {
	case model.StatusPassed:
		return "status-passed"
	case model.StatusFailed:
		return "status-failed"
	default:
		return "status-error"
	}
}

func getSuccessRateClass(rate float64) string {
	switch {
	case rate >= 90:
		return "rate-high"
	case rate >= 50:
		return "rate-medium"
	default:
		return "rate-low"
	}
}

// ============================================================================
// JSON REPORT
// ============================================================================

// GenerateJSONReport builds the JSON report document: run metadata followed
// by the full result list.
func GenerateJSONReport(results []model.TestResult, botUsername string) ([]byte, error) {
	metrics := model.Calculate(results)

	doc := map[string]interface{}{
		"report_metadata": map[string]interface{}{
			"generated_at":           time.Now().Format(time.RFC3339),
			"framework_version":      version.Version,
			"bot_username":           botUsername,
			"total_tests":            metrics.Total,
			"passed":                 metrics.Passed,
			"failed":                 metrics.Failed,
			"errors":                 metrics.Errors,
			"success_rate":           metrics.SuccessRate,
			"average_execution_time": metrics.AverageResponseTime,
		},
		"test_results": results,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON report: %w", err)
	}

	return data, nil
}

// LoadResultsFromJSON loads test results back from a JSON report file
func LoadResultsFromJSON(jsonPath string) ([]model.TestResult, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON file: %w", err)
	}

	var reportData struct {
		TestResults []model.TestResult `json:"test_results"`
	}

	if err := json.Unmarshal(data, &reportData); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if len(reportData.TestResults) == 0 {
		return nil, fmt.Errorf("no test results found in JSON file")
	}

	return reportData.TestResults, nil
}

// ============================================================================
// MARKDOWN REPORT
// ============================================================================

// GenerateMarkdownReport renders a compact Markdown summary of the run.
func GenerateMarkdownReport(results []model.TestResult, botUsername string) string {
	metrics := model.Calculate(results)

	var sb strings.Builder
	sb.WriteString("# Bot Test Report\n\n")
	sb.WriteString(fmt.Sprintf("**Bot:** @%s  \n", strings.TrimPrefix(botUsername, "@")))
	sb.WriteString(fmt.Sprintf("**Generated:** %s  \n", time.Now().Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("**Framework:** botbench %s\n\n", version.Version))

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Total | Passed | Failed | Errors | Success Rate | Avg Time |\n")
	sb.WriteString("|-------|--------|--------|--------|--------------|----------|\n")
	sb.WriteString(fmt.Sprintf("| %d | %d | %d | %d | %.2f%% | %.2fs |\n\n",
		metrics.Total, metrics.Passed, metrics.Failed, metrics.Errors,
		metrics.SuccessRate, metrics.AverageResponseTime))

	sb.WriteString("## Results\n\n")
	sb.WriteString("| Test | Status | Time | Details |\n")
	sb.WriteString("|------|--------|------|---------|\n")
	for _, r := range results {
		details := r.ErrorMessage
		if details == "" {
			details = truncateCell(r.ActualResponse, 80)
		}
		sb.WriteString(fmt.Sprintf("| %s | %s %s | %.2fs | %s |\n",
			r.Name, statusIcon(r.Status), r.Status, r.ExecutionTime, escapeCell(details)))
	}

	return sb.String()
}

func statusIcon(status model.Status) string {
	switch status {
	case model.StatusPassed:
		return "✅"
	case model.StatusFailed:
		return "❌"
	default:
		return "⚠️"
	}
}

func truncateCell(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
