// Package analysis generates an optional LLM-written executive summary of a
// finished test run, embedded into the HTML report.
package analysis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/kbenzarti/botbench/logger"
	"github.com/kbenzarti/botbench/model"
)

const summaryTimeout = 2 * time.Minute

// SummaryResult captures the outcome of summary generation. A failed
// generation never fails the run; the report is simply produced without it.
type SummaryResult struct {
	Success  bool   `json:"success"`
	Analysis string `json:"analysis,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NewJudge builds the summarizing LLM from the environment. Returns nil
// without error when no judge is configured (AI_SUMMARY_TOKEN unset).
func NewJudge() (llms.Model, error) {
	token := os.Getenv("AI_SUMMARY_TOKEN")
	if token == "" {
		return nil, nil
	}

	modelName := os.Getenv("AI_SUMMARY_MODEL")
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}

	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(modelName),
	}
	if baseURL := os.Getenv("AI_SUMMARY_BASE_URL"); baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
		logger.Logger.Debug("Using custom base URL for summary judge", "url", baseURL)
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create summary judge: %w", err)
	}

	return llm, nil
}

// GenerateSummary asks the judge LLM for a short analysis of the run.
func GenerateSummary(ctx context.Context, judge llms.Model, results []model.TestResult) SummaryResult {
	if judge == nil {
		return SummaryResult{Success: false, Error: "no judge configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, summaryTimeout)
	defer cancel()

	prompt := buildSummaryPrompt(results)
	analysisText, err := llms.GenerateFromSinglePrompt(ctx, judge, prompt)
	if err != nil {
		logger.Logger.Warn("AI summary generation failed", "error", err)
		return SummaryResult{Success: false, Error: err.Error()}
	}

	return SummaryResult{Success: true, Analysis: strings.TrimSpace(analysisText)}
}

func buildSummaryPrompt(results []model.TestResult) string {
	metrics := model.Calculate(results)

	var sb strings.Builder
	sb.WriteString("You are reviewing the results of an automated Telegram bot test run.\n")
	sb.WriteString("Write a concise executive summary (max 200 words): overall health, ")
	sb.WriteString("notable failures or errors, and suggested next steps. Plain text only.\n\n")
	sb.WriteString(fmt.Sprintf("Run statistics: %d total, %d passed, %d failed, %d errors, %.1f%% success rate, %.2fs average response time.\n\n",
		metrics.Total, metrics.Passed, metrics.Failed, metrics.Errors,
		metrics.SuccessRate, metrics.AverageResponseTime))

	for _, r := range results {
		if r.Status == model.StatusPassed {
			continue
		}
		detail := r.ErrorMessage
		if detail == "" {
			detail = truncate(r.ActualResponse, 200)
		}
		sb.WriteString(fmt.Sprintf("- %s [%s]: %s\n", r.Name, r.Status, detail))
	}

	return sb.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
