package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/kbenzarti/botbench/engine"
	"github.com/kbenzarti/botbench/logger"
	"github.com/kbenzarti/botbench/model"
	"github.com/kbenzarti/botbench/ui"
	"github.com/kbenzarti/botbench/version"
)

func main() {
	planFile := flag.String("f", "", "Path to YAML test plan (built-in suite when omitted)")
	categories := flag.String("m", "", "Comma-separated category filter (e.g. smoke,security)")
	outputPath := flag.String("o", "", "Report base path without extension (default reports/report)")
	reportType := flag.String("reportType", "html,json", "Comma-separated report formats: html, json, md")
	logFile := flag.String("l", "", "Also write logs to this file")
	failFast := flag.Bool("x", false, "Stop after the first failed or errored test")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	installBrowsers := flag.Bool("install", false, "Install playwright browsers and exit")
	showVersion := flag.Bool("v", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("botbench %s (commit %s, built %s)\n", version.Version, version.Commit, version.BuildDate)
		os.Exit(0)
	}

	// .env is optional; the environment wins when both are set
	_ = godotenv.Load()

	logWriter, logFileHandle, err := logger.SetupLogWriter(*logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	if logFileHandle != nil {
		defer logFileHandle.Close()
	}
	logger.SetupLogger(logWriter, *verbose)

	if *installBrowsers {
		logger.Logger.Info("Installing playwright browsers")
		if err := ui.Install(); err != nil {
			logger.Logger.Error("Browser installation failed", "error", err)
			os.Exit(1)
		}
		logger.Logger.Info("Browsers installed")
		os.Exit(0)
	}

	cfg := model.ConfigFromEnv()
	opts := engine.Options{
		PlanFile:    *planFile,
		Categories:  splitList(*categories),
		OutputPath:  *outputPath,
		ReportTypes: splitList(*reportType),
		FailFast:    *failFast,
	}

	if err := engine.Run(context.Background(), cfg, opts); err != nil {
		if errors.Is(err, engine.ErrTestsFailed) {
			logger.Logger.Error("Test run finished with failures")
		} else {
			logger.Logger.Error("Test run aborted", "error", err)
		}
		os.Exit(1)
	}

	logger.Logger.Info("All tests passed")
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
