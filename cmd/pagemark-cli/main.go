// Package main provides the pagemark command-line interface for
// converting local PDF files without running the API server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/pagemark/pagemark/internal/config"
	"github.com/pagemark/pagemark/internal/llm"
	"github.com/pagemark/pagemark/internal/observability"
	"github.com/pagemark/pagemark/internal/pdf"
	"github.com/pagemark/pagemark/internal/pipeline"
)

const version = "1.0.0"

var (
	outputPath     string
	batchSize      int
	maxTranscribes int
	verbose        bool
)

func main() {
	root := &cobra.Command{
		Use:     "pagemark-cli",
		Short:   "Convert PDF documents to Markdown with a vision model",
		Version: version,
	}

	convert := &cobra.Command{
		Use:   "convert <pdf>",
		Short: "Convert a local PDF file to Markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(args[0])
		},
	}
	convert.Flags().StringVarP(&outputPath, "output", "o", "", "output file path (default: <input-name>.md)")
	convert.Flags().IntVarP(&batchSize, "batch-size", "b", 0, "pages per transcription call (1-10)")
	convert.Flags().IntVar(&maxTranscribes, "max-transcribes", 0, "max concurrent transcription calls")
	convert.Flags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	root.AddCommand(convert)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runConvert(pdfPath string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return err
	}
	if batchSize > 0 {
		cfg.Pipeline.BatchSize = batchSize
	}
	if maxTranscribes > 0 {
		cfg.Pipeline.MaxConcurrentTranscribes = maxTranscribes
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("OPENROUTER_API_KEY is not set")
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      "console",
		Output:      os.Stderr,
		ServiceName: "pagemark-cli",
	})

	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", pdfPath, err)
	}
	if err := pdf.NewValidator(0).Validate(data); err != nil {
		return err
	}

	// Completions arrive from concurrent workers.
	var barMu sync.Mutex
	var bar *progressbar.ProgressBar
	progress := func(done, total int) {
		barMu.Lock()
		defer barMu.Unlock()
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Transcribing"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
			)
		}
		_ = bar.Set(done)
	}

	gates := pipeline.NewController(cfg.Pipeline.MaxConcurrentRenders, cfg.Pipeline.MaxConcurrentTranscribes)
	renderer := pdf.NewRenderer(cfg.Render, gates.Render, logger)
	client := llm.NewClient(cfg.LLM, logger)
	retry := llm.NewRetryPolicy(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay, cfg.Retry.MaxDelay, logger)
	orchestrator := pipeline.NewOrchestrator(renderer, client, retry, gates, cfg.Pipeline.BatchSize, logger,
		pipeline.WithProgress(progress))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := orchestrator.Run(ctx, data)
	if err != nil {
		return err
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}

	out := outputPath
	if out == "" {
		base := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
		out = base + ".md"
	}

	if err := os.WriteFile(out, []byte(result.Markdown), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	fmt.Fprintf(os.Stderr, "Converted %d pages (%d tokens) in %v -> %s\n",
		result.PagesProcessed, result.Usage.TotalTokens, result.Duration.Round(time.Millisecond), out)
	return nil
}
