package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/agent/core"
	"github.com/mohammad-safakhou/deepresearch/internal/agent/progress"
	"github.com/mohammad-safakhou/deepresearch/internal/agent/telemetry"
	"github.com/mohammad-safakhou/deepresearch/internal/server"
	"github.com/mohammad-safakhou/deepresearch/internal/store"
)

func main() {
	var root = &cobra.Command{Use: "deepresearch"}
	var cfgPath string
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	root.AddCommand(researchCMD(&cfgPath), serveCMD(&cfgPath))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func researchCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "research [query]",
		Short: "Run one research query and print the report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(*cfgPath)
			query := strings.Join(args, " ")

			tele := telemetry.NewTelemetry(cfg.Telemetry)
			defer tele.Shutdown()

			llmProvider, err := core.NewLLMProvider(cfg.LLM)
			if err != nil {
				return err
			}
			search, err := core.NewSearchProvider(cfg, llmProvider)
			if err != nil {
				return err
			}
			printer := progress.NewPrinter(os.Stdout)
			mgr := core.NewManager(cfg, llmProvider, search, printer, tele)

			report, err := mgr.Run(context.Background(), query)
			if err != nil {
				return err
			}

			printReport(report)
			archiveReport(cfg, query, report)
			return nil
		},
	}
}

func serveCMD(cfgPath *string) *cobra.Command {
	var serveAddr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(*cfgPath)

			tele := telemetry.NewTelemetry(cfg.Telemetry)
			defer tele.Shutdown()

			archive, err := store.NewArchive(cfg.Storage)
			if err != nil {
				if !errors.Is(err, store.ErrNotConfigured) {
					return err
				}
				archive = nil
			}

			s := server.New(cfg, tele, archive, server.DefaultRunnerFactory(cfg, tele))
			return s.Start(serveAddr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	return serve
}

func printReport(report core.Report) {
	fmt.Print("\n\n=====REPORT SUMMARY=====\n\n")
	fmt.Println(report.ShortSummary)

	fmt.Print("\n\n=====REPORT OUTLINE=====\n\n")
	fmt.Println(report.Outline)

	fmt.Print("\n\n=====FULL REPORT=====\n\n")
	fmt.Println(report.MarkdownReport)

	fmt.Print("\n\n=====RESEARCH LIMITATIONS=====\n\n")
	for _, limitation := range report.Limitations {
		fmt.Printf("- %s\n", limitation)
	}

	fmt.Print("\n\n=====FOLLOW UP QUESTIONS=====\n\n")
	for _, question := range report.FollowUpQuestions {
		fmt.Printf("- %s\n", question)
	}
}

// archiveReport saves the report when an archive backend is configured.
// The CLI run succeeds either way.
func archiveReport(cfg *config.Config, query string, report core.Report) {
	archive, err := store.NewArchive(cfg.Storage)
	if err != nil {
		if !errors.Is(err, store.ErrNotConfigured) {
			fmt.Fprintf(os.Stderr, "archive unavailable: %v\n", err)
		}
		return
	}
	defer archive.Close()

	rec := store.ReportRecord{
		RunID:             uuid.New().String(),
		Query:             query,
		ShortSummary:      report.ShortSummary,
		Outline:           report.Outline,
		MarkdownReport:    report.MarkdownReport,
		Limitations:       report.Limitations,
		FollowUpQuestions: report.FollowUpQuestions,
	}
	if err := archive.SaveReport(context.Background(), rec); err != nil {
		fmt.Fprintf(os.Stderr, "archiving report failed: %v\n", err)
	}
}
