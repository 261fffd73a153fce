package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"telinv/internal/blob"
	"telinv/internal/config"
	"telinv/internal/export"
	"telinv/internal/logging"
	"telinv/internal/metrics"
	"telinv/internal/report"
	"telinv/internal/resolver"
	"telinv/internal/status"
)

var (
	exportOut           string
	exportToken         string
	exportBaseURL       string
	exportBindings      string
	exportManifest      string
	exportConcurrency   int
	exportExpandMembers bool
	exportCache         bool
	exportReport        bool
	exportArchive       bool
	exportHalt          bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export tenant inventory to CSV/JSON artifacts",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "./export", "output directory")
	exportCmd.Flags().StringVar(&exportToken, "token", "", "API access token (overrides "+config.EnvToken+")")
	exportCmd.Flags().StringVar(&exportBaseURL, "base-url", "", "API base URL")
	exportCmd.Flags().StringVar(&exportBindings, "bindings", "", "endpoint bindings YAML (default: built-in)")
	exportCmd.Flags().StringVar(&exportManifest, "manifest", "", "artifact catalog YAML (default: built-in)")
	exportCmd.Flags().IntVar(&exportConcurrency, "concurrency", 4, "concurrent calls per artifact")
	exportCmd.Flags().BoolVar(&exportExpandMembers, "expand-members", false, "include per-queue membership expansion")
	exportCmd.Flags().BoolVar(&exportCache, "cache", true, "write cache.json")
	exportCmd.Flags().BoolVar(&exportReport, "report", true, "write report.html")
	exportCmd.Flags().BoolVar(&exportArchive, "archive", false, "upload artifacts to the configured blob store")
	exportCmd.Flags().BoolVar(&exportHalt, "halt-on-error", false, "stop at the first failed artifact")
}

// runExport never fails on per-module errors: partial results are the whole
// point of the status ledger. Only startup problems return an error.
func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := logging.New("export")

	invoker, err := buildInvoker(exportToken, exportBaseURL, exportBindings)
	if err != nil {
		return err
	}

	var catalog *resolver.Catalog
	if exportManifest != "" {
		catalog, err = resolver.LoadCatalog(exportManifest)
	} else {
		catalog, err = resolver.NewCatalog(resolver.DefaultSpecs(exportExpandMembers))
	}
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	callMetrics, err := metrics.Open()
	if err != nil {
		return fmt.Errorf("open metrics: %w", err)
	}
	recorder := status.NewRecorder()
	cache := resolver.NewEntityCache()
	opts := []resolver.Option{
		resolver.WithConcurrency(exportConcurrency),
		resolver.WithMetrics(callMetrics),
		resolver.WithLogger(logging.New("resolver")),
	}
	if exportHalt {
		opts = append(opts, resolver.WithHaltOnError())
	}
	res := resolver.New(catalog, invoker, cache, recorder, opts...)
	if _, err := res.Resolve(ctx); err != nil {
		return err
	}

	writer, err := export.NewWriter(exportOut, recorder, logging.New("writer"))
	if err != nil {
		return err
	}
	for module, rows := range cache.Snapshot() {
		if err := writer.WriteModule(module, rows); err != nil {
			return fmt.Errorf("write %s: %w", module, err)
		}
	}
	if err := writer.WriteStatus(); err != nil {
		return err
	}
	if exportCache {
		if err := writer.WriteCache(cache.Snapshot()); err != nil {
			return err
		}
	}
	summary := recorder.Summary()
	if exportReport {
		doc := report.RenderExportReport(summary, recorder.Records())
		if err := os.WriteFile(filepath.Join(exportOut, "report.html"), doc, 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}

	runID := config.NewRunID()
	store, err := openLedger(ctx, exportOut)
	if err != nil {
		log.Warn("ledger unavailable", "error", err)
	} else {
		if err := store.SaveStatuses(ctx, runID, recorder.Records()); err != nil {
			log.Warn("ledger save failed", "error", err)
		}
		_ = store.Close()
	}

	if exportArchive {
		bstore, err := blob.Open(ctx)
		if err != nil {
			return fmt.Errorf("open blob store: %w", err)
		}
		infos, err := blob.ArchiveExport(ctx, bstore, exportOut, runID)
		if err != nil {
			return fmt.Errorf("archive artifacts: %w", err)
		}
		log.Info("artifacts archived", "count", len(infos), "run_id", runID)
	}

	log.Info("export complete", "run_id", runID,
		"total", summary.Total, "ok", summary.OK, "forbidden", summary.Forbidden,
		"not_found", summary.NotFound, "error", summary.Error)
	fmt.Fprintf(cmd.OutOrStdout(), "export %s: %d modules (%d ok, %d forbidden, %d not_found, %d error) -> %s\n",
		runID, summary.Total, summary.OK, summary.Forbidden, summary.NotFound, summary.Error, exportOut)
	return nil
}
