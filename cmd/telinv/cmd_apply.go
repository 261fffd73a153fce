package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"telinv/internal/apply"
	"telinv/internal/config"
	"telinv/internal/logging"
	"telinv/internal/report"
)

var (
	applyInput        string
	applyLookupDir    string
	applyOut          string
	applyToken        string
	applyBaseURL      string
	applyBindings     string
	applyDecisions    string
	applyOverrides    string
	applyPolicy       string
	applyOnlyFailures bool
	applyConcurrency  int
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply staged configuration to the records in a CSV",
	RunE:  runApply,
}

func init() {
	applyCmd.Flags().StringVarP(&applyInput, "input", "i", "", "input record CSV (required)")
	applyCmd.Flags().StringVar(&applyLookupDir, "lookup", "./export", "prior export directory for identity lookups")
	applyCmd.Flags().StringVarP(&applyOut, "out", "o", "./apply", "output directory")
	applyCmd.Flags().StringVar(&applyToken, "token", "", "API access token (overrides "+config.EnvToken+")")
	applyCmd.Flags().StringVar(&applyBaseURL, "base-url", "", "API base URL")
	applyCmd.Flags().StringVar(&applyBindings, "bindings", "", "endpoint bindings YAML (default: built-in)")
	applyCmd.Flags().StringVar(&applyDecisions, "decisions", "", "stage decision YAML (default: interactive prompt)")
	applyCmd.Flags().StringVar(&applyOverrides, "overrides", "", "per-record override YAML for yesbut stages")
	applyCmd.Flags().StringVar(&applyPolicy, "policy", "", "stage default payload YAML")
	applyCmd.Flags().BoolVar(&applyOnlyFailures, "only-failures", false, "retry only the records the prior run failed")
	applyCmd.Flags().IntVar(&applyConcurrency, "concurrency", 4, "concurrent records")
	_ = applyCmd.MarkFlagRequired("input")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := logging.New("apply")

	invoker, err := buildInvoker(applyToken, applyBaseURL, applyBindings)
	if err != nil {
		return err
	}
	records, err := apply.LoadRecords(applyInput)
	if err != nil {
		return err
	}
	lookups, err := apply.LoadLookups(applyLookupDir)
	if err != nil {
		return fmt.Errorf("load lookups: %w", err)
	}
	if err := os.MkdirAll(applyOut, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}

	statePath := filepath.Join(applyOut, "run_state.json")
	runID := config.NewRunID()
	state := apply.NewRunState(runID, nil)
	if applyOnlyFailures {
		prior, err := apply.LoadRunState(statePath)
		if err != nil {
			return fmt.Errorf("only-failures needs a prior run: %w", err)
		}
		records = apply.FilterOnlyFailures(records, prior)
		// Retries extend the prior run's ledger: earlier successes and the
		// run id stay, only the retried records are rewritten.
		runID = prior.RunID
		state = prior
		log.Info("retrying failed records", "count", len(records), "run_id", runID)
	}

	var provider apply.DecisionProvider
	if applyDecisions != "" {
		provider, err = apply.LoadDecisionTable(applyDecisions)
		if err != nil {
			return err
		}
	} else {
		provider = apply.NewConsoleProvider(cmd.InOrStdin(), cmd.OutOrStdout())
	}
	var overrides apply.Overrides
	if applyOverrides != "" {
		if overrides, err = apply.LoadOverrides(applyOverrides); err != nil {
			return err
		}
	}
	var policy apply.Policy
	if applyPolicy != "" {
		if policy, err = apply.LoadPolicy(applyPolicy); err != nil {
			return err
		}
	}

	changesFile, err := os.OpenFile(filepath.Join(applyOut, "changes.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open changes.log: %w", err)
	}
	defer func() { _ = changesFile.Close() }()

	engine, err := apply.NewEngine(apply.Config{
		Caller:      invoker,
		Lookups:     lookups,
		Provider:    provider,
		Overrides:   overrides,
		Policy:      policy,
		Log:         apply.NewChangeLog(changesFile),
		State:       state,
		Logger:      logging.New("engine"),
		Concurrency: applyConcurrency,
	})
	if err != nil {
		return err
	}

	summary, err := engine.Run(ctx, records)
	if err != nil {
		return err
	}

	if err := engine.State().Save(statePath); err != nil {
		return err
	}
	failuresFile, err := os.Create(filepath.Join(applyOut, "failures.csv"))
	if err != nil {
		return fmt.Errorf("create failures.csv: %w", err)
	}
	if err := engine.Log().WriteFailuresCSV(failuresFile); err != nil {
		_ = failuresFile.Close()
		return err
	}
	if err := failuresFile.Close(); err != nil {
		return err
	}
	doc := report.RenderApplyReport(summary, engine.Log().Changes(), engine.Log().Failures())
	if err := os.WriteFile(filepath.Join(applyOut, "report.html"), doc, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	store, err := openLedger(ctx, applyOut)
	if err != nil {
		log.Warn("ledger unavailable", "error", err)
	} else {
		if err := store.SaveRunState(ctx, engine.State()); err != nil {
			log.Warn("ledger save failed", "error", err)
		}
		_ = store.Close()
	}

	log.Info("apply complete", "run_id", runID,
		"total", summary.Total, "succeeded", summary.Succeeded, "failed", summary.Failed)
	fmt.Fprintf(cmd.OutOrStdout(), "apply %s: %d records (%d succeeded, %d failed) -> %s\n",
		runID, summary.Total, summary.Succeeded, summary.Failed, applyOut)
	return nil
}
