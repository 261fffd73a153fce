package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"telinv/internal/apply"
	"telinv/internal/capability"
	"telinv/internal/status"
)

var statusOut string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the last run's status ledger in a run directory",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusOut, "out", "o", "./export", "run directory to inspect")
}

func runStatus(cmd *cobra.Command, args []string) error {
	statusPath := filepath.Join(statusOut, "status.json")
	statePath := filepath.Join(statusOut, "run_state.json")

	printed := false
	if records, err := readStatusLedger(statusPath); err == nil {
		printExportStatus(cmd, records)
		printed = true
	}
	if state, err := apply.LoadRunState(statePath); err == nil {
		printApplyStatus(cmd, state)
		printed = true
	}
	if !printed {
		return fmt.Errorf("no status.json or run_state.json under %s", statusOut)
	}
	return nil
}

func readStatusLedger(path string) ([]status.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []status.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return records, nil
}

func printExportStatus(cmd *cobra.Command, records []status.Record) {
	var summary status.Summary
	for _, rec := range records {
		summary.Total++
		switch rec.Result {
		case capability.ResultOK:
			summary.OK++
		case capability.ResultForbidden:
			summary.Forbidden++
		case capability.ResultNotFound:
			summary.NotFound++
		default:
			summary.Error++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "export: %d modules (%d ok, %d forbidden, %d not_found, %d error)\n",
		summary.Total, summary.OK, summary.Forbidden, summary.NotFound, summary.Error)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tMETHOD\tRESULT\tHTTP\tCOUNT\tELAPSED_MS")
	for _, rec := range records {
		httpStatus := ""
		if rec.HTTPStatus != 0 {
			httpStatus = fmt.Sprint(rec.HTTPStatus)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
			rec.Module, rec.Method, rec.Result, httpStatus, rec.Count, rec.ElapsedMS)
	}
	_ = tw.Flush()
}

func printApplyStatus(cmd *cobra.Command, state *apply.RunState) {
	fmt.Fprintf(cmd.OutOrStdout(), "apply run %s: %d completed, %d failed\n",
		state.RunID, state.Completed, state.Failed)
	for email, result := range state.Records {
		if result.Status != apply.RecordFailed {
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  failed %s at %s: %s\n", email, result.FailedStage, result.Reason)
	}
}
