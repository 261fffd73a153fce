// Package report renders run results as standalone HTML documents.
package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"telinv/internal/apply"
	"telinv/internal/normalize"
	"telinv/internal/status"
)

func writeCell(buf *strings.Builder, value string) {
	buf.WriteString("<td>")
	buf.WriteString(template.HTMLEscapeString(value))
	buf.WriteString("</td>")
}

func writeHeader(buf *strings.Builder, title string, columns []string) {
	buf.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>")
	buf.WriteString(template.HTMLEscapeString(title))
	buf.WriteString("</title></head><body><h1>")
	buf.WriteString(template.HTMLEscapeString(title))
	buf.WriteString("</h1><table border=\"1\"><thead><tr>")
	for _, column := range columns {
		buf.WriteString("<th>")
		buf.WriteString(template.HTMLEscapeString(column))
		buf.WriteString("</th>")
	}
	buf.WriteString("</tr></thead><tbody>")
}

func closeDocument(buf *strings.Builder) {
	buf.WriteString("</tbody></table></body></html>")
}

// RenderExportReport builds the export run report: the totals line followed
// by one row per status ledger entry.
func RenderExportReport(summary status.Summary, records []status.Record) []byte {
	buf := &strings.Builder{}
	writeHeader(buf, "Inventory Export", []string{
		"module", "method", "result", "http_status", "error", "count", "elapsed_ms",
	})
	for _, rec := range records {
		buf.WriteString("<tr>")
		writeCell(buf, rec.Module)
		writeCell(buf, rec.Method)
		writeCell(buf, string(rec.Result))
		writeCell(buf, formatInt(rec.HTTPStatus))
		writeCell(buf, rec.Error)
		writeCell(buf, fmt.Sprint(rec.Count))
		writeCell(buf, fmt.Sprint(rec.ElapsedMS))
		buf.WriteString("</tr>")
	}
	closeDocument(buf)
	doc := buf.String()
	totals := fmt.Sprintf("<p>total %d: ok %d, forbidden %d, not_found %d, error %d</p>",
		summary.Total, summary.OK, summary.Forbidden, summary.NotFound, summary.Error)
	return []byte(strings.Replace(doc, "<table", totals+"<table", 1))
}

// RenderApplyReport builds the apply run report: one row per stage attempt
// with its before/after snapshots, then the failure table when any exist.
func RenderApplyReport(summary apply.Summary, changes []apply.ChangeEntry, failures []apply.FailureEntry) []byte {
	buf := &strings.Builder{}
	writeHeader(buf, "Bulk Apply", []string{
		"user_email", "stage", "status", "before", "after", "detail",
	})
	for _, change := range changes {
		buf.WriteString("<tr>")
		writeCell(buf, change.Email)
		writeCell(buf, string(change.Stage))
		writeCell(buf, string(change.Status))
		writeCell(buf, compactRow(change.Before))
		writeCell(buf, compactRow(change.After))
		writeCell(buf, change.Detail)
		buf.WriteString("</tr>")
	}
	closeDocument(buf)
	doc := buf.String()
	totals := fmt.Sprintf("<p>records %d: succeeded %d, failed %d</p>",
		summary.Total, summary.Succeeded, summary.Failed)
	doc = strings.Replace(doc, "<table", totals+"<table", 1)

	if len(failures) > 0 {
		fbuf := &strings.Builder{}
		fbuf.WriteString("<h2>Failures</h2><table border=\"1\"><thead><tr>")
		for _, column := range []string{"user_email", "stage", "error_type", "http_status", "tracking_id", "details"} {
			fbuf.WriteString("<th>")
			fbuf.WriteString(template.HTMLEscapeString(column))
			fbuf.WriteString("</th>")
		}
		fbuf.WriteString("</tr></thead><tbody>")
		for _, failure := range failures {
			fbuf.WriteString("<tr>")
			writeCell(fbuf, failure.Email)
			writeCell(fbuf, string(failure.Stage))
			writeCell(fbuf, failure.ErrorType)
			writeCell(fbuf, formatInt(failure.HTTPStatus))
			writeCell(fbuf, failure.TrackingID)
			writeCell(fbuf, failure.Details)
			fbuf.WriteString("</tr>")
		}
		fbuf.WriteString("</tbody></table>")
		doc = strings.Replace(doc, "</body></html>", fbuf.String()+"</body></html>", 1)
	}
	return []byte(doc)
}

func compactRow(row normalize.Row) string {
	if len(row) == 0 {
		return ""
	}
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Sprint(row)
	}
	return string(data)
}

func formatInt(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprint(v)
}
