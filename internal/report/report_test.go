package report

import (
	"strings"
	"testing"

	"telinv/internal/apply"
	"telinv/internal/normalize"
	"telinv/internal/status"
)

func TestRenderExportReport(t *testing.T) {
	summary := status.Summary{Total: 2, OK: 1, Forbidden: 1}
	records := []status.Record{
		{Module: "people", Method: "people.list", Result: "ok", HTTPStatus: 200, Count: 10, ElapsedMS: 42},
		{Module: "queues", Method: "telephony.queues.list", Result: "forbidden", HTTPStatus: 403, Error: "403: <denied>"},
	}
	doc := string(RenderExportReport(summary, records))
	if !strings.Contains(doc, "total 2: ok 1, forbidden 1, not_found 0, error 0") {
		t.Fatalf("totals missing: %s", doc)
	}
	if !strings.Contains(doc, "<td>people</td>") || !strings.Contains(doc, "<td>403</td>") {
		t.Fatalf("rows missing: %s", doc)
	}
	if strings.Contains(doc, "<denied>") {
		t.Fatalf("error value not escaped: %s", doc)
	}
	if !strings.Contains(doc, "&lt;denied&gt;") {
		t.Fatalf("escaped error missing: %s", doc)
	}
}

func TestRenderApplyReport(t *testing.T) {
	summary := apply.Summary{Total: 2, Succeeded: 1, Failed: 1}
	changes := []apply.ChangeEntry{
		{
			Email: "ada@example.com", Stage: apply.StageVoicemail, Status: apply.ChangeSuccess,
			Before: normalize.Row{"enabled": false},
			After:  normalize.Row{"enabled": true},
			Detail: "applied",
		},
	}
	failures := []apply.FailureEntry{
		{Email: "bob@example.com", Stage: apply.StageForwarding, ErrorType: "APIError", HTTPStatus: 409, Details: "conflict"},
	}
	doc := string(RenderApplyReport(summary, changes, failures))
	if !strings.Contains(doc, "records 2: succeeded 1, failed 1") {
		t.Fatalf("totals missing: %s", doc)
	}
	if !strings.Contains(doc, `{&#34;enabled&#34;:false}`) {
		t.Fatalf("before snapshot missing or unescaped: %s", doc)
	}
	if !strings.Contains(doc, "<h2>Failures</h2>") || !strings.Contains(doc, "<td>409</td>") {
		t.Fatalf("failure table missing: %s", doc)
	}
}

func TestRenderApplyReportWithoutFailures(t *testing.T) {
	doc := string(RenderApplyReport(apply.Summary{Total: 1, Succeeded: 1}, nil, nil))
	if strings.Contains(doc, "Failures") {
		t.Fatalf("empty failure table rendered: %s", doc)
	}
}
