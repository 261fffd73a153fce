package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPredicates(t *testing.T) {
	if !AWSImportForbidden("github.com/aws/aws-sdk-go-v2/service/s3") {
		t.Fatal("aws sdk import not flagged")
	}
	if AWSImportForbidden("github.com/spf13/cobra") {
		t.Fatal("cobra flagged as aws")
	}
	if !SQLDriverImportForbidden("modernc.org/sqlite") || !SQLDriverImportForbidden("github.com/jackc/pgx/v5/stdlib") {
		t.Fatal("driver imports not flagged")
	}
	if SQLDriverImportForbidden("database/sql") {
		t.Fatal("database/sql flagged as driver")
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	src := `package probe

import (
	_ "github.com/jackc/pgx/v5/stdlib"
	"strings"
)

var _ = strings.TrimSpace
`
	if err := os.WriteFile(filepath.Join(dir, "probe.go"), []byte(src), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	testSrc := `package probe

import _ "modernc.org/sqlite"
`
	if err := os.WriteFile(filepath.Join(dir, "probe_test.go"), []byte(testSrc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	viols, err := directImportViolations(dir, SQLDriverImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 {
		t.Fatalf("violations = %v, want pgx only (test files skipped)", viols)
	}
}

func TestTransitiveDependencyViolations(t *testing.T) {
	orig := goListDeps
	defer func() { goListDeps = orig }()
	goListDeps = func(string) ([]byte, error) {
		return []byte("strings\ngithub.com/aws/aws-sdk-go-v2/aws\n\n"), nil
	}
	viols, _, err := transitiveDependencyViolations("./...", AWSImportForbidden)
	if err != nil {
		t.Fatalf("violations: %v", err)
	}
	if len(viols) != 1 || viols[0] != "github.com/aws/aws-sdk-go-v2/aws" {
		t.Fatalf("viols = %v", viols)
	}
}
