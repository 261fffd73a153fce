package ledger

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestOnlyLedgerPackageImportsSQLDrivers keeps the database drivers behind
// the Store interface; other packages must not register drivers themselves.
func TestOnlyLedgerPackageImportsSQLDrivers(t *testing.T) {
	const allowed = "telinv/internal/ledger"

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "telinv/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	isDriver := func(path string) bool {
		return strings.HasPrefix(path, "modernc.org/sqlite") ||
			strings.HasPrefix(path, "github.com/jackc/pgx")
	}

	seen := make(map[string]struct{})
	for _, pkg := range pkgs {
		if strings.HasPrefix(pkg.PkgPath, allowed) {
			continue
		}
		for importPath := range pkg.Imports {
			if isDriver(importPath) {
				seen[pkg.PkgPath+": "+importPath] = struct{}{}
			}
		}
	}

	if len(seen) > 0 {
		violations := make([]string, 0, len(seen))
		for v := range seen {
			violations = append(violations, v)
		}
		sort.Strings(violations)
		for _, v := range violations {
			t.Errorf("forbidden direct sql driver import: %s", v)
		}
		t.Fatalf("found %d forbidden sql driver imports", len(violations))
	}
}
