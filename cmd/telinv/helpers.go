package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"telinv/internal/capability"
	"telinv/internal/config"
	"telinv/internal/ledger"
	"telinv/internal/logging"
)

// buildInvoker wires credentials, endpoint bindings, and the retrying
// invoker. Credential absence is a hard error before any network call.
func buildInvoker(tokenFlag, baseURLFlag, bindingsPath string) (*capability.Invoker, error) {
	token, err := config.Token(tokenFlag)
	if err != nil {
		return nil, err
	}
	bindings := capability.DefaultBindings()
	if bindingsPath != "" {
		bindings, err = capability.LoadBindings(bindingsPath)
		if err != nil {
			return nil, err
		}
	}
	client := &http.Client{Timeout: 60 * time.Second}
	registry, err := capability.BuildRegistry(client, token, config.BaseURL(baseURLFlag), bindings)
	if err != nil {
		return nil, err
	}
	return capability.NewInvoker(registry, capability.WithLogger(logging.New("capability"))), nil
}

// openLedger honors the TELINV_LEDGER_* environment when set and otherwise
// keeps the ledger database next to the run artifacts.
func openLedger(ctx context.Context, outDir string) (ledger.Store, error) {
	if os.Getenv("TELINV_LEDGER_DRIVER") != "" {
		return ledger.Open(ctx)
	}
	return ledger.NewSQLite(filepath.Join(outDir, "ledger.db"))
}
