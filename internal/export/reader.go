package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"telinv/internal/normalize"
)

// ReadModuleJSON loads a per-module JSON artifact. Both the canonical
// {module, count, rows, raw_keys} envelope and the legacy bare row array are
// accepted.
func ReadModuleJSON(path string) (Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Envelope{}, fmt.Errorf("read %s: %w", path, err)
	}
	module := strings.TrimSuffix(filepath.Base(path), ".json")

	var env Envelope
	if err := json.Unmarshal(data, &env); err == nil && env.Rows != nil {
		if env.Module == "" {
			env.Module = module
		}
		return env, nil
	}

	var rows []normalize.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return Envelope{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return Envelope{Module: module, Count: len(rows), Rows: rows}, nil
}

// ReadCache loads a consolidated cache.json document.
func ReadCache(path string) (CacheDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CacheDocument{}, fmt.Errorf("read %s: %w", path, err)
	}
	var doc CacheDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return CacheDocument{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc, nil
}
