package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var contentTypes = map[string]string{
	".csv":  "text/csv",
	".json": "application/json",
	".html": "text/html",
	".log":  "application/x-ndjson",
}

// ArchiveExport uploads every regular file in dir to the store under
// runs/<runID>/. Files go up in name order so partial failures leave a
// predictable prefix of the archive behind.
func ArchiveExport(ctx context.Context, store Store, dir, runID string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read export dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	infos := make([]Info, 0, len(names))
	for _, name := range names {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return infos, fmt.Errorf("open %s: %w", name, err)
		}
		key := "runs/" + runID + "/" + name
		info, err := store.Put(ctx, key, f, PutOptions{
			ContentType: contentTypes[strings.ToLower(filepath.Ext(name))],
			Metadata:    map[string]string{"run_id": runID},
		})
		_ = f.Close()
		if err != nil {
			return infos, fmt.Errorf("upload %s: %w", key, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}
