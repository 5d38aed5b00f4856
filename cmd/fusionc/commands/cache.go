// cmd/fusionc/commands/cache.go
package commands

import (
	"context"
	"flag"
	"fmt"

	"sentra/internal/fusion/cachestore"
	"sentra/internal/fusion/config"
)

// CacheCommand opens a persistent kernel cache (sqlite3 by default)
// and reports how many signatures it currently holds, exercising the
// cachestore package end to end without needing a running fuse.Facade.
// Defaults come from fusionc.json (or FUSIONC_* env vars) via the
// config package; -driver/-dsn flags override whatever config loaded.
func CacheCommand(args []string) error {
	cfg, err := config.Load("fusionc.json")
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("cache", flag.ExitOnError)
	driver := fs.String("driver", cfg.CacheDriver, "database driver: sqlite3, mysql, postgres, sqlserver")
	dsn := fs.String("dsn", cfg.CacheDSN, "data source name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	store, err := cachestore.Open(ctx, *driver, *dsn)
	if err != nil {
		return fmt.Errorf("fusionc: cache: %w", err)
	}
	defer store.Close()

	n, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("fusionc: cache: %w", err)
	}
	fmt.Printf("%s (%s): %d cached kernel signature(s)\n", *dsn, *driver, n)
	return nil
}
