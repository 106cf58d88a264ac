package main

import (
	"context"
	"fmt"
	"strings"

	"olist-ml/internal/common"
	"olist-ml/internal/features"
	"olist-ml/internal/storage"
	"olist-ml/internal/warehouse"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
)

// openLoader connects to the warehouse in the configured mode. The caller
// closes the loader's source.
func (a *App) openLoader(ctx context.Context) (*warehouse.Loader, error) {
	var src warehouse.Source
	switch a.Settings.WarehouseMode {
	case common.WarehouseModeREST:
		src = warehouse.NewREST(a.Settings.RESTConfig()).WithMetrics(a.Wrapper)
	default:
		url, err := a.Settings.SourceURL()
		if err != nil {
			return nil, err
		}
		sqlSrc, err := warehouse.Open(ctx, url)
		if err != nil {
			return nil, err
		}
		src = sqlSrc.WithMetrics(a.Wrapper)
	}
	log.Debug().Str("mode", a.Settings.WarehouseMode).Msg("Warehouse source ready")
	return warehouse.NewLoader(src), nil
}

func (a *App) preparer() *features.Preparer {
	return features.NewPreparer(a.Wrapper)
}

func (a *App) openStore() (*storage.Store, error) {
	store, err := storage.New(a.Settings.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	return store, nil
}

// queryContext bounds a command's warehouse work by the configured timeout.
func (a *App) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.Settings.QueryTimeout)
}

func success(format string, args ...any) {
	color.Green("✓ "+format, args...)
}

func warn(format string, args ...any) {
	color.Yellow("! "+format, args...)
}

// splitIDs parses a comma separated id list, dropping blanks.
func splitIDs(s string) []string {
	var out []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
