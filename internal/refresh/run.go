package refresh

import (
	"context"
	"fmt"
	"log"

	"github.com/EmpoweredVote/tract-census/internal/acs"
	"github.com/EmpoweredVote/tract-census/internal/config"
	"github.com/EmpoweredVote/tract-census/internal/gis/postgis"
	"github.com/EmpoweredVote/tract-census/internal/tracts"
	"gorm.io/gorm"
)

// Runner performs one update with the given configuration.
type Runner func(ctx context.Context, cfg config.Config) (tracts.MergeStats, error)

// PostGISRunner runs updates in a fresh scratch workspace on d.
func PostGISRunner(d *gorm.DB) Runner {
	return func(ctx context.Context, cfg config.Config) (tracts.MergeStats, error) {
		return RunOnce(ctx, cfg, d)
	}
}

// RunOnce opens a scratch workspace, runs the pipeline and drops the
// workspace again whatever the outcome.
func RunOnce(ctx context.Context, cfg config.Config, d *gorm.DB) (tracts.MergeStats, error) {
	ws, err := postgis.Open(ctx, d)
	if err != nil {
		return tracts.MergeStats{}, fmt.Errorf("open workspace: %w", err)
	}
	defer func() {
		// The run context may already be cancelled.
		if err := ws.Close(context.WithoutCancel(ctx)); err != nil {
			log.Printf("[refresh] drop scratch workspace %s: %v", ws.Scratch(), err)
		}
	}()

	return tracts.Run(ctx, cfg, ws, acs.NewFetcher(cfg.FetchTimeout))
}
