package tracts

import (
	"context"
	"fmt"
	"time"

	"github.com/EmpoweredVote/tract-census/internal/gis"
	"github.com/EmpoweredVote/tract-census/internal/messages"
)

// matchColumn is the position both datasets are matched on (GEOID).
const matchColumn = 1

// MergeStats summarises one merge pass.
type MergeStats struct {
	SourceRows int
	Updated    int
	// DuplicateKeys counts source rows that were shadowed by an earlier row
	// with the same key.
	DuplicateKeys int
}

// MergeRows overwrites each destination row with the first source row whose
// second column equals the destination's second column. Destination rows
// without a match are left untouched.
func MergeRows(ctx context.Context, ws gis.Workspace, source, dest gis.Dataset) (MergeStats, error) {
	start := time.Now()

	rows, err := ws.SearchRows(ctx, source)
	if err != nil {
		return MergeStats{}, fmt.Errorf("search cursor %s: %w", source, err)
	}

	stats := MergeStats{SourceRows: len(rows)}
	index := make(map[string]gis.Row, len(rows))
	for _, r := range rows {
		if len(r) <= matchColumn {
			continue
		}
		key, ok := gis.KeyString(r[matchColumn])
		if !ok {
			continue
		}
		if _, dup := index[key]; dup {
			stats.DuplicateKeys++
			continue
		}
		index[key] = r
	}
	if stats.DuplicateKeys > 0 {
		messages.LogStep(component, fmt.Sprintf("%d source rows share a key with an earlier row; first match wins", stats.DuplicateKeys))
	}

	updated, err := ws.UpdateRows(ctx, dest, func(row gis.Row) (gis.Row, bool, error) {
		if len(row) <= matchColumn {
			return nil, false, nil
		}
		key, ok := gis.KeyString(row[matchColumn])
		if !ok {
			return nil, false, nil
		}
		src, ok := index[key]
		if !ok {
			return nil, false, nil
		}
		out := make(gis.Row, len(src))
		copy(out, src)
		return out, true, nil
	})
	if err != nil {
		return stats, fmt.Errorf("update cursor %s: %w", dest, err)
	}
	stats.Updated = updated

	messages.LogRows(component, "merge", string(dest), updated, time.Since(start))
	return stats, nil
}
