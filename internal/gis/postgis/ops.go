package postgis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/EmpoweredVote/tract-census/internal/gis"
	"github.com/EmpoweredVote/tract-census/internal/messages"
	"github.com/lib/pq"
)

func (w *Workspace) count(ctx context.Context, ds gis.Dataset) int {
	var n int64
	if err := w.db.WithContext(ctx).Raw(`SELECT count(*) FROM ` + w.ident(ds)).Row().Scan(&n); err != nil {
		return -1
	}
	return int(n)
}

func (w *Workspace) CopyFeatures(ctx context.Context, in, out gis.Dataset) error {
	start := time.Now()
	sql := fmt.Sprintf(`CREATE TABLE %s AS SELECT * FROM %s`, w.ident(out), w.ident(in))
	if err := w.exec(ctx, sql); err != nil {
		return fmt.Errorf("copy features %s -> %s: %w", in, out, err)
	}
	if err := w.carryAliases(ctx, in, out); err != nil {
		return err
	}
	messages.LogRows(component, "copy features", string(out), w.count(ctx, out), time.Since(start))
	return nil
}

func (w *Workspace) JoinField(ctx context.Context, target gis.Dataset, targetKey string, join gis.Dataset, joinKey string, out gis.Dataset) error {
	start := time.Now()

	targetCols, err := w.columns(ctx, target)
	if err != nil {
		return err
	}
	joinCols, err := w.columns(ctx, join)
	if err != nil {
		return err
	}

	have := make(map[string]bool, len(targetCols))
	for _, c := range targetCols {
		have[c.Name] = true
	}

	selects := []string{"t.*"}
	for _, c := range joinCols {
		if have[c.Name] {
			continue
		}
		selects = append(selects, "j."+pq.QuoteIdentifier(c.Name))
	}

	sql := fmt.Sprintf(`CREATE TABLE %s AS
		SELECT %s
		FROM %s t
		LEFT JOIN %s j ON t.%s::text = j.%s::text`,
		w.ident(out), strings.Join(selects, ", "),
		w.ident(target), w.ident(join),
		pq.QuoteIdentifier(targetKey), pq.QuoteIdentifier(joinKey))
	if err := w.exec(ctx, sql); err != nil {
		return fmt.Errorf("join %s to %s: %w", join, target, err)
	}
	if err := w.carryAliases(ctx, target, out); err != nil {
		return err
	}
	messages.LogRows(component, "join field", string(out), w.count(ctx, out), time.Since(start))
	return nil
}

func geometryColumn(cols []column) (string, bool) {
	for _, c := range cols {
		if c.TypName == "geometry" {
			return c.Name, true
		}
	}
	return "", false
}

// Clip intersects every feature of in with the union of clip's polygons,
// transformed to in's SRID. Features outside the boundary are dropped.
func (w *Workspace) Clip(ctx context.Context, in, clip, out gis.Dataset) error {
	start := time.Now()

	inCols, err := w.columns(ctx, in)
	if err != nil {
		return err
	}
	clipCols, err := w.columns(ctx, clip)
	if err != nil {
		return err
	}
	inGeom, ok := geometryColumn(inCols)
	if !ok {
		return fmt.Errorf("clip: %s has no geometry field", in)
	}
	clipGeom, ok := geometryColumn(clipCols)
	if !ok {
		return fmt.Errorf("clip: %s has no geometry field", clip)
	}

	var srid int
	err = w.db.WithContext(ctx).Raw(fmt.Sprintf(
		`SELECT COALESCE((SELECT ST_SRID(%s) FROM %s WHERE %[1]s IS NOT NULL LIMIT 1), 0)`,
		pq.QuoteIdentifier(inGeom), w.ident(in))).Row().Scan(&srid)
	if err != nil {
		return fmt.Errorf("clip: srid of %s: %w", in, err)
	}

	boundaryGeom := "c." + pq.QuoteIdentifier(clipGeom)
	if srid != 0 {
		boundaryGeom = fmt.Sprintf("ST_Transform(%s, %d)", boundaryGeom, srid)
	}

	selects := make([]string, 0, len(inCols))
	for _, c := range inCols {
		if c.Name == inGeom {
			selects = append(selects, fmt.Sprintf(
				"ST_Multi(ST_CollectionExtract(ST_Intersection(i.%s, b.geom), 3)) AS %[1]s",
				pq.QuoteIdentifier(inGeom)))
			continue
		}
		selects = append(selects, "i."+pq.QuoteIdentifier(c.Name))
	}

	sql := fmt.Sprintf(`CREATE TABLE %s AS
		WITH b AS (SELECT ST_Union(%s) AS geom FROM %s c)
		SELECT %s
		FROM %s i, b
		WHERE ST_Intersects(i.%s, b.geom)`,
		w.ident(out), boundaryGeom, w.ident(clip),
		strings.Join(selects, ", "),
		w.ident(in), pq.QuoteIdentifier(inGeom))
	if err := w.exec(ctx, sql); err != nil {
		return fmt.Errorf("clip %s by %s: %w", in, clip, err)
	}
	if err := w.carryAliases(ctx, in, out); err != nil {
		return err
	}
	messages.LogRows(component, "clip", string(out), w.count(ctx, out), time.Since(start))
	return nil
}
