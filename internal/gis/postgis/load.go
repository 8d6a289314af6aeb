package postgis

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/EmpoweredVote/tract-census/internal/boundary"
	"github.com/EmpoweredVote/tract-census/internal/gis"
	"github.com/EmpoweredVote/tract-census/internal/messages"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const component = "postgis"

// CopyRows creates out from a CSV file with a header row and bulk-loads it
// with COPY.
func (w *Workspace) CopyRows(ctx context.Context, csvPath string, out gis.Dataset) error {
	start := time.Now()

	f, err := os.Open(csvPath)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("read %s: %w", csvPath, err)
	}
	if len(records) == 0 {
		return fmt.Errorf("read %s: csv has no header", csvPath)
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	data := records[1:]
	types := inferTypes(data, len(header))

	defs := make([]string, len(header))
	for i, h := range header {
		st, err := sqlType(types[i])
		if err != nil {
			return err
		}
		defs[i] = pq.QuoteIdentifier(h) + " " + st
	}
	create := fmt.Sprintf(`CREATE TABLE %s (%s)`, w.ident(out), strings.Join(defs, ", "))
	if err := w.exec(ctx, create); err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}

	rows := make([][]any, 0, len(data))
	for i, rec := range data {
		vals := make([]any, len(header))
		for col := range header {
			if col >= len(rec) {
				continue
			}
			v, err := convertValue(rec[col], types[col])
			if err != nil {
				return fmt.Errorf("row %d column %s: %w", i+2, header[col], err)
			}
			vals[col] = v
		}
		rows = append(rows, vals)
	}

	n, err := w.copyFrom(ctx, out, header, rows)
	if err != nil {
		return fmt.Errorf("copy into %s: %w", out, err)
	}
	messages.LogRows(component, "copy rows", string(out), int(n), time.Since(start))
	return nil
}

// copyFrom uses pgx's COPY protocol on a connection borrowed from gorm's pool.
func (w *Workspace) copyFrom(ctx context.Context, out gis.Dataset, columns []string, rows [][]any) (int64, error) {
	sqlDB, err := w.db.DB()
	if err != nil {
		return 0, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	schema, table := w.split(out)
	var n int64
	err = conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return errors.New("database driver is not pgx")
		}
		var err error
		n, err = sc.Conn().CopyFrom(ctx, pgx.Identifier{schema, table}, columns, pgx.CopyFromRows(rows))
		return err
	})
	if errors.Is(err, sql.ErrConnDone) {
		return 0, fmt.Errorf("connection closed during copy: %w", err)
	}
	return n, err
}

// JSONToFeatures creates out holding one multipolygon per boundary feature.
func (w *Workspace) JSONToFeatures(ctx context.Context, jsonPath string, out gis.Dataset) error {
	b, err := boundary.ReadFile(jsonPath)
	if err != nil {
		return fmt.Errorf("json to features %s: %w", jsonPath, err)
	}

	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		create := fmt.Sprintf(`CREATE TABLE %s (
			objectid serial PRIMARY KEY,
			attributes jsonb,
			geom geometry(MultiPolygon, %d)
		)`, w.ident(out), b.SRID)
		if err := tx.Exec(create).Error; err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}

		insert := fmt.Sprintf(`INSERT INTO %s (attributes, geom)
			VALUES (?::jsonb, ST_SetSRID(ST_GeomFromGeoJSON(?), %d))`, w.ident(out), b.SRID)
		for i, feat := range b.Features {
			gj, err := feat.GeoJSON()
			if err != nil {
				return fmt.Errorf("encode feature %d: %w", i, err)
			}
			attrs, err := marshalAttributes(feat.Attributes)
			if err != nil {
				return fmt.Errorf("encode feature %d attributes: %w", i, err)
			}
			if err := tx.Exec(insert, attrs, string(gj)).Error; err != nil {
				return fmt.Errorf("insert feature %d: %w", i, err)
			}
		}
		messages.LogRows(component, "json to features", string(out), len(b.Features), 0)
		return nil
	})
}

func marshalAttributes(attrs map[string]any) (string, error) {
	if attrs == nil {
		return "{}", nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
