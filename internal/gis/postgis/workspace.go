// Package postgis implements gis.Workspace on a PostGIS database. Every
// dataset is a table; unqualified datasets live in a per-run scratch schema.
package postgis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/EmpoweredVote/tract-census/internal/db"
	"github.com/EmpoweredVote/tract-census/internal/gis"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Workspace is a PostGIS-backed gis.Workspace.
type Workspace struct {
	db      *gorm.DB
	scratch string
}

var _ gis.Workspace = (*Workspace)(nil)

// Open creates a uniquely named scratch schema for this run.
func Open(ctx context.Context, d *gorm.DB) (*Workspace, error) {
	name := "scratch_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if err := db.EnsurePostGIS(d.WithContext(ctx)); err != nil {
		return nil, fmt.Errorf("enable postgis: %w", err)
	}
	if err := db.EnsureSchema(d.WithContext(ctx), name); err != nil {
		return nil, fmt.Errorf("create scratch schema: %w", err)
	}
	log.Printf("[postgis] scratch workspace %s", name)
	return &Workspace{db: d, scratch: name}, nil
}

// Scratch returns the scratch schema name.
func (w *Workspace) Scratch() string { return w.scratch }

// Close drops the scratch schema and everything left in it.
func (w *Workspace) Close(ctx context.Context) error {
	return db.DropSchema(w.db.WithContext(ctx), w.scratch)
}

func (w *Workspace) split(ds gis.Dataset) (schema, table string) {
	schema, table = ds.Split()
	if schema == "" {
		schema = w.scratch
	}
	return schema, table
}

// ident returns the quoted, schema-qualified table name.
func (w *Workspace) ident(ds gis.Dataset) string {
	schema, table := w.split(ds)
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
}

func (w *Workspace) exec(ctx context.Context, sql string, args ...any) error {
	return w.db.WithContext(ctx).Exec(sql, args...).Error
}

func (w *Workspace) Exists(ctx context.Context, ds gis.Dataset) (bool, error) {
	var ok bool
	err := w.db.WithContext(ctx).
		Raw(`SELECT to_regclass(?) IS NOT NULL`, w.ident(ds)).
		Row().Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", ds, err)
	}
	return ok, nil
}

func (w *Workspace) Delete(ctx context.Context, ds gis.Dataset) error {
	if err := w.exec(ctx, `DROP TABLE IF EXISTS `+w.ident(ds)+` CASCADE`); err != nil {
		return fmt.Errorf("delete %s: %w", ds, err)
	}
	return nil
}

type column struct {
	Name    string
	TypName string
	SQLType string
	Comment string
}

func (w *Workspace) columns(ctx context.Context, ds gis.Dataset) ([]column, error) {
	ok, err := w.Exists(ctx, ds)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", ds, gis.ErrNotFound)
	}

	rows, err := w.db.WithContext(ctx).Raw(`
		SELECT a.attname,
		       t.typname,
		       format_type(a.atttypid, a.atttypmod),
		       COALESCE(col_description(a.attrelid, a.attnum), '')
		FROM pg_attribute a
		JOIN pg_type t ON t.oid = a.atttypid
		WHERE a.attrelid = ?::regclass
		  AND a.attnum > 0
		  AND NOT a.attisdropped
		ORDER BY a.attnum
	`, w.ident(ds)).Rows()
	if err != nil {
		return nil, fmt.Errorf("list fields %s: %w", ds, err)
	}
	defer rows.Close()

	var cols []column
	for rows.Next() {
		var c column
		if err := rows.Scan(&c.Name, &c.TypName, &c.SQLType, &c.Comment); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func fieldType(typName string) gis.FieldType {
	switch typName {
	case "text", "varchar", "bpchar":
		return gis.FieldText
	case "int2", "int4", "int8":
		return gis.FieldInteger
	case "float4", "float8", "numeric":
		return gis.FieldDouble
	case "geometry":
		return gis.FieldGeometry
	default:
		return gis.FieldOther
	}
}

func sqlType(t gis.FieldType) (string, error) {
	switch t {
	case gis.FieldText:
		return "text", nil
	case gis.FieldInteger:
		return "bigint", nil
	case gis.FieldDouble:
		return "double precision", nil
	case gis.FieldGeometry:
		return "geometry", nil
	default:
		return "", fmt.Errorf("unsupported field type %q", t)
	}
}

func (w *Workspace) ListFields(ctx context.Context, ds gis.Dataset) ([]gis.Field, error) {
	cols, err := w.columns(ctx, ds)
	if err != nil {
		return nil, err
	}
	out := make([]gis.Field, 0, len(cols))
	for _, c := range cols {
		out = append(out, gis.Field{Name: c.Name, Alias: c.Comment, Type: fieldType(c.TypName)})
	}
	return out, nil
}

func (w *Workspace) AddField(ctx context.Context, ds gis.Dataset, name string, typ gis.FieldType) error {
	st, err := sqlType(typ)
	if err != nil {
		return err
	}
	sql := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, w.ident(ds), pq.QuoteIdentifier(name), st)
	if err := w.exec(ctx, sql); err != nil {
		return fmt.Errorf("add field %s.%s: %w", ds, name, err)
	}
	return nil
}

// DeleteFields drops all names in one statement, so either all go or none do.
func (w *Workspace) DeleteFields(ctx context.Context, ds gis.Dataset, names []string) error {
	if len(names) == 0 {
		return nil
	}
	drops := make([]string, 0, len(names))
	for _, n := range names {
		drops = append(drops, "DROP COLUMN "+pq.QuoteIdentifier(n))
	}
	sql := fmt.Sprintf(`ALTER TABLE %s %s`, w.ident(ds), strings.Join(drops, ", "))
	if err := w.exec(ctx, sql); err != nil {
		return fmt.Errorf("delete fields %v from %s: %w", names, ds, err)
	}
	return nil
}

// AlterField renames a column and records the alias as its comment.
func (w *Workspace) AlterField(ctx context.Context, ds gis.Dataset, field, newName, alias string) error {
	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if newName != "" && newName != field {
			sql := fmt.Sprintf(`ALTER TABLE %s RENAME COLUMN %s TO %s`,
				w.ident(ds), pq.QuoteIdentifier(field), pq.QuoteIdentifier(newName))
			if err := tx.Exec(sql).Error; err != nil {
				return fmt.Errorf("rename %s.%s: %w", ds, field, err)
			}
			field = newName
		}
		if alias == "" {
			return nil
		}
		// COMMENT takes no bind parameters.
		sql := fmt.Sprintf(`COMMENT ON COLUMN %s.%s IS %s`,
			w.ident(ds), pq.QuoteIdentifier(field), pq.QuoteLiteral(alias))
		if err := tx.Exec(sql).Error; err != nil {
			return fmt.Errorf("alias %s.%s: %w", ds, field, err)
		}
		return nil
	})
}

func (w *Workspace) CalculateTextField(ctx context.Context, ds gis.Dataset, target, source string) error {
	sql := fmt.Sprintf(`UPDATE %s SET %s = %s::text`,
		w.ident(ds), pq.QuoteIdentifier(target), pq.QuoteIdentifier(source))
	if err := w.exec(ctx, sql); err != nil {
		return fmt.Errorf("calculate %s.%s: %w", ds, target, err)
	}
	return nil
}

// carryAliases copies column comments from in to same-named columns of out.
// CREATE TABLE AS does not keep them.
func (w *Workspace) carryAliases(ctx context.Context, in, out gis.Dataset) error {
	src, err := w.columns(ctx, in)
	if err != nil {
		return err
	}
	for _, c := range src {
		if c.Comment == "" {
			continue
		}
		sql := fmt.Sprintf(`COMMENT ON COLUMN %s.%s IS %s`,
			w.ident(out), pq.QuoteIdentifier(c.Name), pq.QuoteLiteral(c.Comment))
		if err := w.exec(ctx, sql); err != nil {
			// The column may have been dropped by the operation.
			if isUndefinedColumn(err) {
				continue
			}
			return fmt.Errorf("carry alias %s.%s: %w", out, c.Name, err)
		}
	}
	return nil
}

// undefined_column
const codeUndefinedColumn = "42703"

func isUndefinedColumn(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUndefinedColumn
}
