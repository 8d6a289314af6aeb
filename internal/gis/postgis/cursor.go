package postgis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/EmpoweredVote/tract-census/internal/gis"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

func (w *Workspace) SearchRows(ctx context.Context, ds gis.Dataset) ([]gis.Row, error) {
	rows, err := w.db.WithContext(ctx).Raw(`SELECT * FROM ` + w.ident(ds) + ` ORDER BY ctid`).Rows()
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", ds, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []gis.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", ds, err)
		}
		out = append(out, gis.Row(vals))
	}
	return out, rows.Err()
}

// UpdateRows reads the whole dataset under FOR UPDATE, then writes back the
// rows fn changes, addressing each by ctid. Values are bound as text and cast
// to the column type so rows read from another dataset can be written as-is.
func (w *Workspace) UpdateRows(ctx context.Context, ds gis.Dataset, fn gis.UpdateFunc) (int, error) {
	cols, err := w.columns(ctx, ds)
	if err != nil {
		return 0, err
	}

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = CAST(? AS text)::%s", pq.QuoteIdentifier(c.Name), c.SQLType)
	}
	update := fmt.Sprintf(`UPDATE %s SET %s WHERE ctid = ?::tid`, w.ident(ds), strings.Join(sets, ", "))

	updated := 0
	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		type located struct {
			ctid string
			row  gis.Row
		}

		rows, err := tx.Raw(`SELECT ctid::text, * FROM ` + w.ident(ds) + ` ORDER BY ctid FOR UPDATE`).Rows()
		if err != nil {
			return fmt.Errorf("update cursor %s: %w", ds, err)
		}
		var all []located
		for rows.Next() {
			var ctid string
			vals := make([]any, len(cols))
			ptrs := make([]any, len(cols)+1)
			ptrs[0] = &ctid
			for i := range vals {
				ptrs[i+1] = &vals[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				rows.Close()
				return fmt.Errorf("scan %s: %w", ds, err)
			}
			all = append(all, located{ctid: ctid, row: vals})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, l := range all {
			next, ok, err := fn(l.row)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if len(next) != len(cols) {
				return fmt.Errorf("%s: got %d values for %d fields: %w", ds, len(next), len(cols), gis.ErrRowWidth)
			}
			args := make([]any, 0, len(next)+1)
			for _, v := range next {
				args = append(args, textValue(v))
			}
			args = append(args, l.ctid)
			if err := tx.Exec(update, args...).Error; err != nil {
				return fmt.Errorf("update %s row %s: %w", ds, l.ctid, err)
			}
			updated++
		}
		return nil
	})
	return updated, err
}

// textValue renders a scanned value in a form PostgreSQL can cast back.
func textValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}
