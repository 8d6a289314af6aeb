package tracts

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"slices"

	"github.com/EmpoweredVote/tract-census/internal/boundary"
	"github.com/EmpoweredVote/tract-census/internal/gis"
)

// memTable is one in-memory dataset.
type memTable struct {
	fields []gis.Field
	rows   []gis.Row
}

func (t *memTable) index(name string) int {
	for i, f := range t.fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (t *memTable) clone() *memTable {
	out := &memTable{fields: slices.Clone(t.fields)}
	for _, r := range t.rows {
		out.rows = append(out.rows, slices.Clone(r))
	}
	return out
}

// memWorkspace implements gis.Workspace without a database. Clip keeps every
// feature; geometry is not evaluated.
type memWorkspace struct {
	tables map[gis.Dataset]*memTable
	calls  []string

	// csvLoaded keeps the raw records CopyRows saw.
	csvLoaded [][]string

	deleteFieldsErr error
}

var _ gis.Workspace = (*memWorkspace)(nil)

func newMemWorkspace() *memWorkspace {
	return &memWorkspace{tables: map[gis.Dataset]*memTable{}}
}

func (m *memWorkspace) record(format string, args ...any) {
	m.calls = append(m.calls, fmt.Sprintf(format, args...))
}

func (m *memWorkspace) get(ds gis.Dataset) (*memTable, error) {
	t, ok := m.tables[ds]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ds, gis.ErrNotFound)
	}
	return t, nil
}

func (m *memWorkspace) create(ds gis.Dataset, t *memTable) error {
	if _, ok := m.tables[ds]; ok {
		return fmt.Errorf("%s already exists", ds)
	}
	m.tables[ds] = t
	return nil
}

func (m *memWorkspace) Exists(ctx context.Context, ds gis.Dataset) (bool, error) {
	_, ok := m.tables[ds]
	return ok, nil
}

func (m *memWorkspace) Delete(ctx context.Context, ds gis.Dataset) error {
	m.record("Delete %s", ds)
	delete(m.tables, ds)
	return nil
}

func (m *memWorkspace) ListFields(ctx context.Context, ds gis.Dataset) ([]gis.Field, error) {
	t, err := m.get(ds)
	if err != nil {
		return nil, err
	}
	return slices.Clone(t.fields), nil
}

func (m *memWorkspace) AddField(ctx context.Context, ds gis.Dataset, name string, typ gis.FieldType) error {
	m.record("AddField %s %s", ds, name)
	t, err := m.get(ds)
	if err != nil {
		return err
	}
	t.fields = append(t.fields, gis.Field{Name: name, Type: typ})
	for i := range t.rows {
		t.rows[i] = append(t.rows[i], nil)
	}
	return nil
}

func (m *memWorkspace) DeleteFields(ctx context.Context, ds gis.Dataset, names []string) error {
	m.record("DeleteFields %s %v", ds, names)
	if m.deleteFieldsErr != nil {
		return m.deleteFieldsErr
	}
	t, err := m.get(ds)
	if err != nil {
		return err
	}
	for _, n := range names {
		i := t.index(n)
		if i < 0 {
			return fmt.Errorf("field %s not found", n)
		}
		t.fields = slices.Delete(t.fields, i, i+1)
		for r := range t.rows {
			t.rows[r] = slices.Delete(t.rows[r], i, i+1)
		}
	}
	return nil
}

func (m *memWorkspace) AlterField(ctx context.Context, ds gis.Dataset, field, newName, alias string) error {
	m.record("AlterField %s %s", ds, field)
	t, err := m.get(ds)
	if err != nil {
		return err
	}
	i := t.index(field)
	if i < 0 {
		return fmt.Errorf("field %s not found", field)
	}
	if newName != "" {
		t.fields[i].Name = newName
	}
	t.fields[i].Alias = alias
	return nil
}

func (m *memWorkspace) CalculateTextField(ctx context.Context, ds gis.Dataset, target, source string) error {
	t, err := m.get(ds)
	if err != nil {
		return err
	}
	ti, si := t.index(target), t.index(source)
	if ti < 0 || si < 0 {
		return fmt.Errorf("calculate %s from %s: field missing", target, source)
	}
	for _, r := range t.rows {
		if s, ok := gis.KeyString(r[si]); ok {
			r[ti] = s
		}
	}
	return nil
}

func (m *memWorkspace) JSONToFeatures(ctx context.Context, jsonPath string, out gis.Dataset) error {
	m.record("JSONToFeatures %s", out)
	b, err := boundary.ReadFile(jsonPath)
	if err != nil {
		return err
	}
	t := &memTable{fields: []gis.Field{
		{Name: "objectid", Type: gis.FieldInteger},
		{Name: "geom", Type: gis.FieldGeometry},
	}}
	for i, f := range b.Features {
		t.rows = append(t.rows, gis.Row{int64(i + 1), f.Geometry})
	}
	return m.create(out, t)
}

func (m *memWorkspace) CopyRows(ctx context.Context, csvPath string, out gis.Dataset) error {
	m.record("CopyRows %s", out)
	f, err := os.Open(csvPath)
	if err != nil {
		return err
	}
	defer f.Close()
	records, err := csv.NewReader(bufio.NewReader(f)).ReadAll()
	if err != nil {
		return err
	}
	m.csvLoaded = records

	t := &memTable{}
	for _, h := range records[0] {
		t.fields = append(t.fields, gis.Field{Name: h, Type: gis.FieldText})
	}
	for _, rec := range records[1:] {
		row := make(gis.Row, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		t.rows = append(t.rows, row)
	}
	return m.create(out, t)
}

func (m *memWorkspace) CopyFeatures(ctx context.Context, in, out gis.Dataset) error {
	m.record("CopyFeatures %s %s", in, out)
	t, err := m.get(in)
	if err != nil {
		return err
	}
	return m.create(out, t.clone())
}

func (m *memWorkspace) JoinField(ctx context.Context, target gis.Dataset, targetKey string, join gis.Dataset, joinKey string, out gis.Dataset) error {
	m.record("JoinField %s %s", target, join)
	tt, err := m.get(target)
	if err != nil {
		return err
	}
	jt, err := m.get(join)
	if err != nil {
		return err
	}
	tk, jk := tt.index(targetKey), jt.index(joinKey)
	if tk < 0 || jk < 0 {
		return fmt.Errorf("join key missing")
	}

	res := tt.clone()
	var extra []int
	for i, f := range jt.fields {
		if tt.index(f.Name) >= 0 {
			continue
		}
		extra = append(extra, i)
		res.fields = append(res.fields, f)
	}
	for r, row := range res.rows {
		key, _ := gis.KeyString(row[tk])
		var match gis.Row
		for _, jrow := range jt.rows {
			if k, ok := gis.KeyString(jrow[jk]); ok && k == key {
				match = jrow
				break
			}
		}
		for _, i := range extra {
			if match == nil {
				res.rows[r] = append(res.rows[r], nil)
			} else {
				res.rows[r] = append(res.rows[r], match[i])
			}
		}
	}
	return m.create(out, res)
}

func (m *memWorkspace) Clip(ctx context.Context, in, clip, out gis.Dataset) error {
	m.record("Clip %s %s", in, clip)
	t, err := m.get(in)
	if err != nil {
		return err
	}
	if _, err := m.get(clip); err != nil {
		return err
	}
	return m.create(out, t.clone())
}

func (m *memWorkspace) SearchRows(ctx context.Context, ds gis.Dataset) ([]gis.Row, error) {
	t, err := m.get(ds)
	if err != nil {
		return nil, err
	}
	return t.clone().rows, nil
}

func (m *memWorkspace) UpdateRows(ctx context.Context, ds gis.Dataset, fn gis.UpdateFunc) (int, error) {
	t, err := m.get(ds)
	if err != nil {
		return 0, err
	}
	n := 0
	for i, r := range t.rows {
		next, ok, err := fn(slices.Clone(r))
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		if len(next) != len(t.fields) {
			return n, gis.ErrRowWidth
		}
		t.rows[i] = next
		n++
	}
	return n, nil
}
