// Package gis defines the feature-class operations the tract updater drives.
// A Workspace owns datasets (tables, optionally with geometry) addressed by
// name; unqualified names live in the workspace's scratch area.
package gis

import (
	"context"
	"errors"
	"strings"
)

// Common errors
var (
	ErrNotFound = errors.New("dataset does not exist")
	ErrRowWidth = errors.New("row width does not match dataset fields")
)

// Dataset names a feature class or table. "schema.table" is qualified;
// a bare name lives in the scratch workspace.
type Dataset string

// Split returns the schema (empty for scratch datasets) and table name.
func (d Dataset) Split() (schema, table string) {
	s := string(d)
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[:i], s[i+1:]
	}
	return "", s
}

// FieldType is a column type understood by every workspace.
type FieldType string

const (
	FieldText     FieldType = "TEXT"
	FieldInteger  FieldType = "LONG"
	FieldDouble   FieldType = "DOUBLE"
	FieldGeometry FieldType = "GEOMETRY"
	FieldOther    FieldType = "OTHER"
)

// Field describes one column of a dataset.
type Field struct {
	Name  string
	Alias string
	Type  FieldType
}

// Row holds one dataset row, values in field order.
type Row []any

// UpdateFunc receives each row of an update pass. Returning ok=true writes
// the returned row back in place of the original.
type UpdateFunc func(row Row) (updated Row, ok bool, err error)

// Workspace is the set of toolkit operations the pipeline uses.
type Workspace interface {
	Exists(ctx context.Context, ds Dataset) (bool, error)
	Delete(ctx context.Context, ds Dataset) error

	ListFields(ctx context.Context, ds Dataset) ([]Field, error)
	AddField(ctx context.Context, ds Dataset, name string, typ FieldType) error
	DeleteFields(ctx context.Context, ds Dataset, names []string) error
	// AlterField renames a field and sets its alias.
	AlterField(ctx context.Context, ds Dataset, field, newName, alias string) error
	// CalculateTextField fills target with the text form of source.
	CalculateTextField(ctx context.Context, ds Dataset, target, source string) error

	// JSONToFeatures converts an Esri JSON file to a geometry dataset.
	JSONToFeatures(ctx context.Context, jsonPath string, out Dataset) error
	// CopyRows loads a CSV file with a header row into a table.
	CopyRows(ctx context.Context, csvPath string, out Dataset) error
	CopyFeatures(ctx context.Context, in, out Dataset) error
	// JoinField materialises target left-joined to join on targetKey = joinKey.
	// Join fields already present on target are not repeated.
	JoinField(ctx context.Context, target Dataset, targetKey string, join Dataset, joinKey string, out Dataset) error
	// Clip keeps the parts of in that fall inside clip.
	Clip(ctx context.Context, in, clip, out Dataset) error

	// SearchRows reads every row of ds in storage order.
	SearchRows(ctx context.Context, ds Dataset) ([]Row, error)
	// UpdateRows visits every row of ds and returns how many were rewritten.
	UpdateRows(ctx context.Context, ds Dataset, fn UpdateFunc) (int, error)
}

// DeleteIfExists is the guard run before every dataset is (re)created.
func DeleteIfExists(ctx context.Context, ws Workspace, ds Dataset) error {
	ok, err := ws.Exists(ctx, ds)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return ws.Delete(ctx, ds)
}
