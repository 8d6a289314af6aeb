// Package tracts joins ACS statistics to census tract geometry, clips the
// result to a state boundary and writes it into a destination dataset.
package tracts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/EmpoweredVote/tract-census/internal/acs"
	"github.com/EmpoweredVote/tract-census/internal/boundary"
	"github.com/EmpoweredVote/tract-census/internal/config"
	"github.com/EmpoweredVote/tract-census/internal/gis"
	"github.com/EmpoweredVote/tract-census/internal/messages"
)

const component = "pipeline"

// Scratch datasets and temp files, recreated on every run.
const (
	ClippedDataset    gis.Dataset = "clipped"
	CSVTableDataset   gis.Dataset = "csv_table"
	NewTractsDataset  gis.Dataset = "new_tracts"
	TractsClipDataset gis.Dataset = "tracts_clip"
	FinalDataset      gis.Dataset = "final"

	CSVFileName  = "languages.csv"
	ClipFileName = "clip.json"

	// JoinKeyField is the text copy of GEO_ID the join runs on.
	JoinKeyField = "GID_TEXT"
	// TractKeyField is the tract layer's GEOID field.
	TractKeyField = "GEOID"
)

// Fetcher retrieves a JSON document, returning nil on any failure.
type Fetcher interface {
	Fetch(ctx context.Context, url string) json.RawMessage
}

// Options configures one join-and-merge run.
type Options struct {
	Destination gis.Dataset
	Tracts      gis.Dataset
	Fields      []string
	TempDir     string
	Reference   acs.ReferenceFields
}

// Pipeline drives the join/clip/merge sequence against a workspace.
type Pipeline struct {
	ws   gis.Workspace
	opts Options
}

// New creates a pipeline. An empty TempDir means os.TempDir().
func New(ws gis.Workspace, opts Options) *Pipeline {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Pipeline{ws: ws, opts: opts}
}

// Run performs a full update: destination field cleanup, both fetches, then
// JoinData. Neither fetch result is checked; a missing payload fails the
// first step that consumes it.
func Run(ctx context.Context, cfg config.Config, ws gis.Workspace, fetcher Fetcher) (MergeStats, error) {
	p := New(ws, Options{
		Destination: gis.Dataset(cfg.Destination),
		Tracts:      gis.Dataset(cfg.Tracts),
		Fields:      cfg.Fields,
		TempDir:     cfg.TempDir,
		Reference:   acs.DefaultReferenceFields(),
	})

	messages.LogStep(component, fmt.Sprintf("fields %v", cfg.Fields))
	if _, err := CleanupFields(ctx, ws, p.opts.Destination); err != nil {
		return MergeStats{}, err
	}

	url := acs.TractsURL(cfg.Year, cfg.Fields, cfg.StateFIPS, cfg.APIKey)
	messages.LogStep(component, acs.RedactURL(url))
	data := fetcher.Fetch(ctx, url)
	clip := fetcher.Fetch(ctx, cfg.BoundaryURL)

	return p.JoinData(ctx, data, clip)
}

func (p *Pipeline) tempPath(name string) string {
	return filepath.Join(p.opts.TempDir, name)
}

// JoinData runs the join/clip/merge sequence on fetched payloads. Any
// workspace error aborts the run.
func (p *Pipeline) JoinData(ctx context.Context, data, clip json.RawMessage) (MergeStats, error) {
	csvFile := p.tempPath(CSVFileName)
	clipJSON := p.tempPath(ClipFileName)
	defer os.Remove(csvFile)
	defer os.Remove(clipJSON)

	table, err := acs.ParseResponse(data)
	if err != nil {
		return MergeStats{}, fmt.Errorf("write %s: %w", CSVFileName, err)
	}
	geoCol := table.GeoIDColumn()
	if geoCol >= len(table.Header) {
		return MergeStats{}, fmt.Errorf("write %s: response has no GEO_ID column", CSVFileName)
	}
	if err := acs.WriteCSV(csvFile, table); err != nil {
		return MergeStats{}, fmt.Errorf("write %s: %w", CSVFileName, err)
	}
	if err := boundary.WriteFile(clipJSON, clip); err != nil {
		return MergeStats{}, fmt.Errorf("write %s: %w", ClipFileName, err)
	}

	messages.LogStep(component, "Processing Data...")

	if err := p.replace(ctx, ClippedDataset, func() error {
		return p.ws.JSONToFeatures(ctx, clipJSON, ClippedDataset)
	}); err != nil {
		return MergeStats{}, err
	}

	if err := p.replace(ctx, CSVTableDataset, func() error {
		return p.ws.CopyRows(ctx, csvFile, CSVTableDataset)
	}); err != nil {
		return MergeStats{}, err
	}
	if err := p.ws.AddField(ctx, CSVTableDataset, JoinKeyField, gis.FieldText); err != nil {
		return MergeStats{}, err
	}
	if err := p.ws.CalculateTextField(ctx, CSVTableDataset, JoinKeyField, table.Header[geoCol]); err != nil {
		return MergeStats{}, err
	}

	if err := p.replace(ctx, NewTractsDataset, func() error {
		return p.ws.JoinField(ctx, p.opts.Tracts, TractKeyField, CSVTableDataset, JoinKeyField, NewTractsDataset)
	}); err != nil {
		return MergeStats{}, err
	}
	if err := p.ws.DeleteFields(ctx, NewTractsDataset, []string{JoinKeyField}); err != nil {
		return MergeStats{}, err
	}

	if err := p.applyAliases(ctx, NewTractsDataset); err != nil {
		return MergeStats{}, err
	}

	if err := p.replace(ctx, TractsClipDataset, func() error {
		return p.ws.Clip(ctx, NewTractsDataset, ClippedDataset, TractsClipDataset)
	}); err != nil {
		return MergeStats{}, err
	}

	messages.LogStep(component, "Writing File...")
	if err := p.replace(ctx, FinalDataset, func() error {
		return p.ws.CopyFeatures(ctx, TractsClipDataset, FinalDataset)
	}); err != nil {
		return MergeStats{}, err
	}

	for _, ds := range []gis.Dataset{NewTractsDataset, TractsClipDataset, CSVTableDataset, ClippedDataset} {
		if err := p.ws.Delete(ctx, ds); err != nil {
			return MergeStats{}, err
		}
	}
	for _, f := range []string{csvFile, clipJSON} {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return MergeStats{}, err
		}
	}

	stats, err := MergeRows(ctx, p.ws, FinalDataset, p.opts.Destination)
	if err != nil {
		return stats, err
	}
	if err := p.ws.Delete(ctx, FinalDataset); err != nil {
		return stats, err
	}

	messages.LogStep(component, "Census data updated.")
	return stats, nil
}

// replace deletes ds if it exists, then creates it with create.
func (p *Pipeline) replace(ctx context.Context, ds gis.Dataset, create func() error) error {
	if err := gis.DeleteIfExists(ctx, p.ws, ds); err != nil {
		return err
	}
	return create()
}

// applyAliases labels the requested fields when they are exactly the
// reference list. Any other list keeps its raw codes.
func (p *Pipeline) applyAliases(ctx context.Context, ds gis.Dataset) error {
	aliases := p.opts.Reference.AliasesFor(p.opts.Fields)
	if aliases == nil {
		return nil
	}

	fields, err := p.ws.ListFields(ctx, ds)
	if err != nil {
		return err
	}
	for _, f := range fields {
		for i, code := range p.opts.Fields {
			if f.Name == code {
				if err := p.ws.AlterField(ctx, ds, f.Name, code, aliases[i]); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}
