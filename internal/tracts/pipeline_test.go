package tracts

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/EmpoweredVote/tract-census/internal/acs"
	"github.com/EmpoweredVote/tract-census/internal/boundary"
	"github.com/EmpoweredVote/tract-census/internal/config"
	"github.com/EmpoweredVote/tract-census/internal/gis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tractsDS gis.Dataset = "tiger.tracts"
	destDS   gis.Dataset = "gis.census_languages"
)

var stateBoundary = json.RawMessage(`{
	"geometryType": "esriGeometryPolygon",
	"spatialReference": {"wkid": 4326},
	"features": [
		{"attributes": {"STATE_FIPS": "55"},
		 "geometry": {"rings": [[[0,0],[0,10],[10,10],[10,0],[0,0]]]}}
	]
}`)

func tractFields() []gis.Field {
	return []gis.Field{
		{Name: "OBJECTID", Type: gis.FieldInteger},
		{Name: "GEOID", Type: gis.FieldText},
		{Name: "geom", Type: gis.FieldGeometry},
	}
}

func seedWorkspace() *memWorkspace {
	ws := newMemWorkspace()
	ws.tables[tractsDS] = &memTable{
		fields: tractFields(),
		rows: []gis.Row{
			{int64(1), "5500100100", nil},
			{int64(2), "5500100200", nil},
		},
	}
	ws.tables[destDS] = &memTable{
		fields: append(tractFields(),
			gis.Field{Name: "NAME", Type: gis.FieldText},
			gis.Field{Name: "GEO_ID", Type: gis.FieldText},
			gis.Field{Name: "B16001_001E", Type: gis.FieldText},
		),
		rows: []gis.Row{
			{int64(10), "5500100100", nil, "old", "old", "0"},
			{int64(11), "5500999999", nil, "keep", "keep", "7"},
		},
	}
	return ws
}

func newTestPipeline(t *testing.T, ws gis.Workspace, fields []string) *Pipeline {
	t.Helper()
	return New(ws, Options{
		Destination: destDS,
		Tracts:      tractsDS,
		Fields:      fields,
		TempDir:     t.TempDir(),
		Reference:   acs.DefaultReferenceFields(),
	})
}

func TestJoinData_OverwritesMatchingDestinationRows(t *testing.T) {
	ws := seedWorkspace()
	p := newTestPipeline(t, ws, []string{"B16001_001E"})

	data := json.RawMessage(`[["NAME","GEO_ID","B16001_001E"],["Tract1","14000US5500100100","42"]]`)
	stats, err := p.JoinData(context.Background(), data, stateBoundary)
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"NAME", "GEO_ID", "B16001_001E"},
		{"Tract1", "5500100100", "42"},
	}, ws.csvLoaded)

	assert.Equal(t, 2, stats.SourceRows)
	assert.Equal(t, 1, stats.Updated)

	dest := ws.tables[destDS]
	assert.Equal(t, gis.Row{int64(1), "5500100100", nil, "Tract1", "5500100100", "42"}, dest.rows[0])
	assert.Equal(t, gis.Row{int64(11), "5500999999", nil, "keep", "keep", "7"}, dest.rows[1])
}

func TestJoinData_RemovesIntermediates(t *testing.T) {
	ws := seedWorkspace()
	p := newTestPipeline(t, ws, []string{"B16001_001E"})

	data := json.RawMessage(`[["NAME","GEO_ID","B16001_001E"],["Tract1","14000US5500100100","42"]]`)
	_, err := p.JoinData(context.Background(), data, stateBoundary)
	require.NoError(t, err)

	var left []string
	for ds := range ws.tables {
		left = append(left, string(ds))
	}
	assert.ElementsMatch(t, []string{string(tractsDS), string(destDS)}, left)

	for _, name := range []string{CSVFileName, ClipFileName} {
		_, err := os.Stat(filepath.Join(p.opts.TempDir, name))
		assert.True(t, os.IsNotExist(err), "%s should be removed", name)
	}

	// The tract layer itself is never modified.
	assert.Equal(t, tractFields(), ws.tables[tractsDS].fields)
}

func TestJoinData_MissingBoundaryFailsAtConversion(t *testing.T) {
	ws := seedWorkspace()
	p := newTestPipeline(t, ws, []string{"B16001_001E"})

	data := json.RawMessage(`[["NAME","GEO_ID","B16001_001E"],["Tract1","14000US5500100100","42"]]`)
	_, err := p.JoinData(context.Background(), data, nil)
	require.ErrorIs(t, err, boundary.ErrNoGeometry)

	assert.Equal(t, []string{"JSONToFeatures clipped"}, ws.calls)
	assert.Equal(t, "old", ws.tables[destDS].rows[0][3])
}

func TestJoinData_MissingACSDataFails(t *testing.T) {
	ws := seedWorkspace()
	p := newTestPipeline(t, ws, []string{"B16001_001E"})

	_, err := p.JoinData(context.Background(), nil, stateBoundary)
	require.ErrorIs(t, err, acs.ErrNoData)
	assert.Empty(t, ws.calls)
}

func TestApplyAliases_ExactReferenceList(t *testing.T) {
	ref := acs.DefaultReferenceFields()
	ws := newMemWorkspace()
	tbl := &memTable{fields: []gis.Field{{Name: "NAME"}}}
	for _, code := range ref.Codes {
		tbl.fields = append(tbl.fields, gis.Field{Name: code})
	}
	ws.tables[NewTractsDataset] = tbl

	p := newTestPipeline(t, ws, ref.Codes)
	require.NoError(t, p.applyAliases(context.Background(), NewTractsDataset))

	assert.Empty(t, tbl.fields[0].Alias)
	for i, code := range ref.Codes {
		assert.Equal(t, code, tbl.fields[i+1].Name)
		assert.Equal(t, ref.Aliases[i], tbl.fields[i+1].Alias)
	}
}

func TestApplyAliases_OtherListsKeepCodes(t *testing.T) {
	ref := acs.DefaultReferenceFields()
	reordered := append([]string{ref.Codes[1], ref.Codes[0]}, ref.Codes[2:]...)

	for name, fields := range map[string][]string{
		"reordered": reordered,
		"subset":    ref.Codes[:3],
		"other":     {"B01003_001E"},
	} {
		t.Run(name, func(t *testing.T) {
			ws := newMemWorkspace()
			tbl := &memTable{}
			for _, code := range ref.Codes {
				tbl.fields = append(tbl.fields, gis.Field{Name: code})
			}
			ws.tables[NewTractsDataset] = tbl

			p := newTestPipeline(t, ws, fields)
			require.NoError(t, p.applyAliases(context.Background(), NewTractsDataset))

			for i, f := range tbl.fields {
				assert.Equal(t, ref.Codes[i], f.Name)
				assert.Empty(t, f.Alias)
			}
			assert.Empty(t, ws.calls)
		})
	}
}

// stubFetcher answers by URL prefix; unknown URLs fail like a 404.
type stubFetcher struct {
	responses map[string]json.RawMessage
	requested []string
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) json.RawMessage {
	s.requested = append(s.requested, url)
	for prefix, body := range s.responses {
		if strings.HasPrefix(url, prefix) {
			return body
		}
	}
	return nil
}

func TestRun_BoundaryFetchFailure(t *testing.T) {
	ws := seedWorkspace()
	dest := ws.tables[destDS]
	dest.fields = append(dest.fields, gis.Field{Name: "OLD_1"})
	for i := range dest.rows {
		dest.rows[i] = append(dest.rows[i], "stale")
	}

	cfg := config.Config{
		Destination: string(destDS),
		Tracts:      string(tractsDS),
		APIKey:      "secret",
		Fields:      []string{"B16001_001E"},
		Year:        "2021",
		StateFIPS:   "55",
		BoundaryURL: "https://boundary.example/query",
		TempDir:     t.TempDir(),
	}
	fetcher := &stubFetcher{responses: map[string]json.RawMessage{
		acs.BaseURL: json.RawMessage(`[["NAME","GEO_ID","B16001_001E"],["Tract1","14000US5500100100","42"]]`),
	}}

	_, err := Run(context.Background(), cfg, ws, fetcher)
	require.ErrorIs(t, err, boundary.ErrNoGeometry)

	require.Len(t, fetcher.requested, 2)
	assert.Equal(t,
		"https://api.census.gov/data/2021/acs/acs5?get=NAME,GEO_ID,B16001_001E&for=tract:*&in=state:55&key=secret",
		fetcher.requested[0])
	assert.Equal(t, cfg.BoundaryURL, fetcher.requested[1])

	// Cleanup ran before the fetches; the rows themselves were not touched.
	assert.Equal(t, -1, dest.index("OLD_1"))
	assert.Equal(t, "old", dest.rows[0][3])
}
