package postgis_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/EmpoweredVote/tract-census/internal/acs"
	"github.com/EmpoweredVote/tract-census/internal/db"
	"github.com/EmpoweredVote/tract-census/internal/gis"
	"github.com/EmpoweredVote/tract-census/internal/gis/postgis"
	"github.com/EmpoweredVote/tract-census/internal/tracts"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dbAvailable tracks whether the database connection was established.
var dbAvailable bool

func TestMain(m *testing.M) {
	// Load .env.local from the repository root.
	_ = godotenv.Load("../../../.env.local")

	if os.Getenv("DATABASE_URL") == "" {
		os.Exit(m.Run())
	}
	if _, err := db.Connect(os.Getenv("DATABASE_URL")); err != nil {
		panic(err)
	}
	dbAvailable = true
	os.Exit(m.Run())
}

func openWorkspace(t *testing.T) *postgis.Workspace {
	t.Helper()
	if !dbAvailable {
		t.Skip("skipping integration test (requires DATABASE_URL)")
	}
	ctx := context.Background()
	ws, err := postgis.Open(ctx, db.DB)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close(context.Background()) })
	return ws
}

func execSQL(t *testing.T, sql string) {
	t.Helper()
	require.NoError(t, db.DB.Exec(sql).Error)
}

func TestWorkspace_JoinClipMerge(t *testing.T) {
	ws := openWorkspace(t)
	ctx := context.Background()
	s := `"` + ws.Scratch() + `"`

	execSQL(t, `CREATE TABLE `+s+`.tracts (objectid int, "GEOID" text, geom geometry(MultiPolygon, 4326))`)
	execSQL(t, `INSERT INTO `+s+`.tracts VALUES
		(1, '5500100100', ST_GeomFromText('MULTIPOLYGON(((1 1, 1 3, 3 3, 3 1, 1 1)))', 4326)),
		(2, '5500100200', ST_GeomFromText('MULTIPOLYGON(((5 5, 5 12, 12 12, 12 5, 5 5)))', 4326)),
		(3, '5500100300', ST_GeomFromText('MULTIPOLYGON(((50 50, 50 51, 51 51, 51 50, 50 50)))', 4326))`)
	execSQL(t, `CREATE TABLE `+s+`.dest (objectid int, "GEOID" text, geom geometry(MultiPolygon, 4326),
		"NAME" text, "GEO_ID" bigint, "B16001_001E" bigint)`)
	execSQL(t, `INSERT INTO `+s+`.dest VALUES
		(10, '5500100100', NULL, 'old', NULL, 0),
		(11, '5500999999', NULL, 'keep', NULL, 7)`)

	p := tracts.New(ws, tracts.Options{
		Destination: "dest",
		Tracts:      "tracts",
		Fields:      []string{"B16001_001E"},
		TempDir:     t.TempDir(),
		Reference:   acs.DefaultReferenceFields(),
	})

	data := json.RawMessage(`[["NAME","GEO_ID","B16001_001E"],
		["Tract1","14000US5500100100","42"],
		["Tract2","14000US5500100200","9"]]`)
	clip := json.RawMessage(`{"spatialReference":{"wkid":4326},
		"features":[{"attributes":{},"geometry":{"rings":[[[0,0],[0,10],[10,10],[10,0],[0,0]]]}}]}`)

	stats, err := p.JoinData(ctx, data, clip)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.SourceRows, "tract outside the boundary is clipped away")
	assert.Equal(t, 1, stats.Updated)

	rows, err := ws.SearchRows(ctx, "dest")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byKey := map[string]gis.Row{}
	for _, r := range rows {
		k, _ := gis.KeyString(r[1])
		byKey[k] = r
	}
	updated := byKey["5500100100"]
	require.NotNil(t, updated)
	assert.Equal(t, "Tract1", updated[3])
	assert.Equal(t, int64(42), updated[5])
	assert.NotNil(t, updated[2], "geometry copied from the clipped tract")

	kept := byKey["5500999999"]
	assert.Equal(t, "keep", kept[3])
	assert.Equal(t, int64(7), kept[5])

	for _, ds := range []gis.Dataset{tracts.ClippedDataset, tracts.CSVTableDataset, tracts.NewTractsDataset, tracts.TractsClipDataset, tracts.FinalDataset} {
		ok, err := ws.Exists(ctx, ds)
		require.NoError(t, err)
		assert.False(t, ok, "%s should be removed", ds)
	}
}

func TestWorkspace_FieldOperations(t *testing.T) {
	ws := openWorkspace(t)
	ctx := context.Background()
	s := `"` + ws.Scratch() + `"`

	execSQL(t, `CREATE TABLE `+s+`.fc (objectid int, "GEOID" text, "POP_1" bigint, "B16001_001E" bigint)`)

	deleted, err := tracts.CleanupFields(ctx, ws, "fc")
	require.NoError(t, err)
	assert.Equal(t, []string{"POP_1"}, deleted)

	require.NoError(t, ws.AddField(ctx, "fc", "GID_TEXT", gis.FieldText))
	require.NoError(t, ws.AlterField(ctx, "fc", "B16001_001E", "B16001_001E", "Total - 5+ yrs of age"))

	fields, err := ws.ListFields(ctx, "fc")
	require.NoError(t, err)
	require.Len(t, fields, 4)
	assert.Equal(t, gis.Field{Name: "B16001_001E", Alias: "Total - 5+ yrs of age", Type: gis.FieldInteger}, fields[2])
	assert.Equal(t, gis.Field{Name: "GID_TEXT", Type: gis.FieldText}, fields[3])

	_, err = ws.ListFields(ctx, "missing")
	assert.ErrorIs(t, err, gis.ErrNotFound)
}
