package importer

import (
	"archive/zip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/meridian-steel/registry-cli/internal/model"
	"github.com/meridian-steel/registry-cli/internal/store"
)

const sampleCSV = `name,abn,state,contact_email
Beta Steel,51 824 753 556,NSW,dana@example.com
Acme Fabrication,,VIC,ops@acme.example.com
Bad Checksum Pty Ltd,51824753557,QLD,bad@example.com
,11111111111,NSW,noname@example.com
`

func newTestImporter(t *testing.T) (*Importer, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	return New(st, Options{TempDir: t.TempDir(), Workers: 2}), st
}

func writeSampleCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "companies.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))
	return path
}

func TestImportCSV(t *testing.T) {
	im, st := newTestImporter(t)
	ctx := context.Background()

	report, err := im.Run(ctx, writeSampleCSV(t))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 1, report.SkippedInvalidABN)
	assert.Equal(t, 1, report.SkippedNoName)

	got, err := st.CompaniesByABN(ctx, "51824753556")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Beta Steel", got[0].Name)
	assert.Equal(t, model.CompanyApproved, got[0].Status, "imported rows are pre-approved")
}

func TestImportCSV_DuplicateABNSkipped(t *testing.T) {
	im, _ := newTestImporter(t)
	ctx := context.Background()

	_, err := im.Run(ctx, writeSampleCSV(t))
	require.NoError(t, err)

	report, err := im.Run(ctx, writeSampleCSV(t))
	require.NoError(t, err)
	assert.Equal(t, 1, report.SkippedDuplicate, "abn row already present")
	// The ABN-less row has nothing to dedup on and imports again.
	assert.Equal(t, 1, report.Created)
}

func TestImportCSV_SuffixVariantsDedupedWithinBatch(t *testing.T) {
	im, _ := newTestImporter(t)

	csv := "name,abn\nAcme Fabrication,\nAcme Fabrication Pty Ltd,\n"
	path := filepath.Join(t.TempDir(), "companies.csv")
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	report, err := im.Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.SkippedDuplicate)
}

func TestImportXLSX(t *testing.T) {
	im, _ := newTestImporter(t)

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Companies")
	require.NoError(t, err)
	for _, row := range [][]string{
		{"Name", "ABN", "State"},
		{"Beta Steel", "51824753556", "NSW"},
	} {
		r := sheet.AddRow()
		for _, v := range row {
			r.AddCell().Value = v
		}
	}
	path := filepath.Join(t.TempDir(), "companies.xlsx")
	require.NoError(t, f.Save(path))

	report, err := im.Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
}

func TestImportZIP(t *testing.T) {
	im, _ := newTestImporter(t)

	zipPath := filepath.Join(t.TempDir(), "extract.zip")
	zf, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(zf)
	w, err := zw.Create("companies.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte(sampleCSV))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, zf.Close())

	report, err := im.Run(context.Background(), zipPath)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)
}

func TestImportHTTP(t *testing.T) {
	im, _ := newTestImporter(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleCSV)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	report, err := im.Run(context.Background(), srv.URL+"/companies.csv")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)
}

func TestImport_MissingSource(t *testing.T) {
	im, _ := newTestImporter(t)

	_, err := im.Run(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestImport_UnsupportedType(t *testing.T) {
	im, _ := newTestImporter(t)

	path := filepath.Join(t.TempDir(), "companies.txt")
	require.NoError(t, os.WriteFile(path, []byte("not a table"), 0o644))

	_, err := im.Run(context.Background(), path)
	assert.Error(t, err)
}
