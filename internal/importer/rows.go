package importer

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/meridian-steel/registry-cli/internal/model"
)

// columnMap resolves header names to column indexes. Header matching is
// case-insensitive and tolerates spaces and underscores.
type columnMap map[string]int

func buildColumnMap(header []string) columnMap {
	m := make(columnMap, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		key = strings.ReplaceAll(key, " ", "_")
		m[key] = i
	}
	return m
}

func (m columnMap) get(record []string, names ...string) string {
	for _, name := range names {
		if i, ok := m[name]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
	}
	return ""
}

func mapRow(cols columnMap, record []string, line int) companyRow {
	return companyRow{
		line: line,
		company: model.Company{
			Name: cols.get(record, "name", "company_name", "entity_name"),
			ABN:  cols.get(record, "abn"),
			Address: model.Address{
				Street:   cols.get(record, "street", "address"),
				City:     cols.get(record, "city", "suburb"),
				State:    cols.get(record, "state"),
				Postcode: cols.get(record, "postcode", "post_code"),
				Country:  cols.get(record, "country"),
			},
			Contact: model.Contact{
				Name:  cols.get(record, "contact_name"),
				Email: cols.get(record, "contact_email", "email"),
				Phone: cols.get(record, "contact_phone", "phone"),
			},
		},
	}
}

// streamCSVRows reads a headered CSV and sends mapped rows to a
// channel. Both channels close when the file is exhausted.
func streamCSVRows(ctx context.Context, path string) (<-chan companyRow, <-chan error) {
	rowCh := make(chan companyRow, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		f, err := os.Open(path)
		if err != nil {
			errCh <- eris.Wrap(err, "importer: open csv")
			return
		}
		defer f.Close() //nolint:errcheck

		reader := csv.NewReader(f)
		reader.FieldsPerRecord = -1

		header, err := reader.Read()
		if err != nil {
			errCh <- eris.Wrap(err, "importer: read csv header")
			return
		}
		cols := buildColumnMap(header)

		line := 1
		for {
			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "importer: read csv row")
				return
			}
			line++

			select {
			case rowCh <- mapRow(cols, record, line):
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "importer: cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// streamXLSXRows reads the first sheet of an XLSX workbook, treating
// the first row as the header.
func streamXLSXRows(ctx context.Context, path string) (<-chan companyRow, <-chan error) {
	rowCh := make(chan companyRow, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		f, err := xlsx.OpenFile(path)
		if err != nil {
			errCh <- eris.Wrap(err, "importer: open xlsx")
			return
		}
		if len(f.Sheets) == 0 {
			errCh <- eris.New("importer: xlsx has no sheets")
			return
		}

		var cols columnMap
		for i, row := range f.Sheets[0].Rows {
			cells := make([]string, len(row.Cells))
			for j, cell := range row.Cells {
				cells[j] = cell.String()
			}

			if i == 0 {
				cols = buildColumnMap(cells)
				continue
			}

			select {
			case rowCh <- mapRow(cols, cells, i+1):
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "importer: cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// extractSingle extracts the one data file a registry extract archive
// contains. Paths are checked against zip slip.
func extractSingle(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "importer: open archive")
	}
	defer r.Close() //nolint:errcheck

	var files []*zip.File
	for _, f := range r.File {
		if !f.FileInfo().IsDir() {
			files = append(files, f)
		}
	}
	if len(files) != 1 {
		return "", eris.Errorf("importer: expected exactly 1 file in archive, got %d", len(files))
	}

	f := files[0]
	destPath := filepath.Join(destDir, filepath.Base(f.Name))
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("importer: illegal archive path %q", f.Name)
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "importer: open archive entry")
	}
	defer rc.Close() //nolint:errcheck

	if err := writeFile(destPath, rc); err != nil {
		return "", err
	}
	return destPath, nil
}
