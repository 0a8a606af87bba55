// Package importer bulk-loads company records from CSV or XLSX extracts,
// local or remote, into the registry store.
package importer

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-steel/registry-cli/internal/abn"
	"github.com/meridian-steel/registry-cli/internal/match"
	"github.com/meridian-steel/registry-cli/internal/model"
	"github.com/meridian-steel/registry-cli/internal/store"
)

// Options configures an import run.
type Options struct {
	// TempDir holds downloaded and extracted files.
	TempDir string

	// Workers is the number of concurrent row processors.
	Workers int
}

// Report summarizes an import run.
type Report struct {
	Created           int `json:"created"`
	SkippedInvalidABN int `json:"skipped_invalid_abn"`
	SkippedDuplicate  int `json:"skipped_duplicate"`
	SkippedNoName     int `json:"skipped_no_name"`
	Failed            int `json:"failed"`
}

// Importer loads company rows into the store. Imported companies are
// created pre-approved: they come from vetted extracts, not from the
// self-service form.
type Importer struct {
	store store.Store
	opts  Options
}

// New creates an Importer.
func New(st store.Store, opts Options) *Importer {
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if opts.TempDir == "" {
		opts.TempDir = "/tmp/registry-import"
	}
	return &Importer{store: st, opts: opts}
}

// Run imports the given source. The source may be a local path or an
// http(s)/ftp URL; .zip archives are extracted first, then the
// contained .csv or .xlsx is parsed.
func (im *Importer) Run(ctx context.Context, source string) (*Report, error) {
	path, err := materialize(ctx, source, im.opts.TempDir)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".zip") {
		path, err = extractSingle(path, im.opts.TempDir)
		if err != nil {
			return nil, err
		}
	}

	var rows <-chan companyRow
	var errs <-chan error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, errs = streamCSVRows(ctx, path)
	case ".xlsx":
		rows, errs = streamXLSXRows(ctx, path)
	default:
		return nil, eris.Errorf("importer: unsupported file type %q", filepath.Ext(path))
	}

	report, err := im.process(ctx, rows)
	if err != nil {
		return report, err
	}
	if perr := <-errs; perr != nil {
		return report, perr
	}

	zap.L().Info("import complete",
		zap.String("source", source),
		zap.Int("created", report.Created),
		zap.Int("skipped_invalid_abn", report.SkippedInvalidABN),
		zap.Int("skipped_duplicate", report.SkippedDuplicate),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// companyRow is one mapped row from an extract.
type companyRow struct {
	line    int
	company model.Company
}

func (im *Importer) process(ctx context.Context, rows <-chan companyRow) (*Report, error) {
	var mu sync.Mutex
	report := &Report{}
	seenNames := make(map[string]bool)

	g, ctx := errgroup.WithContext(ctx)
	for range im.opts.Workers {
		g.Go(func() error {
			for row := range rows {
				// Extracts repeat the same entity under suffix variants
				// ("Acme" and "Acme Pty Ltd"); keep the first.
				key := match.StripSuffix(row.company.Name)
				mu.Lock()
				dup := key != "" && seenNames[key]
				if key != "" {
					seenNames[key] = true
				}
				mu.Unlock()
				if dup {
					mu.Lock()
					report.SkippedDuplicate++
					mu.Unlock()
					continue
				}

				outcome := im.importRow(ctx, row)
				mu.Lock()
				switch outcome {
				case rowCreated:
					report.Created++
				case rowInvalidABN:
					report.SkippedInvalidABN++
				case rowDuplicate:
					report.SkippedDuplicate++
				case rowNoName:
					report.SkippedNoName++
				case rowFailed:
					report.Failed++
				}
				mu.Unlock()
				if err := ctx.Err(); err != nil {
					return eris.Wrap(err, "importer: cancelled")
				}
			}
			return nil
		})
	}

	err := g.Wait()
	return report, err
}

type rowOutcome int

const (
	rowCreated rowOutcome = iota
	rowInvalidABN
	rowDuplicate
	rowNoName
	rowFailed
)

func (im *Importer) importRow(ctx context.Context, row companyRow) rowOutcome {
	c := row.company
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return rowNoName
	}

	c.ABN = abn.Normalize(c.ABN)
	if c.ABN != "" {
		if !abn.Valid(c.ABN) {
			zap.L().Debug("import: invalid abn",
				zap.Int("line", row.line),
				zap.String("name", c.Name),
			)
			return rowInvalidABN
		}
		existing, err := im.store.CompaniesByABN(ctx, c.ABN)
		if err != nil {
			zap.L().Warn("import: abn probe failed",
				zap.Int("line", row.line),
				zap.Error(err),
			)
			return rowFailed
		}
		if len(existing) > 0 {
			return rowDuplicate
		}
	}

	c.Status = model.CompanyApproved
	if _, err := im.store.CreateCompany(ctx, c); err != nil {
		// Two workers can race the same ABN within one extract.
		if eris.Is(err, store.ErrDuplicateABN) {
			return rowDuplicate
		}
		zap.L().Warn("import: create failed",
			zap.Int("line", row.line),
			zap.String("name", c.Name),
			zap.Error(err),
		)
		return rowFailed
	}
	return rowCreated
}
