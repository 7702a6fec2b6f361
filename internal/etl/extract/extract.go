package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/fetcher"
	"github.com/sells-group/ans-cli/internal/model"
)

// Sentinel period used when an archive name does not follow YYYY_QT.zip.
const (
	UnknownYear    = "0000"
	UnknownQuarter = "0T"
)

// ParseQuarterName derives (year, quarter) from an archive path such as
// "data/raw/2024_1T.zip".
func ParseQuarterName(archivePath string) (string, string) {
	stem := strings.TrimSuffix(filepath.Base(archivePath), filepath.Ext(archivePath))
	parts := strings.Split(stem, "_")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return UnknownYear, UnknownQuarter
	}
	return parts[0], parts[1]
}

var errNoAmountColumn = eris.New("extract: no amount column")

// ReasonNoExpenseRows marks a table that parsed but kept no expense-subtree rows.
const ReasonNoExpenseRows = "no expense rows"

// SkippedEntry records an archive entry that produced no rows.
type SkippedEntry struct {
	Archive string `yaml:"archive"`
	Entry   string `yaml:"entry"`
	Reason  string `yaml:"reason"`
}

// ArchiveStats describes the outcome of one archive.
type ArchiveStats struct {
	Archive        string
	Year           string
	Quarter        string
	Tables         int
	Rows           int
	Skipped        []SkippedEntry
	UnknownColumns []string
}

// Summary describes a full extraction run.
type Summary struct {
	Archives       int            `yaml:"archives"`
	FailedArchives int            `yaml:"failed_archives"`
	Tables         int            `yaml:"tables"`
	Rows           int            `yaml:"rows"`
	Enriched       int            `yaml:"enriched"`
	Skipped        []SkippedEntry `yaml:"skipped,omitempty"`
	UnknownColumns []string       `yaml:"unknown_columns,omitempty"`
}

// Extractor turns retrieved archives into enriched raw records.
type Extractor struct {
	registry   *Registry
	encodings  []Encoding
	sampleSize int
}

// NewExtractor creates an extractor enriching rows from registry. A nil
// registry leaves enrichment fields empty.
func NewExtractor(registry *Registry) *Extractor {
	return &Extractor{
		registry:   registry,
		encodings:  Candidates,
		sampleSize: SampleSize,
	}
}

// ExtractAll processes every .zip in rawDir in name order. Archives that
// cannot be opened are logged and skipped.
func (e *Extractor) ExtractAll(ctx context.Context, rawDir string) ([]model.RawRecord, *Summary, error) {
	log := zap.L().With(zap.String("component", "extract"))

	entries, err := os.ReadDir(rawDir)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "extract: read dir %s", rawDir)
	}

	var archives []string
	for _, de := range entries {
		if de.IsDir() || !strings.EqualFold(filepath.Ext(de.Name()), ".zip") {
			continue
		}
		archives = append(archives, filepath.Join(rawDir, de.Name()))
	}
	sort.Strings(archives)

	summary := &Summary{}
	unknown := make(map[string]bool)
	var records []model.RawRecord
	for _, path := range archives {
		if err := ctx.Err(); err != nil {
			return records, summary, eris.Wrap(err, "extract: cancelled")
		}

		recs, stats, err := e.ExtractQuarter(ctx, path)
		if err != nil {
			log.Warn("skipping archive", zap.String("archive", path), zap.Error(err))
			summary.FailedArchives++
			continue
		}
		summary.Archives++
		summary.Tables += stats.Tables
		summary.Rows += stats.Rows
		summary.Skipped = append(summary.Skipped, stats.Skipped...)
		for _, c := range stats.UnknownColumns {
			if !unknown[c] {
				unknown[c] = true
				summary.UnknownColumns = append(summary.UnknownColumns, c)
			}
		}
		for i := range recs {
			if recs[i].LegalName != nil {
				summary.Enriched++
			}
		}
		records = append(records, recs...)
	}

	log.Info("extraction complete",
		zap.Int("archives", summary.Archives),
		zap.Int("failed_archives", summary.FailedArchives),
		zap.Int("rows", summary.Rows),
		zap.Int("enriched", summary.Enriched),
	)
	return records, summary, nil
}

// ExtractQuarter reads every tabular entry of one archive. Entries that
// cannot be decoded or parsed are skipped and reported in the stats.
func (e *Extractor) ExtractQuarter(ctx context.Context, archivePath string) ([]model.RawRecord, *ArchiveStats, error) {
	log := zap.L().With(zap.String("component", "extract"), zap.String("archive", archivePath))

	a, err := fetcher.OpenZIP(archivePath)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "extract: open %s", archivePath)
	}
	defer a.Close() //nolint:errcheck

	year, quarter := ParseQuarterName(archivePath)
	stats := &ArchiveStats{Archive: filepath.Base(archivePath), Year: year, Quarter: quarter}

	var records []model.RawRecord
	for _, entry := range a.Entries {
		if !isTable(entry.BaseName()) {
			continue
		}

		recs, unknown, err := e.readEntry(ctx, entry)
		if err != nil {
			log.Warn("skipping entry", zap.String("entry", entry.Name), zap.Error(err))
			stats.Skipped = append(stats.Skipped, SkippedEntry{
				Archive: stats.Archive,
				Entry:   entry.Name,
				Reason:  err.Error(),
			})
			continue
		}
		if len(unknown) > 0 {
			log.Debug("unmapped columns", zap.String("entry", entry.Name), zap.Strings("columns", unknown))
			stats.UnknownColumns = append(stats.UnknownColumns, unknown...)
		}

		if len(recs) == 0 {
			log.Debug("entry has no expense rows", zap.String("entry", entry.Name))
			stats.Skipped = append(stats.Skipped, SkippedEntry{
				Archive: stats.Archive,
				Entry:   entry.Name,
				Reason:  ReasonNoExpenseRows,
			})
			continue
		}

		for i := range recs {
			recs[i].Year = year
			recs[i].Quarter = quarter
		}
		stats.Tables++
		stats.Rows += len(recs)
		records = append(records, recs...)
	}

	log.Debug("archive extracted", zap.Int("tables", stats.Tables), zap.Int("rows", stats.Rows))
	return records, stats, nil
}

// isTable reports whether an entry name is a data table rather than a readme.
func isTable(name string) bool {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "leia") {
		return false
	}
	return strings.HasSuffix(lower, ".csv") || strings.HasSuffix(lower, ".txt")
}

// readEntry tries each candidate encoding in order until one both decodes
// the sample and parses the full table.
func (e *Extractor) readEntry(ctx context.Context, entry fetcher.ZIPEntry) ([]model.RawRecord, []string, error) {
	sample, err := entry.Sample(e.sampleSize)
	if err != nil {
		return nil, nil, err
	}

	lastErr := eris.New("extract: no candidate encoding decodes entry")
	remaining := e.encodings
	for {
		enc, ok := DetectEncoding(sample, remaining)
		if !ok {
			break
		}
		remaining = remaining[detectIndex(sample, remaining)+1:]

		text, err := enc.Decode(sample)
		if err != nil {
			lastErr = eris.Wrapf(err, "extract: decode sample as %s", enc.Name)
			continue
		}
		delim := DetectDelimiter(text)
		recs, unknown, err := e.parseTable(ctx, entry, enc, delim)
		if errors.Is(err, errNoAmountColumn) {
			return nil, nil, err
		}
		if err != nil {
			lastErr = eris.Wrapf(err, "extract: parse as %s", enc.Name)
			continue
		}
		zap.L().Debug("table parsed",
			zap.String("component", "extract"),
			zap.String("entry", entry.Name),
			zap.String("encoding", enc.Name),
			zap.String("delimiter", string(delim)),
			zap.Int("rows", len(recs)),
		)
		return recs, unknown, nil
	}
	return nil, nil, lastErr
}

func (e *Extractor) parseTable(ctx context.Context, entry fetcher.ZIPEntry, enc Encoding, delim rune) ([]model.RawRecord, []string, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close() //nolint:errcheck

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, enc.NewReader(rc), fetcher.CSVOptions{
		Delimiter:  delim,
		HasHeader:  true,
		HeaderCh:   headerCh,
		LazyQuotes: true,
	})

	var (
		cols     Columns
		resolved bool
		records  []model.RawRecord
	)
	for row := range rowCh {
		if !resolved {
			cols = ResolveColumns(<-headerCh)
			resolved = true
		}
		if rec, ok := e.toRecord(cols, row); ok {
			records = append(records, rec)
		}
	}
	if err := <-errCh; err != nil {
		return nil, nil, err
	}
	if !resolved {
		select {
		case h := <-headerCh:
			cols = ResolveColumns(h)
		default:
			return nil, nil, eris.New("extract: empty table")
		}
	}
	if _, ok := cols.Index(FieldAmount); !ok {
		return nil, nil, errNoAmountColumn
	}
	return records, cols.Unknown, nil
}

// toRecord maps a row onto a RawRecord. Rows outside the expense subtree
// are rejected when the table carries an account column.
func (e *Extractor) toRecord(cols Columns, row []string) (model.RawRecord, bool) {
	var rec model.RawRecord

	if _, ok := cols.Index(FieldAccount); ok {
		rec.AccountCode = cols.Value(row, FieldAccount)
		if !strings.HasPrefix(rec.AccountCode, model.ExpensePrefix) {
			return rec, false
		}
	}
	rec.Amount = ParseAmount(cols.Value(row, FieldAmount))
	if _, ok := cols.Index(FieldRegistry); ok {
		rec.RegistryID = cols.Value(row, FieldRegistry)
		if info, found := e.registry.Lookup(rec.RegistryID); found {
			rec.TaxID = info.TaxID
			rec.LegalName = info.LegalName
			rec.State = info.State
			rec.Category = info.Category
		}
	}
	return rec, true
}
