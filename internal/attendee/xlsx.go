package attendee

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/m3rciful/regbot/core/logger"
)

// XLSXStore keeps attendees in a single spreadsheet file.
//
// Every operation reloads the workbook; lookups are a full O(n) scan. Mutations
// save into a temporary file that atomically replaces the original, so a crash
// leaves either the previous or the new workbook on disk.
type XLSXStore struct {
	mu    sync.RWMutex
	path  string
	sheet string
}

type sheetRow struct {
	// index is the 1-based spreadsheet row number.
	index int
	rec   Record
}

// NewXLSXStore returns a store backed by the workbook at path.
func NewXLSXStore(path, sheet string) *XLSXStore {
	if sheet == "" {
		sheet = "Registrations"
	}
	return &XLSXStore{path: path, sheet: sheet}
}

// Init creates the workbook and header row when missing and verifies an existing header.
func (s *XLSXStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := excelize.OpenFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		f = excelize.NewFile()
		if err := f.SetSheetName(f.GetSheetName(0), s.sheet); err != nil {
			return fmt.Errorf("attendee: name sheet: %w", err)
		}
	case err != nil:
		return fmt.Errorf("attendee: open %s: %w", s.path, err)
	}
	defer f.Close()

	idx, err := f.GetSheetIndex(s.sheet)
	if err != nil {
		return fmt.Errorf("attendee: lookup sheet: %w", err)
	}
	if idx < 0 {
		if _, err := f.NewSheet(s.sheet); err != nil {
			return fmt.Errorf("attendee: create sheet: %w", err)
		}
	}

	rows, err := f.GetRows(s.sheet)
	if err != nil {
		return fmt.Errorf("attendee: read sheet: %w", err)
	}
	if len(rows) > 0 {
		if headerLayout(rows[0]) == layoutUnknown {
			return fmt.Errorf("%w: got %v", ErrHeaderMismatch, rows[0])
		}
		logger.Debug(ctx, "store", "store.init",
			slog.String("status", "skip"),
			slog.String("driver", "xlsx"),
			slog.String("path", s.path),
			slog.Int("rows", len(rows)-1),
		)
		return nil
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(s.sheet, "A1", &header); err != nil {
		return fmt.Errorf("attendee: write header: %w", err)
	}
	if err := s.save(f); err != nil {
		return err
	}
	logger.Info(ctx, "store", "store.init",
		slog.String("status", "ok"),
		slog.String("driver", "xlsx"),
		slog.String("path", s.path),
	)
	return nil
}

// Find returns the first record for identity in row order.
func (s *XLSXStore) Find(ctx context.Context, identity int64) (Record, bool, error) {
	rows, err := s.snapshot(ctx)
	if err != nil {
		return Record{}, false, err
	}
	for _, row := range rows {
		if row.rec.Identity == identity {
			return row.rec, true, nil
		}
	}
	return Record{}, false, nil
}

// Upsert overwrites the supplied fields of identity's row or appends a new row.
func (s *XLSXStore) Upsert(ctx context.Context, identity int64, patch Patch) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return false, fmt.Errorf("attendee: open %s: %w", s.path, err)
	}
	defer f.Close()

	rows, lastRow, layout, err := s.readRows(ctx, f)
	if err != nil {
		return false, err
	}

	target := sheetRow{index: lastRow + 1}
	var current *Record
	for _, row := range rows {
		if row.rec.Identity == identity {
			target = row
			current = &row.rec
			break
		}
	}

	rec, err := merge(current, identity, patch)
	if err != nil {
		return false, err
	}
	cell, err := excelize.CoordinatesToCellName(1, target.index)
	if err != nil {
		return false, fmt.Errorf("attendee: row %d: %w", target.index, err)
	}
	values := []any{rec.Handle, rec.RegisteredAt, rec.Identity, rec.FullName, layout.encodeStatus(rec.Status)}
	if err := f.SetSheetRow(s.sheet, cell, &values); err != nil {
		return false, fmt.Errorf("attendee: write row %d: %w", target.index, err)
	}
	if err := s.save(f); err != nil {
		return false, err
	}

	created := current == nil
	logger.Debug(ctx, "store", "store.upsert",
		slog.String("status", "ok"),
		slog.Int64("identity", identity),
		slog.Bool("created", created),
		slog.Int("row", target.index),
		slog.Duration("duration", time.Since(start)),
	)
	return created, nil
}

// Active snapshots all non-cancelled records.
func (s *XLSXStore) Active(ctx context.Context) (iter.Seq[Record], error) {
	rows, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]Record, 0, len(rows))
	for _, row := range rows {
		if row.rec.Active() {
			active = append(active, row.rec)
		}
	}
	return snapshot(active), nil
}

// All snapshots every record in row order.
func (s *XLSXStore) All(ctx context.Context) ([]Record, error) {
	rows, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(rows))
	for i, row := range rows {
		out[i] = row.rec
	}
	return out, nil
}

// Close is a no-op: the workbook is only open for the duration of an operation.
func (s *XLSXStore) Close() error {
	return nil
}

func (s *XLSXStore) snapshot(ctx context.Context) ([]sheetRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("attendee: open %s: %w", s.path, err)
	}
	defer f.Close()

	rows, _, _, err := s.readRows(ctx, f)
	return rows, err
}

// readRows parses data rows and reports the last used row number and the header layout.
// Rows without a parsable identity are skipped and left untouched on disk.
func (s *XLSXStore) readRows(ctx context.Context, f *excelize.File) ([]sheetRow, int, sheetLayout, error) {
	raw, err := f.GetRows(s.sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, 0, layoutUnknown, fmt.Errorf("attendee: read sheet %s: %w", s.sheet, err)
	}
	if len(raw) == 0 {
		return nil, 0, layoutUnknown, fmt.Errorf("%w: sheet %s has no header row", ErrHeaderMismatch, s.sheet)
	}
	layout := headerLayout(raw[0])
	if layout == layoutUnknown {
		return nil, 0, layoutUnknown, fmt.Errorf("%w: got %v", ErrHeaderMismatch, raw[0])
	}
	rows := make([]sheetRow, 0, len(raw)-1)
	for i, cells := range raw[1:] {
		index := i + 2
		if isBlank(cells) {
			continue
		}
		rec, err := parseRow(cells, layout)
		if err != nil {
			logger.Warn(ctx, "store", "store.row.skip",
				slog.Int("row", index),
				slog.String("err", err.Error()),
			)
			continue
		}
		rows = append(rows, sheetRow{index: index, rec: rec})
	}
	return rows, len(raw), layout, nil
}

func (s *XLSXStore) save(f *excelize.File) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".attendees-*.tmp")
	if err != nil {
		return fmt.Errorf("attendee: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := f.Write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("attendee: write workbook: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("attendee: sync workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("attendee: close workbook: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("attendee: replace workbook: %w", err)
	}
	return nil
}

// sheetLayout tells the current header apart from the one written by the
// first release of the bot, whose workbooks are read and updated in place.
type sheetLayout int

const (
	layoutUnknown sheetLayout = iota
	layoutCurrent
	layoutLegacy
)

// legacyHeader and legacyCancelled are the column names and the status literal
// of the first release.
var legacyHeader = []string{"Никнейм", "Дата регистрации", "ID TG", "Имя", "Статус"}

const legacyCancelled = "Отказался"

func headerLayout(row []string) sheetLayout {
	switch {
	case rowHasPrefix(row, Header):
		return layoutCurrent
	case rowHasPrefix(row, legacyHeader):
		return layoutLegacy
	default:
		return layoutUnknown
	}
}

func rowHasPrefix(row, header []string) bool {
	if len(row) < len(header) {
		return false
	}
	for i, h := range header {
		if !strings.EqualFold(strings.TrimSpace(row[i]), h) {
			return false
		}
	}
	return true
}

func (l sheetLayout) decodeStatus(raw string) Status {
	raw = strings.TrimSpace(raw)
	if l == layoutLegacy && raw == legacyCancelled {
		return StatusCancelled
	}
	return Status(raw)
}

func (l sheetLayout) encodeStatus(st Status) string {
	if l == layoutLegacy && st == StatusCancelled {
		return legacyCancelled
	}
	return string(st)
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseRow(cells []string, layout sheetLayout) (Record, error) {
	cell := func(i int) string {
		if i < len(cells) {
			return cells[i]
		}
		return ""
	}
	identity, err := parseIdentity(cell(2))
	if err != nil {
		return Record{}, err
	}
	return Record{
		Handle:       cell(0),
		RegisteredAt: cell(1),
		Identity:     identity,
		FullName:     cell(3),
		Status:       layout.decodeStatus(cell(4)),
	}, nil
}

// parseIdentity accepts integer cells and the float rendering spreadsheets use for them.
func parseIdentity(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return id, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, fmt.Errorf("invalid identity %q", raw)
	}
	return int64(f), nil
}
