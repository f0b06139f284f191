// Package sheet reads and writes the single-sheet tables the pipeline
// consumes and produces. Files ending in .csv use encoding/csv, .xlsx and
// .xlsm go through excelize.
package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"productmatch/internal/domain"
)

const (
	HeaderProduct  = "Product"
	HeaderCategory = "Category"

	HeaderProductTitle = "Product Title"
	HeaderProductType  = "Product Type"
)

type format int

const (
	formatXLSX format = iota
	formatCSV
)

func formatOf(path string) (format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return formatXLSX, nil
	case ".csv":
		return formatCSV, nil
	default:
		return 0, fmt.Errorf("unsupported table file %q: want .xlsx, .xlsm or .csv", path)
	}
}

// ReadColumn returns the first column of the first sheet, one entry per row.
// There is no header row. Trailing blank rows are dropped; blank rows in the
// middle are kept as empty strings so output stays row-aligned.
func ReadColumn(path string) ([]string, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		cell := ""
		if len(row) > 0 {
			cell = strings.TrimSpace(row[0])
		}
		out = append(out, cell)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out, nil
}

// ReadCategorized loads a two-column product/category table. A leading
// header row is recognised by name and skipped, and its column positions
// are honoured. Rows with an unknown category are skipped and logged.
func ReadCategorized(path string) (*domain.CategorizedTable, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}
	pIdx, cIdx := 0, 1
	if len(rows) > 0 {
		header := make(map[string]int)
		for i, h := range rows[0] {
			header[strings.ToLower(strings.TrimSpace(h))] = i
		}
		p, okP := header[strings.ToLower(HeaderProduct)]
		c, okC := header[strings.ToLower(HeaderCategory)]
		if okP && okC {
			pIdx, cIdx = p, c
			rows = rows[1:]
		}
	}

	table := domain.NewCategorizedTable()
	for i, row := range rows {
		if len(row) <= pIdx || len(row) <= cIdx {
			continue
		}
		product := strings.TrimSpace(row[pIdx])
		if product == "" {
			continue
		}
		category, ok := domain.ParseCategory(row[cIdx])
		if !ok {
			log.Printf("sheet categorized skip row=%d product=%q category=%q", i+1, product, row[cIdx])
			continue
		}
		table.Set(product, category)
	}
	return table, nil
}

// WriteCategorized replaces path with the table, header row first.
func WriteCategorized(path string, table *domain.CategorizedTable) error {
	return writeRows(path, categorizedRows(table))
}

// WriteResults replaces path with one row per record: generated title and
// matched product, under a header row.
func WriteResults(path string, records []domain.ResultRecord) error {
	return writeRows(path, resultRows(records))
}

// StageCategorized writes the table beside path without replacing it.
func StageCategorized(path string, table *domain.CategorizedTable) (*Staged, error) {
	return stageRows(path, categorizedRows(table))
}

// StageResults writes the records beside path without replacing it.
func StageResults(path string, records []domain.ResultRecord) (*Staged, error) {
	return stageRows(path, resultRows(records))
}

func categorizedRows(table *domain.CategorizedTable) [][]string {
	entries := table.Entries()
	rows := make([][]string, 0, len(entries)+1)
	rows = append(rows, []string{HeaderProduct, HeaderCategory})
	for _, e := range entries {
		rows = append(rows, []string{e.Product, e.Category.String()})
	}
	return rows
}

func resultRows(records []domain.ResultRecord) [][]string {
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, []string{HeaderProductTitle, HeaderProductType})
	for _, r := range records {
		rows = append(rows, []string{r.GeneratedTitle, r.MatchedProduct})
	}
	return rows
}

func readRows(path string) ([][]string, error) {
	kind, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	switch kind {
	case formatCSV:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r := csv.NewReader(f)
		r.FieldsPerRecord = -1
		rows, err := r.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("read csv %s: %w", path, err)
		}
		return rows, nil
	default:
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", path)
		}
		rows, err := f.GetRows(sheets[0])
		if err != nil {
			return nil, fmt.Errorf("read sheet %q of %s: %w", sheets[0], path, err)
		}
		return rows, nil
	}
}

func writeRows(path string, rows [][]string) error {
	staged, err := stageRows(path, rows)
	if err != nil {
		return err
	}
	return staged.Commit()
}

func stageRows(path string, rows [][]string) (*Staged, error) {
	kind, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	return stage(path, func(w io.Writer) error {
		if kind == formatCSV {
			cw := csv.NewWriter(w)
			if err := cw.WriteAll(rows); err != nil {
				return fmt.Errorf("write csv: %w", err)
			}
			return nil
		}

		f := excelize.NewFile()
		defer f.Close()
		sheet := f.GetSheetName(0)
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			if err != nil {
				return err
			}
			values := make([]any, len(row))
			for j, v := range row {
				values[j] = v
			}
			if err := f.SetSheetRow(sheet, cell, &values); err != nil {
				return fmt.Errorf("write row %d: %w", i+1, err)
			}
		}
		if err := f.Write(w); err != nil {
			return fmt.Errorf("write workbook: %w", err)
		}
		return nil
	})
}

// Staged is a complete artifact written to a temporary file beside its
// destination. Commit renames it into place; Discard removes it.
type Staged struct {
	path string
	tmp  string
}

// Path is the destination the artifact replaces on Commit.
func (s *Staged) Path() string {
	return s.path
}

func (s *Staged) Commit() error {
	if err := os.Rename(s.tmp, s.path); err != nil {
		os.Remove(s.tmp)
		return fmt.Errorf("rename %s: %w", s.path, err)
	}
	return nil
}

// Discard is safe to call after Commit.
func (s *Staged) Discard() {
	if s == nil {
		return
	}
	if err := os.Remove(s.tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("sheet discard %s: %v", s.tmp, err)
	}
}

// stage writes to a temporary file beside path so a failed write never
// touches the destination.
func stage(path string, write func(io.Writer) error) (*Staged, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	return &Staged{path: path, tmp: tmpName}, nil
}
