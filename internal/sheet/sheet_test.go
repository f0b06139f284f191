package sheet

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"productmatch/internal/domain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestReadColumnCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.csv")
	writeFile(t, path, "Disc frana,extra\n  Amortizor  \n\"\"\nBujie\n\n\n")

	got, err := ReadColumn(path)
	if err != nil {
		t.Fatalf("read column: %v", err)
	}
	want := []string{"Disc frana", "Amortizor", "", "Bujie"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("ReadColumn = %q, want %q", got, want)
	}
}

func TestReadColumnXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, v := range []string{"Disc frana fata", "Filtru <b>ulei</b>"} {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			t.Fatalf("set cell: %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	f.Close()

	got, err := ReadColumn(path)
	if err != nil {
		t.Fatalf("read column: %v", err)
	}
	if len(got) != 2 || got[0] != "Disc frana fata" || got[1] != "Filtru <b>ulei</b>" {
		t.Fatalf("unexpected rows %q", got)
	}
}

func TestReadColumnMissingFile(t *testing.T) {
	if _, err := ReadColumn(filepath.Join(t.TempDir(), "nope.xlsx")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.xls")
	writeFile(t, path, "x")
	if _, err := ReadColumn(path); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported file error, got %v", err)
	}
	if err := WriteResults(filepath.Join(t.TempDir(), "out.txt"), nil); err == nil {
		t.Fatalf("expected unsupported file error on write")
	}
}

func TestCategorizedRoundTripXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categorized_products.xlsx")
	table := domain.NewCategorizedTable()
	table.Set("Disc frana", domain.CategoryBraking)
	table.Set("Toba esapament", domain.CategoryExhaust)
	table.Set("Bujie", domain.CategoryEngine)

	if err := WriteCategorized(path, table); err != nil {
		t.Fatalf("write categorized: %v", err)
	}
	got, err := ReadCategorized(path)
	if err != nil {
		t.Fatalf("read categorized: %v", err)
	}
	if got.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", got.Len())
	}
	entries := got.Entries()
	if entries[0].Product != "Disc frana" || entries[2].Product != "Bujie" {
		t.Fatalf("insertion order lost: %+v", entries)
	}
	if c, _ := got.Get("Toba esapament"); c != domain.CategoryExhaust {
		t.Fatalf("unexpected category %v", c)
	}
}

func TestReadCategorizedHeaderAndBadRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categorized.csv")
	writeFile(t, path, strings.Join([]string{
		"category,product",
		"Sistem de frânare,Disc frana",
		"Filtre,Filtru aer",
		",",
		"Diverse,Odorizant",
	}, "\n"))

	got, err := ReadCategorized(path)
	if err != nil {
		t.Fatalf("read categorized: %v", err)
	}
	if got.Len() != 2 {
		t.Fatalf("expected 2 valid rows, got %+v", got.Entries())
	}
	if c, ok := got.Get("Odorizant"); !ok || c != domain.CategoryMisc {
		t.Fatalf("header column order not honoured: %v %v", c, ok)
	}
	if _, ok := got.Get("Filtru aer"); ok {
		t.Fatalf("row with unknown category should be skipped")
	}
}

func TestReadCategorizedWithoutHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categorized.csv")
	writeFile(t, path, "Disc frana,Sistem de frânare\n")

	got, err := ReadCategorized(path)
	if err != nil {
		t.Fatalf("read categorized: %v", err)
	}
	if c, ok := got.Get("Disc frana"); !ok || c != domain.CategoryBraking {
		t.Fatalf("expected headerless row to be read, got %v %v", c, ok)
	}
}

func TestWriteResultsCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processed_output.csv")
	records := []domain.ResultRecord{
		{SourceTitle: "a", GeneratedTitle: "disc frana, MODECAR", MatchedProduct: "Disc frana"},
		{SourceTitle: "b", GeneratedTitle: "Error occurred: boom", MatchedProduct: domain.NoMatchFound},
	}
	if err := WriteResults(path, records); err != nil {
		t.Fatalf("write results: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	want := "Product Title,Product Type\n\"disc frana, MODECAR\",Disc frana\nError occurred: boom,No match found\n"
	if string(data) != want {
		t.Fatalf("unexpected output:\n%s", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}

func TestWriteResultsXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_output.xlsx")
	records := []domain.ResultRecord{{GeneratedTitle: "bujie, MODECAR", MatchedProduct: "Bujie"}}
	if err := WriteResults(path, records); err != nil {
		t.Fatalf("write results: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		t.Fatalf("get rows: %v", err)
	}
	if len(rows) != 2 || rows[0][0] != HeaderProductTitle || rows[0][1] != HeaderProductType || rows[1][1] != "Bujie" {
		t.Fatalf("unexpected rows %q", rows)
	}
}

func TestWriteFailureKeepsPreviousFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	writeFile(t, path, "old\n")

	_, err := stage(path, func(w io.Writer) error {
		w.Write([]byte("partial"))
		return os.ErrInvalid
	})
	if err == nil {
		t.Fatalf("expected write error")
	}
	data, _ := os.ReadFile(path)
	if string(data) != "old\n" {
		t.Fatalf("previous file changed: %q", data)
	}
	if leftovers, _ := filepath.Glob(filepath.Join(dir, ".out.csv.tmp-*")); len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestStagedCommitAndDiscard(t *testing.T) {
	dir := t.TempDir()
	kept := filepath.Join(dir, "categorized.csv")
	dropped := filepath.Join(dir, "results.csv")
	writeFile(t, kept, "old\n")
	writeFile(t, dropped, "old\n")

	table := domain.NewCategorizedTable()
	table.Set("Bujie", domain.CategoryEngine)
	first, err := StageCategorized(kept, table)
	if err != nil {
		t.Fatalf("StageCategorized failed: %v", err)
	}
	second, err := StageResults(dropped, []domain.ResultRecord{{GeneratedTitle: "bujie", MatchedProduct: "Bujie"}})
	if err != nil {
		t.Fatalf("StageResults failed: %v", err)
	}
	if data, _ := os.ReadFile(kept); string(data) != "old\n" {
		t.Fatalf("staging replaced the destination: %q", data)
	}

	if err := first.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	second.Discard()

	if data, _ := os.ReadFile(kept); !strings.HasPrefix(string(data), "Product,Category\n") {
		t.Fatalf("commit did not replace the destination: %q", data)
	}
	if data, _ := os.ReadFile(dropped); string(data) != "old\n" {
		t.Fatalf("discard changed the destination: %q", data)
	}
	if leftovers, _ := filepath.Glob(filepath.Join(dir, ".*.tmp-*")); len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
	first.Discard()
}
