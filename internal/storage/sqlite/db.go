// Package sqlite keeps the reusable categorized table and an audit row per
// pipeline run.
package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"productmatch/internal/domain"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS categorized_products (
		product   TEXT PRIMARY KEY,
		category  TEXT NOT NULL,
		position  INTEGER NOT NULL,
		saved_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_categorized_position ON categorized_products(position);

	CREATE TABLE IF NOT EXISTS runs (
		id                 TEXT PRIMARY KEY,
		started_at         DATETIME NOT NULL,
		finished_at        DATETIME,
		status             TEXT NOT NULL DEFAULT 'running',
		error              TEXT DEFAULT '',
		used_previous      INTEGER NOT NULL DEFAULT 0,
		products           INTEGER NOT NULL DEFAULT 0,
		categorized        INTEGER NOT NULL DEFAULT 0,
		iterations         INTEGER NOT NULL DEFAULT 0,
		samples            INTEGER NOT NULL DEFAULT 0,
		matched            INTEGER NOT NULL DEFAULT 0,
		input_tokens       INTEGER NOT NULL DEFAULT 0,
		output_tokens      INTEGER NOT NULL DEFAULT 0,
		output_path        TEXT DEFAULT '',
		categorized_source TEXT DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// SaveCategorizedTable replaces the stored table with table.
func SaveCategorizedTable(db *sql.DB, table *domain.CategorizedTable) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM categorized_products`); err != nil {
		return fmt.Errorf("clear categorized products: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO categorized_products (product, category, position, saved_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, e := range table.Entries() {
		if _, err := stmt.Exec(e.Product, e.Category.String(), i, now); err != nil {
			return fmt.Errorf("insert categorized product %q: %w", e.Product, err)
		}
	}
	return tx.Commit()
}

// LoadCategorizedTable returns the stored table in its saved order. An empty
// table means nothing has been saved yet.
func LoadCategorizedTable(db *sql.DB) (*domain.CategorizedTable, error) {
	rows, err := db.Query(`SELECT product, category FROM categorized_products ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	table := domain.NewCategorizedTable()
	for rows.Next() {
		var product, label string
		if err := rows.Scan(&product, &label); err != nil {
			return nil, err
		}
		category, ok := domain.ParseCategory(label)
		if !ok {
			log.Printf("sqlite categorized skip product=%q category=%q", product, label)
			continue
		}
		table.Set(product, category)
	}
	return table, rows.Err()
}

func InsertRun(db *sql.DB, run domain.RunRecord) error {
	_, err := db.Exec(
		`INSERT INTO runs (id, started_at, status, used_previous, products, samples, output_path, categorized_source)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt, string(run.Status), run.UsedPrevious, run.Products, run.Samples,
		run.OutputPath, run.CategorizedSource,
	)
	return err
}

// FinishRun stores the terminal state and counters of run.
func FinishRun(db *sql.DB, run domain.RunRecord) error {
	res, err := db.Exec(
		`UPDATE runs SET finished_at = ?, status = ?, error = ?, used_previous = ?, products = ?,
		 categorized = ?, iterations = ?, samples = ?, matched = ?, input_tokens = ?, output_tokens = ?,
		 output_path = ?, categorized_source = ?
		 WHERE id = ?`,
		run.FinishedAt, string(run.Status), run.Error, run.UsedPrevious, run.Products,
		run.Categorized, run.Iterations, run.Samples, run.Matched, run.InputTokens, run.OutputTokens,
		run.OutputPath, run.CategorizedSource, run.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

func RecentRuns(db *sql.DB, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(
		`SELECT id, started_at, finished_at, status, error, used_previous, products, categorized,
		 iterations, samples, matched, input_tokens, output_tokens, output_path, categorized_source
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		var r domain.RunRecord
		var finished sql.NullTime
		var status string
		var errText, outputPath, source sql.NullString
		if err := rows.Scan(
			&r.ID, &r.StartedAt, &finished, &status, &errText, &r.UsedPrevious, &r.Products, &r.Categorized,
			&r.Iterations, &r.Samples, &r.Matched, &r.InputTokens, &r.OutputTokens, &outputPath, &source,
		); err != nil {
			return nil, err
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		r.Status = domain.RunStatus(status)
		r.Error = errText.String
		r.OutputPath = outputPath.String
		r.CategorizedSource = source.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
