// Package report reads and writes snapshot reports as CSV.
package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/raphaelgruber/sitesnap/internal/models"
)

// Encode writes a header line and one line per row.
func Encode(w io.Writer, rows []models.Row) error {
	if rows == nil {
		rows = []models.Row{}
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// Decode reads report rows. Columns missing from the header decode as empty fields.
func Decode(r io.Reader) ([]models.Row, error) {
	var rows []models.Row
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return rows, nil
}

// Write replaces the report at path.
func Write(path string, rows []models.Row) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := Encode(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Read loads the report at path.
func Read(path string) ([]models.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Records loads the report at path and converts each row to a record.
func Records(path string) ([]models.Record, error) {
	rows, err := Read(path)
	if err != nil {
		return nil, err
	}

	records := make([]models.Record, 0, len(rows))
	for i, row := range rows {
		rec, err := models.RecordFromRow(row)
		if err != nil {
			// +2: one for the header, one for 1-based lines
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
