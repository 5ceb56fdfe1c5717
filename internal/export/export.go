// Package export serializes a message collection to a delimiter-separated
// table and to an indented JSON document.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/felo/mail-extractor/internal/model"
)

// Defaults for the export options
const (
	DefaultSeparator = ';'
	DefaultIndent    = 4
)

// EncodeCSV writes a header row followed by one row per record. There is no
// index column.
func EncodeCSV(w io.Writer, c *model.Collection, sep rune) error {
	rows, err := c.Rows()
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	writer.Comma = sep

	if err := writer.Write(model.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}

// WriteCSV exports c to the file at path, replacing it
func WriteCSV(path string, c *model.Collection, sep rune) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := EncodeCSV(file, c, sep); err != nil {
		file.Close()
		return fmt.Errorf("failed to export %s: %w", path, err)
	}
	return file.Close()
}

// ReadCSV parses a table written by WriteCSV back into rows keyed by column
// name
func ReadCSV(path string, sep rune) ([]map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = sep

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s has no header row", path)
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			row[col] = rec[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// EncodeJSON writes c as a JSON object of filename -> record, indented with
// indent spaces
func EncodeJSON(w io.Writer, c *model.Collection, indent int) error {
	if indent < 0 {
		indent = 0
	}
	data, err := json.MarshalIndent(c, "", strings.Repeat(" ", indent))
	if err != nil {
		return fmt.Errorf("failed to encode collection: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// WriteJSON exports c to the file at path, replacing it
func WriteJSON(path string, c *model.Collection, indent int) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := EncodeJSON(file, c, indent); err != nil {
		file.Close()
		return fmt.Errorf("failed to export %s: %w", path, err)
	}
	return file.Close()
}

// ReadJSON loads a document written by WriteJSON
func ReadJSON(path string) (*model.Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	c := model.NewCollection()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return c, nil
}
