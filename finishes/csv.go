package finishes

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// csvTable is a fully-read CSV file with named-column access. Inputs are
// small (under ~10k rows), so reading the whole file up front keeps the
// loaders straight-line.
type csvTable struct {
	path string
	cols map[string]int
	rows [][]string
}

// readCSVTable parses a CSV file and checks its header against the loader's
// required-column set. A missing header row or required column fails the
// whole file.
func readCSVTable(path string, required []string) (*csvTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: missing header row", path)
	}

	cols := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		// Some exports prepend a UTF-8 BOM to the first header cell.
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if name == "" {
			continue
		}
		if _, ok := cols[name]; !ok {
			cols[name] = i
		}
	}

	var missing []string
	for _, col := range required {
		if _, ok := cols[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns in %s: %s", path, strings.Join(missing, ", "))
	}

	return &csvTable{path: path, cols: cols, rows: records[1:]}, nil
}

func (t *csvTable) hasColumn(name string) bool {
	_, ok := t.cols[name]
	return ok
}

// get returns the trimmed cell value, or "" when the column is absent or the
// row is short. Optional columns default to empty this way.
func (t *csvTable) get(row []string, col string) string {
	idx, ok := t.cols[col]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// require returns the cell value and fails the load when it is blank.
// rowNum is 1-based over data rows; +1 accounts for the header line.
func (t *csvTable) require(rowNum int, row []string, col string) (string, error) {
	v := t.get(row, col)
	if v == "" {
		return "", fmt.Errorf("%s line %d: required field %q is empty", t.path, rowNum+1, col)
	}
	return v, nil
}
