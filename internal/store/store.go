// Package store reads and writes the flat CSV files produced by a run.
package store

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alexcolls/options-ztrading/internal/fetcher"
)

// TickersFile is the default ticker list file name inside the output directory.
const TickersFile = "tickers.csv"

const tickerColumn = "ticker"

// PersistenceError reports a failed filesystem operation.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// TickersPath is the default ticker list location.
func TickersPath(dir string) string {
	return filepath.Join(dir, TickersFile)
}

// OptionsPath builds the default snapshot file name:
// <mode>_options[_<expiration>]_<YYYYMMDD_HHMMSS>.csv
func OptionsPath(dir string, mode fetcher.ContractType, expiration string, now time.Time) string {
	name := fmt.Sprintf("%s_options", mode)
	if expiration != "" {
		name += "_" + expiration
	}
	name += "_" + now.Format("20060102_150405") + ".csv"
	return filepath.Join(dir, name)
}

// WriteTickers writes a single ticker column, one symbol per row, creating
// parent directories as needed.
func WriteTickers(path string, tickers []string) (string, error) {
	rows := make([][]string, 0, len(tickers)+1)
	rows = append(rows, []string{tickerColumn})
	for _, t := range tickers {
		rows = append(rows, []string{t})
	}
	if err := writeCSV(path, rows); err != nil {
		return "", err
	}
	return path, nil
}

// ReadTickers reads the ticker column of a CSV file in row order.
// A missing file yields an error matching fs.ErrNotExist.
func ReadTickers(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &PersistenceError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty file")
		}
		return nil, &PersistenceError{Op: "read", Path: path, Err: err}
	}

	col := -1
	for i, name := range header {
		if strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) == tickerColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, &PersistenceError{Op: "read", Path: path, Err: fmt.Errorf("no %q column in header %v", tickerColumn, header)}
	}

	var tickers []string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &PersistenceError{Op: "read", Path: path, Err: err}
		}
		if col >= len(row) {
			continue
		}
		if t := strings.TrimSpace(row[col]); t != "" {
			tickers = append(tickers, t)
		}
	}
	return tickers, nil
}

// WriteResultSet writes one row per record with the union of all record
// fields as columns. Missing fields are left blank.
func WriteResultSet(path string, rs fetcher.ResultSet) (string, error) {
	cols := rs.Columns()
	rows := make([][]string, 0, len(rs)+1)
	rows = append(rows, cols)
	for _, rec := range rs {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = formatValue(rec[c])
		}
		rows = append(rows, row)
	}
	if err := writeCSV(path, rows); err != nil {
		return "", err
	}
	return path, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case json.Number:
		return x.String()
	case []any, map[string]any:
		raw, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(raw)
	default:
		return fmt.Sprint(x)
	}
}

// writeCSV writes rows to a temporary file next to path and renames it into
// place.
func writeCSV(path string, rows [][]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistenceError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &PersistenceError{Op: "create", Path: path, Err: err}
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return &PersistenceError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &PersistenceError{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &PersistenceError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// CheckWritable creates dir if needed and verifies a file can be written in it.
func CheckWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistenceError{Op: "mkdir", Path: dir, Err: err}
	}
	f, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return &PersistenceError{Op: "create", Path: dir, Err: err}
	}
	name := f.Name()
	f.Close()
	if err := os.Remove(name); err != nil {
		return &PersistenceError{Op: "remove", Path: name, Err: err}
	}
	return nil
}
