package tables

import (
	"encoding/csv"
	"go-ml.dev/pkg/zorros"
	"io"
	"os"
	"strconv"
	"strings"
)

/*
ReadCSV reads comma separated data with a header row.
Cells looking like numbers become float64, empty cells become nil, everything else stays a string.
*/
func ReadCSV(r io.Reader) (*Table, error) {
	rd := csv.NewReader(r)
	rd.TrimLeadingSpace = true
	header, err := rd.Read()
	if err == io.EOF {
		return nil, zorros.Errorf("csv data has no header")
	}
	if err != nil {
		return nil, zorros.Wrapf(err, "failed to read csv header: %v", err.Error())
	}
	seen := map[string]bool{}
	columns := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, zorros.Errorf("csv column %d has empty name", i+1)
		}
		if seen[h] {
			return nil, zorros.Errorf("csv column `%v` is duplicated", h)
		}
		seen[h] = true
		columns[i] = h
	}
	t := &Table{Columns: columns}
	for {
		rec, err := rd.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, zorros.Wrapf(err, "failed to read csv: %v", err.Error())
		}
		if blank(rec) {
			continue
		}
		row := make(Row, len(columns))
		for i, c := range columns {
			row[c] = cell(rec[i])
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

/*
ReadCSVFile reads csv file from the path
*/
func ReadCSVFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, zorros.Trace(err)
	}
	defer f.Close()
	return ReadCSV(f)
}

func blank(rec []string) bool {
	for _, s := range rec {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}

func cell(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
