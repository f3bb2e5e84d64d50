/*
Package tables holds raw tabular data the way it is ingested: rows of named values
where a value is a float64 number, a string or nil for an empty cell.
*/
package tables

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

/*
Row maps a column name to a cell value: float64, string or nil (missing)
*/
type Row map[string]interface{}

/*
Table is an ordered list of rows sharing the same ordered columns
*/
type Table struct {
	Columns []string
	Rows    []Row
}

/*
Kind is a runtime classification of a column
*/
type Kind int

const (
	Undefined Kind = iota
	Numeric
	Categorical
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	default:
		return "undefined"
	}
}

/*
New creates table with the columns order taken from the first row when columns are not specified
*/
func New(columns []string, rows []Row) *Table {
	if columns == nil && len(rows) > 0 {
		for k := range rows[0] {
			columns = append(columns, k)
		}
		sort.Strings(columns)
	}
	return &Table{Columns: columns, Rows: rows}
}

func (t *Table) Len() int {
	return len(t.Rows)
}

/*
Has checks the table has column c
*/
func (t *Table) Has(c string) bool {
	for _, x := range t.Columns {
		if x == c {
			return true
		}
	}
	return false
}

/*
Col returns values of the column c in the rows order
*/
func (t *Table) Col(c string) []interface{} {
	r := make([]interface{}, len(t.Rows))
	for i, row := range t.Rows {
		r[i] = row[c]
	}
	return r
}

/*
Filter returns a new table containing only rows accepted by f, rows are shared
*/
func (t *Table) Filter(f func(Row) bool) *Table {
	rows := make([]Row, 0, len(t.Rows))
	for _, row := range t.Rows {
		if f(row) {
			rows = append(rows, row)
		}
	}
	return &Table{Columns: t.Columns, Rows: rows}
}

/*
IsMissing reports the cell is empty: nil, blank string or NaN
*/
func IsMissing(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	}
	return false
}

/*
Number converts a numeric cell into float64
*/
func Number(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), !math.IsNaN(float64(x))
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

/*
Key is a canonical string form of a cell used as a category or class label
*/
func Key(v interface{}) string {
	if f, ok := Number(v); ok {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}

/*
Classify samples the first non-missing value and tags column by its runtime type.
A column without any value is Undefined and must be handled by caller.
*/
func Classify(values []interface{}) Kind {
	for _, v := range values {
		if IsMissing(v) {
			continue
		}
		if _, ok := Number(v); ok {
			return Numeric
		}
		return Categorical
	}
	return Undefined
}
