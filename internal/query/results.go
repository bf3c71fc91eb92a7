package query

import (
	"database/sql"
	"time"

	"github.com/pitabwire/formbase/model"
)

// Results is the typed, field-named row set captured by an action run.
type Results struct {
	Columns      []string
	RowsAffected int64
	LastInsertID int64

	rows [][]model.Value
}

// Len returns the number of rows.
func (r *Results) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rows)
}

// Field returns the value at (row, col), or Empty when out of range.
func (r *Results) Field(row, col int) model.Value {
	if r == nil || row < 0 || row >= len(r.rows) {
		return model.Empty()
	}
	if col < 0 || col >= len(r.rows[row]) {
		return model.Empty()
	}
	return r.rows[row][col]
}

// FieldByName returns the value of the named column in the given row, or
// Empty when the row or column does not exist.
func (r *Results) FieldByName(row int, name string) model.Value {
	if r == nil {
		return model.Empty()
	}
	for i, col := range r.Columns {
		if col == name {
			return r.Field(row, i)
		}
	}
	return model.Empty()
}

// First returns the first field of the first row, or Empty.
func (r *Results) First() model.Value {
	return r.Field(0, 0)
}

// Records renders every row as a column-name-keyed map, ready for JSON
// serialization.
func (r *Results) Records() []map[string]any {
	if r == nil {
		return []map[string]any{}
	}
	records := make([]map[string]any, 0, len(r.rows))
	for _, row := range r.rows {
		rec := make(map[string]any, len(r.Columns))
		for i, col := range r.Columns {
			if i < len(row) {
				rec[col] = row[i].Arg()
			}
		}
		records = append(records, rec)
	}
	return records
}

// scanResults drains a row set into typed values.
func scanResults(rows *sql.Rows) (*Results, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res := &Results{Columns: cols}
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make([]model.Value, len(cols))
		for i, v := range raw {
			row[i] = fromDriver(v)
		}
		res.rows = append(res.rows, row)
	}
	return res, rows.Err()
}

// fromDriver converts a database/sql scan result into a Value.
func fromDriver(v any) model.Value {
	switch t := v.(type) {
	case nil:
		return model.Empty()
	case int64:
		return model.Int(t)
	case float64:
		return model.Float(t)
	case bool:
		return model.Bool(t)
	case string:
		return model.String(t)
	case []byte:
		return model.String(string(t))
	case time.Time:
		return model.String(t.Format(time.RFC3339))
	default:
		return model.Empty()
	}
}
