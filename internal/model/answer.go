// Package model defines data structures for the data question platform.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Answer is the outcome of answering one question.
type Answer struct {
	Query       string `json:"query"`
	HasResult   bool   `json:"has_result"`
	Err         string `json:"error,omitempty"`
	Rows        RowSet `json:"rows,omitempty"`
	Assumptions string `json:"assumptions,omitempty"`
}

// Row is a single result record. Columns keeps the order the data source
// returned them in; Values is keyed by column name.
type Row struct {
	Columns []string
	Values  map[string]any
}

// RowSet is an ordered sequence of rows sharing the same columns.
type RowSet []Row

// NewRow builds a row from parallel column and value slices.
func NewRow(columns []string, values []any) Row {
	row := Row{
		Columns: make([]string, len(columns)),
		Values:  make(map[string]any, len(columns)),
	}
	copy(row.Columns, columns)
	for i, col := range columns {
		if i < len(values) {
			row.Values[col] = values[i]
		} else {
			row.Values[col] = nil
		}
	}
	return row
}

// Get returns the value stored for a column.
func (r Row) Get(column string) (any, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// MarshalJSON encodes the row as an object whose keys follow Columns.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.Values[col])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal column %q: %w", col, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object while preserving its key order.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("row must be a JSON object")
	}

	r.Columns = nil
	r.Values = make(map[string]any)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("row key must be a string")
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("failed to decode column %q: %w", key, err)
		}
		if _, seen := r.Values[key]; !seen {
			r.Columns = append(r.Columns, key)
		}
		r.Values[key] = v
	}

	_, err = dec.Token()
	return err
}

// FormatValue converts a scalar into the text used for display and CSV.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case []byte:
		return string(val)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int8:
		return strconv.FormatInt(int64(val), 10)
	case int16:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint8:
		return strconv.FormatUint(uint64(val), 10)
	case uint16:
		return strconv.FormatUint(uint64(val), 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case time.Time:
		return val.Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
