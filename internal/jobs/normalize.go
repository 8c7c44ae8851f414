package jobs

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Record is a normalized posting: one value per entry of Columns, in the same
// order. A nil value is unset and stored as NULL.
type Record []any

// Get returns the value of a named column, or nil if the column is unknown.
func (r Record) Get(name string) any {
	i := ColumnIndex(name)
	if i < 0 || i >= len(r) {
		return nil
	}
	return r[i]
}

var dateLayouts = []string{"20060102", "2006/01/02", "2006-01-02"}

// Normalize flattens a posting into a Record using the declared kind of each
// column: objects and arrays become canonical JSON text and scalars are
// coerced to the column's storage type.
func Normalize(p *JobPosting) Record {
	rec := make(Record, len(Columns))
	for i, col := range Columns {
		rec[i] = normalizeValue(col, p.raw(col.Name))
	}
	return rec
}

// raw resolves the source value of a column: enrichment columns come from the
// detail and employer stages, everything else from the list item.
func (p *JobPosting) raw(name string) json.RawMessage {
	switch name {
	case ColumnCode:
		return quote(p.Code)
	case ColumnJobCat:
		return quote(p.Category)
	case ColumnCondition:
		if p.Detail != nil {
			return p.Detail.Condition
		}
		return nil
	case ColumnJobCategory:
		if p.Detail != nil {
			return p.Detail.JobCategory
		}
		return nil
	case ColumnCompanyEmployees:
		if p.Employer != nil {
			return p.Employer.Employees
		}
		return nil
	case ColumnCompanyCapital:
		if p.Employer != nil {
			return p.Employer.Capital
		}
		return nil
	}
	return p.Fields[name]
}

func quote(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	b, _ := json.Marshal(s)
	return b
}

func normalizeValue(col Column, raw json.RawMessage) any {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	switch col.Kind {
	case KindStructured:
		if raw[0] != '{' && raw[0] != '[' {
			return textValue(raw)
		}
		text, err := Canonical(raw)
		if err != nil {
			return nil
		}
		return text
	case KindInt:
		return intValue(raw)
	case KindFloat:
		return floatValue(raw)
	case KindDate:
		return dateValue(raw)
	default:
		return textValue(raw)
	}
}

// Canonical re-encodes a JSON value deterministically: object keys sorted,
// numbers kept as written, no HTML escaping.
func Canonical(raw json.RawMessage) (string, error) {
	v, err := DecodeCanonical(string(raw))
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// DecodeCanonical parses text produced by Canonical back into its nested
// structure, keeping numbers as json.Number.
func DecodeCanonical(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func textValue(raw json.RawMessage) any {
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		return s
	case '{', '[':
		text, err := Canonical(raw)
		if err != nil {
			return nil
		}
		return text
	default:
		return string(raw)
	}
}

// scalarText unwraps a JSON string or returns a number/bool literal as text.
func scalarText(raw json.RawMessage) (string, bool) {
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		s = strings.TrimSpace(s)
		return s, s != ""
	case '{', '[':
		return "", false
	default:
		return string(raw), true
	}
}

// intValue parses an INTEGER column. Values outside the 32-bit range are
// unset, since storing them would fail the whole batch.
func intValue(raw json.RawMessage) any {
	s, ok := scalarText(raw)
	if !ok {
		return nil
	}
	switch s {
	case "true":
		return int64(1)
	case "false":
		return int64(0)
	}
	s = strings.ReplaceAll(s, ",", "")
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil
		}
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return nil
	}
	return int64(f)
}

func floatValue(raw json.RawMessage) any {
	s, ok := scalarText(raw)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

func dateValue(raw json.RawMessage) any {
	s, ok := scalarText(raw)
	if !ok {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return nil
}
