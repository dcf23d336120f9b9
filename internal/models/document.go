package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Fields is the field data of a stored document.
type Fields map[string]interface{}

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Document is one record of a collection: a backend-assigned id plus its fields.
type Document struct {
	ID     string `json:"id"`
	Fields Fields `json:"fields"`
}

// DocumentID implements the record contract of the collection hook.
func (d Document) DocumentID() string {
	return d.ID
}

// WithID returns a copy carrying id.
func (d Document) WithID(id string) Document {
	d.ID = id
	return d
}

// ToFields returns a copy of the document fields.
func (d Document) ToFields() Fields {
	return d.Fields.Clone()
}

// Merge returns a new document whose fields are the receiver's overlaid with patch.
func (d Document) Merge(patch Fields) (Document, error) {
	merged := d.Fields.Clone()
	for k, v := range patch {
		merged[k] = v
	}
	return Document{ID: d.ID, Fields: merged}, nil
}

// Direction is a sort order.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Operators accepted in Filter.Op.
const (
	OpEqual        = "=="
	OpNotEqual     = "!="
	OpLess         = "<"
	OpLessEqual    = "<="
	OpGreater      = ">"
	OpGreaterEqual = ">="
)

// Filter is a single where-clause on a document field.
type Filter struct {
	Field string
	Op    string
	Value interface{}
}

// Where builds an equality filter.
func Where(field string, value interface{}) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

// Query narrows and orders a collection listing.
type Query struct {
	Where     []Filter
	OrderBy   string
	Direction Direction
}

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidFieldName reports whether name can be used in filters and ordering.
func ValidFieldName(name string) bool {
	return fieldNamePattern.MatchString(name)
}

// Validate checks field names, operators and direction.
func (q Query) Validate() error {
	if q.OrderBy != "" && !ValidFieldName(q.OrderBy) {
		return fmt.Errorf("invalid order field %q", q.OrderBy)
	}
	switch q.Direction {
	case "", Asc, Desc:
	default:
		return fmt.Errorf("invalid direction %q", q.Direction)
	}
	for _, f := range q.Where {
		if !ValidFieldName(f.Field) {
			return fmt.Errorf("invalid filter field %q", f.Field)
		}
		switch f.Op {
		case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		default:
			return fmt.Errorf("invalid filter operator %q", f.Op)
		}
	}
	return nil
}

// Timestamp is the backend's wrapper for instants. It is encoded as a fixed-width
// UTC string so that stored values order lexically.
type Timestamp struct {
	t time.Time
}

// TimestampLayout is the wire layout of Timestamp.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t: t.UTC()}
}

// ToDate converts the wrapper to a native time.
func (ts Timestamp) ToDate() time.Time {
	return ts.t
}

func (ts Timestamp) String() string {
	return ts.t.UTC().Format(TimestampLayout)
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.String())
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t, err := ToTime(raw)
	if err != nil {
		return err
	}
	ts.t = t.UTC()
	return nil
}

var errUnsupportedTime = errors.New("unsupported timestamp value")

// ToTime converts any timestamp representation found in document fields:
// native time.Time, Timestamp, a string or a {seconds, nanos} object.
func ToTime(value interface{}) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case Timestamp:
		return v.ToDate(), nil
	case *Timestamp:
		if v == nil {
			return time.Time{}, errUnsupportedTime
		}
		return v.ToDate(), nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v, err)
		}
		return t, nil
	case map[string]interface{}:
		seconds, ok := number(v["seconds"])
		if !ok {
			return time.Time{}, errUnsupportedTime
		}
		nanos, _ := number(v["nanos"])
		return time.Unix(int64(seconds), int64(nanos)).UTC(), nil
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("%w: %T", errUnsupportedTime, value)
	}
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
