package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// System identifies which side of the reconciliation a record or rule belongs to
type System string

const (
	// SystemTimesheet is the timesheet/allocation provider (ElapseIT)
	SystemTimesheet System = "ElapseIT"
	// SystemPlanning is the planning database (Vision)
	SystemPlanning System = "Vision"
)

// String returns the configuration label of the system
func (s System) String() string {
	return string(s)
}

// IsValid checks if the system is one of the two known systems
func (s System) IsValid() bool {
	return s == SystemTimesheet || s == SystemPlanning
}

// ParseSystem maps a configuration label to a System. Both the vendor names
// used in rule sheets and the generic role names are accepted.
func ParseSystem(label string) (System, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "elapseit", "timesheet":
		return SystemTimesheet, nil
	case "vision", "planning":
		return SystemPlanning, nil
	default:
		return "", fmt.Errorf("unknown system: %q", label)
	}
}

// Kind tags the scalar held by a Value
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindDate
)

// String returns the name of the kind
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	default:
		return "null"
	}
}

// DateLayout is the textual form of date values
const DateLayout = "2006-01-02"

// Value is a tagged scalar read from an export row
type Value struct {
	kind Kind
	str  string
	num  decimal.Decimal
	date time.Time
}

// Null returns the null value
func Null() Value { return Value{} }

// StringValue wraps a string value
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// NumberValue wraps a decimal number
func NumberValue(d decimal.Decimal) Value { return Value{kind: KindNumber, num: d} }

// DateValue wraps a date
func DateValue(t time.Time) Value { return Value{kind: KindDate, date: t} }

// Kind returns the tag of the value
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null
func (v Value) IsNull() bool { return v.kind == KindNull }

// Number returns the decimal held by a number value
func (v Value) Number() (decimal.Decimal, bool) {
	if v.kind != KindNumber {
		return decimal.Zero, false
	}
	return v.num, true
}

// Date returns the time held by a date value
func (v Value) Date() (time.Time, bool) {
	if v.kind != KindDate {
		return time.Time{}, false
	}
	return v.date, true
}

// String renders the value as used in join keys. Strings are returned
// byte-for-byte, numbers without trailing zeros, dates as YYYY-MM-DD and
// null as the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num.String()
	case KindDate:
		return v.date.Format(DateLayout)
	default:
		return ""
	}
}

// Equal compares kind and content
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num.Equal(other.num)
	case KindDate:
		return v.date.Equal(other.date)
	default:
		return v.str == other.str
	}
}

// Record is one flat row from an export: field names in column order mapped
// to tagged scalars. Fields are addressed by their configured names.
type Record struct {
	// Origin locates the row in its source, e.g. "timesheet.csv:14"
	Origin string

	fields []string
	values map[string]Value
}

// NewRecord creates an empty record
func NewRecord(origin string) *Record {
	return &Record{
		Origin: origin,
		values: make(map[string]Value),
	}
}

// RecordFromStrings builds a record from name/value pairs, in argument order.
// It panics on an odd number of arguments.
func RecordFromStrings(origin string, pairs ...string) *Record {
	if len(pairs)%2 != 0 {
		panic("models: RecordFromStrings needs name/value pairs")
	}
	r := NewRecord(origin)
	for i := 0; i < len(pairs); i += 2 {
		r.Set(pairs[i], StringValue(pairs[i+1]))
	}
	return r
}

// Set stores a field, appending it to the column order on first write
func (r *Record) Set(name string, v Value) {
	if _, ok := r.values[name]; !ok {
		r.fields = append(r.fields, name)
	}
	r.values[name] = v
}

// Lookup returns the value for name and whether the field exists
func (r *Record) Lookup(name string) (Value, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Get returns the textual value of name, or "" when absent
func (r *Record) Get(name string) string {
	return r.values[name].String()
}

// Fields returns the field names in column order
func (r *Record) Fields() []string {
	out := make([]string, len(r.fields))
	copy(out, r.fields)
	return out
}

// Len returns the number of fields
func (r *Record) Len() int {
	return len(r.fields)
}

// Clone returns a deep copy of the record
func (r *Record) Clone() *Record {
	c := NewRecord(r.Origin)
	for _, name := range r.fields {
		c.Set(name, r.values[name])
	}
	return c
}

// String returns a compact representation of the record
func (r *Record) String() string {
	parts := make([]string, 0, len(r.fields))
	for _, name := range r.fields {
		parts = append(parts, fmt.Sprintf("%s=%s", name, r.values[name].String()))
	}
	return fmt.Sprintf("Record{%s}", strings.Join(parts, ", "))
}
