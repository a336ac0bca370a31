package libsql

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Kind identifies one of the five value kinds the engine stores.
type Kind int

const (
	KindNull Kind = iota
	KindInteger
	KindReal
	KindText
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a single database value. The set of implementations is closed:
// Null, Integer, Real, Text and Blob.
type Value interface {
	Kind() Kind
	// Arg returns the value in the form database/sql binds as a parameter.
	Arg() driver.Value
	isValue()
}

// Null is the SQL NULL.
type Null struct{}

// Integer is a 64-bit signed integer.
type Integer int64

// Real is a 64-bit float.
type Real float64

// Text is a character string.
type Text string

// Blob is a byte sequence.
type Blob []byte

func (Null) Kind() Kind    { return KindNull }
func (Integer) Kind() Kind { return KindInteger }
func (Real) Kind() Kind    { return KindReal }
func (Text) Kind() Kind    { return KindText }
func (Blob) Kind() Kind    { return KindBlob }

func (Null) Arg() driver.Value      { return nil }
func (v Integer) Arg() driver.Value { return int64(v) }
func (v Real) Arg() driver.Value    { return float64(v) }
func (v Text) Arg() driver.Value    { return string(v) }
func (v Blob) Arg() driver.Value {
	if v == nil {
		return []byte{}
	}
	return []byte(v)
}

func (Null) isValue()    {}
func (Integer) isValue() {}
func (Real) isValue()    {}
func (Text) isValue()    {}
func (Blob) isValue()    {}

// Args converts params to statement arguments.
func Args(params []Value) []any {
	args := make([]any, len(params))
	for i, p := range params {
		if p == nil {
			args[i] = nil
			continue
		}
		args[i] = p.Arg()
	}
	return args
}

// FromDriver converts a cell scanned from database/sql into a Value.
//
// Local cursors only produce int64, float64, string, []byte and nil. The
// remote driver parses text in DATE/DATETIME/TIMESTAMP columns into
// time.Time, which goes back to Text (RFC 3339); bool collapses to Integer.
func FromDriver(cell any) (Value, error) {
	switch v := cell.(type) {
	case nil:
		return Null{}, nil
	case int64:
		return Integer(v), nil
	case int:
		return Integer(v), nil
	case int32:
		return Integer(v), nil
	case float64:
		return Real(v), nil
	case float32:
		return Real(v), nil
	case bool:
		if v {
			return Integer(1), nil
		}
		return Integer(0), nil
	case string:
		return Text(v), nil
	case []byte:
		b := make([]byte, len(v))
		copy(b, v)
		return Blob(b), nil
	case time.Time:
		return Text(v.Format(time.RFC3339Nano)), nil
	default:
		return nil, fmt.Errorf("unsupported column value of type %T", cell)
	}
}
