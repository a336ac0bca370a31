// Package codec converts between host terms and database values.
//
// Decoding is an ordered classification and the order is part of the
// contract: nil atom, any other atom (as text), integer, boolean (as
// integer 1/0), float, text, binary. Booleans therefore do not survive a
// round trip: Encode(Integer(1)) is the integer 1, not true.
package codec

import (
	"fmt"

	"github.com/tomyedwab/libsqlbridge/libsql"
	"github.com/tomyedwab/libsqlbridge/protocol"
	"github.com/tomyedwab/libsqlbridge/term"
)

// ResultModule is the module name of the record a query result encodes to.
const ResultModule = protocol.ResultModule

// Decode converts one host term into a database value.
func Decode(t term.Term) (libsql.Value, error) {
	if term.IsNil(t) {
		return libsql.Null{}, nil
	}
	if a, ok := t.(term.Atom); ok {
		return libsql.Text(a), nil
	}
	if n, ok := t.(term.Int); ok {
		return libsql.Integer(n), nil
	}
	if b, ok := t.(term.Bool); ok {
		if b {
			return libsql.Integer(1), nil
		}
		return libsql.Integer(0), nil
	}
	if f, ok := t.(term.Float); ok {
		return libsql.Real(f), nil
	}
	if s, ok := t.(term.String); ok {
		return libsql.Text(s), nil
	}
	if b, ok := t.(term.Binary); ok {
		blob := make([]byte, len(b))
		copy(blob, b)
		return libsql.Blob(blob), nil
	}
	return nil, libsql.NewDecodeError(fmt.Sprintf("bad argument: cannot convert %s to a database value", describe(t)))
}

// DecodeAll decodes a parameter sequence. The first failing element aborts
// the whole conversion.
func DecodeAll(params []term.Term) ([]libsql.Value, error) {
	values := make([]libsql.Value, len(params))
	for i, p := range params {
		v, err := Decode(p)
		if err != nil {
			return nil, libsql.NewErrorWithCause(libsql.ErrorTypeDecode, fmt.Sprintf("parameter %d", i), err)
		}
		values[i] = v
	}
	return values, nil
}

// Encode converts a database value into a host term. It never fails.
func Encode(v libsql.Value) term.Term {
	switch v := v.(type) {
	case libsql.Integer:
		return term.Int(v)
	case libsql.Real:
		return term.Float(v)
	case libsql.Text:
		return term.String(v)
	case libsql.Blob:
		return term.Binary(v)
	default:
		return term.Nil
	}
}

// EncodeRow encodes each cell of a row.
func EncodeRow(row []libsql.Value) term.List {
	out := make(term.List, len(row))
	for i, v := range row {
		out[i] = Encode(v)
	}
	return out
}

// EncodeResult builds the Libsql.Result record handed back to the host.
func EncodeResult(res *libsql.Result) term.Struct {
	columns := make(term.List, len(res.Columns))
	for i, c := range res.Columns {
		columns[i] = term.String(c)
	}
	rows := make(term.List, len(res.Rows))
	for i, row := range res.Rows {
		rows[i] = EncodeRow(row)
	}
	var lastInsertID term.Term = term.Nil
	if res.LastInsertID != nil {
		lastInsertID = term.Int(*res.LastInsertID)
	}
	return term.NewStruct(ResultModule, map[string]term.Term{
		"columns":        columns,
		"last_insert_id": lastInsertID,
		"num_rows":       term.Int(res.NumRows),
		"rows":           rows,
	})
}

func describe(t term.Term) string {
	if t == nil {
		return "<nil>"
	}
	return t.Tag() + " " + term.Format(t)
}
