package guest

import (
	"fmt"

	"github.com/tomyedwab/libsqlbridge/term"
)

// Params converts Go values into query parameter terms. Supported values
// are nil, bool, the integer kinds, float32/float64, string, []byte and
// values that already are a term.Term.
func Params(values ...any) ([]term.Term, error) {
	out := make([]term.Term, len(values))
	for i, v := range values {
		t, err := toTerm(v)
		if err != nil {
			return nil, fmt.Errorf("guest: parameter %d: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}

// MustParams is like Params but panics on unsupported values.
func MustParams(values ...any) []term.Term {
	out, err := Params(values...)
	if err != nil {
		panic(err)
	}
	return out
}

func toTerm(v any) (term.Term, error) {
	switch v := v.(type) {
	case nil:
		return term.Nil, nil
	case term.Term:
		return v, nil
	case bool:
		return term.Bool(v), nil
	case int:
		return term.Int(v), nil
	case int8:
		return term.Int(v), nil
	case int16:
		return term.Int(v), nil
	case int32:
		return term.Int(v), nil
	case int64:
		return term.Int(v), nil
	case uint8:
		return term.Int(v), nil
	case uint16:
		return term.Int(v), nil
	case uint32:
		return term.Int(v), nil
	case float32:
		return term.Float(v), nil
	case float64:
		return term.Float(v), nil
	case string:
		return term.String(v), nil
	case []byte:
		return term.Binary(append([]byte(nil), v...)), nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}
