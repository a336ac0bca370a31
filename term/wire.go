package term

import (
	"encoding/json"
	"fmt"
	"math"
)

// --- JSON frames for crossing the runtime boundary ---

// frame is the wire shape of a single term: {"t": tag, "m": module, "v": payload}.
type frame struct {
	T string          `json:"t"`
	M string          `json:"m,omitempty"`
	V json.RawMessage `json:"v,omitempty"`
}

// Marshal encodes a term as a JSON frame.
func Marshal(t Term) ([]byte, error) {
	f, err := toFrame(t)
	if err != nil {
		return nil, err
	}
	return json.Marshal(f)
}

// Unmarshal decodes a JSON frame produced by Marshal (or by a guest
// speaking the same framing).
func Unmarshal(data []byte) (Term, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("term: invalid frame: %w", err)
	}
	return fromFrame(&f)
}

func toFrame(t Term) (*frame, error) {
	var payload any
	f := &frame{}
	switch v := t.(type) {
	case nil:
		return toFrame(Nil)
	case Atom:
		payload = string(v)
	case Bool:
		payload = bool(v)
	case Int:
		payload = int64(v)
	case Float:
		payload = floatPayload(float64(v))
	case String:
		payload = string(v)
	case Binary:
		// encoding/json renders []byte as base64
		payload = []byte(v)
	case List:
		elems := make([]*frame, len(v))
		for i, e := range v {
			ef, err := toFrame(e)
			if err != nil {
				return nil, fmt.Errorf("term: list element %d: %w", i, err)
			}
			elems[i] = ef
		}
		payload = elems
	case Struct:
		fields := make(map[string]*frame, len(v.Fields))
		for name, e := range v.Fields {
			ef, err := toFrame(e)
			if err != nil {
				return nil, fmt.Errorf("term: field %s: %w", name, err)
			}
			fields[name] = ef
		}
		f.M = v.Module
		payload = fields
	default:
		return nil, fmt.Errorf("term: unsupported term type %T", t)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("term: failed to marshal %s payload: %w", t.Tag(), err)
	}
	f.T = t.Tag()
	f.V = raw
	return f, nil
}

func fromFrame(f *frame) (Term, error) {
	if f == nil {
		return nil, fmt.Errorf("term: missing frame")
	}
	switch f.T {
	case TagAtom:
		var s string
		if err := decodePayload(f, &s); err != nil {
			return nil, err
		}
		return Atom(s), nil
	case TagBool:
		var b bool
		if err := decodePayload(f, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil
	case TagInt:
		var n int64
		if err := decodePayload(f, &n); err != nil {
			return nil, err
		}
		return Int(n), nil
	case TagFloat:
		x, err := decodeFloat(f)
		if err != nil {
			return nil, err
		}
		return Float(x), nil
	case TagString:
		var s string
		if err := decodePayload(f, &s); err != nil {
			return nil, err
		}
		return String(s), nil
	case TagBinary:
		var b []byte
		if err := decodePayload(f, &b); err != nil {
			return nil, err
		}
		if b == nil {
			b = []byte{}
		}
		return Binary(b), nil
	case TagList:
		var elems []*frame
		if err := decodePayload(f, &elems); err != nil {
			return nil, err
		}
		list := make(List, len(elems))
		for i, ef := range elems {
			e, err := fromFrame(ef)
			if err != nil {
				return nil, fmt.Errorf("term: list element %d: %w", i, err)
			}
			list[i] = e
		}
		return list, nil
	case TagStruct:
		var fields map[string]*frame
		if err := decodePayload(f, &fields); err != nil {
			return nil, err
		}
		s := NewStruct(f.M, make(map[string]Term, len(fields)))
		for name, ef := range fields {
			e, err := fromFrame(ef)
			if err != nil {
				return nil, fmt.Errorf("term: field %s: %w", name, err)
			}
			s.Fields[name] = e
		}
		return s, nil
	default:
		return nil, fmt.Errorf("term: unknown tag %q", f.T)
	}
}

// JSON has no literal for non-finite numbers; they travel as strings.
const (
	posInf = "inf"
	negInf = "-inf"
	nan    = "nan"
)

func floatPayload(x float64) any {
	switch {
	case math.IsNaN(x):
		return nan
	case math.IsInf(x, 1):
		return posInf
	case math.IsInf(x, -1):
		return negInf
	default:
		return x
	}
}

func decodeFloat(f *frame) (float64, error) {
	var x float64
	if err := decodePayload(f, &x); err == nil {
		return x, nil
	}
	var s string
	if err := decodePayload(f, &s); err != nil {
		return 0, err
	}
	switch s {
	case posInf:
		return math.Inf(1), nil
	case negInf:
		return math.Inf(-1), nil
	case nan:
		return math.NaN(), nil
	default:
		return 0, fmt.Errorf("term: invalid float payload %q", s)
	}
}

func decodePayload(f *frame, dest any) error {
	if len(f.V) == 0 {
		return fmt.Errorf("term: %s frame has no payload", f.T)
	}
	if err := json.Unmarshal(f.V, dest); err != nil {
		return fmt.Errorf("term: invalid %s payload: %w", f.T, err)
	}
	return nil
}

// Frame wraps a Term so it can be embedded in JSON messages.
type Frame struct {
	Term Term
}

// MarshalJSON implements json.Marshaler. A zero Frame encodes the nil atom.
func (f Frame) MarshalJSON() ([]byte, error) {
	return Marshal(f.Term)
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Frame) UnmarshalJSON(data []byte) error {
	t, err := Unmarshal(data)
	if err != nil {
		return err
	}
	f.Term = t
	return nil
}

// Frames wraps each term of a list.
func Frames(terms ...Term) []Frame {
	out := make([]Frame, len(terms))
	for i, t := range terms {
		out[i] = Frame{Term: t}
	}
	return out
}
