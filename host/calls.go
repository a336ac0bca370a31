package host

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/tomyedwab/libsqlbridge/handle"
	"github.com/tomyedwab/libsqlbridge/libsql"
	"github.com/tomyedwab/libsqlbridge/protocol"
	"github.com/tomyedwab/libsqlbridge/term"
)

// Call dispatches a boundary call made with host terms. Handles cross the
// boundary as Libsql.Database / Libsql.Connection records holding an
// opaque id; the id owns one reference until it is released.
func (h *Host) Call(ctx context.Context, call string, args []term.Term) (term.Term, error) {
	switch call {
	case protocol.CallOpenLocal:
		if err := checkArity(call, args, 1); err != nil {
			return nil, err
		}
		path, err := textArg(call, "path", args[0])
		if err != nil {
			return nil, err
		}
		db, err := h.OpenLocalHandle(ctx, path)
		if err != nil {
			return nil, err
		}
		return h.putDatabase(db)

	case protocol.CallOpenRemote:
		if err := checkArity(call, args, 2); err != nil {
			return nil, err
		}
		url, err := textArg(call, "url", args[0])
		if err != nil {
			return nil, err
		}
		authToken, err := textArg(call, "auth_token", args[1])
		if err != nil {
			return nil, err
		}
		db, err := h.OpenRemoteHandle(ctx, url, authToken)
		if err != nil {
			return nil, err
		}
		return h.putDatabase(db)

	case protocol.CallConnect:
		if err := checkArity(call, args, 1); err != nil {
			return nil, err
		}
		id, err := handleID(call, args[0], protocol.DatabaseModule, protocol.DatabaseField)
		if err != nil {
			return nil, err
		}
		db, err := handle.Lookup[*libsql.Database](h.handles, KindDatabase, id)
		if err != nil {
			return nil, libsql.NewHandleError("invalid database handle", err)
		}
		defer db.Release()

		conn, err := h.ConnectHandle(ctx, db)
		if err != nil {
			return nil, err
		}
		return h.putConnection(conn)

	case protocol.CallQuery:
		if err := checkArity(call, args, 3); err != nil {
			return nil, err
		}
		id, err := handleID(call, args[0], protocol.ConnectionModule, protocol.ConnectionField)
		if err != nil {
			return nil, err
		}
		statement, err := textArg(call, "statement", args[1])
		if err != nil {
			return nil, err
		}
		params, err := listArg(call, "params", args[2])
		if err != nil {
			return nil, err
		}
		conn, err := handle.Lookup[*libsql.Conn](h.handles, KindConnection, id)
		if err != nil {
			return nil, libsql.NewHandleError("invalid connection handle", err)
		}
		defer conn.Release()

		return h.QueryHandle(ctx, conn, statement, params)

	case protocol.CallClone:
		return h.cloneID(args)

	case protocol.CallRelease:
		return h.releaseID(args)

	default:
		return nil, libsql.NewError(libsql.ErrorTypeUnknown, fmt.Sprintf("unknown call: %s", call))
	}
}

func (h *Host) putDatabase(db DatabaseHandle) (term.Term, error) {
	id, err := handle.Put(h.handles, KindDatabase, db)
	if err != nil {
		db.Release()
		return nil, err
	}
	return handleTerm(KindDatabase, id), nil
}

func (h *Host) putConnection(conn ConnectionHandle) (term.Term, error) {
	id, err := handle.Put(h.handles, KindConnection, conn)
	if err != nil {
		conn.Release()
		return nil, err
	}
	return handleTerm(KindConnection, id), nil
}

func (h *Host) cloneID(args []term.Term) (t term.Term, err error) {
	defer h.track(protocol.CallClone, time.Now(), &err)

	if err := checkArity(protocol.CallClone, args, 1); err != nil {
		return nil, err
	}
	id, kind, err := anyHandleID(protocol.CallClone, args[0])
	if err != nil {
		return nil, err
	}
	newID, err := h.handles.Clone(id)
	if err != nil {
		return nil, libsql.NewHandleError("invalid handle", err)
	}
	return handleTerm(kind, newID), nil
}

func (h *Host) releaseID(args []term.Term) (t term.Term, err error) {
	defer h.track(protocol.CallRelease, time.Now(), &err)

	if err := checkArity(protocol.CallRelease, args, 1); err != nil {
		return nil, err
	}
	id, _, err := anyHandleID(protocol.CallRelease, args[0])
	if err != nil {
		return nil, err
	}
	if err := h.handles.Release(id); err != nil {
		return nil, libsql.NewHandleError("invalid handle", err)
	}
	return term.Atom("ok"), nil
}

// HandleRequest processes a raw request payload and returns a raw response
// payload. Call failures are reported inside the response; the returned
// error is only set when no response could be encoded at all.
func (h *Host) HandleRequest(ctx context.Context, requestPayload []byte) ([]byte, error) {
	var req protocol.Request
	if err := json.Unmarshal(requestPayload, &req); err != nil {
		return marshalErrorResponse(fmt.Sprintf("failed to unmarshal request: %v", err))
	}

	args := make([]term.Term, len(req.Args))
	for i, a := range req.Args {
		args[i] = a.Term
	}

	result, err := h.Call(ctx, req.Call, args)
	if err != nil {
		return marshalErrorResponse(err.Error())
	}

	payload, err := json.Marshal(protocol.Response{Ok: &term.Frame{Term: result}})
	if err != nil {
		return marshalErrorResponse(fmt.Sprintf("failed to marshal %s result: %v", req.Call, err))
	}
	return payload, nil
}

func marshalErrorResponse(errMsg string) ([]byte, error) {
	payload, err := json.Marshal(protocol.Response{Error: errMsg})
	if err != nil {
		return []byte(`{"error":"critical: failed to marshal error response"}`),
			fmt.Errorf("failed to marshal error response for '%s': %w", errMsg, err)
	}
	return payload, nil
}

// --- argument helpers ---

func badArgument(call string, format string, args ...any) error {
	return libsql.NewDecodeError(fmt.Sprintf("bad argument to %s: %s", call, fmt.Sprintf(format, args...)))
}

func checkArity(call string, args []term.Term, n int) error {
	if len(args) != n {
		return badArgument(call, "expected %d arguments, got %d", n, len(args))
	}
	return nil
}

// textArg accepts a string term, or a binary holding valid UTF-8 (hosts
// often represent text as binaries).
func textArg(call string, name string, t term.Term) (string, error) {
	switch v := t.(type) {
	case term.String:
		return string(v), nil
	case term.Binary:
		if utf8.Valid(v) {
			return string(v), nil
		}
	}
	return "", badArgument(call, "%s must be text, got %s", name, term.Format(t))
}

func listArg(call string, name string, t term.Term) ([]term.Term, error) {
	if term.IsNil(t) {
		return nil, nil
	}
	list, ok := t.(term.List)
	if !ok {
		return nil, badArgument(call, "%s must be a list, got %s", name, term.Format(t))
	}
	return list, nil
}

func handleTerm(kind handle.Kind, id string) term.Struct {
	field := protocol.DatabaseField
	if kind == KindConnection {
		field = protocol.ConnectionField
	}
	return term.NewStruct(string(kind), map[string]term.Term{field: term.String(id)})
}

// handleID extracts the id from a handle record of the given module. A
// bare text id is accepted too.
func handleID(call string, t term.Term, module string, field string) (string, error) {
	switch v := t.(type) {
	case term.String:
		return string(v), nil
	case term.Struct:
		if v.Module != module {
			return "", badArgument(call, "expected %%%s{}, got %%%s{}", module, v.Module)
		}
		if id, ok := v.Field(field).(term.String); ok {
			return string(id), nil
		}
	}
	return "", badArgument(call, "expected a %s handle, got %s", module, term.Format(t))
}

func anyHandleID(call string, t term.Term) (string, handle.Kind, error) {
	if s, ok := t.(term.Struct); ok {
		switch s.Module {
		case protocol.DatabaseModule:
			id, err := handleID(call, t, protocol.DatabaseModule, protocol.DatabaseField)
			return id, KindDatabase, err
		case protocol.ConnectionModule:
			id, err := handleID(call, t, protocol.ConnectionModule, protocol.ConnectionField)
			return id, KindConnection, err
		}
	}
	return "", "", badArgument(call, "expected a handle, got %s", term.Format(t))
}
