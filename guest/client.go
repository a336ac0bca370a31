// Package guest is the client side of the bridge, for code running inside
// a WebAssembly guest (or anywhere else that can only exchange bytes with
// the host).
//
// The client is transport-agnostic: every call is marshalled into a
// protocol.Request and handed to a CallHost function. Under GOOS=wasip1,
// Default returns a client bound to the host's libsql_host_handler import.
//
//	c := guest.Default()
//	db, err := c.OpenLocal("app.db")
//	conn, err := c.Connect(db)
//	res, err := c.Query(conn, "SELECT ?", guest.MustParams(42))
//
// Handles returned by the host stay valid until they are released. Each
// Clone must be paired with its own Release.
package guest

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tomyedwab/libsqlbridge/protocol"
	"github.com/tomyedwab/libsqlbridge/term"
)

// CallHost sends a request payload to the host and returns its response
// payload.
type CallHost func(requestPayload []byte) (responsePayload []byte, err error)

// ErrNoTransport is returned by every call of a client built without a
// CallHost function.
var ErrNoTransport = errors.New("guest: CallHost function is not set")

// HostError is a call failure reported by the host.
type HostError struct {
	Call    string
	Message string
}

func (e *HostError) Error() string {
	return fmt.Sprintf("%s: %s", e.Call, e.Message)
}

// Handle is an opaque reference to a database or connection owned by the
// host.
type Handle struct {
	ref term.Struct
}

// Module is the record module of the handle, protocol.DatabaseModule or
// protocol.ConnectionModule.
func (h Handle) Module() string { return h.ref.Module }

// ID is the host-side id of the handle.
func (h Handle) ID() string {
	for _, field := range []string{protocol.DatabaseField, protocol.ConnectionField} {
		if id, ok := h.ref.Field(field).(term.String); ok {
			return string(id)
		}
	}
	return ""
}

// Term is the record passed back to the host.
func (h Handle) Term() term.Struct { return h.ref }

// Result is a fully materialized query result.
type Result struct {
	Columns      []string
	Rows         [][]term.Term
	NumRows      int64
	LastInsertID *int64
}

// Client issues boundary calls to the host.
type Client struct {
	callHost CallHost
}

// New returns a client that talks to the host through callHost.
func New(callHost CallHost) *Client {
	return &Client{callHost: callHost}
}

// OpenLocal opens a database file on the host.
func (c *Client) OpenLocal(path string) (Handle, error) {
	out, err := c.call(protocol.CallOpenLocal, term.String(path))
	if err != nil {
		return Handle{}, err
	}
	return asHandle(protocol.CallOpenLocal, out, protocol.DatabaseModule)
}

// OpenRemote opens a remote database. No network traffic happens until
// the first query.
func (c *Client) OpenRemote(url string, authToken string) (Handle, error) {
	out, err := c.call(protocol.CallOpenRemote, term.String(url), term.String(authToken))
	if err != nil {
		return Handle{}, err
	}
	return asHandle(protocol.CallOpenRemote, out, protocol.DatabaseModule)
}

// Connect opens a connection on db.
func (c *Client) Connect(db Handle) (Handle, error) {
	out, err := c.call(protocol.CallConnect, db.ref)
	if err != nil {
		return Handle{}, err
	}
	return asHandle(protocol.CallConnect, out, protocol.ConnectionModule)
}

// Query runs statement on conn with positional params. A nil params list
// binds nothing.
func (c *Client) Query(conn Handle, statement string, params []term.Term) (*Result, error) {
	list := term.List(params)
	if list == nil {
		list = term.List{}
	}
	out, err := c.call(protocol.CallQuery, conn.ref, term.String(statement), list)
	if err != nil {
		return nil, err
	}
	return decodeResult(out)
}

// Clone returns a second reference to the same host resource.
func (c *Client) Clone(h Handle) (Handle, error) {
	out, err := c.call(protocol.CallClone, h.ref)
	if err != nil {
		return Handle{}, err
	}
	return asHandle(protocol.CallClone, out, h.Module())
}

// Release drops the reference held by h. The host closes the resource
// once no references remain.
func (c *Client) Release(h Handle) error {
	_, err := c.call(protocol.CallRelease, h.ref)
	return err
}

func (c *Client) call(call string, args ...term.Term) (term.Term, error) {
	if c == nil || c.callHost == nil {
		return nil, ErrNoTransport
	}

	payload, err := json.Marshal(protocol.Request{Call: call, Args: term.Frames(args...)})
	if err != nil {
		return nil, fmt.Errorf("guest: failed to marshal %s request: %w", call, err)
	}

	respPayload, err := c.callHost(payload)
	if err != nil {
		return nil, fmt.Errorf("guest: %s: host call failed: %w", call, err)
	}

	var resp protocol.Response
	if err := json.Unmarshal(respPayload, &resp); err != nil {
		return nil, fmt.Errorf("guest: failed to unmarshal %s response: %w", call, err)
	}
	if resp.Error != "" {
		return nil, &HostError{Call: call, Message: resp.Error}
	}
	if resp.Ok == nil {
		return nil, fmt.Errorf("guest: %s: empty response", call)
	}
	return resp.Ok.Term, nil
}

func asHandle(call string, t term.Term, module string) (Handle, error) {
	s, ok := t.(term.Struct)
	if !ok || s.Module != module {
		return Handle{}, fmt.Errorf("guest: %s: expected %%%s{}, got %s", call, module, term.Format(t))
	}
	return Handle{ref: s}, nil
}

func decodeResult(t term.Term) (*Result, error) {
	s, ok := t.(term.Struct)
	if !ok || s.Module != protocol.ResultModule {
		return nil, fmt.Errorf("guest: expected %%%s{}, got %s", protocol.ResultModule, term.Format(t))
	}

	res := &Result{}

	columns, ok := s.Field("columns").(term.List)
	if !ok {
		return nil, errors.New("guest: result has no column list")
	}
	res.Columns = make([]string, len(columns))
	for i, col := range columns {
		name, ok := col.(term.String)
		if !ok {
			return nil, fmt.Errorf("guest: column %d is not text", i)
		}
		res.Columns[i] = string(name)
	}

	rows, ok := s.Field("rows").(term.List)
	if !ok {
		return nil, errors.New("guest: result has no row list")
	}
	res.Rows = make([][]term.Term, len(rows))
	for i, row := range rows {
		cells, ok := row.(term.List)
		if !ok {
			return nil, fmt.Errorf("guest: row %d is not a list", i)
		}
		res.Rows[i] = cells
	}

	numRows, ok := s.Field("num_rows").(term.Int)
	if !ok {
		return nil, errors.New("guest: result has no row count")
	}
	res.NumRows = int64(numRows)

	switch id := s.Field("last_insert_id").(type) {
	case term.Int:
		v := int64(id)
		res.LastInsertID = &v
	default:
		if !term.IsNil(id) {
			return nil, fmt.Errorf("guest: bad last_insert_id %s", term.Format(id))
		}
	}
	return res, nil
}
