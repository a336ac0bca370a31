package host

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyedwab/libsqlbridge/libsql"
	"github.com/tomyedwab/libsqlbridge/protocol"
	"github.com/tomyedwab/libsqlbridge/term"
)

func setupTestHost(t *testing.T) *Host {
	t.Helper()
	h, err := New(Config{Workers: 2})
	require.NoError(t, err)
	t.Cleanup(func() {
		h.Close()
	})
	return h
}

func call(t *testing.T, h *Host, name string, args ...term.Term) term.Term {
	t.Helper()
	out, err := h.Call(context.Background(), name, args)
	require.NoError(t, err, "%s failed", name)
	return out
}

func TestCallEndToEnd(t *testing.T) {
	h := setupTestHost(t)
	path := filepath.Join(t.TempDir(), "e2e.db")

	db := call(t, h, protocol.CallOpenLocal, term.String(path))
	assert.Equal(t, protocol.DatabaseModule, db.(term.Struct).Module)

	conn := call(t, h, protocol.CallConnect, db)
	assert.Equal(t, protocol.ConnectionModule, conn.(term.Struct).Module)

	call(t, h, protocol.CallQuery, conn, term.String("CREATE TABLE t(id INTEGER, name TEXT)"), term.List{})
	call(t, h, protocol.CallQuery, conn, term.String("INSERT INTO t VALUES (?, ?)"), term.List{term.Int(1), term.String("a")})

	res := call(t, h, protocol.CallQuery, conn, term.String("SELECT id, name FROM t"), term.Nil).(term.Struct)
	assert.Equal(t, protocol.ResultModule, res.Module)
	assert.Equal(t, term.List{term.String("id"), term.String("name")}, res.Field("columns"))
	assert.Equal(t, term.List{term.List{term.Int(1), term.String("a")}}, res.Field("rows"))
	assert.Equal(t, term.Int(1), res.Field("num_rows"))
	assert.Equal(t, term.Int(1), res.Field("last_insert_id"))
}

func TestCallQueryErrors(t *testing.T) {
	h := setupTestHost(t)
	db := call(t, h, protocol.CallOpenLocal, term.String(filepath.Join(t.TempDir(), "err.db")))
	conn := call(t, h, protocol.CallConnect, db)

	out, err := h.Call(context.Background(), protocol.CallQuery, []term.Term{conn, term.String("SELECT * FROM nope"), term.List{}})
	require.Error(t, err)
	assert.True(t, libsql.IsErrorType(err, libsql.ErrorTypeQuery))
	if s, ok := out.(term.Struct); ok {
		assert.Empty(t, s.Fields)
	}

	_, err = h.Call(context.Background(), protocol.CallQuery, []term.Term{conn, term.String("SELECT ?"), term.List{term.List{}}})
	require.Error(t, err)
	assert.True(t, libsql.IsErrorType(err, libsql.ErrorTypeDecode))

	_, err = h.Call(context.Background(), protocol.CallQuery, []term.Term{db, term.String("SELECT 1"), term.List{}})
	assert.Error(t, err)

	_, err = h.Call(context.Background(), protocol.CallQuery, []term.Term{conn})
	assert.True(t, libsql.IsErrorType(err, libsql.ErrorTypeDecode))

	_, err = h.Call(context.Background(), "drop_everything", nil)
	require.Error(t, err)
	assert.True(t, libsql.IsErrorType(err, libsql.ErrorTypeUnknown), "got %v", err)
	assert.False(t, libsql.IsErrorType(err, libsql.ErrorTypeDecode))
}

func TestCallOpenErrors(t *testing.T) {
	h := setupTestHost(t)

	_, err := h.Call(context.Background(), protocol.CallOpenLocal, []term.Term{term.String(filepath.Join(t.TempDir(), "no", "such", "x.db"))})
	assert.True(t, libsql.IsErrorType(err, libsql.ErrorTypeOpen))

	_, err = h.Call(context.Background(), protocol.CallOpenLocal, []term.Term{term.Int(1)})
	assert.True(t, libsql.IsErrorType(err, libsql.ErrorTypeDecode))

	_, err = h.Call(context.Background(), protocol.CallOpenRemote, []term.Term{term.String("ftp://x"), term.String("")})
	assert.True(t, libsql.IsErrorType(err, libsql.ErrorTypeOpen))

	db, err := h.Call(context.Background(), protocol.CallOpenRemote, []term.Term{term.String("libsql://db.example.invalid"), term.Binary("token")})
	require.NoError(t, err)
	assert.Equal(t, protocol.DatabaseModule, db.(term.Struct).Module)
}

func TestDatabaseOutlivesReleasedID(t *testing.T) {
	h := setupTestHost(t)
	db := call(t, h, protocol.CallOpenLocal, term.String(filepath.Join(t.TempDir(), "life.db")))
	conn := call(t, h, protocol.CallConnect, db)

	call(t, h, protocol.CallRelease, db)
	assert.Equal(t, 0, h.handles.Len(KindDatabase))
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.finalized.WithLabelValues(string(KindDatabase))))

	res := call(t, h, protocol.CallQuery, conn, term.String("SELECT 1 + 1"), term.List{}).(term.Struct)
	assert.Equal(t, term.List{term.List{term.Int(2)}}, res.Field("rows"))

	_, err := h.Call(context.Background(), protocol.CallConnect, []term.Term{db})
	assert.True(t, libsql.IsErrorType(err, libsql.ErrorTypeHandle))

	call(t, h, protocol.CallRelease, conn)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.finalized.WithLabelValues(string(KindConnection))))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.finalized.WithLabelValues(string(KindDatabase))))
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.live.WithLabelValues(string(KindDatabase))))
}

func TestCloneAndRelease(t *testing.T) {
	h := setupTestHost(t)
	db := call(t, h, protocol.CallOpenLocal, term.String(filepath.Join(t.TempDir(), "clone.db")))

	clone := call(t, h, protocol.CallClone, db)
	assert.NotEqual(t, db, clone)
	assert.Equal(t, 2, h.handles.Len(KindDatabase))

	assert.Equal(t, term.Atom("ok"), call(t, h, protocol.CallRelease, db))
	call(t, h, protocol.CallConnect, clone)
	call(t, h, protocol.CallRelease, clone)

	_, err := h.Call(context.Background(), protocol.CallRelease, []term.Term{clone})
	assert.True(t, libsql.IsErrorType(err, libsql.ErrorTypeHandle))
	_, err = h.Call(context.Background(), protocol.CallRelease, []term.Term{term.Int(3)})
	assert.True(t, libsql.IsErrorType(err, libsql.ErrorTypeDecode))
}

func TestTypedHandles(t *testing.T) {
	h := setupTestHost(t)
	ctx := context.Background()

	db, err := h.OpenLocalHandle(ctx, filepath.Join(t.TempDir(), "typed.db"))
	require.NoError(t, err)
	conn, err := h.ConnectHandle(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(2), db.Refs())

	db.Release()
	res, err := h.QueryHandle(ctx, conn, "SELECT ?, ?, ?", []term.Term{term.Bool(true), term.Atom("x"), term.Nil})
	require.NoError(t, err)
	assert.Equal(t, term.List{term.List{term.Int(1), term.String("x"), term.Nil}}, res.Field("rows"))

	conn.Release()
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.finalized.WithLabelValues(string(KindDatabase))))
}

func TestHandleRequest(t *testing.T) {
	h := setupTestHost(t)
	ctx := context.Background()

	send := func(req protocol.Request) protocol.Response {
		payload, err := json.Marshal(req)
		require.NoError(t, err)
		respPayload, err := h.HandleRequest(ctx, payload)
		require.NoError(t, err)
		var resp protocol.Response
		require.NoError(t, json.Unmarshal(respPayload, &resp))
		return resp
	}

	resp := send(protocol.Request{Call: protocol.CallOpenLocal, Args: term.Frames(term.String(filepath.Join(t.TempDir(), "req.db")))})
	require.Empty(t, resp.Error)
	require.NotNil(t, resp.Ok)
	db := resp.Ok.Term

	resp = send(protocol.Request{Call: protocol.CallConnect, Args: term.Frames(db)})
	require.Empty(t, resp.Error)
	conn := resp.Ok.Term

	resp = send(protocol.Request{Call: protocol.CallQuery, Args: term.Frames(conn, term.String("SELECT x'00ff', 1.5"), term.List{})})
	require.Empty(t, resp.Error)
	res := resp.Ok.Term.(term.Struct)
	assert.Equal(t, term.List{term.List{term.Binary{0x00, 0xff}, term.Float(1.5)}}, res.Field("rows"))

	resp = send(protocol.Request{Call: protocol.CallQuery, Args: term.Frames(conn, term.String("SELEC"), term.List{})})
	assert.Nil(t, resp.Ok)
	assert.Contains(t, resp.Error, "query failed")

	respPayload, err := h.HandleRequest(ctx, []byte("{"))
	require.NoError(t, err)
	assert.Contains(t, string(respPayload), "failed to unmarshal request")
}
