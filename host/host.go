package host

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tomyedwab/libsqlbridge/bridge"
	"github.com/tomyedwab/libsqlbridge/codec"
	"github.com/tomyedwab/libsqlbridge/handle"
	"github.com/tomyedwab/libsqlbridge/libsql"
	"github.com/tomyedwab/libsqlbridge/protocol"
	"github.com/tomyedwab/libsqlbridge/term"
)

// Resource kinds registered with the handle table.
const (
	KindDatabase   handle.Kind = protocol.DatabaseModule
	KindConnection handle.Kind = protocol.ConnectionModule
)

// DatabaseHandle is a handle to an open database.
type DatabaseHandle = *handle.Handle[*libsql.Database]

// ConnectionHandle is a handle to a connection derived from a database.
type ConnectionHandle = *handle.Handle[*libsql.Conn]

// Config holds configuration options for the Host.
type Config struct {
	Logger       *slog.Logger          // Optional, defaults to slog.Default()
	Workers      int                   // Optional, bridge pool size, defaults to runtime.NumCPU()
	Registerer   prometheus.Registerer // Optional, defaults to a private registry
	MaxOpenConns int                   // Optional, per database, 0 means unlimited
}

// Host exposes the database bridge to a foreign runtime. All of its calls
// are synchronous: each one runs its database work on the bridge executor
// and returns once that work is done.
type Host struct {
	exec    *bridge.Executor
	handles *handle.Table
	metrics *metrics
	logger  *slog.Logger

	maxOpenConns int
}

// New initializes a Host. This is the one-time setup that registers the
// database and connection resource kinds; it must run before any call.
func New(config Config) (*Host, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := config.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m, err := newMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return &Host{
		exec:         bridge.New(bridge.Config{Workers: config.Workers, Logger: logger}),
		handles:      handle.NewTable(KindDatabase, KindConnection),
		metrics:      m,
		logger:       logger,
		maxOpenConns: config.MaxOpenConns,
	}, nil
}

// Close releases every handle id still held by guests and stops the bridge
// executor. Handles owned directly by Go callers stay valid until released.
func (h *Host) Close() error {
	h.handles.Close()
	return h.exec.Close()
}

func (h *Host) openOptions() []libsql.Option {
	return []libsql.Option{
		libsql.WithLogger(h.logger),
		libsql.WithMaxOpenConns(h.maxOpenConns),
	}
}

func (h *Host) track(call string, start time.Time, errp *error) {
	err := *errp
	h.metrics.observeCall(call, start, err)
	if err != nil {
		h.logger.Debug("Bridge call failed", "call", call, "duration", time.Since(start), "error", err)
		return
	}
	h.logger.Debug("Bridge call", "call", call, "duration", time.Since(start))
}

func (h *Host) wrapDatabase(db *libsql.Database) DatabaseHandle {
	h.metrics.wrapped(KindDatabase)
	return handle.Wrap(db, handle.Options{
		Kind:   KindDatabase,
		Logger: h.logger,
		OnFinalize: func(error) {
			h.metrics.finalize(KindDatabase)
		},
	})
}

// wrapConnection keeps a reference to the parent database for as long as
// the connection lives.
func (h *Host) wrapConnection(conn *libsql.Conn, parent DatabaseHandle) ConnectionHandle {
	h.metrics.wrapped(KindConnection)
	return handle.Wrap(conn, handle.Options{
		Kind:   KindConnection,
		Logger: h.logger,
		OnFinalize: func(error) {
			h.metrics.finalize(KindConnection)
			parent.Release()
		},
	})
}

// OpenLocalHandle opens a file-backed database.
func (h *Host) OpenLocalHandle(ctx context.Context, path string) (db DatabaseHandle, err error) {
	defer h.track(protocol.CallOpenLocal, time.Now(), &err)

	native, err := bridge.Run(h.exec, ctx, func(ctx context.Context) (*libsql.Database, error) {
		return libsql.OpenLocal(ctx, path, h.openOptions()...)
	})
	if err != nil {
		return nil, err
	}
	return h.wrapDatabase(native), nil
}

// OpenRemoteHandle opens a database served by a remote libsql endpoint.
func (h *Host) OpenRemoteHandle(ctx context.Context, url string, authToken string) (db DatabaseHandle, err error) {
	defer h.track(protocol.CallOpenRemote, time.Now(), &err)

	native, err := bridge.Run(h.exec, ctx, func(ctx context.Context) (*libsql.Database, error) {
		return libsql.OpenRemote(ctx, url, authToken, h.openOptions()...)
	})
	if err != nil {
		return nil, err
	}
	return h.wrapDatabase(native), nil
}

// ConnectHandle derives a new connection from db.
func (h *Host) ConnectHandle(ctx context.Context, db DatabaseHandle) (conn ConnectionHandle, err error) {
	defer h.track(protocol.CallConnect, time.Now(), &err)
	defer runtime.KeepAlive(db)

	parent := db.Clone()
	native, err := bridge.Run(h.exec, ctx, func(ctx context.Context) (*libsql.Conn, error) {
		return parent.Get().Connect(ctx)
	})
	if err != nil {
		parent.Release()
		return nil, err
	}
	return h.wrapConnection(native, parent), nil
}

// QueryHandle runs statement on conn with the given host terms as
// parameters and returns the encoded Libsql.Result record.
func (h *Host) QueryHandle(ctx context.Context, conn ConnectionHandle, statement string, params []term.Term) (res term.Struct, err error) {
	defer h.track(protocol.CallQuery, time.Now(), &err)
	defer runtime.KeepAlive(conn)

	values, err := codec.DecodeAll(params)
	if err != nil {
		return term.Struct{}, err
	}

	result, err := bridge.Run(h.exec, ctx, func(ctx context.Context) (*libsql.Result, error) {
		return conn.Get().Query(ctx, statement, values)
	})
	if err != nil {
		return term.Struct{}, err
	}
	return codec.EncodeResult(result), nil
}
