package libsql

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/jmoiron/sqlx"
	_ "github.com/ncruces/go-sqlite3/driver" // local engine, registers "sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

const (
	localDriverName  = "sqlite3"
	remoteDriverName = "libsql"
)

var remoteSchemes = map[string]bool{
	"libsql": true,
	"https":  true,
	"http":   true,
	"wss":    true,
	"ws":     true,
}

type options struct {
	logger       *slog.Logger
	maxOpenConns int
}

// Option configures OpenLocal and OpenRemote.
type Option func(*options)

// WithLogger sets the logger used by the database and its connections.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMaxOpenConns caps the number of connections the database hands out.
// Zero means unlimited.
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		o.maxOpenConns = n
	}
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Database is a local or remote database from which connections are
// derived.
type Database struct {
	db     *sqlx.DB
	source string // path, or scheme://host for remote databases
	remote bool
	logger *slog.Logger
}

// OpenLocal opens the file-backed database at path, creating it if needed.
// The file is opened eagerly so that an unusable path fails here rather
// than on the first query.
func OpenLocal(ctx context.Context, path string, opts ...Option) (*Database, error) {
	o := buildOptions(opts)
	if path == "" {
		return nil, NewOpenError("failed to open local database", fmt.Errorf("empty path"))
	}

	db, err := sqlx.Open(localDriverName, path)
	if err != nil {
		return nil, NewOpenError("failed to open local database", err)
	}
	if o.maxOpenConns > 0 {
		db.SetMaxOpenConns(o.maxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, NewOpenError("failed to open local database", err)
	}

	o.logger.Debug("Opened local database", "path", path)
	return &Database{db: db, source: path, logger: o.logger}, nil
}

// OpenRemote opens a database served by a remote libsql endpoint,
// authenticating with authToken. Like the libsql builder it does not
// contact the server until a connection is used.
func OpenRemote(ctx context.Context, rawURL string, authToken string, opts ...Option) (*Database, error) {
	o := buildOptions(opts)

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, NewOpenError("failed to open remote database", err)
	}
	if !remoteSchemes[u.Scheme] {
		return nil, NewOpenError("failed to open remote database", fmt.Errorf("unsupported URL scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return nil, NewOpenError("failed to open remote database", fmt.Errorf("URL %q has no host", rawURL))
	}
	source := u.Scheme + "://" + u.Host

	if authToken != "" {
		q := u.Query()
		q.Set("authToken", authToken)
		u.RawQuery = q.Encode()
		logAuthToken(o.logger, source, authToken)
	} else {
		o.logger.Debug("Opening remote database without auth token", "source", source)
	}

	db, err := sqlx.Open(remoteDriverName, u.String())
	if err != nil {
		return nil, NewOpenError("failed to open remote database", err)
	}
	if o.maxOpenConns > 0 {
		db.SetMaxOpenConns(o.maxOpenConns)
	}

	o.logger.Debug("Opened remote database", "source", source)
	return &Database{db: db, source: source, remote: true, logger: o.logger}, nil
}

// Source returns the path of a local database or scheme://host of a remote one.
func (d *Database) Source() string {
	return d.source
}

// IsRemote reports whether the database is served by a remote endpoint.
func (d *Database) IsRemote() bool {
	return d.remote
}

// Connect reserves a dedicated connection. Statements issued on the
// returned Conn run on the same underlying session, so last-insert ids are
// per connection.
func (d *Database) Connect(ctx context.Context) (*Conn, error) {
	conn, err := d.db.Connx(ctx)
	if err != nil {
		return nil, NewConnectError("failed to connect", err)
	}
	return &Conn{conn: conn, db: d}, nil
}

// Close releases the connection pool.
func (d *Database) Close() error {
	d.logger.Debug("Closing database", "source", d.source)
	return d.db.Close()
}

// Conn is a single connection derived from a Database.
type Conn struct {
	conn *sqlx.Conn
	db   *Database
}

// Database returns the database the connection was derived from.
func (c *Conn) Database() *Database {
	return c.db
}

// Close returns the connection to its database.
func (c *Conn) Close() error {
	return c.conn.Close()
}
