package libsql

import (
	"errors"
	"fmt"

	"github.com/ncruces/go-sqlite3"
	sqlite3driver "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed" // engine build
)

// queryLocal runs statement directly on the engine connection. Cells are
// read by storage class, never by declared column type, so a BOOLEAN or
// DATE column hands back exactly what was stored.
//
// A statement string holding several statements runs them in order, each
// taking the next parameters it needs; the result is the last one's.
func (c *Conn) queryLocal(statement string, params []Value) (*Result, error) {
	var result *Result
	err := c.conn.Raw(func(driverConn any) error {
		raw, ok := driverConn.(sqlite3driver.Conn)
		if !ok {
			return NewQueryError("query failed", fmt.Errorf("unexpected driver connection %T", driverConn))
		}
		var err error
		result, err = runLocal(raw.Raw(), statement, params)
		return err
	})
	if err != nil {
		if IsErrorType(err, ErrorTypeQuery) {
			return nil, err
		}
		return nil, NewQueryError("query failed", err)
	}
	return result, nil
}

func runLocal(conn *sqlite3.Conn, statement string, params []Value) (*Result, error) {
	var (
		columns []string
		data    [][]Value
		ran     bool
		next    int
	)

	sql := statement
	for sql != "" {
		stmt, tail, err := conn.Prepare(sql)
		if err != nil {
			return nil, NewQueryError("query failed", err)
		}
		if stmt == nil {
			// only whitespace or comments left
			break
		}

		n := stmt.BindCount()
		if next+n > len(params) {
			stmt.Close()
			return nil, NewQueryError("query failed",
				fmt.Errorf("not enough parameters: statement wants %d, got %d", next+n, len(params)))
		}
		if err := bindAll(stmt, params[next:next+n]); err != nil {
			stmt.Close()
			return nil, NewQueryError("failed to bind parameters", err)
		}
		next += n

		columns, data, err = Materialize(&stmtCursor{stmt: stmt})
		closeErr := stmt.Close()
		if err != nil {
			return nil, err
		}
		if closeErr != nil {
			return nil, NewQueryError("failed to finalize statement", closeErr)
		}
		ran = true
		sql = tail
	}

	if !ran {
		return nil, NewQueryError("query failed", errors.New("empty statement"))
	}
	if next != len(params) {
		return nil, NewQueryError("query failed",
			fmt.Errorf("too many parameters: statement wants %d, got %d", next, len(params)))
	}

	id := conn.LastInsertRowID()
	return &Result{
		Columns:      columns,
		Rows:         data,
		NumRows:      len(data),
		LastInsertID: &id,
	}, nil
}

func bindAll(stmt *sqlite3.Stmt, params []Value) error {
	for i, p := range params {
		// parameters are numbered from 1
		if err := bindValue(stmt, i+1, p); err != nil {
			return fmt.Errorf("parameter %d: %w", i, err)
		}
	}
	return nil
}

func bindValue(stmt *sqlite3.Stmt, param int, v Value) error {
	switch v := v.(type) {
	case nil, Null:
		return stmt.BindNull(param)
	case Integer:
		return stmt.BindInt64(param, int64(v))
	case Real:
		return stmt.BindFloat(param, float64(v))
	case Text:
		return stmt.BindText(param, string(v))
	case Blob:
		if len(v) == 0 {
			return stmt.BindZeroBlob(param, 0)
		}
		return stmt.BindBlob(param, v)
	default:
		return fmt.Errorf("unsupported value %T", v)
	}
}

// stmtCursor steps a prepared statement, producing the cell for each
// column from its storage class.
type stmtCursor struct {
	stmt *sqlite3.Stmt
}

func (c *stmtCursor) Columns() ([]string, error) {
	columns := make([]string, c.stmt.ColumnCount())
	for i := range columns {
		columns[i] = c.stmt.ColumnName(i)
	}
	return columns, nil
}

func (c *stmtCursor) Next() bool {
	return c.stmt.Step()
}

func (c *stmtCursor) Scan(dest ...any) error {
	for i, d := range dest {
		p, ok := d.(*any)
		if !ok {
			return fmt.Errorf("unsupported scan destination %T", d)
		}
		switch c.stmt.ColumnType(i) {
		case sqlite3.INTEGER:
			*p = c.stmt.ColumnInt64(i)
		case sqlite3.FLOAT:
			*p = c.stmt.ColumnFloat(i)
		case sqlite3.TEXT:
			*p = c.stmt.ColumnText(i)
		case sqlite3.BLOB:
			*p = c.stmt.ColumnBlob(i, []byte{})
		default:
			*p = nil
		}
	}
	return nil
}

func (c *stmtCursor) Err() error {
	return c.stmt.Err()
}
