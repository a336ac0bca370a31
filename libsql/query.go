package libsql

import (
	"context"
	"database/sql"
	"fmt"
)

const lastInsertIDSQL = "SELECT last_insert_rowid()"

// Result is a fully buffered query result. It keeps no reference to the
// connection that produced it.
type Result struct {
	Columns      []string
	Rows         [][]Value
	NumRows      int
	LastInsertID *int64
}

// Cursor is the streaming row iterator a statement produces. *sql.Rows and
// *sqlx.Rows satisfy it, as does the local engine's statement cursor.
type Cursor interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// Query runs statement with params on the connection and materializes every
// row. Either the whole result is returned or an error is; never part of
// one.
func (c *Conn) Query(ctx context.Context, statement string, params []Value) (*Result, error) {
	if !c.db.remote {
		return c.queryLocal(statement, params)
	}
	return c.queryRemote(ctx, statement, params)
}

func (c *Conn) queryRemote(ctx context.Context, statement string, params []Value) (*Result, error) {
	rows, err := c.conn.QueryxContext(ctx, statement, Args(params)...)
	if err != nil {
		return nil, NewQueryError("query failed", err)
	}

	columns, data, err := Materialize(rows)
	closeErr := rows.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, NewQueryError("failed to close rows", closeErr)
	}

	var lastInsertID sql.NullInt64
	if err := c.conn.QueryRowxContext(ctx, lastInsertIDSQL).Scan(&lastInsertID); err != nil {
		return nil, NewQueryError("failed to read last insert id", err)
	}

	result := &Result{
		Columns: columns,
		Rows:    data,
		NumRows: len(data),
	}
	if lastInsertID.Valid {
		id := lastInsertID.Int64
		result.LastInsertID = &id
	}
	return result, nil
}

// Materialize drains cur. Column names are read before the first row, and
// every row carries exactly one value per column.
func Materialize(cur Cursor) ([]string, [][]Value, error) {
	columns, err := cur.Columns()
	if err != nil {
		return nil, nil, NewQueryError("failed to get columns", err)
	}
	if columns == nil {
		columns = []string{}
	}

	data := [][]Value{}
	cells := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range cells {
		ptrs[i] = &cells[i]
	}

	for cur.Next() {
		if err := cur.Scan(ptrs...); err != nil {
			return nil, nil, NewQueryError("failed to scan row", err)
		}
		row := make([]Value, len(columns))
		for i, cell := range cells {
			v, err := FromDriver(cell)
			if err != nil {
				return nil, nil, NewQueryError(
					fmt.Sprintf("failed to read column %d of row %d", i, len(data)), err)
			}
			row[i] = v
			cells[i] = nil
		}
		data = append(data, row)
	}

	if err := cur.Err(); err != nil {
		return nil, nil, NewQueryError("error iterating rows", err)
	}
	return columns, data, nil
}
