// Package libsql is the native side of the bridge: it opens local
// (sqlite3) or remote (libsql) databases, derives connections from them and
// runs statements whose results are buffered in full before they are
// handed back.
//
// Values crossing into and out of the engine are restricted to the five
// kinds the engine stores: Null, Integer, Real, Text and Blob.
//
// Usage:
//
//	db, err := libsql.OpenLocal(ctx, "app.db")
//	if err != nil {
//		// handle error
//	}
//	conn, err := db.Connect(ctx)
//	if err != nil {
//		// handle error
//	}
//	res, err := conn.Query(ctx, "SELECT id, name FROM t WHERE id = ?", []libsql.Value{libsql.Integer(1)})
//
// Errors are *Error values classified by ErrorType (open, connect, query).
// Closing is left to the owner of the Database and Conn; in this module
// that is the handle package.
package libsql
