// Package protocol defines the messages a guest runtime exchanges with the
// bridge host. It has no dependencies beyond term so that guests can
// import it without pulling in the database drivers.
package protocol

import "github.com/tomyedwab/libsqlbridge/term"

// Boundary calls understood by the host.
const (
	CallOpenLocal  = "open_local"
	CallOpenRemote = "open_remote"
	CallConnect    = "connect"
	CallQuery      = "query"
	CallClone      = "clone"
	CallRelease    = "release"
)

// Module names of the records the host hands out for opaque handles, and
// the field each one keeps its id in.
const (
	DatabaseModule   = "Libsql.Database"
	DatabaseField    = "database"
	ConnectionModule = "Libsql.Connection"
	ConnectionField  = "connection"
	ResultModule     = "Libsql.Result"
)

// --- JSON structures for host communication ---

// Request is a single boundary call sent to the host.
type Request struct {
	Call string       `json:"call"`
	Args []term.Frame `json:"args,omitempty"`
}

// Response carries either the call's result or its error message, never
// both.
type Response struct {
	Ok    *term.Frame `json:"ok,omitempty"`
	Error string      `json:"error,omitempty"`
}
