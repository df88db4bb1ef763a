package mcp

import "errors"

var (
	// errUnauthenticated is returned by data tools when the connection has
	// no bound credential.
	errUnauthenticated = errors.New("no credential bound to this connection; call register_credential first, or reconnect with your session_id")

	// errBlankCredential is the register_credential validation failure.
	errBlankCredential = errors.New("register_credential: credential must not be blank")
)
