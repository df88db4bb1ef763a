// Package mcp implements the Model Context Protocol (MCP) server that
// fronts the X read API.  It exposes search, profile, thread and single
// post retrieval as MCP tools, plus a register_credential tool that
// exchanges an upstream bearer token for an opaque session identifier.
//
// Every connection resolves to at most one upstream credential.  The
// credential is found in the live session registry, looked up in the
// session store by session_id, or taken verbatim from the connection
// parameters; connections with none of these stay anonymous and only
// see the registration tool.
//
// Transport: the server supports two transports selectable at runtime:
//   - http   – Streamable HTTP transport; multi-tenant, sessions are
//     identified by the session_id query parameter.
//   - stdio  – standard MCP stdio transport for a single local user.
package mcp
