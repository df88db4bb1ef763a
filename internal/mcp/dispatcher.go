package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/birdsight/birdsight/internal/store"
	"github.com/birdsight/birdsight/internal/xapi"
)

// ConnContext is the resolved per-connection state: which credential and
// stored session, if any, this connection is bound to.  Zero value is the
// anonymous, setup-only state.
type ConnContext struct {
	Credential string
	SessionID  string
}

// Authenticated reports whether a credential is bound.
func (c ConnContext) Authenticated() bool {
	return c.Credential != ""
}

// Dispatcher executes tool calls for one connection.  One instance exists
// per resolved connection; it receives the credential by value and never
// persists it.
type Dispatcher struct {
	conn    ConnContext
	client  *xapi.Client
	store   *store.Store
	baseURL string
	logger  *slog.Logger
}

// newDispatcher is the per-connection factory.  The resolved connection
// state comes in as constructor arguments so no cross-connection mutable
// state exists beyond the registry that holds the dispatchers themselves.
func newDispatcher(conn ConnContext, client *xapi.Client, st *store.Store, baseURL string, lg *slog.Logger) *Dispatcher {
	return &Dispatcher{
		conn:    conn,
		client:  client,
		store:   st,
		baseURL: baseURL,
		logger:  lg,
	}
}

// mirror writes the finished tool invocation to the interaction log.  A
// storage failure never reaches the caller: it is reported to the operator
// log only.  The write happens after the operation completes, before the
// result is returned, matching the log's role as a faithful call record.
// Callers logging a credential-bearing request must redact it first:
// credentials never enter the log.
func (d *Dispatcher) mirror(ctx context.Context, tool string, args map[string]any, res *mcplib.CallToolResult) {
	it := store.Interaction{
		Tool:     tool,
		Request:  marshalLenient(args),
		Response: marshalLenient(res),
	}
	if d.conn.SessionID != "" {
		sid := d.conn.SessionID
		it.SessionID = &sid
	}
	if err := d.store.LogInteraction(context.WithoutCancel(ctx), it); err != nil {
		d.logger.WarnContext(ctx, "interaction log write failed", "tool", tool, "error", err)
	}
}

func marshalLenient(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
