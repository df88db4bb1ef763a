package mcp

// In this file: MCP server construction, session resolution and transport
// management.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"

	"github.com/birdsight/birdsight/internal/store"
	"github.com/birdsight/birdsight/internal/xapi"
)

const (
	serverName    = "birdsight"
	serverVersion = "1.0.0"
)

// Server wraps an MCP server, the credential store and the upstream client,
// and maintains the registry of active connection dispatchers.
type Server struct {
	mcp     *mcpsrv.MCPServer
	client  *xapi.Client
	store   *store.Store
	baseURL string
	logger  *slog.Logger

	// staticCred, when set, is bound to connections that supply no
	// identifying parameters.  Used for single-user stdio serving.
	staticCred string

	mu     sync.Mutex
	conns  map[string]*Dispatcher // keyed by transport session id
	active int
}

// Option configures the Server.
type Option func(*Server)

// WithClient sets the upstream API client.
func WithClient(cl *xapi.Client) Option {
	return func(s *Server) {
		s.client = cl
	}
}

// WithBaseURL sets the externally visible base address used to build
// reconnection URLs.
func WithBaseURL(u string) Option {
	return func(s *Server) {
		s.baseURL = u
	}
}

// WithLogger sets the logger.  A nil logger falls back to slog.Default.
func WithLogger(lg *slog.Logger) Option {
	return func(s *Server) {
		if lg != nil {
			s.logger = lg
		}
	}
}

// WithStaticCredential binds cred to connections that carry neither a
// session id nor a raw credential.  Intended for stdio serving, where there
// is no query string to identify the caller.
func WithStaticCredential(cred string) Option {
	return func(s *Server) {
		s.staticCred = cred
	}
}

// New creates a Server backed by st.  The server is populated with all tools
// but does not start listening until one of the Serve* methods is called.
func New(st *store.Store, opts ...Option) *Server {
	s := &Server{
		client:  xapi.New(),
		store:   st,
		baseURL: "http://localhost:8483",
		logger:  slog.Default(),
		conns:   make(map[string]*Dispatcher),
	}
	for _, opt := range opts {
		opt(s)
	}

	hooks := &mcpsrv.Hooks{}
	hooks.AddOnRegisterSession(s.onRegisterSession)
	hooks.AddOnUnregisterSession(s.onUnregisterSession)

	mcpServer := mcpsrv.NewMCPServer(
		serverName,
		serverVersion,
		mcpsrv.WithInstructions(instructions),
		mcpsrv.WithToolFilter(s.filterTools),
		mcpsrv.WithHooks(hooks),
		mcpsrv.WithRecovery(),
	)
	for _, t := range s.tools() {
		mcpServer.AddTool(t.Tool, t.Handler)
	}

	s.mcp = mcpServer
	return s
}

const instructions = `You are connected to a birdsight MCP server, a read-only gateway to X (Twitter) data.

If this connection has a registered credential (you connected with a session_id),
the following tools are available:
- search: recent-post search with sorting, engagement filtering and pagination
- profile: account lookup with its recent posts
- thread: full conversation thread for a root post
- get_post: single post by id

Without a credential only register_credential is available: call it once with
your X API bearer token and reconnect using the returned mcp_url.
`

// ─── session resolution ───────────────────────────────────────────────────────

// connParamsKey carries the inbound connection's identifying query
// parameters through the request context.
type connParamsKey struct{}

// connParams are the identifying parameters of an inbound connection.
type connParams struct {
	sessionID  string
	credential string
}

// ConnParamsFromRequest is the HTTP context function that captures the
// identifying query parameters of an inbound request.
func ConnParamsFromRequest(ctx context.Context, r *http.Request) context.Context {
	q := r.URL.Query()
	p := connParams{
		sessionID:  q.Get("session_id"),
		credential: q.Get("credential"),
	}
	return context.WithValue(ctx, connParamsKey{}, p)
}

// transportSessionID returns the transport-level session identifier of the
// calling client, or "" when called outside a session.
func transportSessionID(ctx context.Context) string {
	if cs := mcpsrv.ClientSessionFromContext(ctx); cs != nil {
		return cs.SessionID()
	}
	return ""
}

// resolve maps the calling connection to its Dispatcher, creating and
// registering one on first use.  Resolution precedence: existing dispatcher
// for this transport session, then stored session id, then raw credential
// (implicit first use, creates a stored session), then anonymous.
//
// A missing stored session or a store failure is a connection-level error:
// it propagates to the transport instead of becoming a tool result.
func (s *Server) resolve(ctx context.Context) (*Dispatcher, error) {
	key := transportSessionID(ctx)

	s.mu.Lock()
	if d, ok := s.conns[key]; ok && key != "" {
		s.mu.Unlock()
		return d, nil
	}
	s.mu.Unlock()

	p, _ := ctx.Value(connParamsKey{}).(connParams)

	var conn ConnContext
	switch {
	case p.sessionID != "":
		cred, err := s.store.Credential(ctx, p.sessionID)
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, fmt.Errorf("session %q not found; register your credential again", p.sessionID)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve session: %w", err)
		}
		if err := s.store.Touch(ctx, p.sessionID); err != nil {
			s.logger.WarnContext(ctx, "session touch failed", "session_id", p.sessionID, "error", err)
		}
		conn = ConnContext{Credential: cred, SessionID: p.sessionID}
		s.logger.InfoContext(ctx, "connection bound to stored session", "session_id", p.sessionID)
	case p.credential != "":
		// Implicit first use: persist the raw credential right away.
		id, err := s.store.CreateSession(ctx, p.credential)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		conn = ConnContext{Credential: p.credential, SessionID: id}
		s.logger.InfoContext(ctx, "connection bound to new session", "session_id", id)
	case s.staticCred != "":
		conn = ConnContext{Credential: s.staticCred}
	default:
		// Anonymous: setup-only tool set.
	}

	d := newDispatcher(conn, s.client, s.store, s.baseURL, s.logger)
	if key != "" {
		s.mu.Lock()
		s.conns[key] = d
		s.mu.Unlock()
	}
	return d, nil
}

func (s *Server) onRegisterSession(ctx context.Context, session mcpsrv.ClientSession) {
	s.mu.Lock()
	s.active++
	s.mu.Unlock()
	s.logger.DebugContext(ctx, "client session registered", "transport_session", session.SessionID())
}

func (s *Server) onUnregisterSession(ctx context.Context, session mcpsrv.ClientSession) {
	s.mu.Lock()
	s.active--
	delete(s.conns, session.SessionID())
	s.mu.Unlock()
	s.logger.DebugContext(ctx, "client session unregistered", "transport_session", session.SessionID())
}

// ActiveConnections returns the number of registered transport sessions.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// filterTools hides the data tools from connections without a bound
// credential.  Resolution failures also fall back to the setup-only list so
// that listing never errors out.
func (s *Server) filterTools(ctx context.Context, tools []mcplib.Tool) []mcplib.Tool {
	d, err := s.resolve(ctx)
	if err == nil && d.conn.Authenticated() {
		return tools
	}
	setup := make([]mcplib.Tool, 0, 1)
	for _, t := range tools {
		if t.Name == ToolRegisterCredential {
			setup = append(setup, t)
		}
	}
	return setup
}

// dispatchFunc is a Dispatcher tool method.  It returns a result envelope,
// never an error: operation failures are already wrapped with IsError=true.
type dispatchFunc func(*Dispatcher, context.Context, mcplib.CallToolRequest) *mcplib.CallToolResult

// handle adapts a Dispatcher method into an MCP tool handler: resolve the
// connection, run the operation, mirror the outcome to the interaction log,
// return the envelope.
func (s *Server) handle(name string, fn dispatchFunc) mcpsrv.ToolHandlerFunc {
	return func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		d, err := s.resolve(ctx)
		if err != nil {
			return nil, err
		}
		res := fn(d, ctx, req)
		args := req.GetArguments()
		if name == ToolRegisterCredential {
			args = redactCredential(args)
		}
		d.mirror(ctx, name, args, res)
		return res, nil
	}
}

// redactCredential replaces the credential argument before it reaches the
// interaction log.  Credentials are stored in the session table only.
func redactCredential(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	if _, ok := out["credential"]; ok {
		out["credential"] = "[redacted]"
	}
	return out
}

// ─── transports ───────────────────────────────────────────────────────────────

// ServeStdio runs the MCP server over stdin/stdout until ctx is cancelled.
// Standard transport for local single-user integrations; combine with
// WithStaticCredential to skip registration.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := mcpsrv.NewStdioServer(s.mcp)
	s.logger.InfoContext(ctx, "mcp server listening on stdio")
	if err := srv.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("mcp stdio server error: %w", err)
	}
	return nil
}

// Handler returns the HTTP handler serving the streamable MCP endpoint at
// /mcp and the health endpoint at /healthz.
func (s *Server) Handler() http.Handler {
	streamSrv := mcpsrv.NewStreamableHTTPServer(s.mcp,
		mcpsrv.WithHTTPContextFunc(ConnParamsFromRequest),
	)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/mcp", streamSrv)
	r.Handle("/mcp/*", streamSrv)
	return r
}

// healthPayload is the /healthz response body.
type healthPayload struct {
	Status            string `json:"status"`
	ActiveConnections int    `json:"active_connections"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthPayload{
		Status:            "ok",
		ActiveConnections: s.ActiveConnections(),
	})
}

// ServeHTTP runs the MCP server and the health endpoint on addr until ctx is
// cancelled.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	httpSrv := &http.Server{Addr: addr, Handler: s.Handler()}

	s.logger.InfoContext(ctx, "mcp server listening on http", "addr", addr, "base_url", s.baseURL)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("mcp http server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.InfoContext(ctx, "mcp server shutting down")
		if err := httpSrv.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("mcp http server shutdown error: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
