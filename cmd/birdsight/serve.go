package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/birdsight/birdsight/internal/config"
	"github.com/birdsight/birdsight/internal/mcp"
	"github.com/birdsight/birdsight/internal/store"
	"github.com/birdsight/birdsight/internal/xapi"
)

func serveCmd() *cobra.Command {
	v := viper.New()
	config.SetDefaults(v)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "start the MCP server",
		Long: `Start the birdsight MCP server.

With the default http transport the server listens for streamable MCP
connections on /mcp and answers health checks on /healthz.  Users identify
themselves with a session_id query parameter obtained from the
register_credential tool.

With the stdio transport the server talks MCP on stdin/stdout for a single
local user; pass --credential (or BIRDSIGHT_CREDENTIAL) to skip
registration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, v)
		},
	}

	fl := cmd.Flags()
	fl.String("addr", "127.0.0.1:8483", "HTTP listen address")
	fl.String("base-url", "http://127.0.0.1:8483", "externally visible base URL for reconnection addresses")
	fl.String("db", "birdsight.db", "path to the SQLite database")
	fl.String("transport", "http", `transport: "http" or "stdio"`)
	fl.Duration("page-delay", 350*time.Millisecond, "pause between upstream result pages")
	fl.String("credential", "", "static upstream bearer token (stdio transport)")
	fl.String("log-level", "info", "log level: debug, info, warn, error")
	fl.Bool("log-json", false, "log in JSON format")
	for flag, key := range map[string]string{
		"addr":       "addr",
		"base-url":   "base_url",
		"db":         "db",
		"transport":  "transport",
		"page-delay": "page_delay",
		"credential": "credential",
		"log-level":  "log_level",
		"log-json":   "log_json",
	} {
		if err := v.BindPFlag(key, fl.Lookup(flag)); err != nil {
			panic(err)
		}
	}
	return cmd
}

func runServe(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	lg := newLogger(cfg)
	slog.SetDefault(lg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	clOpts := []xapi.Option{
		xapi.WithPageDelay(cfg.PageDelay),
		xapi.WithLogger(lg),
	}
	if cfg.UpstreamBaseURL != "" {
		clOpts = append(clOpts, xapi.WithBaseURL(cfg.UpstreamBaseURL))
	}

	srv := mcp.New(st,
		mcp.WithClient(xapi.New(clOpts...)),
		mcp.WithBaseURL(cfg.BaseURL),
		mcp.WithLogger(lg),
		mcp.WithStaticCredential(cfg.Credential),
	)

	switch cfg.Transport {
	case "stdio":
		return srv.ServeStdio(ctx)
	default:
		return srv.ServeHTTP(ctx, cfg.Addr)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	// stdio transport owns stdout; the log always goes to stderr
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
