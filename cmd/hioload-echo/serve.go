package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/momentics/hioload-session/control"
	"github.com/momentics/hioload-session/packet"
	"github.com/momentics/hioload-session/protocol"
	"github.com/momentics/hioload-session/server"
	"github.com/momentics/hioload-session/session"
	"github.com/momentics/hioload-session/transport/ws"
)

type lineServer = server.AppServer[*packet.StringPackage, string]

type serveOptions struct {
	configPath string
	tcpAddr    string
	framedAddr string
	httpAddr   string
	workers    int
	verbose    bool
}

func serveCmd() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the command server",
		Long: `Start the command server.

Listeners from the config file are used when --config is given; --tcp
adds one more plain TCP listener. --framed serves the same commands as
WebSocket-framed messages on a raw TCP port. The HTTP endpoint exposes
/ws, /metrics and /debug/state.

Examples:
  hioload-echo serve
  hioload-echo serve --tcp=:2012 --http=:8080 --workers=4
  hioload-echo serve --config=server.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "YAML server config")
	cmd.Flags().StringVar(&opts.tcpAddr, "tcp", ":2012", "TCP line protocol address (empty disables)")
	cmd.Flags().StringVar(&opts.framedAddr, "framed", "", "TCP address for WebSocket-framed commands (empty disables)")
	cmd.Flags().StringVar(&opts.httpAddr, "http", ":8080", "HTTP address for /ws, /metrics and /debug/state")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "ordered command workers (0 runs commands on the connection)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")
	return cmd
}

// servers is everything runServe starts.
type servers struct {
	line   *lineServer
	framed *lineServer
	http   *http.Server
}

func buildServers(opts serveOptions) (*servers, error) {
	cfg := server.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = server.LoadConfig(opts.configPath); err != nil {
			return nil, err
		}
	}
	if opts.tcpAddr != "" {
		cfg.Listeners = append(cfg.Listeners, server.ListenerConfig{Address: opts.tcpAddr})
	}
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}
	cfg.Verbose = cfg.Verbose || opts.verbose

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	line, err := server.New[*packet.StringPackage, string](newCommands(), packet.NewTerminatorFilterFactory(""),
		server.WithConfig[*packet.StringPackage, string](cfg),
		server.WithMetrics[*packet.StringPackage, string](metricsFor(reg, cfg.Name)),
		server.WithSessionFactory(newLineSession),
	)
	if err != nil {
		return nil, err
	}
	out := &servers{line: line}

	if opts.framedAddr != "" {
		fcfg := cfg
		fcfg.Name = cfg.Name + "-framed"
		fcfg.Listeners = []server.ListenerConfig{{Address: opts.framedAddr}}
		out.framed, err = server.New[*packet.StringPackage, string](newCommands(), protocol.FrameFilterFactory{},
			server.WithConfig[*packet.StringPackage, string](fcfg),
			server.WithMetrics[*packet.StringPackage, string](metricsFor(reg, fcfg.Name)),
			server.WithSender[*packet.StringPackage, string](protocol.NewSender()),
			server.WithSessionFactory(newFramedSession),
		)
		if err != nil {
			return nil, err
		}
	}

	out.http = &http.Server{
		Addr:              opts.httpAddr,
		Handler:           newRouter(line),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return out, nil
}

func metricsFor(reg *prometheus.Registry, name string) *control.Metrics {
	return control.NewMetrics(control.WithRegistry(reg), control.WithConstLabels(prometheus.Labels{"server": name}))
}

func newFramedSession() *session.AppSession[*packet.StringPackage, string] {
	return session.NewStringSession(
		session.WithProtocolHandler[*packet.StringPackage, string](protocol.NewFrameHandler()),
	).AppSession
}

// newRouter mounts the WebSocket entry point and the observability
// endpoints.
func newRouter(srv *lineServer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/ws", ws.NewHandler(func(s *ws.Session) error {
		return srv.Accept(s)
	}, ws.WithMaxMessageSize(int64(srv.MaxRequestLength())), ws.WithLogger(srv.Logger())))
	r.Handle("/metrics", srv.Metrics().Handler())
	r.Get("/debug/state", srv.Probes().ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !srv.Running() {
			http.Error(w, "stopped", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func runServe(ctx context.Context, opts serveOptions) error {
	srvs, err := buildServers(opts)
	if err != nil {
		return err
	}
	if err := srvs.line.Start(); err != nil {
		return err
	}
	defer srvs.line.Stop()
	if srvs.framed != nil {
		if err := srvs.framed.Start(); err != nil {
			return err
		}
		defer srvs.framed.Stop()
	}

	errc := make(chan error, 1)
	go func() {
		if err := srvs.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()
	srvs.line.Logger().Infof("hioload-echo %s: tcp %v, http %s", version, srvs.line.Addrs(), opts.httpAddr)

	select {
	case <-ctx.Done():
	case err = <-errc:
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := srvs.http.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	return err
}
