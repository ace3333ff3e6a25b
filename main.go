// Command chatbridge connects a chat-completion model to one or more IRC
// channels. It:
//   - Loads configuration from flags and environment and initializes
//     structured logging.
//   - Starts one session supervisor per channel, each owning its connection,
//     conversation history, trigger policy, loop guard and rate window.
//   - Optionally exposes an ops HTTP server with /healthz, /status, /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM. Exit code 0 on clean shutdown,
// non-zero on fatal configuration, connect-time authentication, or model
// credential failure.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onnwee/chatbridge/config"
	"github.com/onnwee/chatbridge/model"
	"github.com/onnwee/chatbridge/server"
	"github.com/onnwee/chatbridge/session"
	"github.com/onnwee/chatbridge/telemetry"
	"github.com/onnwee/chatbridge/transport"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		return 1
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		return 1
	}
	slog.Info("starting bridge",
		slog.String("model", cfg.Model),
		slog.String("nick", cfg.Nick),
		slog.String("transport", cfg.Transport),
		slog.Any("channels", cfg.Channels),
		slog.Bool("lead", cfg.Lead))

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("chatbridge", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		return 1
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mc := model.New(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.ModelTimeout)

	// One supervisor per channel, each with its own connection and no shared
	// mutable state between them.
	supervisors := make([]*session.Supervisor, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		supervisors = append(supervisors, session.New(cfg, ch, newDialer(cfg, ch), mc))
	}

	if cfg.HTTPAddr != "" {
		go func() {
			if err := server.Start(ctx, cfg.HTTPAddr, statusFunc(supervisors)); err != nil {
				slog.Error("ops server exited with error", slog.Any("err", err))
			}
		}()
	}

	var wg sync.WaitGroup
	fatal := make(chan error, len(supervisors))
	for _, sup := range supervisors {
		wg.Add(1)
		go func(sup *session.Supervisor) {
			defer wg.Done()
			if err := sup.Run(ctx); err != nil {
				slog.Error("supervisor failed", slog.String("channel", sup.Channel()), slog.Any("err", err))
				fatal <- err
			}
		}(sup)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-fatal:
		stop()
		<-done
		return 1
	case <-done:
		if ctx.Err() != nil {
			slog.Info("shutting down")
			return 0
		}
		return 0
	}
}

func newDialer(cfg *config.Config, channel string) transport.Dialer {
	if cfg.Transport == config.TransportTwitch {
		return &transport.TwitchDialer{Nick: cfg.Nick, OAuthToken: cfg.TwitchOAuthToken, Channels: []string{channel}}
	}
	return &transport.IRCDialer{
		Server:   cfg.Server,
		Port:     cfg.Port,
		TLS:      cfg.TLS,
		Nick:     cfg.Nick,
		Pass:     cfg.ServerPass,
		Channels: []string{channel},
	}
}

func statusFunc(sups []*session.Supervisor) server.StatusFunc {
	return func() any {
		out := make(map[string]string, len(sups))
		for _, s := range sups {
			out[s.Channel()] = s.State().String()
		}
		return out
	}
}
