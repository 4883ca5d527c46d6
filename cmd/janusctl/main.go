package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voxlane/janusctl/internal/config"
	"github.com/voxlane/janusctl/internal/logging"
	"github.com/voxlane/janusctl/internal/observability"
	"github.com/voxlane/janusctl/internal/protocol"
	"github.com/voxlane/janusctl/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "janusctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to janusctl TOML config")
	gateway := flag.String("gateway", "", "gateway base URI (overrides config)")
	plugin := flag.String("plugin", "echo", "plugin to attach, short name or full namespace")
	message := flag.String("message", "", "JSON message body to send to the plugin")
	info := flag.Bool("info", false, "probe the gateway info endpoint and exit")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg := config.DefaultClientConfig()
	if *configPath != "" {
		loaded, err := config.LoadClientConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *gateway != "" {
		cfg.GatewayURL = *gateway
	}
	if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok {
		zerolog.SetGlobalLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	if *info {
		data, err := session.Info(ctx, cfg.GatewayURL, nil)
		if err != nil {
			return err
		}
		return printJSON(data)
	}

	sess := session.New(cfg.SessionConfig())
	sess.OnSessionError(func(err error) {
		log.Warn().Err(err).Msg("gateway session error")
	})
	sess.OnEvent(func(transaction string, payload map[string]any, _ *protocol.Envelope) {
		log.Info().Str("transaction", transaction).Interface("payload", payload).Msg("unclaimed event")
	})

	if err := sess.Connect(ctx, cfg.GatewayURL); err != nil {
		return err
	}
	defer func() {
		if sess.State() == session.StateConnected {
			if err := sess.Disconnect(context.Background()); err != nil {
				log.Warn().Err(err).Msg("disconnect failed")
			}
		}
	}()

	handle, err := sess.Attach(ctx, *plugin)
	if err != nil {
		return err
	}

	if *message == "" {
		log.Info().
			Str("session_id", sess.ID()).
			Str("handle_id", handle.ID()).
			Msg("attached; nothing to send")
		return nil
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(*message), &body); err != nil {
		return fmt.Errorf("invalid -message JSON: %w", err)
	}
	payload, _, err := handle.Send(ctx, body)
	if err != nil {
		return err
	}
	return printJSON(payload)
}

func serveMetrics(addr string) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "janusctl"})
	})
	observability.RegisterMetrics()
	if err := r.Run(addr); err != nil {
		log.Error().Err(err).Str("addr", addr).Msg("metrics endpoint failed")
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
