package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"web3-provider-go/internal/config"
	"web3-provider-go/internal/journal"
	"web3-provider-go/internal/logging"
	"web3-provider-go/internal/provider"
	"web3-provider-go/internal/recovery"
	"web3-provider-go/pkg/network"
)

func main() {
	waitHash := flag.String("wait", "", "transaction hash to wait for")
	watch := flag.Duration("watch", 0, "probe heights at this interval until interrupted")
	account := flag.String("account", "", "report the next pending nonce of this address")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_invalid", "error", err)
		os.Exit(1)
	}
	logger := logging.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []provider.Option{
		provider.WithLogger(logger),
		provider.WithTimeout(cfg.RPCTimeout),
		provider.WithRateLimit(cfg.RPCRateLimit, cfg.RPCBurst),
		provider.WithPollInterval(cfg.TxPollInterval),
	}
	if cfg.DatabaseURL != "" {
		j, err := journal.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("journal_unavailable", "error", err)
			os.Exit(1)
		}
		defer j.Close()
		if err := j.InitSchema(ctx); err != nil {
			logger.Error("journal_schema_failed", "error", err)
			os.Exit(1)
		}
		opts = append(opts, provider.WithTxRecorder(j))
	}

	p := provider.New(opts...)
	for _, ep := range cfg.Endpoints {
		if err := p.AddClient(ep.Name, ep.URL); err != nil {
			logger.Error("endpoint_invalid", "name", ep.Name, "error", err)
			os.Exit(1)
		}
	}
	if len(cfg.EndpointOrder) > 0 {
		if err := p.SetClientOrder(cfg.EndpointOrder); err != nil {
			logger.Error("endpoint_order_invalid", "order", cfg.EndpointOrder, "error", err)
			os.Exit(1)
		}
	}
	logger.Info("provider_configured",
		"endpoints", p.NumClients(),
		"order", p.ClientOrder(),
		"rps", p.RateLimit(),
		"timeout", cfg.RPCTimeout,
	)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		recovery.Go(logger, "metrics_server", func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics_server_failed", "error", err)
			}
		})
		defer srv.Close()
		logger.Info("metrics_server_started", "addr", cfg.MetricsAddr)
	}

	if !p.ConnectToNetwork(ctx) {
		logger.Error("network_unreachable", "endpoints", p.NumClients())
		os.Exit(1)
	}
	if cfg.ExpectedChainID != 0 {
		if err := network.VerifyNetwork(ctx, p, cfg.ExpectedChainID); err != nil {
			os.Exit(1)
		}
	}

	code := run(ctx, logger, p, cfg, probeOptions{waitHash: *waitHash, watch: *watch, account: *account})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown_incomplete", "error", err)
	}
	if code != 0 {
		os.Exit(code)
	}
}
