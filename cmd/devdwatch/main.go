package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/devdwatch/internal/api"
	"github.com/dmdmdm-nz/devdwatch/internal/devd"
	"github.com/dmdmdm-nz/devdwatch/internal/monitor"
	"github.com/dmdmdm-nz/devdwatch/internal/runtime"
	"github.com/dmdmdm-nz/devdwatch/internal/watch"
	"github.com/dmdmdm-nz/devdwatch/pkg/cli"
)

func main() {
	// Parse command line flags
	cfg := cli.ParseFlags()

	// Configure logging
	setLogLevel(cfg.LogLevel)
	log.SetFormatter(&log.TextFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FullTimestamp:   true,
	})

	log.Infof("Config: %s", cfg)

	rules, err := watch.Load(cfg.WatchFile)
	if err != nil {
		log.WithError(err).Fatal("Failed to load watch rules")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := devd.NewRegistry()
	unwatch, err := watch.Register(registry, rules)
	if err != nil {
		log.WithError(err).Fatal("Failed to register watch rules")
	}
	defer unwatch()

	monSvc := monitor.NewService(monitor.Config{
		SocketPath:     cfg.Socket,
		PollTimeout:    cfg.PollTimeout,
		ReconnectDelay: cfg.ReconnectDelay,
		QueueLen:       cfg.QueueLen,
	}, registry, monitor.NewMetrics())

	// Start in dependency order: monitor → api
	super := runtime.NewSupervisor()
	super.Add("monitor", monSvc.Start, monSvc.Close)

	if !cfg.DisableAPI {
		apiSvc := api.NewService(cfg.Host, cfg.Port)
		apiSvc.AttachMonitor(monSvc, monSvc.Metrics().Registry)
		super.Add("api", apiSvc.Start, apiSvc.Close)
	}

	if err := super.Start(ctx); err != nil {
		log.WithError(err).Error("Supervisor start failed")
		os.Exit(1)
	}
	if err := super.Wait(ctx); err != nil {
		log.WithError(err).Error("Supervisor wait failed")
		os.Exit(1)
	}
}

func setLogLevel(level string) {
	switch level {
	case "trace":
		log.SetLevel(log.TraceLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}
