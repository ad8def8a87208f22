package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"enroute-hub/internal/config"
	"enroute-hub/internal/traffic"
	"enroute-hub/internal/web"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./enroute-hub.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider := traffic.NewProvider(traffic.ProviderConfig{
		HeartbeatTimeout:  cfg.Traffic.HeartbeatTimeout,
		WarningExpiry:     cfg.Traffic.WarningExpiry,
		CheckInterval:     cfg.Traffic.CheckInterval,
		ReconnectDelay:    cfg.Traffic.ReconnectDelay,
		ReconnectDelayMax: cfg.Traffic.ReconnectDelayMax,
	})

	for _, rx := range cfg.Receivers {
		src, err := traffic.NewTCPSource(traffic.TCPSourceConfig{
			ID:       rx.ID,
			Addr:     rx.Addr,
			Priority: rx.Priority,
		})
		if err != nil {
			log.Fatalf("receiver %s init failed: %v", rx.ID, err)
		}
		if err := provider.AddSource(src); err != nil {
			log.Fatalf("receiver %s add failed: %v", rx.ID, err)
		}
		log.Printf("receiver id=%s addr=%s priority=%d", rx.ID, rx.Addr, rx.Priority)
	}

	if cfg.Sim.Enable {
		sim, err := traffic.NewSimSource(traffic.SimSourceConfig{
			ID:           "sim",
			Priority:     cfg.Sim.Priority,
			Count:        cfg.Sim.Count,
			CenterLatDeg: cfg.Sim.CenterLatDeg,
			CenterLonDeg: cfg.Sim.CenterLonDeg,
			RadiusNm:     cfg.Sim.RadiusNm,
			AltFeet:      cfg.Sim.AltFeet,
			Period:       cfg.Sim.Period,
			Interval:     cfg.Sim.Interval,
		})
		if err != nil {
			log.Fatalf("sim source init failed: %v", err)
		}
		if err := provider.AddSource(sim); err != nil {
			log.Fatalf("sim source add failed: %v", err)
		}
		log.Printf("sim enabled count=%d radius_nm=%v", cfg.Sim.Count, cfg.Sim.RadiusNm)
	}

	if err := provider.Start(ctx); err != nil {
		log.Fatalf("provider start failed: %v", err)
	}
	defer provider.Close()

	provider.ConnectToTrafficReceiver()

	srv := &http.Server{
		Addr:    cfg.Web.Listen,
		Handler: web.Handler(provider, web.Config{WSRatePerSec: cfg.Web.WSRatePerSec}),
	}

	log.Printf("enroute-hub starting")
	log.Printf("web listen=%s heartbeat_timeout=%s warning_expiry=%s",
		cfg.Web.Listen, cfg.Traffic.HeartbeatTimeout, cfg.Traffic.WarningExpiry)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("web server stopped: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Printf("enroute-hub stopping")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("web server shutdown: %v", err)
	}
	provider.DisconnectFromTrafficReceiver()
}
