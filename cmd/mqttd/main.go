// Command mqttd runs the broker: an MQTT 3.1.1 listener, an optional
// MQTT-over-WebSocket listener, and a Prometheus metrics endpoint.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	mqttd "github.com/riverrun/mqttd"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	configPath := flag.String("config", "", "Path to YAML config file; empty uses built-in defaults")
	flag.Parse()

	cfg := mqttd.DefaultConfig()
	if *configPath != "" {
		loaded, err := mqttd.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("mqttd: %v", err)
		}
		cfg = loaded
	}

	if cfg.LogFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSize,
			MaxAge:     cfg.LogMaxAge,
			MaxBackups: cfg.LogBackups,
		})
	}

	srv, err := mqttd.NewServer(cfg)
	if err != nil {
		log.Fatalf("mqttd: %v", err)
	}

	mqttd.StartMetrics(srv, 5*time.Second)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(sigCtx)

	group.Go(func() error {
		if cfg.MQTT.URL == "" {
			return nil
		}
		return srv.ListenAndServe()
	})
	group.Go(func() error {
		if cfg.WebSocket.URL == "" {
			return nil
		}
		return srv.ListenAndServeWebsocket()
	})
	group.Go(func() error {
		if cfg.Metrics.URL == "" {
			return nil
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Printf("mqttd: serving metrics on %s", cfg.Metrics.URL)
		return http.ListenAndServe(cfg.Metrics.URL, mux)
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("mqttd: shutdown: %v", err)
		}
	}()

	if err := group.Wait(); err != nil {
		log.Fatal(err)
	}
}
