// Command simulator serves a stand-in detection backend: DevOps panels, a
// model training API and a live attack feed driven by synthetic traffic.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nshruti113/ddos-defense-dashboard/internal/logging"
	"github.com/nshruti113/ddos-defense-dashboard/internal/mockbackend"
)

func main() {
	var (
		port     = flag.String("port", "8000", "Backend port")
		interval = flag.Duration("interval", time.Second, "Delay between attack feed bursts")
		seed     = flag.Int64("seed", 0, "Random seed (0 uses the current time)")
		logLevel = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	logger := logging.NewLogger(*logLevel, "text")
	logger.Info("🎯 Starting DDoS traffic simulator backend...")

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	backend := mockbackend.NewServer(*interval, *seed, logger)

	srv := &http.Server{
		Addr:              ":" + *port,
		Handler:           backend,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutting down simulator...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Errorf("Server shutdown error: %v", err)
		}
	}()

	logger.Infof("Simulator listening on :%s (burst interval %s)", *port, *interval)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Server failed: %v", err)
	}
}
