package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dimiro1/banner"
	"go.uber.org/zap"

	"signspeak/internal/bootstrap"
	"signspeak/internal/certs"
)

const (
	version         = "dev"
	shutdownTimeout = 10 * time.Second
)

func main() {
	services, err := bootstrap.BuildServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "signspeak-server: %v\n", err)
		os.Exit(1)
	}

	printBanner(services.Config.Server.Addr, services.Config.Server.TLS)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := run(ctx, services)
	if err := services.Close(); err != nil {
		services.Logger.Warn("shutdown finished with errors", zap.Error(err))
	}
	if runErr != nil {
		services.Logger.Error("server stopped", zap.Error(runErr))
		os.Exit(1)
	}
}

func run(ctx context.Context, services bootstrap.Services) error {
	cfg := services.Config.Server
	log := services.Logger

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           services.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(log.Named("http")),
	}

	if cfg.TLS {
		tlsConfig, err := certs.NewManager(cfg.CertDir, listenHost(cfg.Addr)).TLSConfig()
		if err != nil {
			return fmt.Errorf("prepare tls: %w", err)
		}
		srv.TLSConfig = tlsConfig
	}

	if services.Preview != nil {
		if err := services.Preview.Start(ctx); err != nil {
			log.Warn("preview camera unavailable", zap.Error(err))
		}
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.Bool("tls", cfg.TLS))
		if cfg.TLS {
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	// Websocket and preview connections are long-lived; end them before
	// waiting on in-flight requests.
	services.Server.Close()
	services.Frames.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// listenHost returns the host part of addr when it names a specific host.
func listenHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return ""
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		return ""
	}
	return host
}

func printBanner(addr string, tls bool) {
	scheme := "http"
	if tls {
		scheme = "https"
	}
	tpl := "{{ .Title \"SignSpeak\" \"\" 0 }}\nVersion: " + version + "\nListening: " + scheme + "://" + addr + "\n\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}
