package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rleusmann/Cambridge-audio-custom/internal/auth"
	"github.com/rleusmann/Cambridge-audio-custom/internal/config"
	"github.com/rleusmann/Cambridge-audio-custom/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := printToken(cfg, os.Args[2:]); err != nil {
			log.Fatalf("token error: %v", err)
		}
		return
	}

	addr := cfg.Host + ":" + cfg.Port

	handler, shutdownHandler, err := server.NewHandler(cfg, server.Options{})
	if err != nil {
		log.Fatalf("server init error: %v", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		_ = shutdownHandler(context.Background())
		log.Fatalf("server error: %v", err)
	}

	log.Printf("cambridge-hub listening on %s (receiver %s)", addr, cfg.Device.Host)
	if err := serve(ctx, srv, listener, shutdownHandler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// serve runs srv until ctx ends, then drains HTTP requests and runs teardown.
// It returns only once teardown has finished.
func serve(ctx context.Context, srv *http.Server, listener net.Listener, teardown func(context.Context) error) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if err := teardown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}

// printToken writes an access/refresh token pair for a client to stdout.
// Usage: cambridge-hub token <subject> [client name]
func printToken(cfg config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s token <subject> [client name]", os.Args[0])
	}
	client := auth.Client{ID: args[0], Name: args[0]}
	if len(args) > 1 {
		client.Name = args[1]
	}

	pair, err := auth.NewTokens(cfg).Issue(client)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(map[string]any{
		"access_token":   pair.AccessToken,
		"refresh_token":  pair.RefreshToken,
		"expires_in_sec": int(pair.ExpiresIn.Seconds()),
	})
}
