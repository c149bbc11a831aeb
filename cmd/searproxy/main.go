// Command searproxy runs the content-sanitizing HTTP proxy: it parses CLI
// flags/environment into a Config, wires the HMAC codec, host guard and
// outbound fetch client, and serves the result over fasthttp.
package main

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/friedemannsommer/searproxy-go/internal/capability"
	"github.com/friedemannsommer/searproxy-go/internal/config"
	"github.com/friedemannsommer/searproxy-go/internal/fetch"
	"github.com/friedemannsommer/searproxy-go/internal/hostguard"
	"github.com/friedemannsommer/searproxy-go/internal/logging"
	"github.com/friedemannsommer/searproxy-go/internal/server"
	"github.com/friedemannsommer/searproxy-go/internal/templates"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	codec := capability.New(cfg.HMACSecret)
	guard := hostguard.New(cfg.PermittedIPRange, nil)

	client := fetch.NewClient(fetch.Options{
		Codec:           codec,
		Guard:           guard,
		ProxyAddress:    cfg.ProxyAddress,
		UseSystemProxy:  cfg.UseSystemProxy,
		SOCKS5Address:   cfg.SOCKS5Address,
		FollowRedirects: cfg.FollowRedirects,
		RequestTimeout:  time.Duration(cfg.RequestTimeout) * time.Second,
		LazyImages:      cfg.LazyImages,
		HeaderBanner:    templates.RenderHeaderBanner,
		HeaderStyle:     templates.HeaderStylesheet(),
	})

	srv := server.New(client, codec, logger)

	ln, err := listen(cfg.Listen)
	if err != nil {
		logger.Fatal("failed to bind listener", zap.String("address", cfg.Listen), zap.Error(err))
	}

	logger.Info("listening",
		zap.String("address", cfg.Listen),
		zap.String("permittedIPRange", cfg.PermittedIPRange.String()),
	)

	httpServer := &fasthttp.Server{
		Handler:     srv.Handler(),
		Concurrency: workerConcurrency(cfg.WorkerCount),
	}

	if err := httpServer.Serve(ln); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

// listen binds cfg.Listen, treating a "unix:" prefix as a filesystem socket
// path and anything else as a TCP host:port.
func listen(address string) (net.Listener, error) {
	if strings.HasPrefix(address, "unix:") {
		return net.Listen("unix", strings.TrimPrefix(address, "unix:"))
	}
	return net.Listen("tcp", address)
}

// workerConcurrency maps the configured worker count onto fasthttp's
// per-server goroutine cap. 0 keeps fasthttp's own default.
func workerConcurrency(workerCount int) int {
	if workerCount <= 0 {
		return fasthttp.DefaultConcurrency
	}
	return workerCount
}
