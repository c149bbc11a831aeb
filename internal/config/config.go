// Package config parses the proxy's CLI flags (each also readable from its
// matching environment variable) into a process-wide, read-only Config.
package config

import (
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/friedemannsommer/searproxy-go/internal/hostguard"
)

// Config is the proxy's process-wide runtime configuration. It is built
// once at startup and never mutated afterwards.
type Config struct {
	HMACSecret       []byte
	Listen           string
	FollowRedirects  bool
	LazyImages       bool
	LogLevel         string
	ProxyAddress     string
	UseSystemProxy   bool
	SOCKS5Address    string
	RequestTimeout   int
	WorkerCount      int
	PermittedIPRange hostguard.Range
}

func envOrDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envBoolOrDefault(name string, def bool) bool {
	if v := os.Getenv(name); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func envIntOrDefault(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

// Parse builds a Config from args, falling back to environment variables
// for any flag not explicitly passed.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("searproxy", flag.ContinueOnError)

	hmacSecret := fs.String("hmac-secret", envOrDefault("SEARPROXY_HMAC_SECRET", ""), "base64-encoded HMAC signing key (required)")
	listen := fs.String("listen", envOrDefault("SEARPROXY_LISTEN", "127.0.0.1:3000"), "address (host:port) or unix:/path/to.sock to listen on")
	followRedirects := fs.Bool("follow-redirects", envBoolOrDefault("SEARPROXY_FOLLOW_REDIRECTS", false), "follow upstream redirects instead of rendering a confirmation page")
	lazyImages := fs.Bool("lazy-images", envBoolOrDefault("SEARPROXY_LAZY_IMAGES", false), "set loading=lazy on rewritten <img> elements")
	logLevel := fs.String("log-level", envOrDefault("SEARPROXY_LOG_LEVEL", "warn"), "off|error|warn|info|debug|trace")
	proxyAddress := fs.String("proxy-address", envOrDefault("HTTP_PROXY", ""), "upstream proxy URL")
	useSystemProxy := fs.Bool("proxy-env", envBoolOrDefault("SEARPROXY_PROXY_ENV", false), "use the HTTP_PROXY/HTTPS_PROXY/NO_PROXY environment variables; overrides --proxy-address and --socks5-address")
	socks5Address := fs.String("socks5-address", envOrDefault("SEARPROXY_SOCKS5_ADDRESS", ""), "SOCKS5 proxy address (host:port); overrides --proxy-address")
	requestTimeout := fs.Int("request-timeout", envIntOrDefault("SEARPROXY_REQUEST_TIMEOUT", 5), "upstream request timeout, in seconds")
	workerCount := fs.Int("worker-count", envIntOrDefault("SEARPROXY_WORKER_COUNT", 0), "worker goroutine count (0 = auto)")
	permittedIPRange := fs.String("permitted-ip-range", envOrDefault("SEARPROXY_PERMITTED_IP_RANGE", "none"), "none|global|private|local")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *hmacSecret == "" {
		return nil, fmt.Errorf("config: --hmac-secret (or SEARPROXY_HMAC_SECRET) is required")
	}

	secret, err := base64.StdEncoding.DecodeString(*hmacSecret)
	if err != nil {
		return nil, fmt.Errorf("config: --hmac-secret is not valid base64: %w", err)
	}

	ipRange, err := hostguard.ParseRange(*permittedIPRange)
	if err != nil {
		return nil, err
	}

	return &Config{
		HMACSecret:       secret,
		Listen:           *listen,
		FollowRedirects:  *followRedirects,
		LazyImages:       *lazyImages,
		LogLevel:         *logLevel,
		ProxyAddress:     *proxyAddress,
		UseSystemProxy:   *useSystemProxy,
		SOCKS5Address:    *socks5Address,
		RequestTimeout:   *requestTimeout,
		WorkerCount:      *workerCount,
		PermittedIPRange: ipRange,
	}, nil
}
