package config

import (
	"testing"

	"github.com/friedemannsommer/searproxy-go/internal/hostguard"
)

func TestParseRequiresHMACSecret(t *testing.T) {
	if _, err := Parse([]string{"--listen", ":8080"}); err == nil {
		t.Error("Parse did not reject a missing --hmac-secret")
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]string{"--hmac-secret", "ZXhhbXBsZQ=="})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if string(cfg.HMACSecret) != "example" {
		t.Errorf("HMACSecret = %q, want %q", cfg.HMACSecret, "example")
	}
	if cfg.Listen != "127.0.0.1:3000" {
		t.Errorf("Listen default = %q", cfg.Listen)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel default = %q", cfg.LogLevel)
	}
	if cfg.RequestTimeout != 5 {
		t.Errorf("RequestTimeout default = %d", cfg.RequestTimeout)
	}
	if cfg.PermittedIPRange != hostguard.RangeNone {
		t.Errorf("PermittedIPRange default = %v", cfg.PermittedIPRange)
	}
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse([]string{
		"--hmac-secret", "ZXhhbXBsZQ==",
		"--listen", "0.0.0.0:9000",
		"--follow-redirects",
		"--lazy-images",
		"--log-level", "debug",
		"--permitted-ip-range", "global",
		"--request-timeout", "10",
		"--worker-count", "4",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !cfg.FollowRedirects || !cfg.LazyImages {
		t.Error("boolean flags not applied")
	}
	if cfg.LogLevel != "debug" || cfg.RequestTimeout != 10 || cfg.WorkerCount != 4 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.PermittedIPRange != hostguard.RangeGlobal {
		t.Errorf("PermittedIPRange = %v, want global", cfg.PermittedIPRange)
	}
}

func TestParseRejectsBadBase64(t *testing.T) {
	if _, err := Parse([]string{"--hmac-secret", "not base64!!"}); err == nil {
		t.Error("Parse accepted invalid base64 secret")
	}
}

func TestParseRejectsUnknownIPRange(t *testing.T) {
	if _, err := Parse([]string{"--hmac-secret", "ZXhhbXBsZQ==", "--permitted-ip-range", "bogus"}); err == nil {
		t.Error("Parse accepted unknown permitted IP range")
	}
}
