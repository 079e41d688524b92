package client

import (
	"testing"
	"time"
)

func TestDefaultCommandClientConfig(t *testing.T) {
	cfg := DefaultCommandClientConfig()

	if cfg.Address == "" {
		t.Error("Address should not be empty")
	}
	if cfg.Timeout <= 0 {
		t.Error("Timeout should be positive")
	}
	if cfg.MaxRetries <= 0 {
		t.Error("MaxRetries should be positive")
	}
}

func TestCommandClientConfig_CustomValues(t *testing.T) {
	cfg := &CommandClientConfig{
		Address:    "custom:50051",
		Timeout:    60 * time.Second,
		MaxRetries: 5,
		EnableTLS:  true,
		CertFile:   "/path/to/cert",
	}

	if cfg.Address != "custom:50051" {
		t.Errorf("Address = %s, want custom:50051", cfg.Address)
	}
	if cfg.Timeout != 60*time.Second {
		t.Errorf("Timeout = %v, want 60s", cfg.Timeout)
	}
}

func TestClientConfig(t *testing.T) {
	cfg := ClientConfig{
		Address:      "localhost:50051",
		Timeout:      10 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 100 * time.Millisecond,
	}

	if cfg.Address != "localhost:50051" {
		t.Errorf("Address = %s, want localhost:50051", cfg.Address)
	}
}
