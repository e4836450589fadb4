package config

import (
	"os"
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.MinerDepth != 4 {
		t.Errorf("expected default miner_depth 4, got %d", cfg.MinerDepth)
	}
	if cfg.MinerSimThresh != 0.4 {
		t.Errorf("expected default miner_sim_threshold 0.4, got %v", cfg.MinerSimThresh)
	}
	if cfg.MinerMaxClusters != 1000 {
		t.Errorf("expected default miner_max_clusters 1000, got %d", cfg.MinerMaxClusters)
	}
	if !cfg.EnableRateLimit {
		t.Error("expected EnableRateLimit to be true by default")
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
}

func TestConfigEnvOverride(t *testing.T) {
	os.Clearenv()
	_ = os.Setenv("LOGWARDEN_MINER_DEPTH", "5")
	_ = os.Setenv("LOGWARDEN_BIND_ADDR", ":9090")
	_ = os.Setenv("LOGWARDEN_ENABLE_TRACING", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.MinerDepth != 5 {
		t.Errorf("expected miner_depth 5, got %d", cfg.MinerDepth)
	}
	if cfg.BindAddr != ":9090" {
		t.Errorf("expected bind_addr :9090, got %s", cfg.BindAddr)
	}
	if cfg.EnableTracing {
		t.Error("expected EnableTracing to be overridden to false")
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: Config{
				BindAddr:        ":8088",
				MinerDepth:      4,
				MinerSimThresh:  0.4,
				RateLimit:       100,
				EnableRateLimit: true,
				LogLevel:        "info",
			},
			wantErr: false,
		},
		{
			name: "missing bind addr",
			config: Config{
				MinerDepth:     4,
				MinerSimThresh: 0.4,
				LogLevel:       "info",
			},
			wantErr: true,
		},
		{
			name: "invalid miner depth",
			config: Config{
				BindAddr:       ":8088",
				MinerDepth:     1,
				MinerSimThresh: 0.4,
				LogLevel:       "info",
			},
			wantErr: true,
		},
		{
			name: "invalid similarity threshold",
			config: Config{
				BindAddr:       ":8088",
				MinerDepth:     4,
				MinerSimThresh: 1.5,
				LogLevel:       "info",
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			config: Config{
				BindAddr:       ":8088",
				MinerDepth:     4,
				MinerSimThresh: 0.4,
				LogLevel:       "invalid",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigRedact(t *testing.T) {
	cfg := &Config{BindAddr: ":8088", StorageURL: "memory://local"}
	redacted := cfg.Redact()

	if redacted.BindAddr != cfg.BindAddr {
		t.Error("BindAddr should not be changed by Redact")
	}
}
