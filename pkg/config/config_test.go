package config

import (
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				App:  AppConfig{Name: "test-service"},
				GRPC: GRPCConfig{Port: 50051},
				Log:  LogConfig{Level: "info"},
			},
			wantErr: false,
		},
		{
			name: "missing app name",
			cfg: Config{
				GRPC: GRPCConfig{Port: 50051},
				Log:  LogConfig{Level: "info"},
			},
			wantErr: true,
		},
		{
			name: "invalid port - zero",
			cfg: Config{
				App:  AppConfig{Name: "test"},
				GRPC: GRPCConfig{Port: 0},
			},
			wantErr: true,
		},
		{
			name: "invalid port - too high",
			cfg: Config{
				App:  AppConfig{Name: "test"},
				GRPC: GRPCConfig{Port: 70000},
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			cfg: Config{
				App:  AppConfig{Name: "test"},
				GRPC: GRPCConfig{Port: 50051},
				Log:  LogConfig{Level: "invalid"},
			},
			wantErr: true,
		},
		{
			name: "valid debug level",
			cfg: Config{
				App:  AppConfig{Name: "test"},
				GRPC: GRPCConfig{Port: 50051},
				Log:  LogConfig{Level: "debug"},
			},
			wantErr: false,
		},
		{
			name: "invalid suntech listener port",
			cfg: Config{
				App:       AppConfig{Name: "test"},
				GRPC:      GRPCConfig{Port: 50051},
				Log:       LogConfig{Level: "info"},
				Listeners: ListenersConfig{Suntech: SuntechListenerConfig{Enabled: true, Port: 0}},
			},
			wantErr: true,
		},
		{
			name: "disabled listener port not validated",
			cfg: Config{
				App:       AppConfig{Name: "test"},
				GRPC:      GRPCConfig{Port: 50051},
				Log:       LogConfig{Level: "info"},
				Listeners: ListenersConfig{Suntech: SuntechListenerConfig{Enabled: false, Port: 0}},
			},
			wantErr: false,
		},
		{
			name: "negative retention",
			cfg: Config{
				App:      AppConfig{Name: "test"},
				GRPC:     GRPCConfig{Port: 50051},
				Log:      LogConfig{Level: "info"},
				Database: DatabaseConfig{RetentionDays: -1},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		env  string
		want bool
	}{
		{"development", true},
		{"dev", true},
		{"production", false},
		{"staging", false},
	}

	for _, tt := range tests {
		cfg := &Config{App: AppConfig{Environment: tt.env}}
		if got := cfg.IsDevelopment(); got != tt.want {
			t.Errorf("IsDevelopment() for %s = %v, want %v", tt.env, got, tt.want)
		}
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		env  string
		want bool
	}{
		{"production", true},
		{"prod", true},
		{"development", false},
		{"staging", false},
	}

	for _, tt := range tests {
		cfg := &Config{App: AppConfig{Environment: tt.env}}
		if got := cfg.IsProduction(); got != tt.want {
			t.Errorf("IsProduction() for %s = %v, want %v", tt.env, got, tt.want)
		}
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name   string
		cfg    DatabaseConfig
		expect string
	}{
		{
			name: "postgres",
			cfg: DatabaseConfig{
				Driver:   "postgres",
				Host:     "localhost",
				Port:     5432,
				Database: "testdb",
				Username: "user",
				Password: "pass",
				SSLMode:  "disable",
			},
			expect: "host=localhost port=5432 user=user password=pass dbname=testdb sslmode=disable",
		},
		{
			name: "unknown",
			cfg: DatabaseConfig{
				Driver: "unknown",
			},
			expect: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := tt.cfg.DSN()
			if dsn != tt.expect {
				t.Errorf("expected DSN %s, got %s", tt.expect, dsn)
			}
		})
	}
}

func TestCacheConfig_Address(t *testing.T) {
	cfg := CacheConfig{
		Host: "redis.local",
		Port: 6379,
	}

	addr := cfg.Address()
	if addr != "redis.local:6379" {
		t.Errorf("expected 'redis.local:6379', got %s", addr)
	}
}

func TestKeepAliveConfig(t *testing.T) {
	cfg := KeepAliveConfig{
		MaxConnectionIdle:     15 * time.Minute,
		MaxConnectionAge:      30 * time.Minute,
		MaxConnectionAgeGrace: 5 * time.Minute,
		Time:                  5 * time.Minute,
		Timeout:               20 * time.Second,
	}

	if cfg.MaxConnectionIdle != 15*time.Minute {
		t.Errorf("unexpected MaxConnectionIdle: %v", cfg.MaxConnectionIdle)
	}
}

func TestListenersConfig(t *testing.T) {
	cfg := ListenersConfig{
		Suntech: SuntechListenerConfig{Enabled: true, Port: 5011, IdleTimeout: 300 * time.Second, UDPEnabled: true, UDPPort: 5012, UDPWorkers: 4},
		OsmAnd:  OsmAndListenerConfig{Enabled: true, Port: 5055},
	}

	if cfg.Suntech.Port != 5011 {
		t.Errorf("expected suntech port 5011, got %d", cfg.Suntech.Port)
	}
	if cfg.Suntech.UDPPort != 5012 {
		t.Errorf("expected suntech udp port 5012, got %d", cfg.Suntech.UDPPort)
	}
	if cfg.OsmAnd.Port != 5055 {
		t.Errorf("expected osmand port 5055, got %d", cfg.OsmAnd.Port)
	}
}
