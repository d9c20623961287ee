// Copyright 2025 The Duratask Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/duratask-io/duratask/internal/server/types"
)

func validTestConfig() *Config {
	return &Config{
		Service: "test-service",
		Version: "v1.0.0",
		Mode:    types.ModeDebug,
		NATS: NATSConfig{
			Host:          "localhost",
			Port:          "4222",
			URL:           "nats://localhost:4222",
			MaxReconnects: 10,
			ReconnectWait: 2 * time.Second,
			DrainTimeout:  30 * time.Second,
			PingInterval:  2 * time.Minute,
			MaxPingsOut:   2,
			ClientName:    "test-client",
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: "8080",
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing service name",
			mutate:  func(c *Config) { c.Service = "" },
			wantErr: true,
			errMsg:  "service name is required",
		},
		{
			name:    "missing version",
			mutate:  func(c *Config) { c.Version = "" },
			wantErr: true,
			errMsg:  "version is required",
		},
		{
			name:    "missing NATS host",
			mutate:  func(c *Config) { c.NATS.Host = "" },
			wantErr: true,
			errMsg:  "NATS host is required",
		},
		{
			name:    "invalid NATS port",
			mutate:  func(c *Config) { c.NATS.Port = "invalid" },
			wantErr: true,
			errMsg:  "invalid NATS port",
		},
		{
			name:    "missing NATS URL",
			mutate:  func(c *Config) { c.NATS.URL = "" },
			wantErr: true,
			errMsg:  "NATS URL is required",
		},
		{
			name:    "invalid NATS max reconnects",
			mutate:  func(c *Config) { c.NATS.MaxReconnects = -2 },
			wantErr: true,
			errMsg:  "NATS max reconnects must be >= -1",
		},
		{
			name:    "invalid NATS reconnect wait",
			mutate:  func(c *Config) { c.NATS.ReconnectWait = 0 },
			wantErr: true,
			errMsg:  "NATS reconnect wait must be positive",
		},
		{
			name:    "invalid NATS drain timeout",
			mutate:  func(c *Config) { c.NATS.DrainTimeout = 0 },
			wantErr: true,
			errMsg:  "NATS drain timeout must be positive",
		},
		{
			name:    "missing server port",
			mutate:  func(c *Config) { c.Server.Port = "" },
			wantErr: true,
			errMsg:  "server port is required",
		},
		{
			name:    "invalid server port",
			mutate:  func(c *Config) { c.Server.Port = "not-a-number" },
			wantErr: true,
			errMsg:  "invalid server port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Validate() expected error, got nil")
					return
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %v, want error containing %v", err, tt.errMsg)
				}
			} else {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
			}
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Service != "duratask" {
		t.Errorf("Service = %v, want duratask", cfg.Service)
	}
	if cfg.Mode != types.ModeDebug {
		t.Errorf("Mode = %v, want debug", cfg.Mode)
	}
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("NATS.URL = %v, want nats://localhost:4222", cfg.NATS.URL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoggerConfig_ParseExtraFields(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{
			name: "empty",
			raw:  "",
			want: map[string]string{},
		},
		{
			name: "two fields",
			raw:  "region=eu-west,team=platform",
			want: map[string]string{"region": "eu-west", "team": "platform"},
		},
		{
			name: "malformed entries dropped",
			raw:  "ok=yes,missing-value,=anon",
			want: map[string]string{"ok": "yes"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := &LoggerConfig{ExtraFieldsRaw: tt.raw}
			got := lc.ParseExtraFields()
			if len(got) != len(tt.want) {
				t.Fatalf("ParseExtraFields() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("ParseExtraFields()[%q] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestConfig_LogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"error", "ERROR"},
		{"bogus", "INFO"},
	}

	for _, tt := range tests {
		cfg := &Config{Logger: LoggerConfig{Level: tt.level}}
		if got := cfg.LogLevel().String(); got != tt.want {
			t.Errorf("LogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
