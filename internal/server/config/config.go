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
	"fmt"
	"strconv"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/duratask-io/duratask/internal/server/types"
)

// Config holds the complete manager configuration.
type Config struct {
	Service  string        `json:"service_name" env:"APP_NAME"    envDefault:"duratask"`
	Version  string        `json:"version"      env:"VERSION"     envDefault:"v0.1.0"`
	Mode     types.Mode    `json:"mode"         env:"MODE"        envDefault:"debug"`
	NATS     NATSConfig    `json:"nats"         envPrefix:"NATS_"`
	Server   ServerConfig  `json:"server"       envPrefix:"SERVER_"`
	Timeouts TimeoutConfig `json:"timeouts"     envPrefix:"TIMEOUTS_"`
	Logger   LoggerConfig  `json:"logger"       envPrefix:"LOG_"`
}

// ServerConfig configures the admin HTTP listener.
type ServerConfig struct {
	Host string `json:"host" env:"HOST" envDefault:"localhost"`
	Port string `json:"port" env:"PORT" envDefault:"8080"`
}

// TimeoutConfig holds timeout-related configuration.
type TimeoutConfig struct {
	RequestTimeout time.Duration `json:"request_timeout" env:"REQUEST_TIMEOUT"`
}

func LoadConfig() (*Config, error) {
	cfg := Config{
		NATS: NATSConfig{
			Host:          DefaultNATSHost,
			Port:          DefaultNATSPort,
			MaxReconnects: DefaultMaxReconnects,
			ReconnectWait: DefaultReconnectWait,
			DrainTimeout:  DefaultDrainTimeout,
			PingInterval:  DefaultPingInterval,
			MaxPingsOut:   DefaultMaxPingsOut,
			ClientName:    "duratask-manager",
		},
		Timeouts: TimeoutConfig{
			RequestTimeout: DefaultRequestTimeout,
		},
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = fmt.Sprintf("nats://%s:%s", cfg.NATS.Host, cfg.NATS.Port)
	}

	return &cfg, nil
}

// Validate checks that the loaded configuration is usable.
func (c *Config) Validate() error {
	if c.Service == "" {
		return fmt.Errorf("service name is required")
	}
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if c.NATS.Host == "" {
		return fmt.Errorf("NATS host is required")
	}
	if c.NATS.Port == "" {
		return fmt.Errorf("NATS port is required")
	}
	if _, err := strconv.Atoi(c.NATS.Port); err != nil {
		return fmt.Errorf("invalid NATS port %q", c.NATS.Port)
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("NATS URL is required")
	}
	if c.NATS.MaxReconnects < -1 {
		return fmt.Errorf("NATS max reconnects must be >= -1")
	}
	if c.NATS.ReconnectWait <= 0 {
		return fmt.Errorf("NATS reconnect wait must be positive")
	}
	if c.NATS.DrainTimeout <= 0 {
		return fmt.Errorf("NATS drain timeout must be positive")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host is required")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("invalid server port %q", c.Server.Port)
	}
	return nil
}

func (c *Config) ServiceName() string { return c.Service }

func (c *Config) ServiceVersion() string { return c.Version }
