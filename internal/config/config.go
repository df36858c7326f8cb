// Package config loads service configuration from flags, environment
// variables and an optional config file, in that order of precedence.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "TRAVEL_AGENT"

// AgentConfig configures the gRPC agent service.
type AgentConfig struct {
	ListenAddr  string        `mapstructure:"listen_addr"`
	ModelsPath  string        `mapstructure:"models_path"`
	CitiesPath  string        `mapstructure:"cities_path"`
	MaxSteps    int           `mapstructure:"max_steps"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	DefaultMode string        `mapstructure:"default_mode"`
}

// GatewayConfig configures the HTTP/SSE gateway service.
type GatewayConfig struct {
	ListenAddr        string        `mapstructure:"listen_addr"`
	AgentAddr         string        `mapstructure:"agent_addr"`
	ModelsPath        string        `mapstructure:"models_path"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// LoadAgent reads the agent service configuration. configPath may be empty.
func LoadAgent(configPath string) (*AgentConfig, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}

	v.SetDefault("listen_addr", ":50051")
	v.SetDefault("models_path", "config/models.yaml")
	v.SetDefault("cities_path", "")
	v.SetDefault("max_steps", 10)
	v.SetDefault("task_timeout", 5*time.Minute)
	v.SetDefault("default_mode", "react")

	var cfg AgentConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadGateway reads the gateway service configuration. configPath may be empty.
func LoadGateway(configPath string) (*GatewayConfig, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("agent_addr", "localhost:50051")
	v.SetDefault("models_path", "config/models.yaml")
	v.SetDefault("allowed_origins", []string{"http://localhost:43001", "http://127.0.0.1:43001"})
	v.SetDefault("heartbeat_interval", 30*time.Second)
	v.SetDefault("request_timeout", 10*time.Minute)

	var cfg GatewayConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
