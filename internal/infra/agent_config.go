package infra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AgentConfig — настройки процесса агента (cmd/agent).
type AgentConfig struct {
	ServerURL         string        `mapstructure:"server_url"`
	GRPCAddr          string        `mapstructure:"grpc_addr"`
	Transport         string        `mapstructure:"transport"` // http, grpc
	Token             string        `mapstructure:"token"`
	Hostname          string        `mapstructure:"hostname"` // пусто — os.Hostname()
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	CommandTimeout    time.Duration `mapstructure:"command_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RateLimit         float64       `mapstructure:"rate_limit"` // запросов в секунду к оркестратору
	RetryAttempts     uint          `mapstructure:"retry_attempts"`
	CBFailures        uint32        `mapstructure:"cb_failures"`
	CBTimeout         time.Duration `mapstructure:"cb_timeout"`
	MetricsPort       int           `mapstructure:"metrics_port"` // 0 — без /metrics
	Logger            LoggerConfig  `mapstructure:"logger"`
}

// LoadAgentConfig читает agent.yaml и ENV с префиксом AGENT (AGENT_TOKEN, AGENT_SERVER_URL).
func LoadAgentConfig() (*AgentConfig, error) {
	v := viper.New()
	v.SetConfigName("agent")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.SetEnvPrefix("AGENT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setAgentDefaults(v)

	if err := readOptional(v); err != nil {
		return nil, err
	}

	var cfg AgentConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AgentConfig) Validate() error {
	if c.Token == "" {
		return errors.New("config: agent token is required (AGENT_TOKEN)")
	}
	switch c.Transport {
	case "http":
		if c.ServerURL == "" {
			return errors.New("config: server_url is required for http transport")
		}
	case "grpc":
		if c.GRPCAddr == "" {
			return errors.New("config: grpc_addr is required for grpc transport")
		}
	default:
		return fmt.Errorf("config: unknown transport %q", c.Transport)
	}
	return nil
}

func setAgentDefaults(v *viper.Viper) {
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("grpc_addr", "localhost:9000")
	v.SetDefault("transport", "http")
	v.SetDefault("token", "")
	v.SetDefault("hostname", "")
	v.SetDefault("heartbeat_interval", 30*time.Second)
	v.SetDefault("poll_interval", 5*time.Second)
	v.SetDefault("command_timeout", 60*time.Second)
	v.SetDefault("request_timeout", 10*time.Second)
	v.SetDefault("rate_limit", 10.0)
	v.SetDefault("retry_attempts", 3)
	v.SetDefault("cb_failures", 5)
	v.SetDefault("cb_timeout", 30*time.Second)
	v.SetDefault("metrics_port", 9091)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
}
