package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the Hailouchat widget client
type Config struct {
	Client    ClientConfig    `mapstructure:"client"`
	Transport TransportConfig `mapstructure:"transport"`
	Metadata  MetadataConfig  `mapstructure:"metadata"`
	Widget    WidgetConfig    `mapstructure:"widget"`
	DevServer DevServerConfig `mapstructure:"devserver"`
}

// ClientConfig identifies the embedding customer and the backend
type ClientConfig struct {
	ClientKey string `mapstructure:"client_key"`
	APIBase   string `mapstructure:"api_base"`
	WSBase    string `mapstructure:"ws_base"`
}

// TransportConfig tunes the persistent connection. Backoff and attempt
// caps are deliberately configuration, not constants.
type TransportConfig struct {
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat_interval"`
	ReconnectBase        time.Duration `mapstructure:"reconnect_base"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	HandshakeTimeout     time.Duration `mapstructure:"handshake_timeout"`
}

// MetadataConfig tunes best-effort visitor enrichment lookups
type MetadataConfig struct {
	LookupTimeout time.Duration `mapstructure:"lookup_timeout"`
	LocationURLs  []string      `mapstructure:"location_urls"`
	IPURLs        []string      `mapstructure:"ip_urls"`
}

// WidgetConfig tunes presentation behavior
type WidgetConfig struct {
	CompactMode       bool          `mapstructure:"compact_mode"`
	KeyboardThreshold int           `mapstructure:"keyboard_threshold"`
	KeyboardDebounce  time.Duration `mapstructure:"keyboard_debounce"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
}

// DevServerConfig holds the local development backend configuration
type DevServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	DatabasePath string `mapstructure:"database_path"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("HAILOU")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("client.client_key", "")
	v.SetDefault("client.api_base", "http://localhost:8000/api/v1")
	v.SetDefault("client.ws_base", "ws://localhost:8000")

	v.SetDefault("transport.heartbeat_interval", 15*time.Second)
	v.SetDefault("transport.reconnect_base", 3*time.Second)
	v.SetDefault("transport.max_reconnect_attempts", 5)
	v.SetDefault("transport.handshake_timeout", 10*time.Second)

	v.SetDefault("metadata.lookup_timeout", 3*time.Second)
	v.SetDefault("metadata.location_urls", []string{
		"https://ipapi.co/json/",
		"https://ipinfo.io/json",
	})
	v.SetDefault("metadata.ip_urls", []string{
		"https://api.ipify.org?format=json",
		"https://ipinfo.io/ip",
	})

	v.SetDefault("widget.compact_mode", false)
	v.SetDefault("widget.keyboard_threshold", 150)
	v.SetDefault("widget.keyboard_debounce", 150*time.Millisecond)
	v.SetDefault("widget.allowed_origins", []string{"*"})

	v.SetDefault("devserver.host", "0.0.0.0")
	v.SetDefault("devserver.port", 8000)
	v.SetDefault("devserver.database_path", "./data/hailouchat.db")
}

// DevServerAddress returns the development backend listen address
func (c *Config) DevServerAddress() string {
	return fmt.Sprintf("%s:%d", c.DevServer.Host, c.DevServer.Port)
}
