package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/oarkflow/smpp-esme/pkg/smpp"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "ESME"

// Config is the complete configuration of an ESME process
type Config struct {
	Client   smpp.ClientConfig `json:"client"`
	Defaults smpp.Params       `json:"defaults"`
	Logging  LoggingConfig     `json:"logging"`
	Metrics  MetricsConfig     `json:"metrics"`
	Storage  StorageConfig     `json:"storage"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Port      int    `json:"port"`
	Path      string `json:"path"`
	Namespace string `json:"namespace"`
}

// StorageConfig sizes the in-memory inbound message store
type StorageConfig struct {
	MaxMessages int `json:"max_messages"`
}

// ConfigManager manages application configuration
type ConfigManager struct {
	configPath string
	config     *Config
}

// configJSON represents the JSON structure for configuration
type configJSON struct {
	Client   clientConfigJSON `json:"client"`
	Defaults smpp.Params      `json:"defaults"`
	Logging  *LoggingConfig   `json:"logging"`
	Metrics  *MetricsConfig   `json:"metrics"`
	Storage  *StorageConfig   `json:"storage"`
}

type clientConfigJSON struct {
	Host                 string   `json:"host"`
	Port                 int      `json:"port"`
	SystemID             string   `json:"system_id"`
	Password             string   `json:"password"`
	SystemType           string   `json:"system_type"`
	BindType             string   `json:"bind_type"`
	Mode                 string   `json:"mode"`
	ConnectTimeout       string   `json:"connect_timeout"`
	ResponseTimeout      string   `json:"response_timeout"`
	WriteTimeout         string   `json:"write_timeout"`
	EnquireLinkInterval  string   `json:"enquire_link_interval"`
	ReconnectInterval    string   `json:"reconnect_interval"`
	MaxReconnectAttempts *int     `json:"max_reconnect_attempts"`
	MaxOutstanding       *int     `json:"max_outstanding"`
	SubmitRate           *float64 `json:"submit_rate"`
	SubmitBurst          *int     `json:"submit_burst"`
	TLSEnabled           bool     `json:"tls_enabled"`
	TLSSkipVerify        bool     `json:"tls_skip_verify"`
}

// envOverlay lists the environment variables applied on top of the file.
// Unset variables leave the field nil.
type envOverlay struct {
	Host                *string        `envconfig:"HOST"`
	Port                *int           `envconfig:"PORT"`
	SystemID            *string        `envconfig:"SYSTEM_ID"`
	Password            *string        `envconfig:"PASSWORD"`
	SystemType          *string        `envconfig:"SYSTEM_TYPE"`
	BindType            *string        `envconfig:"BIND_TYPE"`
	Mode                *string        `envconfig:"MODE"`
	ConnectTimeout      *time.Duration `envconfig:"CONNECT_TIMEOUT"`
	ResponseTimeout     *time.Duration `envconfig:"RESPONSE_TIMEOUT"`
	WriteTimeout        *time.Duration `envconfig:"WRITE_TIMEOUT"`
	EnquireLinkInterval *time.Duration `envconfig:"ENQUIRE_LINK_INTERVAL"`
	MaxOutstanding      *int           `envconfig:"MAX_OUTSTANDING"`
	SubmitRate          *float64       `envconfig:"SUBMIT_RATE"`
	SubmitBurst         *int           `envconfig:"SUBMIT_BURST"`
	TLSEnabled          *bool          `envconfig:"TLS_ENABLED"`
	TLSSkipVerify       *bool          `envconfig:"TLS_SKIP_VERIFY"`
	LogLevel            *string        `envconfig:"LOG_LEVEL"`
	LogFormat           *string        `envconfig:"LOG_FORMAT"`
	MetricsEnabled      *bool          `envconfig:"METRICS_ENABLED"`
	MetricsPort         *int           `envconfig:"METRICS_PORT"`
}

// NewConfigManager creates a new configuration manager
func NewConfigManager(configPath string) *ConfigManager {
	return &ConfigManager{
		configPath: configPath,
	}
}

// LoadConfig builds the configuration from defaults, the JSON file when
// present, and ESME_* environment variables, in that order.
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	config := DefaultConfig()

	if cm.configPath != "" && cm.fileExists(cm.configPath) {
		data, err := os.ReadFile(cm.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		var jsonConfig configJSON
		if err := json.Unmarshal(data, &jsonConfig); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		if err := cm.convertJSONConfig(&jsonConfig, config); err != nil {
			return nil, fmt.Errorf("failed to convert config: %w", err)
		}
	}

	if err := applyEnv(config); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cm.config = config

	if err := cm.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// convertJSONConfig converts JSON config structure to internal config
func (cm *ConfigManager) convertJSONConfig(jsonConfig *configJSON, config *Config) error {
	if err := cm.convertClientConfig(&jsonConfig.Client, &config.Client); err != nil {
		return fmt.Errorf("failed to convert client config: %w", err)
	}

	if jsonConfig.Defaults != nil {
		config.Defaults = config.Defaults.Merge(jsonConfig.Defaults)
	}
	if jsonConfig.Logging != nil {
		config.Logging = *jsonConfig.Logging
	}
	if jsonConfig.Metrics != nil {
		config.Metrics = *jsonConfig.Metrics
	}
	if jsonConfig.Storage != nil {
		config.Storage = *jsonConfig.Storage
	}

	return nil
}

// convertClientConfig converts client config with duration parsing. Empty
// fields keep their defaults.
func (cm *ConfigManager) convertClientConfig(jsonConfig *clientConfigJSON, config *smpp.ClientConfig) error {
	setString(&config.Host, jsonConfig.Host)
	setString(&config.SystemID, jsonConfig.SystemID)
	setString(&config.Password, jsonConfig.Password)
	setString(&config.SystemType, jsonConfig.SystemType)
	setString(&config.BindType, jsonConfig.BindType)
	setString(&config.Mode, jsonConfig.Mode)
	if jsonConfig.Port != 0 {
		config.Port = jsonConfig.Port
	}
	if jsonConfig.MaxReconnectAttempts != nil {
		config.MaxReconnectAttempts = *jsonConfig.MaxReconnectAttempts
	}
	if jsonConfig.MaxOutstanding != nil {
		config.MaxOutstanding = *jsonConfig.MaxOutstanding
	}
	if jsonConfig.SubmitRate != nil {
		config.SubmitRate = *jsonConfig.SubmitRate
	}
	if jsonConfig.SubmitBurst != nil {
		config.SubmitBurst = *jsonConfig.SubmitBurst
	}
	config.TLSEnabled = config.TLSEnabled || jsonConfig.TLSEnabled
	config.TLSSkipVerify = config.TLSSkipVerify || jsonConfig.TLSSkipVerify

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"connect_timeout", jsonConfig.ConnectTimeout, &config.ConnectTimeout},
		{"response_timeout", jsonConfig.ResponseTimeout, &config.ResponseTimeout},
		{"write_timeout", jsonConfig.WriteTimeout, &config.WriteTimeout},
		{"enquire_link_interval", jsonConfig.EnquireLinkInterval, &config.EnquireLinkInterval},
		{"reconnect_interval", jsonConfig.ReconnectInterval, &config.ReconnectInterval},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	return nil
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// applyEnv overlays ESME_* environment variables on config.
func applyEnv(config *Config) error {
	var env envOverlay
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return err
	}

	client := &config.Client
	if env.Host != nil {
		client.Host = *env.Host
	}
	if env.Port != nil {
		client.Port = *env.Port
	}
	if env.SystemID != nil {
		client.SystemID = *env.SystemID
	}
	if env.Password != nil {
		client.Password = *env.Password
	}
	if env.SystemType != nil {
		client.SystemType = *env.SystemType
	}
	if env.BindType != nil {
		client.BindType = *env.BindType
	}
	if env.Mode != nil {
		client.Mode = *env.Mode
	}
	if env.ConnectTimeout != nil {
		client.ConnectTimeout = *env.ConnectTimeout
	}
	if env.ResponseTimeout != nil {
		client.ResponseTimeout = *env.ResponseTimeout
	}
	if env.WriteTimeout != nil {
		client.WriteTimeout = *env.WriteTimeout
	}
	if env.EnquireLinkInterval != nil {
		client.EnquireLinkInterval = *env.EnquireLinkInterval
	}
	if env.MaxOutstanding != nil {
		client.MaxOutstanding = *env.MaxOutstanding
	}
	if env.SubmitRate != nil {
		client.SubmitRate = *env.SubmitRate
	}
	if env.SubmitBurst != nil {
		client.SubmitBurst = *env.SubmitBurst
	}
	if env.TLSEnabled != nil {
		client.TLSEnabled = *env.TLSEnabled
	}
	if env.TLSSkipVerify != nil {
		client.TLSSkipVerify = *env.TLSSkipVerify
	}
	if env.LogLevel != nil {
		config.Logging.Level = *env.LogLevel
	}
	if env.LogFormat != nil {
		config.Logging.Format = *env.LogFormat
	}
	if env.MetricsEnabled != nil {
		config.Metrics.Enabled = *env.MetricsEnabled
	}
	if env.MetricsPort != nil {
		config.Metrics.Port = *env.MetricsPort
	}
	client.LogLevel = config.Logging.Level
	return nil
}

// SaveConfig saves configuration to file
func (cm *ConfigManager) SaveConfig() error {
	if cm.config == nil {
		return fmt.Errorf("no configuration to save")
	}

	if cm.configPath == "" {
		return fmt.Errorf("no config path specified")
	}

	return writeConfig(cm.configPath, cm.config)
}

// GetClientConfig returns client configuration
func (cm *ConfigManager) GetClientConfig() *smpp.ClientConfig {
	if cm.config == nil {
		return nil
	}
	client := cm.config.Client
	client.LogLevel = cm.config.Logging.Level
	return &client
}

// SessionDefaults returns the session default parameters: the built-in
// defaults, the client's address and credentials, then the "defaults" object
// of the file.
func (cm *ConfigManager) SessionDefaults() smpp.Params {
	if cm.config == nil {
		return smpp.DefaultParams()
	}
	return cm.config.SessionDefaults()
}

// SessionDefaults returns the session default parameters for c.
func (c *Config) SessionDefaults() smpp.Params {
	params := smpp.DefaultParams().Merge(smpp.Params{
		smpp.ParamHost:       c.Client.Host,
		smpp.ParamPort:       c.Client.Port,
		smpp.ParamSystemID:   c.Client.SystemID,
		smpp.ParamPassword:   c.Client.Password,
		smpp.ParamSystemType: c.Client.SystemType,
	})
	return params.Merge(c.Defaults)
}

// Reload reloads configuration from source
func (cm *ConfigManager) Reload() error {
	_, err := cm.LoadConfig()
	return err
}

// Validate validates configuration
func (cm *ConfigManager) Validate() error {
	if cm.config == nil {
		return fmt.Errorf("configuration is nil")
	}

	if err := cm.validateClientConfig(); err != nil {
		return fmt.Errorf("invalid client config: %w", err)
	}

	if err := cm.validateLoggingConfig(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := cm.validateMetricsConfig(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if cm.config.Storage.MaxMessages < 0 {
		return fmt.Errorf("invalid storage config: max messages cannot be negative: %d", cm.config.Storage.MaxMessages)
	}

	return nil
}

// validateClientConfig validates client configuration
func (cm *ConfigManager) validateClientConfig() error {
	client := &cm.config.Client

	if client.Host == "" {
		return fmt.Errorf("client host cannot be empty")
	}

	if client.Port <= 0 || client.Port > 65535 {
		return fmt.Errorf("invalid client port: %d", client.Port)
	}

	if client.SystemID == "" {
		return fmt.Errorf("system ID cannot be empty")
	}

	validBindTypes := map[string]bool{
		smpp.BindTypeTransmitter: true,
		smpp.BindTypeReceiver:    true,
		smpp.BindTypeTransceiver: true,
	}

	if !validBindTypes[client.BindType] {
		return fmt.Errorf("invalid bind type: %s", client.BindType)
	}

	if client.Mode != smpp.ModeSync && client.Mode != smpp.ModeConcurrent {
		return fmt.Errorf("invalid mode: %s", client.Mode)
	}

	if client.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive: %v", client.ConnectTimeout)
	}

	if client.ResponseTimeout < 0 {
		return fmt.Errorf("response timeout cannot be negative: %v", client.ResponseTimeout)
	}

	if client.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max reconnect attempts cannot be negative: %d", client.MaxReconnectAttempts)
	}

	if client.MaxOutstanding < 0 {
		return fmt.Errorf("max outstanding cannot be negative: %d", client.MaxOutstanding)
	}

	if client.SubmitRate < 0 {
		return fmt.Errorf("submit rate cannot be negative: %v", client.SubmitRate)
	}

	if client.SubmitRate > 0 && client.SubmitBurst <= 0 {
		return fmt.Errorf("submit burst must be positive when submit rate is set: %d", client.SubmitBurst)
	}

	return nil
}

// validateLoggingConfig validates logging configuration
func (cm *ConfigManager) validateLoggingConfig() error {
	logging := &cm.config.Logging

	validLevels := map[string]bool{
		"debug":    true,
		"info":     true,
		"warn":     true,
		"error":    true,
		"critical": true,
		"fatal":    true,
	}

	if !validLevels[logging.Level] {
		return fmt.Errorf("invalid log level: %s", logging.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}

	if !validFormats[logging.Format] {
		return fmt.Errorf("invalid log format: %s", logging.Format)
	}

	validOutputs := map[string]bool{
		"stdout": true,
		"stderr": true,
	}

	if !validOutputs[logging.Output] {
		return fmt.Errorf("invalid log output: %s", logging.Output)
	}

	return nil
}

// validateMetricsConfig validates metrics configuration
func (cm *ConfigManager) validateMetricsConfig() error {
	metrics := &cm.config.Metrics

	if metrics.Enabled {
		if metrics.Port <= 0 || metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", metrics.Port)
		}
		if metrics.Path == "" {
			return fmt.Errorf("metrics path cannot be empty")
		}
	}

	return nil
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Client: smpp.ClientConfig{
			Host:                 "127.0.0.1",
			Port:                 2775,
			SystemID:             "test",
			Password:             "test",
			SystemType:           "",
			BindType:             smpp.BindTypeTransceiver,
			Mode:                 smpp.ModeConcurrent,
			ConnectTimeout:       10 * time.Second,
			ResponseTimeout:      10 * time.Second,
			WriteTimeout:         10 * time.Second,
			EnquireLinkInterval:  30 * time.Second,
			ReconnectInterval:    5 * time.Second,
			MaxReconnectAttempts: 5,
			SubmitBurst:          1,
			LogLevel:             "info",
		},
		Defaults: smpp.Params{},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Port:      9090,
			Path:      "/metrics",
			Namespace: "esme",
		},
		Storage: StorageConfig{
			MaxMessages: 10000,
		},
	}
}

// fileExists checks if a file exists
func (cm *ConfigManager) fileExists(filename string) bool {
	_, err := os.Stat(filename)
	return !os.IsNotExist(err)
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *Config {
	return cm.config
}

// CreateDefaultConfigFile creates a default configuration file
func CreateDefaultConfigFile(path string) error {
	return writeConfig(path, DefaultConfig())
}

func writeConfig(path string, config *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := configJSON{
		Client: clientConfigJSON{
			Host:                 config.Client.Host,
			Port:                 config.Client.Port,
			SystemID:             config.Client.SystemID,
			Password:             config.Client.Password,
			SystemType:           config.Client.SystemType,
			BindType:             config.Client.BindType,
			Mode:                 config.Client.Mode,
			ConnectTimeout:       config.Client.ConnectTimeout.String(),
			ResponseTimeout:      config.Client.ResponseTimeout.String(),
			WriteTimeout:         config.Client.WriteTimeout.String(),
			EnquireLinkInterval:  config.Client.EnquireLinkInterval.String(),
			ReconnectInterval:    config.Client.ReconnectInterval.String(),
			MaxReconnectAttempts: &config.Client.MaxReconnectAttempts,
			MaxOutstanding:       &config.Client.MaxOutstanding,
			SubmitRate:           &config.Client.SubmitRate,
			SubmitBurst:          &config.Client.SubmitBurst,
			TLSEnabled:           config.Client.TLSEnabled,
			TLSSkipVerify:        config.Client.TLSSkipVerify,
		},
		Defaults: config.Defaults,
		Logging:  &config.Logging,
		Metrics:  &config.Metrics,
		Storage:  &config.Storage,
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
