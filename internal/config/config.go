package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the hub configuration. Values come from defaults, then the
// YAML file named by CONFIG_FILE, then environment variables.
type Config struct {
	Host                     string `yaml:"host"`
	Port                     string `yaml:"port"`
	SQLiteDBPath             string `yaml:"sqlite_db_path"`
	AppEnv                   string `yaml:"app_env"`
	AllowTestMode            bool   `yaml:"allow_test_mode"`
	JWTSecret                string `yaml:"jwt_secret"`
	JWTAccessTokenExpirySec  int    `yaml:"jwt_access_token_expiry"`
	JWTRefreshTokenExpirySec int    `yaml:"jwt_refresh_token_expiry"`
	AuditRetentionDays       int    `yaml:"audit_retention_days"`

	Device   DeviceConfig   `yaml:"device"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
}

// DeviceConfig describes the receiver this hub coordinates.
type DeviceConfig struct {
	Host                string `yaml:"host"`
	Name                string `yaml:"name"`  // overrides the device-reported name
	Model               string `yaml:"model"` // used when the device reports none
	TimeoutMs           int    `yaml:"timeout_ms"`
	ScanIntervalSeconds int    `yaml:"scan_interval_seconds"`
}

// MQTTConfig contains MQTT broker settings for the state bridge.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

// InfluxDBConfig contains InfluxDB settings for the state history writer.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // seconds
}

// Timeout returns the per-request device timeout.
func (d DeviceConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

// ScanInterval returns the polling interval.
func (d DeviceConfig) ScanInterval() time.Duration {
	return time.Duration(d.ScanIntervalSeconds) * time.Second
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Host:                     "0.0.0.0",
		Port:                     "9000",
		SQLiteDBPath:             "./data/cambridge-hub.db",
		AppEnv:                   "development",
		JWTAccessTokenExpirySec:  3600,
		JWTRefreshTokenExpirySec: 2592000,
		AuditRetentionDays:       90,
		Device: DeviceConfig{
			TimeoutMs:           5000,
			ScanIntervalSeconds: 30,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "cambridge-hub",
			TopicPrefix: "cambridge-hub",
			QoS:         1,
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "cambridge-hub",
			BatchSize:     50,
			FlushInterval: 10,
		},
	}
}

// Load builds the configuration and validates it.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Host = envString("HOST", cfg.Host)
	cfg.Port = envString("PORT", cfg.Port)
	cfg.SQLiteDBPath = envString("SQLITE_DB_PATH", cfg.SQLiteDBPath)
	cfg.AppEnv = envString("APP_ENV", cfg.AppEnv)
	cfg.AllowTestMode = envBool("ALLOW_TEST_MODE", cfg.AllowTestMode)
	cfg.JWTSecret = envString("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTAccessTokenExpirySec = envInt("JWT_ACCESS_TOKEN_EXPIRY", cfg.JWTAccessTokenExpirySec)
	cfg.JWTRefreshTokenExpirySec = envInt("JWT_REFRESH_TOKEN_EXPIRY", cfg.JWTRefreshTokenExpirySec)
	cfg.AuditRetentionDays = envInt("AUDIT_RETENTION_DAYS", cfg.AuditRetentionDays)

	cfg.Device.Host = envString("DEVICE_HOST", cfg.Device.Host)
	cfg.Device.Name = envString("DEVICE_NAME", cfg.Device.Name)
	cfg.Device.Model = envString("DEVICE_MODEL", cfg.Device.Model)
	cfg.Device.TimeoutMs = envInt("DEVICE_TIMEOUT_MS", cfg.Device.TimeoutMs)
	cfg.Device.ScanIntervalSeconds = envInt("SCAN_INTERVAL_SECONDS", cfg.Device.ScanIntervalSeconds)

	cfg.MQTT.Enabled = envBool("MQTT_ENABLED", cfg.MQTT.Enabled)
	cfg.MQTT.Broker = envString("MQTT_BROKER", cfg.MQTT.Broker)
	cfg.MQTT.ClientID = envString("MQTT_CLIENT_ID", cfg.MQTT.ClientID)
	cfg.MQTT.Username = envString("MQTT_USERNAME", cfg.MQTT.Username)
	cfg.MQTT.Password = envString("MQTT_PASSWORD", cfg.MQTT.Password)
	cfg.MQTT.TopicPrefix = envString("MQTT_TOPIC_PREFIX", cfg.MQTT.TopicPrefix)
	cfg.MQTT.QoS = envInt("MQTT_QOS", cfg.MQTT.QoS)

	cfg.InfluxDB.Enabled = envBool("INFLUXDB_ENABLED", cfg.InfluxDB.Enabled)
	cfg.InfluxDB.URL = envString("INFLUXDB_URL", cfg.InfluxDB.URL)
	cfg.InfluxDB.Token = envString("INFLUXDB_TOKEN", cfg.InfluxDB.Token)
	cfg.InfluxDB.Org = envString("INFLUXDB_ORG", cfg.InfluxDB.Org)
	cfg.InfluxDB.Bucket = envString("INFLUXDB_BUCKET", cfg.InfluxDB.Bucket)
	cfg.InfluxDB.BatchSize = envInt("INFLUXDB_BATCH_SIZE", cfg.InfluxDB.BatchSize)
	cfg.InfluxDB.FlushInterval = envInt("INFLUXDB_FLUSH_INTERVAL", cfg.InfluxDB.FlushInterval)
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var errs []error

	if len(strings.TrimSpace(c.JWTSecret)) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters"))
	}
	if strings.TrimSpace(c.Device.Host) == "" {
		errs = append(errs, errors.New("DEVICE_HOST is required"))
	}
	if c.Device.TimeoutMs <= 0 {
		errs = append(errs, errors.New("DEVICE_TIMEOUT_MS must be positive"))
	}
	if c.Device.ScanIntervalSeconds < 1 {
		errs = append(errs, errors.New("SCAN_INTERVAL_SECONDS must be at least 1"))
	}
	if c.AuditRetentionDays < 1 {
		errs = append(errs, errors.New("AUDIT_RETENTION_DAYS must be at least 1"))
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			errs = append(errs, errors.New("MQTT_BROKER is required when MQTT is enabled"))
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, errors.New("MQTT_QOS must be 0, 1 or 2"))
		}
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, errors.New("INFLUXDB_URL, INFLUXDB_ORG and INFLUXDB_BUCKET are required when InfluxDB is enabled"))
		}
	}

	return errors.Join(errs...)
}

// IsDevelopment reports whether the hub runs in the development environment.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return strings.EqualFold(val, "true")
}
