package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/angas/spotprice/logging"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppConfigApi struct {
	Address string
	// Port for the status server, 0 disables it.
	Port int
}

type AppConfigDatabase struct {
	Path *string
	// How many days data should be stored in database before it gets purged
	DataRetentionDays *int `mapstructure:"data_retention_days"`
	// How many days daily backup files should be stored before they gets deleted
	BackupRetentionDays *int `mapstructure:"backup_retention_days"`
}

func (d AppConfigDatabase) GetPath() string {
	if d.Path == nil || *d.Path == "" {
		return "db/spotprice.db"
	}
	return *d.Path
}

func (d AppConfigDatabase) GetDataRetentionDays() int {
	if d.DataRetentionDays == nil {
		return 90
	}
	return *d.DataRetentionDays
}

func (d AppConfigDatabase) GetBackupRetentionDays() int {
	if d.BackupRetentionDays == nil {
		return 90
	}
	return *d.BackupRetentionDays
}

type AppConfigMqtt struct {
	Host     string
	Port     int
	Username string
	Password string
	// Prefix of the client id, each source connects as <prefix>-<source>.
	ClientId *string `mapstructure:"client_id"`
}

func (m AppConfigMqtt) GetClientId(source string) string {
	prefix := "spotprice"
	if m.ClientId != nil && *m.ClientId != "" {
		prefix = *m.ClientId
	}
	return prefix + "-" + source
}

type AppConfigLogging struct {
	// Min log level for database : "DEBUG", "INFO", "WARN", "ERROR", default: "INFO"
	DbLevel *string `mapstructure:"db_level"`
	// Log attributes format: "TEXT", "JSON", default: "JSON"
	DbAttrsFormat *string `mapstructure:"db_attrs_format"`
	// Maximum number of log entries in the database, default: 10000
	DbMaxEntries *int `mapstructure:"db_max_entries"`
	// Min log level for database console: "DEBUG", "INFO", "WARN", "ERROR", default: "INFO"
	ConsoleLevel *string `mapstructure:"console_level"`
}

func (l AppConfigLogging) GetDbLevel() slog.Level {
	return logging.LevelFromString(l.DbLevel)
}

func (l AppConfigLogging) GetDbAttrsFormat() logging.LogAttrFormat {
	if l.DbAttrsFormat == nil {
		return logging.LogAttrFormatJSON
	}
	if strings.EqualFold(*l.DbAttrsFormat, "text") {
		return logging.LogAttrFormatText
	}
	return logging.LogAttrFormatJSON
}

func (l AppConfigLogging) GetDbMaxEntries() int {
	if l.DbMaxEntries == nil {
		return 10000
	}
	return *l.DbMaxEntries
}

func (l AppConfigLogging) GetConsoleLevel() slog.Level {
	return logging.LevelFromString(l.ConsoleLevel)
}

type AppConfig struct {
	Api      AppConfigApi
	Database AppConfigDatabase
	Mqtt     AppConfigMqtt
	Logging  AppConfigLogging
	// Local zone for day and hour buckets, default: Europe/Stockholm
	Timezone *string
	Sources  map[string]AppConfigSource

	v *viper.Viper
}

func (c *AppConfig) GetTimezone() string {
	if c.Timezone == nil || *c.Timezone == "" {
		return "Europe/Stockholm"
	}
	return *c.Timezone
}

// Source returns the named source, or false when it is not configured.
func (c *AppConfig) Source(name string) (AppConfigSource, bool) {
	s, ok := c.Sources[name]
	return s, ok
}

// WatchChanges calls onChange whenever the config file is written. Running
// publishers are not reconfigured.
func (c *AppConfig) WatchChanges(onChange func(e fsnotify.Event)) {
	if c.v == nil {
		return
	}
	c.v.OnConfigChange(onChange)
	c.v.WatchConfig()
}

// Load reads path, or config/config.yaml when path is empty. Variables from
// a .env file in the working directory are made available first.
func Load(path string) (*AppConfig, error) {
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("config")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}

	c := AppConfig{v: v}
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config file: %w", err)
	}

	for name, s := range c.Sources {
		s.Name = name
		c.Sources[name] = s
	}

	return &c, nil
}

// apiKeyEnv lists where a source type finds its key when api_key is not set.
var apiKeyEnv = map[string]string{
	"entsoe":         "ENTSOE_API_KEY",
	"tibber":         "TIBBER_API_TOKEN",
	"exchange_rates": "EXCHANGE_RATES_API_KEY",
}

func durationOr(d *time.Duration, def time.Duration) time.Duration {
	if d == nil || *d <= 0 {
		return def
	}
	return *d
}
