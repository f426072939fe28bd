// Package config provides configuration loading, validation, and defaults
// for the majordomo assistant core. Values come from defaults, config.yaml,
// and MAJORDOMO_* environment variables, in that order.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config defines the application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Timezone  string          `mapstructure:"timezone" validate:"required"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Web       WebConfig       `mapstructure:"web"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LoggerConfig controls log output.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig holds SQLite connection settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// TelegramConfig holds the delivery channel credentials. When Token is empty
// the Telegram notification handler is not registered.
type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id" validate:"required_with=Token"`
}

// WebConfig holds settings for the JSON API server.
type WebConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required"`
}

// SchedulerConfig holds the job timetable. Fixed-time jobs are expressed as
// wall-clock hour/minute in the configured timezone; interval jobs as
// durations.
type SchedulerConfig struct {
	MorningSummaryHour   int           `mapstructure:"morning_summary_hour"   validate:"min=0,max=23"`
	MorningSummaryMinute int           `mapstructure:"morning_summary_minute" validate:"min=0,max=59"`
	EODReviewHour        int           `mapstructure:"eod_review_hour"        validate:"min=0,max=23"`
	EODReviewMinute      int           `mapstructure:"eod_review_minute"      validate:"min=0,max=59"`
	MaintenanceHour      int           `mapstructure:"maintenance_hour"       validate:"min=0,max=23"`
	ReminderInterval     time.Duration `mapstructure:"reminder_interval"      validate:"required,min=10s"`
	RecurrenceInterval   time.Duration `mapstructure:"recurrence_interval"    validate:"required,min=1m"`
	CalendarSyncInterval time.Duration `mapstructure:"calendar_sync_interval" validate:"required,min=1m"`
}

// LoadConfig reads configuration from the given path, applies environment
// overrides, and validates the result. A missing config file is not an
// error; defaults and environment variables cover every field.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MAJORDOMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !isNotFound(err) {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", true)

	v.SetDefault("database.path", "majordomo.db")

	v.SetDefault("timezone", "UTC")

	v.SetDefault("web.enabled", true)
	v.SetDefault("web.addr", ":8321")

	v.SetDefault("scheduler.morning_summary_hour", 7)
	v.SetDefault("scheduler.morning_summary_minute", 30)
	v.SetDefault("scheduler.eod_review_hour", 21)
	v.SetDefault("scheduler.eod_review_minute", 0)
	v.SetDefault("scheduler.maintenance_hour", 3)
	v.SetDefault("scheduler.reminder_interval", time.Minute)
	v.SetDefault("scheduler.recurrence_interval", 5*time.Minute)
	v.SetDefault("scheduler.calendar_sync_interval", 30*time.Minute)
}

func isNotFound(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	return strings.Contains(err.Error(), "no such file")
}

// Location resolves the configured timezone. All fixed-time trigger
// evaluation and due-date categorization happens in this location.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
