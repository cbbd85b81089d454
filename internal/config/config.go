// Package config defines the process configuration for powerwatch.
// Values are read once at startup from the environment (optionally seeded by
// a .env file) and are immutable thereafter.
package config

import (
	"strings"
	"time"

	"powerwatch/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Timezone    string `envconfig:"TIMEZONE" default:"Europe/Kyiv" validate:"required,timezone"`

	Monitor    MonitorConfig
	Device     DeviceConfig
	Schedule   ScheduleConfig
	Telegram   TelegramConfig
	Database   DatabaseConfig
	Digest     DigestConfig
	QuietHours QuietHoursConfig
	Server     ServerConfig
	AWS        AWSConfig

	// Resolved from Timezone by the loader.
	Location *time.Location `ignored:"true" validate:"-"`

	Build BuildInfo `ignored:"true"`
}

// MonitorConfig tunes the state tracker loop and default query windows.
type MonitorConfig struct {
	PollInterval      time.Duration `envconfig:"POLL_INTERVAL" default:"5s" validate:"min=1s"`
	PollTimeout       time.Duration `envconfig:"POLL_TIMEOUT" default:"10s" validate:"min=1s"`
	RecentEventsLimit int           `envconfig:"RECENT_EVENTS_LIMIT" default:"10" validate:"min=1,max=100"`
	StatsWindowDays   int           `envconfig:"STATS_WINDOW_DAYS" default:"7" validate:"min=1,max=366"`
}

// DeviceConfig selects and configures the device-status provider.
type DeviceConfig struct {
	Provider string `envconfig:"DEVICE_PROVIDER" default:"tuya" validate:"oneof=tuya mqtt"`

	TuyaEndpoint   string       `envconfig:"TUYA_ENDPOINT" default:"https://openapi.tuyaeu.com" validate:"omitempty,url"`
	TuyaAccessID   string       `envconfig:"TUYA_ACCESS_ID" validate:"required_if=Provider tuya"`
	TuyaAccessKey  SecretString `envconfig:"TUYA_ACCESS_KEY" validate:"required_if=Provider tuya"`
	TuyaDeviceID   string       `envconfig:"TUYA_DEVICE_ID" validate:"required_if=Provider tuya"`
	TuyaSwitchCode string       `envconfig:"TUYA_SWITCH_CODE" default:"switch_1"`

	MQTTBroker            string        `envconfig:"MQTT_BROKER" validate:"required_if=Provider mqtt"`
	MQTTClientID          string        `envconfig:"MQTT_CLIENT_ID" default:"powerwatch"`
	MQTTStateTopic        string        `envconfig:"MQTT_STATE_TOPIC" validate:"required_if=Provider mqtt"`
	MQTTAvailabilityTopic string        `envconfig:"MQTT_AVAILABILITY_TOPIC"`
	MQTTMaxAge            time.Duration `envconfig:"MQTT_MAX_AGE" default:"2m"`
}

// ScheduleConfig points at the published outage schedule.
type ScheduleConfig struct {
	BaseURL         string        `envconfig:"YASNO_BASE_URL" default:"https://app.yasno.ua" validate:"required,url"`
	Region          string        `envconfig:"YASNO_REGION" default:"25" validate:"required"`
	DSO             string        `envconfig:"YASNO_DSO" default:"902" validate:"required"`
	Group           string        `envconfig:"YASNO_GROUP" validate:"required"`
	FetchTimeout    time.Duration `envconfig:"FETCH_TIMEOUT" default:"10s"`
	RefreshInterval time.Duration `envconfig:"SCHEDULE_REFRESH_INTERVAL" default:"30m"`
}

// TelegramConfig holds the notification transport settings.
type TelegramConfig struct {
	Token   SecretString  `envconfig:"TG_TOKEN" validate:"required"`
	ChatID  string        `envconfig:"TG_CHAT_ID" validate:"required"`
	APIURL  string        `envconfig:"TELEGRAM_API_URL" default:"https://api.telegram.org" validate:"url"`
	Timeout time.Duration `envconfig:"TELEGRAM_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL          SecretString  `envconfig:"DATABASE_URL" validate:"required"`
	MaxConns     int           `envconfig:"DB_MAX_CONNS" default:"5"`
	QueryTimeout time.Duration `envconfig:"DB_TIMEOUT" default:"5s"`
}

// DigestConfig holds the local trigger times of the periodic reports.
type DigestConfig struct {
	DailyAt    string `envconfig:"DIGEST_DAILY_AT" default:"07:00" validate:"datetime=15:04"`
	WeeklyDay  string `envconfig:"DIGEST_WEEKLY_DAY" default:"monday" validate:"oneof=sunday monday tuesday wednesday thursday friday saturday"`
	WeeklyAt   string `envconfig:"DIGEST_WEEKLY_AT" default:"09:00" validate:"datetime=15:04"`
	MonthlyDay int    `envconfig:"DIGEST_MONTHLY_DAY" default:"1" validate:"min=1,max=31"`
	MonthlyAt  string `envconfig:"DIGEST_MONTHLY_AT" default:"10:00" validate:"datetime=15:04"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Weekday returns WeeklyDay as a time.Weekday. Unknown names map to Monday.
func (d DigestConfig) Weekday() time.Weekday {
	if wd, ok := weekdays[strings.ToLower(d.WeeklyDay)]; ok {
		return wd
	}
	return time.Monday
}

// QuietHoursConfig defines the [Start, End) local window for silent sends.
type QuietHoursConfig struct {
	Enabled bool   `envconfig:"QUIET_HOURS_ENABLED" default:"true"`
	Start   string `envconfig:"QUIET_HOURS_START" default:"23:00" validate:"datetime=15:04"`
	End     string `envconfig:"QUIET_HOURS_END" default:"07:00" validate:"datetime=15:04"`
}

// ServerConfig holds the query API listener settings.
type ServerConfig struct {
	Addr string `envconfig:"HTTP_ADDR" default:":8080"`
}

// AWSConfig holds the optional AWS integrations.
type AWSConfig struct {
	Region            string `envconfig:"AWS_REGION" default:"eu-central-1"`
	CloudWatchEnabled bool   `envconfig:"CLOUDWATCH_ENABLED" default:"false"`
	MetricNamespace   string `envconfig:"METRIC_NAMESPACE" default:"PowerWatch"`
	EventsQueueURL    string `envconfig:"EVENTS_QUEUE_URL" validate:"omitempty,url"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrParsing    ConfigErrorType = "PARSING"
	ErrValidation ConfigErrorType = "VALIDATION"
	ErrTimezone   ConfigErrorType = "TIMEZONE"
)
