// Package config loads meetup configuration. Values are layered: built-in
// defaults, then an optional YAML file, then a .env file, then MEETUP_*
// environment variables. Command-line flags are applied last by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/me/meetup/internal/notify"
	"github.com/me/meetup/internal/planner"
	"github.com/me/meetup/internal/scheduler"
	"github.com/me/meetup/pkg/model"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the config reads.
const EnvPrefix = "MEETUP_"

// Config is the full meetup configuration.
type Config struct {
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" validate:"oneof=text json"`
	DBPath    string `yaml:"db_path" env:"DB_PATH" validate:"required"`
	Capacity  int    `yaml:"capacity" env:"CAPACITY" validate:"min=1"`

	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Scheduler SchedulerConfig `yaml:"scheduler" envPrefix:"SCHEDULER_"`
	Planning  PlanningConfig  `yaml:"planning" envPrefix:"PLANNING_"`
	Invites   InvitesConfig   `yaml:"invites" envPrefix:"INVITES_"`
	Notifier  NotifierConfig  `yaml:"notifier" envPrefix:"NOTIFIER_"`
	Directory DirectoryConfig `yaml:"directory" envPrefix:"DIRECTORY_"`

	Groups []model.Group `yaml:"groups" validate:"unique=ID,dive"`
}

// ServerConfig holds HTTP server settings. A zero RequestsPerSecond turns
// off per-client throttling of user actions.
type ServerConfig struct {
	Addr              string        `yaml:"addr" env:"ADDR" validate:"required"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND" validate:"min=0"`
	Burst             int           `yaml:"burst" env:"BURST" validate:"min=1"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

// SchedulerConfig holds the tick cadence.
type SchedulerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval" env:"TICK_INTERVAL" validate:"gt=0"`
}

// PlanningConfig holds the rules for when new events happen.
type PlanningConfig struct {
	LeadWeeks        int           `yaml:"lead_weeks" env:"LEAD_WEEKS" validate:"min=0"`
	Weekday          string        `yaml:"weekday" env:"WEEKDAY" validate:"weekday"`
	SpreadDays       int           `yaml:"spread_days" env:"SPREAD_DAYS" validate:"min=0,max=6"`
	HourOfDay        int           `yaml:"hour_of_day" env:"HOUR_OF_DAY" validate:"min=0,max=23"`
	Location         string        `yaml:"location" env:"LOCATION" validate:"timezone"`
	CancellationLead time.Duration `yaml:"cancellation_lead" env:"CANCELLATION_LEAD" validate:"min=0"`
}

// InvitesConfig holds invite delivery and expiry settings.
type InvitesConfig struct {
	ExpiryGrace      time.Duration     `yaml:"expiry_grace" env:"EXPIRY_GRACE" validate:"gt=0"`
	ReminderCooldown time.Duration     `yaml:"reminder_cooldown" env:"REMINDER_COOLDOWN" validate:"gt=0"`
	ActiveHours      ActiveHoursConfig `yaml:"active_hours" envPrefix:"ACTIVE_HOURS_"`
}

// ActiveHoursConfig is the [Start, End) hour window for outbound invites.
type ActiveHoursConfig struct {
	Start int `yaml:"start" env:"START" validate:"min=0,max=23"`
	End   int `yaml:"end" env:"END" validate:"max=24,gtfield=Start"`
}

// NotifierConfig selects and tunes the notification sink.
type NotifierConfig struct {
	Kind          string        `yaml:"kind" env:"KIND" validate:"oneof=log amqp"`
	RatePerSecond float64       `yaml:"rate_per_second" env:"RATE_PER_SECOND" validate:"gt=0"`
	Burst         int           `yaml:"burst" env:"BURST" validate:"min=1"`
	IdleTTL       time.Duration `yaml:"idle_ttl" env:"IDLE_TTL" validate:"min=0"`

	AMQPURL        string        `yaml:"amqp_url" env:"AMQP_URL" validate:"required_if=Kind amqp"`
	Exchange       string        `yaml:"exchange" env:"EXCHANGE" validate:"required"`
	ConnectRetries int           `yaml:"connect_retries" env:"CONNECT_RETRIES" validate:"min=1"`
	RetryDelay     time.Duration `yaml:"retry_delay" env:"RETRY_DELAY" validate:"min=0"`
	PublishTimeout time.Duration `yaml:"publish_timeout" env:"PUBLISH_TIMEOUT" validate:"min=0"`
}

// DirectoryConfig locates the group roster.
type DirectoryConfig struct {
	RosterPath string        `yaml:"roster_path" env:"ROSTER_PATH" validate:"required"`
	CacheTTL   time.Duration `yaml:"cache_ttl" env:"CACHE_TTL" validate:"min=0"`
}

// Default returns sensible defaults.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		DBPath:    "meetup.db",
		Capacity:  4,
		Server: ServerConfig{
			Addr:              ":8080",
			RequestsPerSecond: 2,
			Burst:             10,
			ShutdownTimeout:   5 * time.Second,
		},
		Scheduler: SchedulerConfig{TickInterval: 5 * time.Minute},
		Planning: PlanningConfig{
			LeadWeeks:        1,
			Weekday:          "monday",
			SpreadDays:       3,
			HourOfDay:        17,
			Location:         "UTC",
			CancellationLead: 24 * time.Hour,
		},
		Invites: InvitesConfig{
			ExpiryGrace:      72 * time.Hour,
			ReminderCooldown: 24 * time.Hour,
			ActiveHours:      ActiveHoursConfig{Start: 9, End: 17},
		},
		Notifier: NotifierConfig{
			Kind:           "log",
			RatePerSecond:  1,
			Burst:          3,
			IdleTTL:        time.Hour,
			Exchange:       "meetup",
			ConnectRetries: 30,
			RetryDelay:     2 * time.Second,
			PublishTimeout: 10 * time.Second,
		},
		Directory: DirectoryConfig{
			RosterPath: "roster.yaml",
			CacheTTL:   10 * time.Minute,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// empty), envFiles (".env" when none are given; missing files are ignored)
// and the environment. The result is not validated.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks every field and reports all violations at once.
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return formatError(err)
	}
	return nil
}

// PlannerPolicy converts the planning section to a planner.Policy.
func (c *Config) PlannerPolicy() (planner.Policy, error) {
	weekday, err := ParseWeekday(c.Planning.Weekday)
	if err != nil {
		return planner.Policy{}, err
	}
	loc, err := time.LoadLocation(c.Planning.Location)
	if err != nil {
		return planner.Policy{}, fmt.Errorf("location %q: %w", c.Planning.Location, err)
	}
	return planner.Policy{
		LeadWeeks:        c.Planning.LeadWeeks,
		Weekday:          weekday,
		SpreadDays:       c.Planning.SpreadDays,
		HourOfDay:        c.Planning.HourOfDay,
		Location:         loc,
		CancellationLead: c.Planning.CancellationLead,
	}, nil
}

// SchedulerConfig converts the scheduler and invites sections to a scheduler.Config.
func (c *Config) SchedulerConfig() (scheduler.Config, error) {
	loc, err := time.LoadLocation(c.Planning.Location)
	if err != nil {
		return scheduler.Config{}, fmt.Errorf("location %q: %w", c.Planning.Location, err)
	}
	return scheduler.Config{
		TickInterval:     c.Scheduler.TickInterval,
		ExpiryGrace:      c.Invites.ExpiryGrace,
		ReminderCooldown: c.Invites.ReminderCooldown,
		ActiveHours: scheduler.ActiveHours{
			Start: c.Invites.ActiveHours.Start,
			End:   c.Invites.ActiveHours.End,
		},
		Location: loc,
	}, nil
}

// AMQPConfig returns the RabbitMQ connection settings.
func (c *Config) AMQPConfig() notify.AMQPConfig {
	return notify.AMQPConfig{
		URL:            c.Notifier.AMQPURL,
		Exchange:       c.Notifier.Exchange,
		ConnectRetries: c.Notifier.ConnectRetries,
		RetryDelay:     c.Notifier.RetryDelay,
		PublishTimeout: c.Notifier.PublishTimeout,
	}
}

// ParseWeekday accepts full English day names and three-letter
// abbreviations, case-insensitively.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their YAML names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		_, err := ParseWeekday(fl.Field().String())
		return err == nil
	})
	return v
}

func formatError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := e.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		msgs = append(msgs, field+" "+friendlyMessage(e))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return "must be one of: " + e.Param()
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must not exceed " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "gtfield":
		return "must be greater than " + e.Param()
	case "unique":
		return "must not repeat " + e.Param()
	case "weekday":
		return "must be a day of the week"
	case "timezone":
		return "must be an IANA time zone"
	default:
		return "is invalid"
	}
}
